package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dmorgan81/sdtool/internal/config"
	"github.com/dmorgan81/sdtool/internal/log"
	"github.com/samber/do"
)

const (
	txt2imgPath  = "/sdapi/v1/txt2img"
	modelsPath   = "/sdapi/v1/sd-models"
	samplersPath = "/sdapi/v1/samplers"

	maxDetailLen = 512
)

// AutomaticClient talks to an AUTOMATIC1111 compatible WebUI API.
type AutomaticClient struct {
	Client          *http.Client
	BaseURL         string
	GenerateTimeout time.Duration
	ListTimeout     time.Duration
}

var (
	_ Generator = (*AutomaticClient)(nil)
	_ Catalog   = (*AutomaticClient)(nil)
)

func NewAutomaticClient(i *do.Injector) (*AutomaticClient, error) {
	settings := do.MustInvoke[config.Settings](i)
	return &AutomaticClient{
		Client:          do.MustInvoke[*http.Client](i),
		BaseURL:         settings.BaseURL,
		GenerateTimeout: settings.GenerateTimeout,
		ListTimeout:     settings.ListTimeout,
	}, nil
}

type txt2imgRequest struct {
	Params
	BatchSize int `json:"batch_size"`
	NIter     int `json:"n_iter"`
}

type txt2imgResponse struct {
	Images []string        `json:"images"`
	Info   json.RawMessage `json:"info"`
}

func (c *AutomaticClient) Generate(ctx context.Context, params Params) (*Result, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("webui").With(
		"prompt", params.Prompt,
		"size", fmt.Sprintf("%dx%d", params.Width, params.Height),
		"steps", params.Steps,
		"cfg_scale", params.CFGScale,
		"sampler", params.SamplerName,
		"seed", params.Seed,
	)
	log.Info("generating image")

	body, err := json.Marshal(txt2imgRequest{Params: params, BatchSize: 1, NIter: 1})
	if err != nil {
		return nil, &Error{Kind: KindUnexpected, Op: "txt2img", URL: c.url(txt2imgPath), Err: err}
	}

	var resp txt2imgResponse
	if err := c.call(ctx, "txt2img", http.MethodPost, txt2imgPath, c.GenerateTimeout, body, &resp); err != nil {
		log.Warn("image generation failed", "kind", KindOf(err).String(), "error", err)
		return nil, err
	}
	if len(resp.Images) == 0 {
		log.Warn("no images in response")
		return nil, &Error{Kind: KindEmptyResult, Op: "txt2img", URL: c.url(txt2imgPath), Err: ErrNoImages}
	}

	seed := resolveSeed(resp.Info, params.Seed)
	log.Info("received image", "images", len(resp.Images), "resolved_seed", seed)
	return &Result{Images: resp.Images, Seed: seed, Info: resp.Info}, nil
}

func (c *AutomaticClient) Models(ctx context.Context) ([]Model, error) {
	log.FromContextOrDiscard(ctx).WithGroup("webui").Info("listing models")
	var models []Model
	if err := c.call(ctx, "list models", http.MethodGet, modelsPath, c.ListTimeout, nil, &models); err != nil {
		return nil, err
	}
	return models, nil
}

func (c *AutomaticClient) Samplers(ctx context.Context) ([]Sampler, error) {
	log.FromContextOrDiscard(ctx).WithGroup("webui").Info("listing samplers")
	var samplers []Sampler
	if err := c.call(ctx, "list samplers", http.MethodGet, samplersPath, c.ListTimeout, nil, &samplers); err != nil {
		return nil, err
	}
	return samplers, nil
}

// call performs one round trip and decodes a 2xx JSON body into out. Every
// returned error is an *Error.
func (c *AutomaticClient) call(ctx context.Context, op, method, path string, timeout time.Duration, body []byte, out any) error {
	url := c.url(path)
	fail := func(kind Kind, err error) error {
		return &Error{Kind: kind, Op: op, URL: url, Err: err}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fail(KindUnexpected, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return fail(classify(err), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(classify(err), fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fail(KindRemote, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Detail:     errorDetail(data),
		})
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fail(KindRemote, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *AutomaticClient) url(path string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = config.DefaultBaseURL
	}
	return base + path
}

func (c *AutomaticClient) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

// resolveSeed reads the seed out of the info payload, which the WebUI sends
// either as an object or as a JSON encoded string.
func resolveSeed(info json.RawMessage, fallback int64) int64 {
	raw := []byte(info)
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = []byte(encoded)
	}

	var parsed struct {
		Seed *json.Number `json:"seed"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Seed == nil {
		return fallback
	}
	if seed, err := parsed.Seed.Int64(); err == nil {
		return seed
	}
	if seed, err := parsed.Seed.Float64(); err == nil && seed >= math.MinInt64 && seed <= math.MaxInt64 {
		return int64(seed)
	}
	return fallback
}

// errorDetail pulls a readable message out of a FastAPI error body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
		Errors string `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch d := payload.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
		if payload.Errors != "" {
			return payload.Errors
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	detail := strings.TrimSpace(string(body))
	if len(detail) > maxDetailLen {
		detail = detail[:maxDetailLen] + "..."
	}
	return detail
}
