package tool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmorgan81/sdtool/internal/config"
	"github.com/dmorgan81/sdtool/internal/image"
	"github.com/dmorgan81/sdtool/internal/markdown"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type generatorStub struct {
	params image.Params
	result *image.Result
	err    error
}

func (s *generatorStub) Generate(_ context.Context, params image.Params) (*image.Result, error) {
	s.params = params
	return s.result, s.err
}

type catalogStub struct {
	models   []image.Model
	samplers []image.Sampler
	err      error
}

func (s *catalogStub) Models(context.Context) ([]image.Model, error)     { return s.models, s.err }
func (s *catalogStub) Samplers(context.Context) ([]image.Sampler, error) { return s.samplers, s.err }

func newTools(gen image.Generator, cat image.Catalog) *Tools {
	return New(config.Defaults(), gen, cat, &markdown.Templator{})
}

func okGenerator() *generatorStub {
	return &generatorStub{result: &image.Result{Images: []string{"QQ=="}, Seed: 42}}
}

func TestGenerateImageDefaults(t *testing.T) {
	gen := okGenerator()
	tools := newTools(gen, &catalogStub{})

	out := tools.GenerateImage(context.Background(), GenerateArgs{Prompt: "a cat"})
	assert.Equal(t, "![Generated Image](data:image/png;base64,QQ==)\n\n**Prompt:** a cat\n**Seed:** 42", out)
	assert.Equal(t, image.Params{
		Prompt:         "a cat",
		NegativePrompt: config.DefaultNegativePrompt,
		Width:          512,
		Height:         512,
		Steps:          20,
		CFGScale:       7.0,
		Seed:           -1,
		SamplerName:    "Euler a",
	}, gen.params)
}

func TestGenerateImagePassesStepsThrough(t *testing.T) {
	gen := okGenerator()
	tools := newTools(gen, &catalogStub{})

	tools.GenerateImage(context.Background(), GenerateArgs{
		Prompt:         "a cat",
		NegativePrompt: "dogs",
		Width:          lo.ToPtr(500),
		Height:         lo.ToPtr(10),
		Steps:          lo.ToPtr(500),
		CFGScale:       lo.ToPtr(50.0),
		Seed:           lo.ToPtr(int64(7)),
		SamplerName:    "DDIM",
	})
	assert.Equal(t, "dogs", gen.params.NegativePrompt)
	assert.Equal(t, 448, gen.params.Width)
	assert.Equal(t, 64, gen.params.Height)
	assert.Equal(t, 500, gen.params.Steps)
	assert.Equal(t, 50.0, gen.params.CFGScale)
	assert.Equal(t, int64(7), gen.params.Seed)
	assert.Equal(t, "DDIM", gen.params.SamplerName)
}

func TestGenerateImageZeroMeansDefault(t *testing.T) {
	gen := okGenerator()
	tools := newTools(gen, &catalogStub{})

	tools.GenerateImage(context.Background(), GenerateArgs{
		Prompt:   "a cat",
		Width:    lo.ToPtr(0),
		Steps:    lo.ToPtr(0),
		CFGScale: lo.ToPtr(0.0),
	})
	assert.Equal(t, 512, gen.params.Width)
	assert.Equal(t, 20, gen.params.Steps)
	assert.Equal(t, 7.0, gen.params.CFGScale)
}

func TestGenerateImageAdvancedClamps(t *testing.T) {
	tests := []struct {
		name     string
		steps    int
		cfg      float64
		expSteps int
		expCFG   float64
	}{
		{"too high", 500, 50.0, 100, 30.0},
		{"too low", 0, 0.5, 1, 1.0},
		{"in range", 30, 6.5, 30, 6.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := okGenerator()
			tools := newTools(gen, &catalogStub{})

			out := tools.GenerateImageAdvanced(context.Background(), GenerateArgs{
				Prompt:   "a cat",
				Width:    lo.ToPtr(1000),
				Height:   lo.ToPtr(-3),
				Steps:    lo.ToPtr(tt.steps),
				CFGScale: lo.ToPtr(tt.cfg),
			})
			assert.Equal(t, tt.expSteps, gen.params.Steps)
			assert.Equal(t, tt.expCFG, gen.params.CFGScale)
			assert.Equal(t, 960, gen.params.Width)
			assert.Equal(t, 64, gen.params.Height)
			assert.Contains(t, out, "**Settings:** 960x64")
		})
	}
}

func TestGeneratePromptRequired(t *testing.T) {
	gen := okGenerator()
	tools := newTools(gen, &catalogStub{})

	assert.Equal(t, MsgPromptRequired, tools.GenerateImage(context.Background(), GenerateArgs{Prompt: "  "}))
	assert.Equal(t, MsgPromptRequired, tools.GenerateImageAdvanced(context.Background(), GenerateArgs{}))
	assert.Empty(t, gen.params.Prompt)
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"connection", &image.Error{Kind: image.KindConnection, Err: assert.AnError}, "Could not connect to Stable Diffusion API at http://stable-diffusion:17860"},
		{"timeout", &image.Error{Kind: image.KindTimeout, Err: assert.AnError}, "timed out after 10m0s"},
		{"remote", &image.Error{Kind: image.KindRemote, Op: "txt2img", Err: &image.StatusError{Status: "500 Internal Server Error"}}, "Error generating image: txt2img: server returned 500"},
		{"empty", &image.Error{Kind: image.KindEmptyResult, Err: image.ErrNoImages}, MsgNoImage},
		{"unexpected", assert.AnError, "Unexpected error: " + assert.AnError.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools := newTools(&generatorStub{err: tt.err}, &catalogStub{})
			assert.Contains(t, tools.GenerateImage(context.Background(), GenerateArgs{Prompt: "a cat"}), tt.contains)
		})
	}
}

func TestListModels(t *testing.T) {
	tools := newTools(okGenerator(), &catalogStub{models: []image.Model{{ModelName: "v1.5"}, {Title: "v2.0"}}})
	assert.Equal(t, "**Available Stable Diffusion Models:**\n- v1.5\n- v2.0", tools.ListModels(context.Background()))

	tools = newTools(okGenerator(), &catalogStub{})
	assert.Equal(t, MsgNoModels, tools.ListModels(context.Background()))

	tools = newTools(okGenerator(), &catalogStub{err: assert.AnError})
	assert.Equal(t, "Error fetching models: "+assert.AnError.Error(), tools.ListModels(context.Background()))
}

func TestListSamplers(t *testing.T) {
	tools := newTools(okGenerator(), &catalogStub{samplers: []image.Sampler{{Name: "Euler a"}, {Name: "DDIM"}}})
	assert.Equal(t, "**Available Samplers:**\n- Euler a\n- DDIM", tools.ListSamplers(context.Background()))

	tools = newTools(okGenerator(), &catalogStub{})
	assert.Equal(t, MsgNoSamplers, tools.ListSamplers(context.Background()))

	tools = newTools(okGenerator(), &catalogStub{err: assert.AnError})
	assert.Contains(t, tools.ListSamplers(context.Background()), "Error fetching samplers: ")
}

func TestInvoke(t *testing.T) {
	gen := okGenerator()
	tools := newTools(gen, &catalogStub{samplers: []image.Sampler{{Name: "Euler a"}}})
	ctx := context.Background()

	out, err := tools.Invoke(ctx, NameGenerateImageAdvanced, json.RawMessage(`{"prompt":"a cat","steps":500}`))
	require.NoError(t, err)
	assert.Contains(t, out, "data:image/png;base64,QQ==")
	assert.Equal(t, 100, gen.params.Steps)

	out, err = tools.Invoke(ctx, NameGenerateImage, nil)
	require.NoError(t, err)
	assert.Equal(t, MsgPromptRequired, out)

	out, err = tools.Invoke(ctx, NameGetSamplers, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Contains(t, out, "- Euler a")

	out, err = tools.Invoke(ctx, NameGenerateImage, json.RawMessage(`{"prompt":"a cat","width":512.0,"steps":20.0}`))
	require.NoError(t, err)
	assert.Contains(t, out, "data:image/png;base64,QQ==")
	assert.Equal(t, 512, gen.params.Width)
	assert.Equal(t, 20, gen.params.Steps)

	out, err = tools.Invoke(ctx, NameGenerateImageAdvanced, json.RawMessage(`"{\"prompt\":\"a dog\",\"seed\":7}"`))
	require.NoError(t, err)
	assert.Contains(t, out, "**Prompt:** a dog")
	assert.Equal(t, int64(7), gen.params.Seed)

	_, err = tools.Invoke(ctx, "draw", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = tools.Invoke(ctx, NameGenerateImage, json.RawMessage(`{"prompt":`))
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestGenerateArgsDecoding(t *testing.T) {
	tests := map[string]struct {
		body string
		exp  GenerateArgs
	}{
		"integers": {
			body: `{"prompt":"a cat","width":640,"steps":30,"seed":9}`,
			exp:  GenerateArgs{Prompt: "a cat", Width: lo.ToPtr(640), Steps: lo.ToPtr(30), Seed: lo.ToPtr(int64(9))},
		},
		"whole floats": {
			body: `{"prompt":"a cat","width":512.0,"height":768.0,"steps":20.0,"seed":42.0,"cfg_scale":7}`,
			exp: GenerateArgs{
				Prompt:   "a cat",
				Width:    lo.ToPtr(512),
				Height:   lo.ToPtr(768),
				Steps:    lo.ToPtr(20),
				Seed:     lo.ToPtr(int64(42)),
				CFGScale: lo.ToPtr(7.0),
			},
		},
		"fractions truncate": {
			body: `{"prompt":"a cat","steps":20.7}`,
			exp:  GenerateArgs{Prompt: "a cat", Steps: lo.ToPtr(20)},
		},
		"nulls": {
			body: `{"prompt":"a cat","width":null,"seed":null}`,
			exp:  GenerateArgs{Prompt: "a cat"},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var args GenerateArgs
			require.NoError(t, json.Unmarshal([]byte(tt.body), &args))
			assert.Equal(t, tt.exp, args)
		})
	}

	var args GenerateArgs
	assert.Error(t, json.Unmarshal([]byte(`{"prompt":"a cat","width":"wide"}`), &args))
	assert.Error(t, json.Unmarshal([]byte(`{"prompt":"a cat","seed":1e300}`), &args))
}

func TestGenerateKeepsPromptVerbatim(t *testing.T) {
	gen := okGenerator()
	tools := newTools(gen, &catalogStub{})

	out := tools.GenerateImage(context.Background(), GenerateArgs{Prompt: "  a cat "})
	assert.Equal(t, "  a cat ", gen.params.Prompt)
	assert.Contains(t, out, "**Prompt:**   a cat \n")

	tools.GenerateImageAdvanced(context.Background(), GenerateArgs{Prompt: " a dog"})
	assert.Equal(t, " a dog", gen.params.Prompt)
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	names := lo.Map(defs, func(d Definition, _ int) string { return d.Name })
	assert.Equal(t, []string{NameGenerateImage, NameGenerateImageAdvanced, NameGetModels, NameGetSamplers}, names)

	props := defs[0].Parameters["properties"].(map[string]any)
	assert.ElementsMatch(t,
		[]string{"prompt", "negative_prompt", "width", "height", "steps", "cfg_scale", "seed", "sampler_name"},
		lo.Keys(props))

	_, err := json.Marshal(defs)
	assert.NoError(t, err)
}

// The cases below run the tools against a fake WebUI.

func webuiTools(t *testing.T, handler http.HandlerFunc) *Tools {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return webuiToolsAt(server.URL, server.Client(), 5*time.Second)
}

func webuiToolsAt(baseURL string, client *http.Client, timeout time.Duration) *Tools {
	settings := config.Defaults().WithBaseURL(baseURL)
	settings.GenerateTimeout = timeout
	settings.ListTimeout = timeout
	sd := &image.AutomaticClient{
		Client:          client,
		BaseURL:         settings.BaseURL,
		GenerateTimeout: settings.GenerateTimeout,
		ListTimeout:     settings.ListTimeout,
	}
	return New(settings, sd, sd, &markdown.Templator{})
}

func TestWebUIGenerateSuccess(t *testing.T) {
	tools := webuiTools(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"images": ["QQ=="], "info": {"seed": 42}}`))
	})

	out := tools.GenerateImage(context.Background(), GenerateArgs{Prompt: "a cat"})
	assert.Contains(t, out, "data:image/png;base64,QQ==")
	assert.Contains(t, out, "a cat")
	assert.Contains(t, out, "42")
}

func TestWebUIGenerateEmpty(t *testing.T) {
	tools := webuiTools(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"images": []}`))
	})

	assert.Equal(t, MsgNoImage, tools.GenerateImage(context.Background(), GenerateArgs{Prompt: "a cat"}))
}

func TestWebUIConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	tools := webuiToolsAt(url, nil, 5*time.Second)
	out := tools.GenerateImage(context.Background(), GenerateArgs{Prompt: "a cat"})
	assert.Contains(t, out, "Could not connect to Stable Diffusion API at "+url)
}

func TestWebUITimeout(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(done)

	tools := webuiToolsAt(server.URL, server.Client(), 50*time.Millisecond)
	out := tools.GenerateImage(context.Background(), GenerateArgs{Prompt: "a cat"})
	assert.Contains(t, out, "Request timed out")
}

func TestWebUIListModels(t *testing.T) {
	tools := webuiTools(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"model_name": "v1.5"}, {"title": "v2.0"}]`))
	})

	out := tools.ListModels(context.Background())
	assert.Contains(t, out, "- v1.5")
	assert.Contains(t, out, "- v2.0")
}
