package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmorgan81/sdtool/internal/config"
	"github.com/dmorgan81/sdtool/internal/image"
	"github.com/dmorgan81/sdtool/internal/log"
	"github.com/dmorgan81/sdtool/internal/markdown"
	"github.com/samber/do"
	"github.com/samber/lo"
)

const (
	MsgPromptRequired = "Error: A prompt is required. Describe the image you want to generate."
	MsgNoImage        = "Error: No image was generated. The API response did not contain any images."
	MsgNoModels       = "No models found. Please add models to the Stable Diffusion models directory."
	MsgNoSamplers     = "No samplers found."
)

// GenerateArgs are the arguments of the generate tools. Nil pointers mean the
// caller left the value out.
type GenerateArgs struct {
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Width          *int     `json:"width,omitempty"`
	Height         *int     `json:"height,omitempty"`
	Steps          *int     `json:"steps,omitempty"`
	CFGScale       *float64 `json:"cfg_scale,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	SamplerName    string   `json:"sampler_name,omitempty"`
}

// Tools turns tool calls into WebUI requests and every outcome into a
// string the host can show as is.
type Tools struct {
	settings  config.Settings
	generator image.Generator
	catalog   image.Catalog
	templator *markdown.Templator
}

func New(settings config.Settings, generator image.Generator, catalog image.Catalog, templator *markdown.Templator) *Tools {
	return &Tools{
		settings:  settings,
		generator: generator,
		catalog:   catalog,
		templator: templator,
	}
}

func NewTools(i *do.Injector) (*Tools, error) {
	return New(
		do.MustInvoke[config.Settings](i),
		do.MustInvoke[image.Generator](i),
		do.MustInvoke[image.Catalog](i),
		do.MustInvoke[*markdown.Templator](i),
	), nil
}

// GenerateImage keeps the original tool contract: zero values fall back to
// the defaults and steps and guidance are sent unclamped.
func (t *Tools) GenerateImage(ctx context.Context, args GenerateArgs) string {
	if strings.TrimSpace(args.Prompt) == "" {
		return MsgPromptRequired
	}

	s := t.settings
	params := image.Params{
		Prompt:         args.Prompt,
		NegativePrompt: t.negativePrompt(args.NegativePrompt),
		Width:          image.SnapDimension(orDefault(args.Width, s.DefaultWidth)),
		Height:         image.SnapDimension(orDefault(args.Height, s.DefaultHeight)),
		Steps:          orDefault(args.Steps, s.DefaultSteps),
		CFGScale:       orDefault(args.CFGScale, s.DefaultCFGScale),
		Seed:           lo.FromPtrOr(args.Seed, -1),
		SamplerName:    t.sampler(args.SamplerName),
	}
	return t.generate(ctx, params, false)
}

// GenerateImageAdvanced clamps steps and guidance into the range the
// WebUI accepts and reports the settings it used.
func (t *Tools) GenerateImageAdvanced(ctx context.Context, args GenerateArgs) string {
	if strings.TrimSpace(args.Prompt) == "" {
		return MsgPromptRequired
	}

	s := t.settings
	params := image.Params{
		Prompt:         args.Prompt,
		NegativePrompt: t.negativePrompt(args.NegativePrompt),
		Width:          image.SnapDimension(lo.FromPtrOr(args.Width, s.DefaultWidth)),
		Height:         image.SnapDimension(lo.FromPtrOr(args.Height, s.DefaultHeight)),
		Steps:          image.ClampSteps(lo.FromPtrOr(args.Steps, s.DefaultSteps)),
		CFGScale:       image.ClampCFGScale(lo.FromPtrOr(args.CFGScale, s.DefaultCFGScale)),
		Seed:           lo.FromPtrOr(args.Seed, -1),
		SamplerName:    t.sampler(args.SamplerName),
	}
	return t.generate(ctx, params, true)
}

func (t *Tools) generate(ctx context.Context, params image.Params, withSettings bool) string {
	log := log.FromContextOrDiscard(ctx).WithGroup("tools")

	result, err := t.generator.Generate(ctx, params)
	if err != nil {
		log.Error("generate image", "kind", image.KindOf(err).String(), "error", err)
		return t.generateFailure(err)
	}
	if result == nil || len(result.Images) == 0 {
		return MsgNoImage
	}

	reply := markdown.Generated{
		Image:  result.Images[0],
		Prompt: params.Prompt,
		Seed:   result.Seed,
	}
	if withSettings {
		reply.Settings = fmt.Sprintf("%dx%d, %d steps, CFG %.1f, %s",
			params.Width, params.Height, params.Steps, params.CFGScale, params.SamplerName)
	}

	out, err := t.templator.Generated(ctx, reply)
	if err != nil {
		log.Error("render reply", "error", err)
		return "Unexpected error: " + err.Error()
	}
	return out
}

func (t *Tools) generateFailure(err error) string {
	switch image.KindOf(err) {
	case image.KindConnection:
		return fmt.Sprintf("Error: Could not connect to Stable Diffusion API at %s. "+
			"Please ensure the service is running; it may still be starting up.", t.settings.BaseURL)
	case image.KindTimeout:
		return fmt.Sprintf("Error: Request timed out after %s. Image generation is taking too long; "+
			"try fewer steps or a smaller image size, or try again.", t.settings.GenerateTimeout)
	case image.KindRemote:
		return "Error generating image: " + err.Error()
	case image.KindEmptyResult:
		return MsgNoImage
	default:
		return "Unexpected error: " + err.Error()
	}
}

func (t *Tools) ListModels(ctx context.Context) string {
	models, err := t.catalog.Models(ctx)
	if err != nil {
		log.FromContextOrDiscard(ctx).WithGroup("tools").Error("list models", "error", err)
		return "Error fetching models: " + err.Error()
	}
	if len(models) == 0 {
		return MsgNoModels
	}
	return t.list(ctx, "Available Stable Diffusion Models", lo.Map(models, func(m image.Model, _ int) string {
		return m.DisplayName()
	}))
}

func (t *Tools) ListSamplers(ctx context.Context) string {
	samplers, err := t.catalog.Samplers(ctx)
	if err != nil {
		log.FromContextOrDiscard(ctx).WithGroup("tools").Error("list samplers", "error", err)
		return "Error fetching samplers: " + err.Error()
	}
	if len(samplers) == 0 {
		return MsgNoSamplers
	}
	return t.list(ctx, "Available Samplers", lo.Map(samplers, func(s image.Sampler, _ int) string {
		return s.DisplayName()
	}))
}

func (t *Tools) list(ctx context.Context, heading string, items []string) string {
	out, err := t.templator.List(ctx, markdown.List{Heading: heading, Items: items})
	if err != nil {
		return "Unexpected error: " + err.Error()
	}
	return out
}

func (t *Tools) negativePrompt(v string) string {
	v = strings.TrimSpace(v)
	return lo.Ternary(v != "", v, t.settings.DefaultNegativePrompt)
}

func (t *Tools) sampler(v string) string {
	v = strings.TrimSpace(v)
	return lo.Ternary(v != "", v, t.settings.DefaultSampler)
}

// orDefault treats both nil and zero as omitted.
func orDefault[T int | float64](v *T, def T) T {
	got := lo.FromPtrOr(v, def)
	return lo.Ternary(got == 0, def, got)
}
