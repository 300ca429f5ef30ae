package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	NameGenerateImage         = "generate_image"
	NameGenerateImageAdvanced = "generate_image_advanced"
	NameGetModels             = "get_sd_models"
	NameGetSamplers           = "get_sd_samplers"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Definition describes a tool to the host runtime. Parameters is a JSON
// schema object.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func generateProperties() map[string]any {
	return map[string]any{
		"prompt": map[string]any{
			"type": "string",
			"description": "The text description of the image to generate. Be detailed and descriptive: " +
				"name the subject, style, lighting, composition and medium, e.g. " +
				"\"a red fox in a snowy forest, golden hour, shallow depth of field, photorealistic\".",
		},
		"negative_prompt": map[string]any{
			"type":        "string",
			"description": "Things to avoid in the generated image, e.g. \"blurry, low quality, distorted, extra limbs\".",
		},
		"width": map[string]any{
			"type":        "integer",
			"description": "Image width in pixels (default 512). Rounded down to a multiple of 64, minimum 64.",
		},
		"height": map[string]any{
			"type":        "integer",
			"description": "Image height in pixels (default 512). Rounded down to a multiple of 64, minimum 64.",
		},
		"steps": map[string]any{
			"type":        "integer",
			"description": "Number of sampling steps (default 20). More steps give more detail but take longer.",
		},
		"cfg_scale": map[string]any{
			"type":        "number",
			"description": "Classifier-free guidance scale (default 7.0). Higher values follow the prompt more strictly.",
		},
		"seed": map[string]any{
			"type":        "integer",
			"description": "Random seed for reproducible results. Use -1 for a random seed.",
		},
		"sampler_name": map[string]any{
			"type":        "string",
			"description": "Sampling method as named by the service, e.g. \"Euler a\" or \"DPM++ 2M Karras\". Use get_sd_samplers to list them.",
		},
	}
}

func Definitions() []Definition {
	noArgs := map[string]any{"type": "object", "properties": map[string]any{}}
	return []Definition{
		{
			Name:        NameGenerateImage,
			Description: "Generate an image with Stable Diffusion from a text prompt. Returns the image as markdown.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": generateProperties(),
				"required":   []string{"prompt"},
			},
		},
		{
			Name: NameGenerateImageAdvanced,
			Description: "Generate an image with full control over size, steps (1-100), guidance (1-30), " +
				"sampler and seed. Out of range values are clamped. Returns the image and the settings used as markdown.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": generateProperties(),
				"required":   []string{"prompt"},
			},
		},
		{
			Name:        NameGetModels,
			Description: "List the Stable Diffusion models (checkpoints) available on the service.",
			Parameters:  noArgs,
		},
		{
			Name:        NameGetSamplers,
			Description: "List the sampling methods available on the service.",
			Parameters:  noArgs,
		},
	}
}

// Invoke runs the named tool. Arguments may be a JSON object or a JSON string
// holding one. The returned error is only set when the tool does not exist or
// the arguments cannot be decoded; every other failure is part of the
// returned text.
func (t *Tools) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	switch name {
	case NameGenerateImage, NameGenerateImageAdvanced:
		var ga GenerateArgs
		data, err := decodeArguments(args)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidArguments, err)
		}
		if data != nil {
			if err := json.Unmarshal(data, &ga); err != nil {
				return "", fmt.Errorf("%w: %w", ErrInvalidArguments, err)
			}
		}
		if name == NameGenerateImage {
			return t.GenerateImage(ctx, ga), nil
		}
		return t.GenerateImageAdvanced(ctx, ga), nil
	case NameGetModels:
		return t.ListModels(ctx), nil
	case NameGetSamplers:
		return t.ListSamplers(ctx), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
}
