package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// UnmarshalJSON accepts integral fields written as JSON floats, e.g. 512.0.
// Fractions are truncated.
func (a *GenerateArgs) UnmarshalJSON(data []byte) error {
	var raw struct {
		Prompt         string       `json:"prompt"`
		NegativePrompt string       `json:"negative_prompt"`
		Width          *json.Number `json:"width"`
		Height         *json.Number `json:"height"`
		Steps          *json.Number `json:"steps"`
		CFGScale       *json.Number `json:"cfg_scale"`
		Seed           *json.Number `json:"seed"`
		SamplerName    string       `json:"sampler_name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	width, err := intArg("width", raw.Width)
	if err != nil {
		return err
	}
	height, err := intArg("height", raw.Height)
	if err != nil {
		return err
	}
	steps, err := intArg("steps", raw.Steps)
	if err != nil {
		return err
	}
	seed, err := int64Arg("seed", raw.Seed)
	if err != nil {
		return err
	}
	var cfg *float64
	if raw.CFGScale != nil {
		f, err := raw.CFGScale.Float64()
		if err != nil {
			return fmt.Errorf("cfg_scale: %w", err)
		}
		cfg = &f
	}

	*a = GenerateArgs{
		Prompt:         raw.Prompt,
		NegativePrompt: raw.NegativePrompt,
		Width:          width,
		Height:         height,
		Steps:          steps,
		CFGScale:       cfg,
		Seed:           seed,
		SamplerName:    raw.SamplerName,
	}
	return nil
}

func intArg(name string, n *json.Number) (*int, error) {
	v, err := int64Arg(name, n)
	if v == nil || err != nil {
		return nil, err
	}
	i := int(*v)
	return &i, nil
}

func int64Arg(name string, n *json.Number) (*int64, error) {
	if n == nil {
		return nil, nil
	}
	if i, err := n.Int64(); err == nil {
		return &i, nil
	}
	f, err := n.Float64()
	if err != nil || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("%s: %s is not a usable integer", name, n.String())
	}
	i := int64(f)
	return &i, nil
}

// decodeArguments unwraps arguments sent as a JSON encoded string, the way
// OpenAI style tool calls carry them. Empty and null input decodes to nothing.
func decodeArguments(args json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return nil, err
		}
		trimmed = bytes.TrimSpace([]byte(encoded))
	}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	return trimmed, nil
}
