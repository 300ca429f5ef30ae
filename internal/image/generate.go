package image

import (
	"context"
	"encoding/json"
)

// Params is one txt2img request. Seed -1 lets the service pick.
type Params struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	Seed           int64   `json:"seed"`
	SamplerName    string  `json:"sampler_name"`
}

type Result struct {
	// Images holds base64 encoded PNGs as returned by the service.
	Images []string
	// Seed is the seed the service reported, or the requested one when the
	// response carried none.
	Seed int64
	Info json.RawMessage
}

type Model struct {
	Title     string `json:"title"`
	ModelName string `json:"model_name"`
	Hash      string `json:"hash,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

func (m Model) DisplayName() string {
	switch {
	case m.ModelName != "":
		return m.ModelName
	case m.Title != "":
		return m.Title
	default:
		return "Unknown"
	}
}

type Sampler struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

func (s Sampler) DisplayName() string {
	if s.Name == "" {
		return "Unknown"
	}
	return s.Name
}

type Generator interface {
	Generate(context.Context, Params) (*Result, error)
}

type Catalog interface {
	Models(context.Context) ([]Model, error)
	Samplers(context.Context) ([]Sampler, error)
}
