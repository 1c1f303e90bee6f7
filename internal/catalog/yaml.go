package catalog

import (
	"fmt"
	"os"
	"time"

	"goa.design/llmgateway/internal/model"
	"gopkg.in/yaml.v3"
)

// yamlProviderMapping mirrors model.ProviderMapping with plain fields for
// YAML unmarshaling (time.Time's default YAML decoding is sufficient here).
type yamlProviderMapping struct {
	ProviderID          string    `yaml:"provider_id"`
	ModelName           string    `yaml:"model_name"`
	InputPrice          float64   `yaml:"input_price"`
	OutputPrice         float64   `yaml:"output_price"`
	CachedInputPrice    float64   `yaml:"cached_input_price"`
	RequestPrice        float64   `yaml:"request_price"`
	ImageInputPrice     float64   `yaml:"image_input_price"`
	ImageOutputPrice    float64   `yaml:"image_output_price"`
	ContextSize         int       `yaml:"context_size"`
	MaxOutput           int       `yaml:"max_output"`
	Vision              bool      `yaml:"vision"`
	Tools               bool      `yaml:"tools"`
	Reasoning           bool      `yaml:"reasoning"`
	ReasoningMaxTokens  bool      `yaml:"reasoning_max_tokens"`
	JSONOutput          bool      `yaml:"json_output"`
	JSONOutputSchema    bool      `yaml:"json_output_schema"`
	Streaming           bool      `yaml:"streaming"`
	WebSearch           bool      `yaml:"web_search"`
	ImageGenerations    bool      `yaml:"image_generations"`
	SupportedParameters []string  `yaml:"supported_parameters"`
	Stability           string    `yaml:"stability"`
	DeprecatedAt        *time.Time `yaml:"deprecated_at"`
	DeactivatedAt       *time.Time `yaml:"deactivated_at"`
	Discount            float64   `yaml:"discount"`
}

type yamlModelDefinition struct {
	ID        string                `yaml:"id"`
	Family    string                `yaml:"family"`
	Free      bool                  `yaml:"free"`
	Output    []string              `yaml:"output"`
	Providers []yamlProviderMapping `yaml:"providers"`
}

type yamlCatalog struct {
	Models []yamlModelDefinition `yaml:"models"`
}

// LoadFile loads a Static catalog from a YAML fixture, in the shape test
// fixtures use to describe the pricing/capability table.
func LoadFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML catalog document into a Static catalog.
func Parse(raw []byte) (*Static, error) {
	var doc yamlCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}
	defs := make([]model.ModelDefinition, 0, len(doc.Models))
	for _, m := range doc.Models {
		providers := make([]model.ProviderMapping, 0, len(m.Providers))
		for _, p := range m.Providers {
			providers = append(providers, model.ProviderMapping{
				ProviderID:          p.ProviderID,
				ModelName:           p.ModelName,
				InputPrice:          p.InputPrice,
				OutputPrice:         p.OutputPrice,
				CachedInputPrice:    p.CachedInputPrice,
				RequestPrice:        p.RequestPrice,
				ImageInputPrice:     p.ImageInputPrice,
				ImageOutputPrice:    p.ImageOutputPrice,
				ContextSize:         p.ContextSize,
				MaxOutput:           p.MaxOutput,
				Vision:              p.Vision,
				Tools:               p.Tools,
				Reasoning:           p.Reasoning,
				ReasoningMaxTokens:  p.ReasoningMaxTokens,
				JSONOutput:          p.JSONOutput,
				JSONOutputSchema:    p.JSONOutputSchema,
				Streaming:           p.Streaming,
				WebSearch:           p.WebSearch,
				ImageGenerations:    p.ImageGenerations,
				SupportedParameters: p.SupportedParameters,
				Stability:           p.Stability,
				DeprecatedAt:        p.DeprecatedAt,
				DeactivatedAt:       p.DeactivatedAt,
				Discount:            p.Discount,
			})
		}
		defs = append(defs, model.ModelDefinition{
			ID:        m.ID,
			Family:    m.Family,
			Free:      m.Free,
			Output:    m.Output,
			Providers: providers,
		})
	}
	return NewStatic(defs), nil
}
