package main

import (
	"goa.design/llmgateway/internal/catalog"
	"goa.design/llmgateway/internal/model"
)

// seedCatalog returns a small built-in model/pricing table so the binary is
// immediately useful without an external catalog feed. Per spec.md §1 the
// catalog's authoritative source ("a pricing/ops database") is out of
// scope; production deployments are expected to supply their own
// catalog.Catalog implementation in place of this seed.
func seedCatalog() *catalog.Static {
	defs := []model.ModelDefinition{
		{
			ID:     "gpt-4o",
			Family: "openai",
			Output: []string{"text"},
			Providers: []model.ProviderMapping{
				{
					ProviderID: "openai", ModelName: "gpt-4o",
					InputPrice: 2.50, OutputPrice: 10.00,
					ContextSize: 128000, MaxOutput: 16384,
					Vision: true, Tools: true, JSONOutput: true, Streaming: true,
					SupportedParameters: []string{"temperature", "top_p", "frequency_penalty", "presence_penalty"},
					Stability:           "stable",
				},
			},
		},
		{
			ID:     "gpt-5-nano",
			Family: "openai",
			Free:   true,
			Output: []string{"text"},
			Providers: []model.ProviderMapping{
				{
					ProviderID: "openai", ModelName: "gpt-5-nano",
					ContextSize: 128000, MaxOutput: 8192,
					Tools: true, JSONOutput: true, Streaming: true,
					SupportedParameters: []string{"temperature", "top_p"},
					Stability:           "stable",
				},
			},
		},
		{
			ID:     "claude-sonnet-4-5",
			Family: "anthropic",
			Output: []string{"text"},
			Providers: []model.ProviderMapping{
				{
					ProviderID: "anthropic", ModelName: "claude-sonnet-4-5-20250929",
					InputPrice: 3.00, OutputPrice: 15.00,
					ContextSize: 200000, MaxOutput: 64000,
					Vision: true, Tools: true, Reasoning: true, Streaming: true,
					SupportedParameters: []string{"temperature", "top_p"},
					Stability:           "stable",
				},
				{
					ProviderID: "bedrock", ModelName: "anthropic.claude-sonnet-4-5-20250929-v1:0",
					InputPrice: 3.00, OutputPrice: 15.00,
					ContextSize: 200000, MaxOutput: 64000,
					Vision: true, Tools: true, Reasoning: true, Streaming: true,
					SupportedParameters: []string{"temperature", "top_p"},
					Stability:           "stable",
				},
			},
		},
	}

	return catalog.NewStatic(defs)
}
