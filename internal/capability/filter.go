// Package capability implements the Capability Filter (C4): pruning
// provider mappings for a Model Definition by required capability and IAM
// allowlist (spec.md §4.4).
package capability

import (
	"time"

	"goa.design/llmgateway/internal/model"
)

// autoAllowlist is the additional allowlist applied for model=="auto"
// selection (spec.md §4.4 point 11), unless FreeModelsOnly overrides it.
var autoAllowlist = map[string]bool{
	"gpt-oss-120b": true,
	"gpt-5-nano":   true,
	"gpt-4.1-nano": true,
}

// Requirements captures the request-derived filter inputs.
type Requirements struct {
	EstimatedPromptTokens int
	ToolsTokens           int
	MaxTokens             int
	NoReasoning           bool
	ReasoningEffortSet    bool
	ReasoningMaxTokensSet bool
	ToolsRequested        bool
	WebSearchRequested    bool
	ResponseFormat        *model.ResponseFormat
	HasImages             bool
	IAMAllowedProviders   []string
	IsAutoSelection       bool
	FreeModelsOnly        bool
}

const defaultTokenBuffer = 4096

// MissingCapability names the first unmet requirement, for error messages
// (spec.md §4.4: "a message that names the first missing capability").
type MissingCapability string

// Eligible filters def.Providers down to the set of mappings satisfying
// every point of spec.md §4.4, in order, returning the first missing
// capability name when the result would otherwise be empty.
func Eligible(def model.ModelDefinition, req Requirements, now time.Time) ([]model.ProviderMapping, MissingCapability) {
	var (
		eligible []model.ProviderMapping
		missing  MissingCapability
	)

	for _, mapping := range def.Providers {
		reason, ok := evaluate(def, mapping, req, now)
		if ok {
			eligible = append(eligible, mapping)
			continue
		}
		if missing == "" {
			missing = reason
		}
	}
	if len(eligible) == 0 {
		if missing == "" {
			missing = "no eligible providers"
		}
		return nil, missing
	}
	return eligible, ""
}

func evaluate(def model.ModelDefinition, m model.ProviderMapping, req Requirements, now time.Time) (MissingCapability, bool) {
	if !m.Eligible(now, false) {
		return "active_mapping", false
	}
	required := req.EstimatedPromptTokens + req.ToolsTokens + req.MaxTokens
	if req.MaxTokens == 0 {
		required = req.EstimatedPromptTokens + req.ToolsTokens + defaultTokenBuffer
	}
	if m.ContextSize < required {
		return "context_size", false
	}
	if req.NoReasoning && m.Reasoning {
		return "no_reasoning", false
	}
	if req.ReasoningEffortSet && !m.Reasoning {
		return "reasoning", false
	}
	if req.ReasoningMaxTokensSet && !m.ReasoningMaxTokens {
		return "reasoning_max_tokens", false
	}
	if req.ToolsRequested && !m.Tools {
		return "tools", false
	}
	if req.WebSearchRequested && !m.WebSearch {
		return "web_search", false
	}
	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case model.ResponseFormatJSONObject:
			if !m.JSONOutput {
				return "json_output", false
			}
		case model.ResponseFormatJSONSchema:
			if !m.JSONOutput {
				return "json_output", false
			}
			if !m.JSONOutputSchema {
				return "json_output_schema", false
			}
		}
	}
	if req.HasImages && !m.Vision {
		return "vision", false
	}
	if len(req.IAMAllowedProviders) > 0 && !contains(req.IAMAllowedProviders, m.ProviderID) {
		return "iam_allowed_providers", false
	}
	if req.IsAutoSelection {
		if req.FreeModelsOnly {
			if !def.Free {
				return "free_models_only", false
			}
		} else if !autoAllowlist[def.ID] {
			return "auto_allowlist", false
		}
	}
	return "", true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
