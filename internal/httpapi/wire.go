// Package httpapi implements the gateway's one HTTP surface: POST
// /v1/chat/completions, orchestrating C1 through C12 per request. This is
// the only package that imports every other internal package, grounded on
// features/model/gateway/server.go's Server/Option/middleware-chain shape
// generalized from a single provider client to the full pipeline.
package httpapi

import (
	"encoding/json"
	"fmt"

	"goa.design/llmgateway/internal/model"
)

// wireMessage is one OpenAI-compatible message as received over the wire.
// Content may be a plain string or an array of typed parts; both shapes
// are accepted per spec.md §6's request body.
type wireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type wireFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function *wireFunctionDef `json:"function,omitempty"`
}

type wireResponseFormat struct {
	Type   string          `json:"type"`
	Schema json.RawMessage `json:"schema,omitempty"`
	// JSONSchema mirrors OpenAI's nested json_schema.schema shape, accepted
	// as an alternative to the flatter "schema" field above.
	JSONSchema *struct {
		Schema json.RawMessage `json:"schema,omitempty"`
	} `json:"json_schema,omitempty"`
}

type wireReasoning struct {
	Effort    string `json:"effort,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type wireImageConfig struct {
	ImageSize   string `json:"image_size,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	N           int    `json:"n,omitempty"`
}

type wirePlugin struct {
	ID string `json:"id"`
}

// wireRequest is the full OpenAI-compatible chat-completion request body
// from spec.md §6.
type wireRequest struct {
	Model            string              `json:"model"`
	Messages         []wireMessage       `json:"messages"`
	Temperature      *float64            `json:"temperature,omitempty"`
	TopP             *float64            `json:"top_p,omitempty"`
	MaxTokens        *int                `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64            `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64            `json:"presence_penalty,omitempty"`
	Stream           bool                `json:"stream,omitempty"`
	ResponseFormat   *wireResponseFormat `json:"response_format,omitempty"`
	Tools            []wireTool          `json:"tools,omitempty"`
	ToolChoice       json.RawMessage     `json:"tool_choice,omitempty"`
	ReasoningEffort  string              `json:"reasoning_effort,omitempty"`
	Reasoning        *wireReasoning      `json:"reasoning,omitempty"`
	Effort           string              `json:"effort,omitempty"`
	WebSearch        bool                `json:"web_search,omitempty"`
	FreeModelsOnly   bool                `json:"free_models_only,omitempty"`
	NoReasoning      bool                `json:"no_reasoning,omitempty"`
	ImageConfig      *wireImageConfig    `json:"image_config,omitempty"`
	Plugins          []wirePlugin        `json:"plugins,omitempty"`
}

func decodeMessageContent(raw json.RawMessage) ([]model.Part, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil, nil
		}
		return []model.Part{model.TextPart{Text: asString}}, nil
	}
	var asParts []wireContentPart
	if err := json.Unmarshal(raw, &asParts); err != nil {
		return nil, fmt.Errorf("message content must be a string or an array of parts: %w", err)
	}
	parts := make([]model.Part, 0, len(asParts))
	for _, p := range asParts {
		switch p.Type {
		case "text":
			if p.Text != "" {
				parts = append(parts, model.TextPart{Text: p.Text})
			}
		case "image_url":
			if p.ImageURL != nil {
				format, data, ok := decodeDataURL(p.ImageURL.URL)
				if ok {
					parts = append(parts, model.ImagePart{Format: format, Bytes: data})
				}
			}
		}
	}
	return parts, nil
}

func toCanonicalMessages(msgs []wireMessage) ([]model.Message, error) {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		parts, err := decodeMessageContent(m.Content)
		if err != nil {
			return nil, err
		}
		for _, tc := range m.ToolCalls {
			parts = append(parts, model.ToolUsePart{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: json.RawMessage(tc.Function.Arguments),
			})
		}
		if m.ToolCallID != "" {
			parts = append(parts, model.ToolResultPart{ToolUseID: m.ToolCallID, Content: contentText(parts)})
		}
		out = append(out, model.Message{
			Role:  model.ConversationRole(m.Role),
			Parts: parts,
			Name:  m.Name,
		})
	}
	return out, nil
}

func contentText(parts []model.Part) string {
	for _, p := range parts {
		if tp, ok := p.(model.TextPart); ok {
			return tp.Text
		}
	}
	return ""
}

func toCanonicalTools(tools []wireTool) ([]model.ToolDefinition, bool) {
	var defs []model.ToolDefinition
	webSearchPresent := false
	for _, t := range tools {
		if t.Type == "web_search" {
			webSearchPresent = true
			continue
		}
		if t.Function == nil {
			continue
		}
		defs = append(defs, model.ToolDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	return defs, webSearchPresent
}

func toCanonicalToolChoice(raw json.RawMessage) *model.ToolChoice {
	if len(raw) == 0 {
		return nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		switch asString {
		case "none":
			return &model.ToolChoice{Mode: model.ToolChoiceModeNone}
		case "required":
			return &model.ToolChoice{Mode: model.ToolChoiceModeAny}
		default:
			return &model.ToolChoice{Mode: model.ToolChoiceModeAuto}
		}
	}
	var asObject struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil && asObject.Function.Name != "" {
		return &model.ToolChoice{Mode: model.ToolChoiceModeTool, Name: asObject.Function.Name}
	}
	return &model.ToolChoice{Mode: model.ToolChoiceModeAuto}
}

func toCanonicalResponseFormat(rf *wireResponseFormat) *model.ResponseFormat {
	if rf == nil {
		return nil
	}
	out := &model.ResponseFormat{Type: model.ResponseFormatType(rf.Type)}
	if rf.JSONSchema != nil && len(rf.JSONSchema.Schema) > 0 {
		out.Schema = rf.JSONSchema.Schema
	} else if len(rf.Schema) > 0 {
		out.Schema = rf.Schema
	}
	return out
}

func toCanonicalReasoning(req wireRequest) *model.ReasoningOptions {
	if req.Reasoning == nil && req.Effort == "" {
		return nil
	}
	out := &model.ReasoningOptions{}
	if req.Reasoning != nil {
		out.Effort = model.ReasoningEffort(req.Reasoning.Effort)
		out.MaxTokens = req.Reasoning.MaxTokens
	}
	if out.Effort == "" && req.Effort != "" {
		out.Effort = model.ReasoningEffort(req.Effort)
	}
	return out
}

func toCanonicalImageConfig(cfg *wireImageConfig) *model.ImageConfig {
	if cfg == nil {
		return nil
	}
	return &model.ImageConfig{ImageSize: cfg.ImageSize, AspectRatio: cfg.AspectRatio, N: cfg.N}
}

func toCanonicalPlugins(plugins []wirePlugin) []string {
	if len(plugins) == 0 {
		return nil
	}
	out := make([]string, len(plugins))
	for i, p := range plugins {
		out[i] = p.ID
	}
	return out
}
