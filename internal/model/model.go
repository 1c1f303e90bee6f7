// Package model defines the gateway's provider-agnostic request, response,
// and streaming chunk types. Every provider adapter translates to and from
// these types; nothing downstream of translation knows which upstream
// provider produced a value.
package model

import (
	"encoding/json"
	"time"
)

// ConversationRole identifies the speaker of a Message.
type ConversationRole string

const (
	ConversationRoleSystem    ConversationRole = "system"
	ConversationRoleUser      ConversationRole = "user"
	ConversationRoleAssistant ConversationRole = "assistant"
	ConversationRoleTool      ConversationRole = "tool"
)

// Part is a single content block within a Message. Concrete implementations
// are TextPart, ImagePart, ToolUsePart, ToolResultPart, ThinkingPart, and
// CitationsPart.
type Part interface{ isPart() }

// TextPart carries plain text content.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) isPart() {}

// ImageFormat names a supported inline image encoding.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "png"
	ImageFormatJPEG ImageFormat = "jpeg"
	ImageFormatGIF  ImageFormat = "gif"
	ImageFormatWEBP ImageFormat = "webp"
)

// ImagePart carries an inline image, typically base64-decoded bytes from a
// data URL in the OpenAI wire format.
type ImagePart struct {
	Format ImageFormat `json:"format"`
	Bytes  []byte      `json:"bytes"`
}

func (ImagePart) isPart() {}

// ToolUsePart records a model-issued tool/function call.
type ToolUsePart struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ToolUsePart) isPart() {}

// ToolResultPart carries the result of executing a tool call, referenced by
// ToolUseID.
type ToolResultPart struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (ToolResultPart) isPart() {}

// ThinkingPart carries extended-reasoning content. Redacted is set when the
// provider withholds the plaintext reasoning but supplies an opaque token.
type ThinkingPart struct {
	Text      string `json:"text,omitempty"`
	Signature string `json:"signature,omitempty"`
	Redacted  []byte `json:"redacted,omitempty"`
	Index     int    `json:"index"`
	Final     bool   `json:"final,omitempty"`
}

func (ThinkingPart) isPart() {}

// Citation references supporting source material for a CitationsPart.
type Citation struct {
	Title  string `json:"title,omitempty"`
	Source string `json:"source,omitempty"`
}

// CitationsPart carries text annotated with source citations (used by
// Bedrock/Anthropic document grounding).
type CitationsPart struct {
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations,omitempty"`
}

func (CitationsPart) isPart() {}

// Message is one turn in the conversation.
type Message struct {
	Role  ConversationRole `json:"role"`
	Parts []Part           `json:"parts"`
	Name  string           `json:"name,omitempty"`
}

// ToolDefinition describes a callable tool available to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	// WebSearch marks a synthetic built-in web-search tool (spec.md §4.1:
	// synthesized when web_search=true and no tool is present).
	WebSearch bool `json:"-"`
}

// ToolChoiceMode selects how the model should use tools.
type ToolChoiceMode string

const (
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	ToolChoiceModeNone ToolChoiceMode = "none"
	ToolChoiceModeAny  ToolChoiceMode = "any"
	ToolChoiceModeTool ToolChoiceMode = "tool"
)

// ToolChoice constrains tool invocation.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"`
}

// ResponseFormatType selects the shape of the assistant's final content.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat constrains the shape of model output (spec.md §3).
type ResponseFormat struct {
	Type   ResponseFormatType `json:"type"`
	Schema json.RawMessage    `json:"schema,omitempty"`
}

// ReasoningEffort is the coarse reasoning-effort dial accepted either at the
// request top level (reasoning_effort) or nested under Reasoning.Effort.
type ReasoningEffort string

const (
	ReasoningEffortNone    ReasoningEffort = "none"
	ReasoningEffortMinimal ReasoningEffort = "minimal"
	ReasoningEffortLow     ReasoningEffort = "low"
	ReasoningEffortMedium  ReasoningEffort = "medium"
	ReasoningEffortHigh    ReasoningEffort = "high"
)

// ReasoningOptions controls extended-thinking behavior (spec.md §3: Request
// Envelope field `reasoning {effort, max_tokens}`).
type ReasoningOptions struct {
	Effort    ReasoningEffort `json:"effort,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

// ImageConfig controls image-generation requests.
type ImageConfig struct {
	ImageSize   string `json:"image_size,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	N           int    `json:"n,omitempty"`
}

// TokenUsage reports token counts for a request/response pair.
type TokenUsage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
	ReasoningTokens  int `json:"reasoning_tokens,omitempty"`
}

// Request is the canonical, provider-agnostic chat-completion request built
// by C1 (Request Normalizer) and enriched by C6 (Provider Context Resolver)
// before being translated to a provider-native payload.
//
// This mirrors the Request Envelope in spec.md §3.
type Request struct {
	RequestID         string             `json:"request_id"`
	ModelInput        string             `json:"model_input"`
	Messages          []Message          `json:"messages"`
	Temperature       *float64           `json:"temperature,omitempty"`
	TopP              *float64           `json:"top_p,omitempty"`
	MaxTokens         *int               `json:"max_tokens,omitempty"`
	FrequencyPenalty  *float64           `json:"frequency_penalty,omitempty"`
	PresencePenalty   *float64           `json:"presence_penalty,omitempty"`
	ResponseFormat    *ResponseFormat    `json:"response_format,omitempty"`
	Tools             []ToolDefinition   `json:"tools,omitempty"`
	ToolChoice        *ToolChoice        `json:"tool_choice,omitempty"`
	Stream            bool               `json:"stream,omitempty"`
	Reasoning         *ReasoningOptions  `json:"reasoning,omitempty"`
	ReasoningEffort   ReasoningEffort    `json:"reasoning_effort,omitempty"`
	WebSearch         bool               `json:"web_search,omitempty"`
	FreeModelsOnly    bool               `json:"free_models_only,omitempty"`
	NoReasoning       bool               `json:"no_reasoning,omitempty"`
	ImageConfig       *ImageConfig       `json:"image_config,omitempty"`
	Plugins           []string           `json:"plugins,omitempty"`
	CustomHeaders     map[string]string  `json:"-"`
	Source            string             `json:"-"`
	UserAgent         string             `json:"-"`
	NoFallback        bool               `json:"-"`
	DebugMode         bool               `json:"-"`
	ReceivedAt        time.Time          `json:"-"`
}

// NormalizedReasoningEffort returns the request's effective reasoning
// effort, honoring the Request Envelope invariant: at most one of the
// top-level `reasoning_effort` and `reasoning.effort` is set, and the value
// "none" normalizes to absent (spec.md §3).
func (r Request) NormalizedReasoningEffort() ReasoningEffort {
	effort := r.ReasoningEffort
	if effort == "" && r.Reasoning != nil {
		effort = r.Reasoning.Effort
	}
	if effort == ReasoningEffortNone {
		return ""
	}
	return effort
}

// StopReason classifies why a Response or streamed Chunk sequence ended.
type StopReason string

const (
	StopReasonStop          StopReason = "stop"
	StopReasonLength        StopReason = "length"
	StopReasonToolCalls     StopReason = "tool_calls"
	StopReasonContentFilter StopReason = "content_filter"
)

// Response is the canonical non-streaming model response.
type Response struct {
	Content    []Part     `json:"content"`
	ToolCalls  []ToolUsePart `json:"tool_calls,omitempty"`
	Usage      TokenUsage `json:"usage"`
	StopReason StopReason `json:"stop_reason"`
}

// ChunkType discriminates the payload carried by a streamed Chunk.
type ChunkType string

const (
	ChunkTypeText          ChunkType = "text"
	ChunkTypeToolCall      ChunkType = "tool_call"
	ChunkTypeToolCallDelta ChunkType = "tool_call_delta"
	ChunkTypeThinking      ChunkType = "thinking"
	ChunkTypeUsage         ChunkType = "usage"
	ChunkTypeStop          ChunkType = "stop"
)

// ToolCallDelta is an incremental fragment of a streamed tool call,
// accumulated by the Streaming Parser and merged by ID (or content-block
// index, for providers that don't assign a stable ID per delta).
type ToolCallDelta struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Delta string `json:"delta,omitempty"`
}

// Chunk is one incremental event emitted by a provider's streaming
// transport, translated into the canonical shape by a provider adapter
// before reaching the Streaming Parser (C9).
type Chunk struct {
	Type          ChunkType      `json:"type"`
	Text          string         `json:"text,omitempty"`
	Thinking      *ThinkingPart  `json:"thinking,omitempty"`
	ToolCall      *ToolUsePart   `json:"tool_call,omitempty"`
	ToolCallDelta *ToolCallDelta `json:"tool_call_delta,omitempty"`
	UsageDelta    *TokenUsage    `json:"usage_delta,omitempty"`
	StopReason    StopReason     `json:"stop_reason,omitempty"`
}
