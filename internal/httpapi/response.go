package httpapi

import (
	"encoding/json"

	"goa.design/llmgateway/internal/cost"
	"goa.design/llmgateway/internal/model"
)

// wireUsageDetails mirrors OpenAI's nested prompt_tokens_details shape.
type wireUsageDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// wireUsage extends the OpenAI usage object with the gateway's cost fields
// per spec.md §6.
type wireUsage struct {
	PromptTokens     int               `json:"prompt_tokens"`
	CompletionTokens int               `json:"completion_tokens"`
	TotalTokens      int               `json:"total_tokens"`
	ReasoningTokens  int               `json:"reasoning_tokens,omitempty"`
	PromptDetails    *wireUsageDetails `json:"prompt_tokens_details,omitempty"`

	CostUSDTotal       float64 `json:"cost_usd_total"`
	CostUSDInput       float64 `json:"cost_usd_input"`
	CostUSDOutput      float64 `json:"cost_usd_output"`
	CostUSDCachedInput float64 `json:"cost_usd_cached_input,omitempty"`
	CostUSDRequest     float64 `json:"cost_usd_request,omitempty"`
	CostUSDImageInput  float64 `json:"cost_usd_image_input,omitempty"`
	CostUSDImageOutput float64 `json:"cost_usd_image_output,omitempty"`
}

func toWireUsage(usage model.TokenUsage, breakdown cost.Breakdown) wireUsage {
	out := wireUsage{
		PromptTokens:     usage.InputTokens,
		CompletionTokens: usage.OutputTokens,
		TotalTokens:      usage.TotalTokens,
		ReasoningTokens:  usage.ReasoningTokens,
		CostUSDTotal:     breakdown.TotalCost,
		CostUSDInput:     breakdown.InputCost,
		CostUSDOutput:    breakdown.OutputCost,
		CostUSDCachedInput: breakdown.CachedInputCost,
		CostUSDRequest:     breakdown.RequestCost,
		CostUSDImageInput:  breakdown.ImageInputCost,
		CostUSDImageOutput: breakdown.ImageOutputCost,
	}
	if usage.CacheReadTokens > 0 {
		out.PromptDetails = &wireUsageDetails{CachedTokens: usage.CacheReadTokens}
	}
	return out
}

// wireRouting mirrors metadata.routing: the ordered list of attempts
// actually made (spec.md §8 invariant 3).
type wireRoutingAttempt struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	StatusCode int    `json:"status_code,omitempty"`
	ErrorType  string `json:"error_type,omitempty"`
	Succeeded  bool   `json:"succeeded"`
}

// wireMetadata is the gateway's routing-transparency extension to the
// standard OpenAI response object, per spec.md §6.
type wireMetadata struct {
	RequestedModel      string               `json:"requested_model"`
	RequestedProvider    string               `json:"requested_provider,omitempty"`
	UsedModel            string               `json:"used_model"`
	UsedProvider         string               `json:"used_provider"`
	UnderlyingUsedModel  string               `json:"underlying_used_model"`
	Routing              []wireRoutingAttempt `json:"routing,omitempty"`
}

type wireToolCallOut struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireChoiceMessage struct {
	Role      string            `json:"role"`
	Content   *string           `json:"content"`
	ToolCalls []wireToolCallOut `json:"tool_calls,omitempty"`
}

type wireChoice struct {
	Index        int               `json:"index"`
	Message      wireChoiceMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// wireResponse is the full unary response body: a standard OpenAI
// chat-completion object extended with metadata and cost-aware usage.
type wireResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`

	Metadata wireMetadata `json:"metadata"`
}

// toWireResponse translates a canonical model.Response plus routing/cost
// context into the OpenAI-compatible wire shape.
func toWireResponse(requestID string, createdUnix int64, resp model.Response, env wireResponseEnv) wireResponse {
	var content *string
	var toolCalls []wireToolCallOut
	for _, p := range resp.Content {
		switch part := p.(type) {
		case model.TextPart:
			if content == nil {
				text := part.Text
				content = &text
			} else {
				merged := *content + part.Text
				content = &merged
			}
		}
	}
	for _, tc := range resp.ToolCalls {
		wtc := wireToolCallOut{ID: tc.ID, Type: "function"}
		wtc.Function.Name = tc.Name
		wtc.Function.Arguments = string(tc.Input)
		toolCalls = append(toolCalls, wtc)
	}

	finish := finishReasonFor(resp.StopReason)

	return wireResponse{
		ID:      requestID,
		Object:  "chat.completion",
		Created: createdUnix,
		Model:   env.UsedModel,
		Choices: []wireChoice{{
			Index: 0,
			Message: wireChoiceMessage{
				Role:      "assistant",
				Content:   content,
				ToolCalls: toolCalls,
			},
			FinishReason: finish,
		}},
		Usage: toWireUsage(resp.Usage, env.Cost),
		Metadata: wireMetadata{
			RequestedModel:      env.RequestedModel,
			RequestedProvider:   env.RequestedProvider,
			UsedModel:           env.UsedModel,
			UsedProvider:        env.UsedProvider,
			UnderlyingUsedModel: env.UnderlyingUsedModel,
			Routing:             env.Routing,
		},
	}
}

// wireResponseEnv bundles everything about how the request was routed and
// billed that the wire response needs but model.Response doesn't carry.
type wireResponseEnv struct {
	RequestedModel      string
	RequestedProvider   string
	UsedModel           string
	UsedProvider        string
	UnderlyingUsedModel string
	Routing             []wireRoutingAttempt
	Cost                cost.Breakdown
}

func finishReasonFor(reason model.StopReason) string {
	switch reason {
	case model.StopReasonStop:
		return "stop"
	case model.StopReasonLength:
		return "length"
	case model.StopReasonToolCalls:
		return "tool_calls"
	case model.StopReasonContentFilter:
		return "content_filter"
	default:
		return "stop"
	}
}

// wireErrorBody is the error envelope shape for both the unary 4xx/5xx path
// and the streaming "event: error" path (spec.md §6).
type wireErrorBody struct {
	Error wireErrorDetail `json:"error"`
}

type wireErrorDetail struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         string `json:"code"`
	ResponseText string `json:"responseText,omitempty"`
}

// wireStreamChunk is one SSE data payload for the streaming path, following
// the OpenAI chat-completion chunk schema.
type wireStreamChunk struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Choices []wireChunkChoice `json:"choices"`
	Usage   *wireUsage        `json:"usage,omitempty"`
	Metadata *wireMetadata    `json:"metadata,omitempty"`
}

type wireChunkChoice struct {
	Index        int             `json:"index"`
	Delta        wireChunkDelta  `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
}

type wireChunkDelta struct {
	Role      string             `json:"role,omitempty"`
	Content   string             `json:"content,omitempty"`
	ToolCalls []wireToolCallDelta `json:"tool_calls,omitempty"`
}

type wireToolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

func marshalSSEData(v any) ([]byte, error) {
	return json.Marshal(v)
}
