package httpapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/cost"
	"goa.design/llmgateway/internal/model"
)

func TestFinishReasonForKnownReasons(t *testing.T) {
	require.Equal(t, "stop", finishReasonFor(model.StopReasonStop))
	require.Equal(t, "length", finishReasonFor(model.StopReasonLength))
	require.Equal(t, "tool_calls", finishReasonFor(model.StopReasonToolCalls))
	require.Equal(t, "content_filter", finishReasonFor(model.StopReasonContentFilter))
}

func TestFinishReasonForUnknownDefaultsToStop(t *testing.T) {
	require.Equal(t, "stop", finishReasonFor(model.StopReason("")))
}

func TestToWireUsageCarriesCostBreakdown(t *testing.T) {
	usage := model.TokenUsage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150, CacheReadTokens: 20}
	breakdown := cost.Breakdown{InputCost: 0.001, OutputCost: 0.002, TotalCost: 0.003, CachedInputCost: 0.0001}

	wu := toWireUsage(usage, breakdown)
	require.Equal(t, 100, wu.PromptTokens)
	require.Equal(t, 50, wu.CompletionTokens)
	require.Equal(t, 0.003, wu.CostUSDTotal)
	require.NotNil(t, wu.PromptDetails)
	require.Equal(t, 20, wu.PromptDetails.CachedTokens)
}

func TestToWireUsageOmitsPromptDetailsWithoutCacheReads(t *testing.T) {
	wu := toWireUsage(model.TokenUsage{InputTokens: 5, OutputTokens: 5, TotalTokens: 10}, cost.Breakdown{})
	require.Nil(t, wu.PromptDetails)
}

// TestToWireResponseRoundTrip verifies spec.md §8 round-trip law (a): a
// canonical model.Response translated to the OpenAI wire shape preserves
// content, tool-call arguments, and finish reason losslessly.
func TestToWireResponseRoundTrip(t *testing.T) {
	resp := model.Response{
		Content: []model.Part{model.TextPart{Text: "hello "}, model.TextPart{Text: "world"}},
		ToolCalls: []model.ToolUsePart{
			{ID: "call_1", Name: "lookup", Input: []byte(`{"q":"weather"}`)},
		},
		Usage:      model.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		StopReason: model.StopReasonToolCalls,
	}
	env := wireResponseEnv{
		RequestedModel: "auto",
		UsedModel:      "gpt-4o",
		UsedProvider:   "openai",
	}

	wire := toWireResponse("req1", 1000, resp, env)

	require.Equal(t, "req1", wire.ID)
	require.Equal(t, "chat.completion", wire.Object)
	require.Len(t, wire.Choices, 1)
	require.NotNil(t, wire.Choices[0].Message.Content)
	require.Equal(t, "hello world", *wire.Choices[0].Message.Content)
	require.Equal(t, "tool_calls", wire.Choices[0].FinishReason)
	require.Len(t, wire.Choices[0].Message.ToolCalls, 1)
	require.Equal(t, "call_1", wire.Choices[0].Message.ToolCalls[0].ID)
	require.Equal(t, `{"q":"weather"}`, wire.Choices[0].Message.ToolCalls[0].Function.Arguments)
	require.Equal(t, 15, wire.Usage.TotalTokens)
}
