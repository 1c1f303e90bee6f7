package httpapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/model"
)

func TestToStreamChunkText(t *testing.T) {
	out, emit := toStreamChunk("req1", 1000, "gpt-4o", model.Chunk{Type: model.ChunkTypeText, Text: "hi"})
	require.True(t, emit)
	require.Equal(t, "chat.completion.chunk", out.Object)
	require.Len(t, out.Choices, 1)
	require.Equal(t, "hi", out.Choices[0].Delta.Content)
}

func TestToStreamChunkToolCallDelta(t *testing.T) {
	out, emit := toStreamChunk("req1", 1000, "gpt-4o", model.Chunk{
		Type:          model.ChunkTypeToolCallDelta,
		ToolCallDelta: &model.ToolCallDelta{Index: 0, ID: "call_1", Name: "lookup", Delta: `{"q":`},
	})
	require.True(t, emit)
	require.Len(t, out.Choices[0].Delta.ToolCalls, 1)
	require.Equal(t, "call_1", out.Choices[0].Delta.ToolCalls[0].ID)
	require.Equal(t, `{"q":`, out.Choices[0].Delta.ToolCalls[0].Function.Arguments)
}

func TestToStreamChunkStop(t *testing.T) {
	out, emit := toStreamChunk("req1", 1000, "gpt-4o", model.Chunk{Type: model.ChunkTypeStop, StopReason: model.StopReasonToolCalls})
	require.True(t, emit)
	require.NotNil(t, out.Choices[0].FinishReason)
	require.Equal(t, "tool_calls", *out.Choices[0].FinishReason)
}

// TestToStreamChunkUsageNotEmittedPerDelta verifies spec.md §8 invariant 4's
// precondition: usage chunks are folded into the single final usage chunk,
// never emitted per-delta by toStreamChunk.
func TestToStreamChunkUsageNotEmittedPerDelta(t *testing.T) {
	_, emit := toStreamChunk("req1", 1000, "gpt-4o", model.Chunk{Type: model.ChunkTypeUsage})
	require.False(t, emit)
}

func TestFinalUsageChunkCarriesUsage(t *testing.T) {
	chunk := finalUsageChunk("req1", 1000, "gpt-4o", wireUsage{TotalTokens: 42})
	require.NotNil(t, chunk.Usage)
	require.Equal(t, 42, chunk.Usage.TotalTokens)
	require.Empty(t, chunk.Choices)
}
