package streaming_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/streaming"
)

// TestToolCallDeltaAccumulation verifies round-trip law (c): merging all
// streamed tool-call deltas by id yields the final tool call's arguments.
func TestToolCallDeltaAccumulation(t *testing.T) {
	s := streaming.NewState()

	_, emitted, err := s.Apply(streaming.Event{Kind: streaming.EventToolStart, Index: 0, ToolID: "call_1", ToolName: "lookup"})
	require.NoError(t, err)
	require.False(t, emitted)

	chunk, emitted, err := s.Apply(streaming.Event{Kind: streaming.EventToolDelta, Index: 0, Text: `{"q":`})
	require.NoError(t, err)
	require.True(t, emitted)
	require.Equal(t, model.ChunkTypeToolCallDelta, chunk.Type)

	_, emitted, err = s.Apply(streaming.Event{Kind: streaming.EventToolDelta, Index: 0, Text: `"weather"}`})
	require.NoError(t, err)
	require.True(t, emitted)

	final, emitted, err := s.Apply(streaming.Event{Kind: streaming.EventToolStop, Index: 0})
	require.NoError(t, err)
	require.True(t, emitted)
	require.Equal(t, model.ChunkTypeToolCall, final.Type)
	require.Equal(t, "call_1", final.ToolCall.ID)
	require.JSONEq(t, `{"q":"weather"}`, string(final.ToolCall.Input))
}

func TestToolCallAccumulationRejectsInvalidJSON(t *testing.T) {
	s := streaming.NewState()
	_, _, err := s.Apply(streaming.Event{Kind: streaming.EventToolStart, Index: 0, ToolID: "c", ToolName: "n"})
	require.NoError(t, err)
	_, _, err = s.Apply(streaming.Event{Kind: streaming.EventToolDelta, Index: 0, Text: `{"broken`})
	require.NoError(t, err)
	_, _, err = s.Apply(streaming.Event{Kind: streaming.EventToolStop, Index: 0})
	require.Error(t, err)
}

// TestTextDeltaConcatenation verifies round-trip law (b): concatenating
// all choices[0].delta.content across chunks equals the accumulated text.
func TestTextDeltaConcatenation(t *testing.T) {
	s := streaming.NewState()
	var got string
	for _, piece := range []string{"Hello", ", ", "world", "!"} {
		chunk, emitted, err := s.Apply(streaming.Event{Kind: streaming.EventText, Text: piece})
		require.NoError(t, err)
		require.True(t, emitted)
		got += chunk.Text
	}
	require.Equal(t, "Hello, world!", got)
}

func TestUsageAccumulatesAcrossDeltas(t *testing.T) {
	s := streaming.NewState()
	_, _, err := s.Apply(streaming.Event{Kind: streaming.EventUsage, Usage: model.TokenUsage{InputTokens: 10, OutputTokens: 5}})
	require.NoError(t, err)
	_, _, err = s.Apply(streaming.Event{Kind: streaming.EventUsage, Usage: model.TokenUsage{OutputTokens: 3}})
	require.NoError(t, err)

	usage := s.Usage()
	require.Equal(t, 10, usage.InputTokens)
	require.Equal(t, 8, usage.OutputTokens)
}

func TestOpenToolCallsTracksUnclosedBlocks(t *testing.T) {
	s := streaming.NewState()
	_, _, err := s.Apply(streaming.Event{Kind: streaming.EventToolStart, Index: 0, ToolID: "call_1", ToolName: "n"})
	require.NoError(t, err)
	require.Equal(t, []string{"call_1"}, s.OpenToolCalls())

	_, _, err = s.Apply(streaming.Event{Kind: streaming.EventToolDelta, Index: 0, Text: "{}"})
	require.NoError(t, err)
	_, _, err = s.Apply(streaming.Event{Kind: streaming.EventToolStop, Index: 0})
	require.NoError(t, err)
	require.Empty(t, s.OpenToolCalls())
}
