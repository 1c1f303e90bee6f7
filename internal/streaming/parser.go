// Package streaming implements the Streaming Parser (C9): a pure state
// machine that reassembles provider-native chunk deltas into canonical
// model.Chunks across an indeterminate number of upstream events, grounded
// on features/model/anthropic/stream.go's anthropicChunkProcessor
// (per-content-block toolBuffer/thinkingBuffer accumulation keyed by
// content index).
package streaming

import (
	"encoding/json"
	"fmt"

	"goa.design/llmgateway/internal/model"
)

// toolBuffer accumulates one tool call's streamed argument JSON fragments,
// keyed by the provider's content-block index.
type toolBuffer struct {
	id        string
	name      string
	fragments []string
}

func (b *toolBuffer) joined() string {
	out := ""
	for _, f := range b.fragments {
		out += f
	}
	return out
}

// thinkingBuffer accumulates one reasoning block's streamed text, keyed by
// content index (spec.md §4.9: "thinking/reasoning deltas reassemble the
// same way as tool-call deltas").
type thinkingBuffer struct {
	text      string
	signature string
}

// State is the reassembly state machine's accumulator, reusable across
// events belonging to one completion. Apply updates it in place and
// returns at most one finished chunk per event, with no I/O.
type State struct {
	toolBlocks     map[int]*toolBuffer
	thinkingBlocks map[int]*thinkingBuffer
	usage          model.TokenUsage
	stopReason     model.StopReason
}

// NewState starts a fresh reassembly state for one completion.
func NewState() *State {
	return &State{
		toolBlocks:     make(map[int]*toolBuffer),
		thinkingBlocks: make(map[int]*thinkingBuffer),
	}
}

// EventKind discriminates the provider-agnostic delta shapes this state
// machine understands. internal/providers/* translate native SSE events
// into these before calling Apply.
type EventKind int

const (
	EventText EventKind = iota
	EventToolStart
	EventToolDelta
	EventToolStop
	EventThinkingStart
	EventThinkingDelta
	EventThinkingSignature
	EventUsage
	EventStop
	// EventBlockStop closes whichever buffer (tool or thinking) is open at
	// Index, or does nothing if the block at that index was plain text.
	// Providers that cannot tell from the native event alone which kind of
	// block is closing (e.g. Anthropic's content_block_stop) use this
	// instead of EventToolStop.
	EventBlockStop
)

// Event is one normalized upstream delta.
type Event struct {
	Kind       EventKind
	Index      int
	Text       string
	ToolID     string
	ToolName   string
	Signature  string
	Usage      model.TokenUsage
	StopReason model.StopReason
}

// Apply folds one Event into the state machine, returning the canonical
// Chunk it produces, if any (some events, like ToolStart, only open a
// buffer and produce no chunk).
func (s *State) Apply(ev Event) (model.Chunk, bool, error) {
	switch ev.Kind {
	case EventText:
		if ev.Text == "" {
			return model.Chunk{}, false, nil
		}
		return model.Chunk{Type: model.ChunkTypeText, Text: ev.Text}, true, nil

	case EventToolStart:
		if ev.ToolID == "" {
			return model.Chunk{}, false, fmt.Errorf("streaming: tool start missing id at index %d", ev.Index)
		}
		if ev.ToolName == "" {
			return model.Chunk{}, false, fmt.Errorf("streaming: tool start %q missing name", ev.ToolID)
		}
		s.toolBlocks[ev.Index] = &toolBuffer{id: ev.ToolID, name: ev.ToolName}
		return model.Chunk{}, false, nil

	case EventToolDelta:
		tb := s.toolBlocks[ev.Index]
		if tb == nil {
			return model.Chunk{}, false, fmt.Errorf("streaming: tool delta at index %d with no open block", ev.Index)
		}
		if ev.Text == "" {
			return model.Chunk{}, false, nil
		}
		tb.fragments = append(tb.fragments, ev.Text)
		return model.Chunk{
			Type: model.ChunkTypeToolCallDelta,
			ToolCallDelta: &model.ToolCallDelta{
				Index: ev.Index,
				ID:    tb.id,
				Name:  tb.name,
				Delta: ev.Text,
			},
		}, true, nil

	case EventToolStop:
		tb := s.toolBlocks[ev.Index]
		if tb == nil {
			return model.Chunk{}, false, fmt.Errorf("streaming: tool stop at index %d with no open block", ev.Index)
		}
		raw := tb.joined()
		if raw == "" {
			raw = "{}"
		}
		if !json.Valid([]byte(raw)) {
			return model.Chunk{}, false, fmt.Errorf("streaming: tool call %q accumulated invalid JSON: %q", tb.id, raw)
		}
		delete(s.toolBlocks, ev.Index)
		return model.Chunk{
			Type: model.ChunkTypeToolCall,
			ToolCall: &model.ToolUsePart{
				ID:    tb.id,
				Name:  tb.name,
				Input: json.RawMessage(raw),
			},
		}, true, nil

	case EventBlockStop:
		if tb := s.toolBlocks[ev.Index]; tb != nil {
			return s.Apply(Event{Kind: EventToolStop, Index: ev.Index})
		}
		delete(s.thinkingBlocks, ev.Index)
		return model.Chunk{}, false, nil

	case EventThinkingStart:
		s.thinkingBlocks[ev.Index] = &thinkingBuffer{}
		return model.Chunk{}, false, nil

	case EventThinkingDelta:
		tb := s.thinkingBlocks[ev.Index]
		if tb == nil {
			tb = &thinkingBuffer{}
			s.thinkingBlocks[ev.Index] = tb
		}
		tb.text += ev.Text
		if ev.Text == "" {
			return model.Chunk{}, false, nil
		}
		return model.Chunk{
			Type:     model.ChunkTypeThinking,
			Thinking: &model.ThinkingPart{Text: ev.Text, Index: ev.Index},
		}, true, nil

	case EventThinkingSignature:
		tb := s.thinkingBlocks[ev.Index]
		if tb == nil {
			tb = &thinkingBuffer{}
			s.thinkingBlocks[ev.Index] = tb
		}
		tb.signature = ev.Signature
		return model.Chunk{
			Type:     model.ChunkTypeThinking,
			Thinking: &model.ThinkingPart{Signature: ev.Signature, Index: ev.Index, Final: true},
		}, true, nil

	case EventUsage:
		s.usage = accumulateUsage(s.usage, ev.Usage)
		return model.Chunk{Type: model.ChunkTypeUsage, UsageDelta: &ev.Usage}, true, nil

	case EventStop:
		s.stopReason = ev.StopReason
		return model.Chunk{Type: model.ChunkTypeStop, StopReason: ev.StopReason}, true, nil

	default:
		return model.Chunk{}, false, fmt.Errorf("streaming: unknown event kind %d", ev.Kind)
	}
}

// Usage returns the usage totals accumulated so far.
func (s *State) Usage() model.TokenUsage { return s.usage }

// StopReason returns the last stop reason observed, if any.
func (s *State) StopReason() model.StopReason { return s.stopReason }

// OpenToolCalls reports whether any tool-call block is still unclosed, used
// by the response healer (spec.md §4.13) to detect truncated streams.
func (s *State) OpenToolCalls() []string {
	var ids []string
	for _, tb := range s.toolBlocks {
		ids = append(ids, tb.id)
	}
	return ids
}

func accumulateUsage(acc, delta model.TokenUsage) model.TokenUsage {
	acc.InputTokens += delta.InputTokens
	acc.OutputTokens += delta.OutputTokens
	acc.TotalTokens += delta.TotalTokens
	acc.CacheReadTokens += delta.CacheReadTokens
	acc.CacheWriteTokens += delta.CacheWriteTokens
	acc.ReasoningTokens += delta.ReasoningTokens
	return acc
}
