package anthropic

import (
	"context"
	"io"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/streaming"
)

// streamer adapts an Anthropic Messages streaming stream to model.Streamer,
// grounded on features/model/anthropic/stream.go's anthropicStreamer
// (goroutine pump into a buffered channel, context-driven cancellation).
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	state  *streaming.State
	chunks chan model.Chunk
	errCh  chan error
}

func newStreamer(ctx context.Context, s *ssestream.Stream[sdk.MessageStreamEventUnion]) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	st := &streamer{
		ctx:    cctx,
		cancel: cancel,
		stream: s,
		state:  streaming.NewState(),
		chunks: make(chan model.Chunk, 32),
		errCh:  make(chan error, 1),
	}
	go st.run()
	return st
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer s.stream.Close()
	for s.stream.Next() {
		events := translateEvent(s.stream.Current())
		for _, ev := range events {
			out, emit, err := s.state.Apply(ev)
			if err != nil {
				s.errCh <- err
				return
			}
			if !emit {
				continue
			}
			select {
			case s.chunks <- out:
			case <-s.ctx.Done():
				return
			}
		}
	}
	if err := s.stream.Err(); err != nil {
		s.errCh <- err
	}
}

// translateEvent maps one native Anthropic stream event to zero or more
// provider-agnostic Events, mirroring anthropicChunkProcessor.Handle's
// per-event-type dispatch (content_block_start/delta/stop, message_delta).
func translateEvent(event sdk.MessageStreamEventUnion) []streaming.Event {
	switch ev := event.AsAny().(type) {
	case sdk.ContentBlockStartEvent:
		idx := int(ev.Index)
		switch start := ev.ContentBlock.AsAny().(type) {
		case sdk.ToolUseBlock:
			return []streaming.Event{{Kind: streaming.EventToolStart, Index: idx, ToolID: start.ID, ToolName: start.Name}}
		case sdk.ThinkingBlock:
			return []streaming.Event{{Kind: streaming.EventThinkingStart, Index: idx}}
		}
		return nil

	case sdk.ContentBlockDeltaEvent:
		idx := int(ev.Index)
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil
			}
			return []streaming.Event{{Kind: streaming.EventText, Index: idx, Text: delta.Text}}
		case sdk.InputJSONDelta:
			if delta.PartialJSON == "" {
				return nil
			}
			return []streaming.Event{{Kind: streaming.EventToolDelta, Index: idx, Text: delta.PartialJSON}}
		case sdk.ThinkingDelta:
			if delta.Thinking == "" {
				return nil
			}
			return []streaming.Event{{Kind: streaming.EventThinkingDelta, Index: idx, Text: delta.Thinking}}
		case sdk.SignatureDelta:
			return []streaming.Event{{Kind: streaming.EventThinkingSignature, Index: idx, Signature: delta.Signature}}
		}
		return nil

	case sdk.ContentBlockStopEvent:
		return []streaming.Event{{Kind: streaming.EventBlockStop, Index: int(ev.Index)}}

	case sdk.MessageDeltaEvent:
		var out []streaming.Event
		if ev.Usage.OutputTokens > 0 {
			out = append(out, streaming.Event{
				Kind:  streaming.EventUsage,
				Usage: model.TokenUsage{OutputTokens: int(ev.Usage.OutputTokens)},
			})
		}
		if ev.Delta.StopReason != "" {
			out = append(out, streaming.Event{Kind: streaming.EventStop, StopReason: translateStopReason(string(ev.Delta.StopReason))})
		}
		return out

	default:
		return nil
	}
}

func (s *streamer) Recv() (model.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		select {
		case err := <-s.errCh:
			return model.Chunk{}, err
		default:
			return model.Chunk{}, io.EOF
		}
	case <-s.ctx.Done():
		return model.Chunk{}, s.ctx.Err()
	}
}

func (s *streamer) Close() error {
	s.cancel()
	return nil
}

func (s *streamer) Metadata() map[string]string { return nil }
