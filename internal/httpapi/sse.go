package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"goa.design/llmgateway/internal/model"
)

// keepaliveInterval is the SSE ": ping" cadence (spec.md §6).
const keepaliveInterval = 15 * time.Second

// sseWriter emits one SSE event stream for a single chat-completion
// request, grounded on the relay-and-flush loop in the pack's reverse
// proxy examples, generalized to write canonical chunks translated to the
// OpenAI chunk schema instead of relaying upstream bytes verbatim.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("httpapi: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher, done: make(chan struct{})}, nil
}

// runKeepalive emits a ": ping" comment on keepaliveInterval until stop is
// called. Run as its own goroutine so a slow upstream chunk never starves
// the client connection (spec.md §5: independent ticker-driven goroutine).
func (s *sseWriter) runKeepalive() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = fmt.Fprint(s.w, ": ping\n\n")
			s.flusher.Flush()
		case <-s.done:
			return
		}
	}
}

func (s *sseWriter) stop() { close(s.done) }

func (s *sseWriter) writeEvent(event string, data []byte) {
	if event != "" {
		_, _ = fmt.Fprintf(s.w, "event: %s\n", event)
	}
	_, _ = fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
}

func (s *sseWriter) writeChunk(chunk wireStreamChunk) {
	data, err := marshalSSEData(chunk)
	if err != nil {
		return
	}
	s.writeEvent("", data)
}

func (s *sseWriter) writeError(err error, responseText string) {
	s.writeEvent("error", streamErrorEvent(err, responseText))
}

// writeDone emits the terminal "event: done\ndata: [DONE]" marker. Per
// spec.md §8 invariant 7, callers must ensure this is emitted at most once
// and nothing follows it.
func (s *sseWriter) writeDone() {
	s.writeEvent("done", []byte("[DONE]"))
}

// toStreamChunk translates one canonical model.Chunk into the OpenAI chunk
// wire shape, threading in the fields constant across a stream (id,
// model, object) that individual chunks don't carry.
func toStreamChunk(requestID string, createdUnix int64, usedModel string, chunk model.Chunk) (wireStreamChunk, bool) {
	out := wireStreamChunk{
		ID:      requestID,
		Object:  "chat.completion.chunk",
		Created: createdUnix,
		Model:   usedModel,
	}
	switch chunk.Type {
	case model.ChunkTypeText:
		out.Choices = []wireChunkChoice{{Delta: wireChunkDelta{Content: chunk.Text}}}
		return out, true

	case model.ChunkTypeToolCallDelta:
		if chunk.ToolCallDelta == nil {
			return out, false
		}
		td := wireToolCallDelta{Index: chunk.ToolCallDelta.Index, ID: chunk.ToolCallDelta.ID, Type: "function"}
		td.Function.Name = chunk.ToolCallDelta.Name
		td.Function.Arguments = chunk.ToolCallDelta.Delta
		out.Choices = []wireChunkChoice{{Delta: wireChunkDelta{ToolCalls: []wireToolCallDelta{td}}}}
		return out, true

	case model.ChunkTypeStop:
		finish := finishReasonFor(chunk.StopReason)
		out.Choices = []wireChunkChoice{{Delta: wireChunkDelta{}, FinishReason: &finish}}
		return out, true

	case model.ChunkTypeUsage:
		// Usage chunks are folded into the final usage chunk by the caller,
		// not emitted per-delta (spec.md §6: "a final usage chunk precedes
		// [DONE]").
		return out, false

	default:
		return out, false
	}
}

// finalUsageChunk is the single usage-bearing chunk emitted right before
// [DONE] (spec.md §6, §8 invariant 4).
func finalUsageChunk(requestID string, createdUnix int64, usedModel string, usage wireUsage) wireStreamChunk {
	return wireStreamChunk{
		ID:      requestID,
		Object:  "chat.completion.chunk",
		Created: createdUnix,
		Model:   usedModel,
		Choices: []wireChunkChoice{},
		Usage:   &usage,
	}
}
