package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/config"
	"goa.design/llmgateway/internal/gwerrors"
	"goa.design/llmgateway/internal/logstore"
	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/routing"
	"goa.design/llmgateway/internal/upstream"
)

// textStreamer replays a fixed sequence of text chunks, grounded on
// internal/providers/anthropic/stream.go's channel-backed Streamer shape.
type textStreamer struct {
	texts []string
	i     int
}

func (s *textStreamer) Recv() (model.Chunk, error) {
	if s.i >= len(s.texts) {
		return model.Chunk{}, io.EOF
	}
	t := s.texts[s.i]
	s.i++
	return model.Chunk{Type: model.ChunkTypeText, Text: t}, nil
}
func (s *textStreamer) Close() error             { return nil }
func (s *textStreamer) Metadata() map[string]string { return nil }

type stubStreamClient struct{ streamer model.Streamer }

func (c *stubStreamClient) Complete(context.Context, model.Request) (model.Response, error) {
	return model.Response{}, errors.New("not implemented")
}
func (c *stubStreamClient) Stream(context.Context, model.Request) (model.Streamer, error) {
	return c.streamer, nil
}

func newOverflowTestServer(limit int64, streamer model.Streamer) *Server {
	exec := upstream.New(map[string]model.Client{"test": &stubStreamClient{streamer: streamer}},
		time.Minute, time.Minute, nil, nil)
	return &Server{
		cfg:      config.Config{MaxStreamingBufferBytes: limit},
		executor: exec,
		logger:   logstore.New(nil, nil),
	}
}

// TestDispatchStreamingBufferOverflowAborts verifies the §8 boundary:
// accumulated streamed bytes exceeding MAX_BUFFER_SIZE emits a
// buffer_overflow error and aborts the stream rather than completing it.
func TestDispatchStreamingBufferOverflowAborts(t *testing.T) {
	s := newOverflowTestServer(10, &textStreamer{texts: []string{"0123456789", "overflow"}})
	rec := httptest.NewRecorder()
	env := normalizedEnvelope{Request: model.Request{Stream: true}}
	mapping := model.ProviderMapping{ProviderID: "test", ModelName: "test-model"}

	result, cached, _ := s.dispatchStreaming(context.Background(), rec, env, model.Principal{}, mapping, "req1", 0, routing.Decision{})

	require.False(t, cached)
	gerr, ok := gwerrors.As(result.err)
	require.True(t, ok)
	require.Equal(t, gwerrors.CodeBufferOverflow, gerr.Code)
}

// TestDispatchStreamingWithinBufferLimitCompletes verifies the companion
// boundary: staying at or under MAX_BUFFER_SIZE does not trigger overflow.
func TestDispatchStreamingWithinBufferLimitCompletes(t *testing.T) {
	s := newOverflowTestServer(10, &textStreamer{texts: []string{"0123456789"}})
	rec := httptest.NewRecorder()
	env := normalizedEnvelope{Request: model.Request{Stream: true}}
	mapping := model.ProviderMapping{ProviderID: "test", ModelName: "test-model"}

	result, _, _ := s.dispatchStreaming(context.Background(), rec, env, model.Principal{}, mapping, "req1", 0, routing.Decision{})

	require.NoError(t, result.err)
}

// TestDispatchStreamingZeroLimitDisablesOverflowCheck verifies that a zero
// MaxStreamingBufferBytes (unset) disables enforcement entirely, rather than
// rejecting every stream.
func TestDispatchStreamingZeroLimitDisablesOverflowCheck(t *testing.T) {
	big := make([]byte, 0)
	for i := 0; i < 1000; i++ {
		big = append(big, 'x')
	}
	s := newOverflowTestServer(0, &textStreamer{texts: []string{string(big)}})
	rec := httptest.NewRecorder()
	env := normalizedEnvelope{Request: model.Request{Stream: true}}
	mapping := model.ProviderMapping{ProviderID: "test", ModelName: "test-model"}

	result, _, _ := s.dispatchStreaming(context.Background(), rec, env, model.Principal{}, mapping, "req1", 0, routing.Decision{})

	require.NoError(t, result.err)
}
