// Package upstream implements the Upstream Executor (C8): dispatches a
// resolved request to a provider's model.Client under a combined
// cancel+timeout context, grounded on features/model/gateway/server.go's
// middleware-wrapped Complete/Stream dispatch and
// features/model/bedrock/stream.go's context-driven streamer lifecycle.
package upstream

import (
	"context"
	"time"

	"goa.design/llmgateway/internal/gwerrors"
	"goa.design/llmgateway/internal/model"
)

// UnaryMiddleware wraps a unary dispatch, mirroring
// features/model/gateway/server.go's UnaryMiddleware shape.
type UnaryMiddleware func(next UnaryHandler) UnaryHandler

// UnaryHandler performs one unary dispatch.
type UnaryHandler func(ctx context.Context, providerID string, req model.Request) (model.Response, error)

// StreamMiddleware wraps a streaming dispatch.
type StreamMiddleware func(next StreamHandler) StreamHandler

// StreamHandler performs one streaming dispatch.
type StreamHandler func(ctx context.Context, providerID string, req model.Request) (model.Streamer, error)

// Executor dispatches to per-provider clients with enforced deadlines
// (spec.md §4.8: "unary and streaming timeouts are independently
// configurable; a provider timeout is reported as a Transient error,
// eligible for retry/fallback").
type Executor struct {
	clients       map[string]model.Client
	unaryTimeout  time.Duration
	streamTimeout time.Duration
	unary         UnaryHandler
	stream        StreamHandler
}

// New constructs an Executor with the given per-provider clients and
// deadlines. Middleware is applied in registration order, the first
// becoming the outermost layer, matching the teacher's NewServer.
func New(clients map[string]model.Client, unaryTimeout, streamTimeout time.Duration, unaryMW []UnaryMiddleware, streamMW []StreamMiddleware) *Executor {
	e := &Executor{clients: clients, unaryTimeout: unaryTimeout, streamTimeout: streamTimeout}

	baseUnary := func(ctx context.Context, providerID string, req model.Request) (model.Response, error) {
		return e.dispatchUnary(ctx, providerID, req)
	}
	unary := baseUnary
	for i := len(unaryMW) - 1; i >= 0; i-- {
		unary = unaryMW[i](unary)
	}
	e.unary = unary

	baseStream := func(ctx context.Context, providerID string, req model.Request) (model.Streamer, error) {
		return e.dispatchStream(ctx, providerID, req)
	}
	stream := baseStream
	for i := len(streamMW) - 1; i >= 0; i-- {
		stream = streamMW[i](stream)
	}
	e.stream = stream

	return e
}

// Complete performs one unary completion attempt.
func (e *Executor) Complete(ctx context.Context, providerID string, req model.Request) (model.Response, error) {
	return e.unary(ctx, providerID, req)
}

// Stream performs one streaming completion attempt.
func (e *Executor) Stream(ctx context.Context, providerID string, req model.Request) (model.Streamer, error) {
	return e.stream(ctx, providerID, req)
}

func (e *Executor) dispatchUnary(ctx context.Context, providerID string, req model.Request) (model.Response, error) {
	client, ok := e.clients[providerID]
	if !ok {
		return model.Response{}, gwerrors.Internal(nil)
	}
	cctx, cancel := context.WithTimeout(ctx, e.unaryTimeout)
	defer cancel()

	resp, err := client.Complete(cctx, req)
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return model.Response{}, gwerrors.UpstreamTimeout(err)
		}
		return model.Response{}, err
	}
	return resp, nil
}

func (e *Executor) dispatchStream(ctx context.Context, providerID string, req model.Request) (model.Streamer, error) {
	client, ok := e.clients[providerID]
	if !ok {
		return nil, gwerrors.Internal(nil)
	}
	cctx, cancel := context.WithTimeout(ctx, e.streamTimeout)

	st, err := client.Stream(cctx, req)
	if err != nil {
		cancel()
		if cctx.Err() == context.DeadlineExceeded {
			return nil, gwerrors.UpstreamTimeout(err)
		}
		return nil, err
	}
	return &deadlineStreamer{Streamer: st, cancel: cancel, ctx: cctx}, nil
}

// deadlineStreamer ties a Streamer's lifetime to its dispatch deadline,
// translating a deadline-exceeded Recv error into an UpstreamTimeout and
// always releasing the timer context on Close.
type deadlineStreamer struct {
	model.Streamer
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *deadlineStreamer) Recv() (model.Chunk, error) {
	chunk, err := s.Streamer.Recv()
	if err != nil && s.ctx.Err() == context.DeadlineExceeded {
		return model.Chunk{}, gwerrors.UpstreamTimeout(err)
	}
	return chunk, err
}

func (s *deadlineStreamer) Close() error {
	defer s.cancel()
	return s.Streamer.Close()
}
