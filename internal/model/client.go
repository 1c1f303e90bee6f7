package model

import "context"

// Client is implemented by each provider adapter (internal/providers/...)
// to perform non-streaming (Complete) and streaming (Stream) completions
// against a native upstream API, translating to and from the canonical Request/Response types.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request) (Streamer, error)
}

// Streamer yields canonical Chunks from a provider's native streaming
// transport (SSE for OpenAI/Anthropic, a binary event stream for Bedrock).
// Recv returns io.EOF once the stream completes without error.
type Streamer interface {
	Recv() (Chunk, error)
	Close() error
	// Metadata returns provider-reported out-of-band details (request id,
	// rate-limit headers, etc.) collected over the life of the stream.
	Metadata() map[string]string
}
