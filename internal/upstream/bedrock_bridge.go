package upstream

import (
	"context"
	"io"
	"sync"

	"goa.design/llmgateway/internal/model"
)

// BedrockEventStream is the subset of
// *bedrockruntime.ConverseStreamEventStream used by the bridge, narrowed so
// internal/providers/bedrock can supply either the real SDK type or a test
// double without importing the AWS SDK here.
type BedrockEventStream interface {
	Events() <-chan any
	Close() error
	Err() error
}

// BedrockChunkTranslator converts one native Bedrock stream event into zero
// or one canonical Chunk. Returning (Chunk{}, false, nil) skips the event.
type BedrockChunkTranslator func(event any) (model.Chunk, bool, error)

// BridgeBedrockStream adapts a Bedrock ConverseStream event channel to
// model.Streamer, pumping translated events through a buffered channel on a
// background goroutine -- the same shape as the teacher's bedrockStreamer,
// generalized to take a translator instead of hardcoding one provider's
// event union.
func BridgeBedrockStream(ctx context.Context, stream BedrockEventStream, translate BedrockChunkTranslator) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	b := &bedrockBridge{
		ctx:       cctx,
		cancel:    cancel,
		stream:    stream,
		translate: translate,
		chunks:    make(chan model.Chunk, 32),
	}
	go b.run()
	return b
}

type bedrockBridge struct {
	ctx       context.Context
	cancel    context.CancelFunc
	stream    BedrockEventStream
	translate BedrockChunkTranslator
	chunks    chan model.Chunk

	errMu    sync.Mutex
	finalErr error
}

func (b *bedrockBridge) run() {
	defer close(b.chunks)
	for {
		select {
		case event, ok := <-b.stream.Events():
			if !ok {
				if err := b.stream.Err(); err != nil {
					b.setErr(err)
				}
				return
			}
			chunk, emit, err := b.translate(event)
			if err != nil {
				b.setErr(err)
				return
			}
			if !emit {
				continue
			}
			select {
			case b.chunks <- chunk:
			case <-b.ctx.Done():
				return
			}
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *bedrockBridge) Recv() (model.Chunk, error) {
	select {
	case chunk, ok := <-b.chunks:
		if ok {
			return chunk, nil
		}
		if err := b.err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	case <-b.ctx.Done():
		err := b.ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		b.setErr(err)
		return model.Chunk{}, err
	}
}

func (b *bedrockBridge) Close() error {
	b.cancel()
	return b.stream.Close()
}

func (b *bedrockBridge) Metadata() map[string]string {
	return nil
}

func (b *bedrockBridge) setErr(err error) {
	b.errMu.Lock()
	if b.finalErr == nil {
		b.finalErr = err
	}
	b.errMu.Unlock()
}

func (b *bedrockBridge) err() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.finalErr
}
