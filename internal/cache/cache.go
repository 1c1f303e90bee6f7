// Package cache implements the Cache Layer (C7): content-addressed
// lookup/store for unary responses and streaming chunk sequences
// (spec.md §4.7), backed by Redis grounded on registry/registry.go's
// redis.Client wiring and ResultStreamTTL handling.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"goa.design/llmgateway/internal/model"
)

// Key is a content-addressed cache key.
type Key string

// hashable is the subset of Request fields that participate in the cache
// key per spec.md §3: "hash of {provider, model, messages, sampling,
// response_format, reasoning}".
type hashable struct {
	Provider       string
	Model          string
	Messages       []model.Message
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	ResponseFormat *model.ResponseFormat
	Reasoning      *model.ReasoningOptions
}

// UnaryKey computes the deterministic unary cache key for a request
// targeting (providerID, modelID).
func UnaryKey(providerID, modelID string, req model.Request) Key {
	return hashKey("unary", providerID, modelID, req)
}

// StreamingKey computes the deterministic streaming cache key, using the
// same schema as UnaryKey with a streaming discriminator (spec.md §4.7).
func StreamingKey(providerID, modelID string, req model.Request) Key {
	return hashKey("stream", providerID, modelID, req)
}

func hashKey(discriminator, providerID, modelID string, req model.Request) Key {
	h := hashable{
		Provider:       providerID,
		Model:          modelID,
		Messages:       req.Messages,
		Temperature:    req.Temperature,
		TopP:           req.TopP,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: req.ResponseFormat,
		Reasoning:      req.Reasoning,
	}
	raw, _ := json.Marshal(h)
	sum := sha256.Sum256(append([]byte(discriminator+":"), raw...))
	return Key(hex.EncodeToString(sum[:]))
}

// Store is the cache backend port.
type Store interface {
	GetUnary(ctx context.Context, key Key) (model.UnaryCacheEntry, bool, error)
	PutUnary(ctx context.Context, key Key, entry model.UnaryCacheEntry, ttl time.Duration) error
	GetStreaming(ctx context.Context, key Key) (model.StreamingCacheEntry, bool, error)
	PutStreaming(ctx context.Context, key Key, entry model.StreamingCacheEntry, ttl time.Duration) error
}

// RedisStore implements Store over Redis strings holding JSON-encoded
// entries, matching registry/registry.go's direct *redis.Client use.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func unaryRedisKey(k Key) string { return fmt.Sprintf("llmgw:cache:unary:%s", k) }
func streamRedisKey(k Key) string { return fmt.Sprintf("llmgw:cache:stream:%s", k) }

func (s *RedisStore) GetUnary(ctx context.Context, key Key) (model.UnaryCacheEntry, bool, error) {
	raw, err := s.client.Get(ctx, unaryRedisKey(key)).Bytes()
	if err == redis.Nil {
		return model.UnaryCacheEntry{}, false, nil
	}
	if err != nil {
		return model.UnaryCacheEntry{}, false, err
	}
	var entry model.UnaryCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return model.UnaryCacheEntry{}, false, err
	}
	return entry, true, nil
}

func (s *RedisStore) PutUnary(ctx context.Context, key Key, entry model.UnaryCacheEntry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, unaryRedisKey(key), raw, ttl).Err()
}

func (s *RedisStore) GetStreaming(ctx context.Context, key Key) (model.StreamingCacheEntry, bool, error) {
	raw, err := s.client.Get(ctx, streamRedisKey(key)).Bytes()
	if err == redis.Nil {
		return model.StreamingCacheEntry{}, false, nil
	}
	if err != nil {
		return model.StreamingCacheEntry{}, false, err
	}
	var entry model.StreamingCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return model.StreamingCacheEntry{}, false, err
	}
	return entry, true, nil
}

// PutStreaming only persists completed, error-free streams (spec.md §3,
// §4.7). Callers are expected to check entry.Metadata.Completed before
// calling, but this is enforced here too as a final guard.
func (s *RedisStore) PutStreaming(ctx context.Context, key Key, entry model.StreamingCacheEntry, ttl time.Duration) error {
	if !entry.Metadata.Completed {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, streamRedisKey(key), raw, ttl).Err()
}

// ReplayGapCap bounds the per-chunk replay delay for cached streaming
// responses (spec.md §4.7: "capped at 1 s per gap").
const ReplayGapCap = time.Second

// ReplayDelays converts a sequence of cached chunks' recorded relative
// timestamps into the delay to sleep before emitting each chunk, capping
// any single gap at ReplayGapCap.
func ReplayDelays(chunks []model.CachedChunk) []time.Duration {
	delays := make([]time.Duration, len(chunks))
	prev := int64(0)
	for i, c := range chunks {
		gap := c.RelativeTimestampMS - prev
		if gap < 0 {
			gap = 0
		}
		d := time.Duration(gap) * time.Millisecond
		if d > ReplayGapCap {
			d = ReplayGapCap
		}
		delays[i] = d
		prev = c.RelativeTimestampMS
	}
	return delays
}
