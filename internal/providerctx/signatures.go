package providerctx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisThoughtSignatureStore backs ThoughtSignatureStore with a Redis
// string keyspace, grounded on registry/registry.go's redis.Client wiring.
type RedisThoughtSignatureStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisThoughtSignatureStore constructs a RedisThoughtSignatureStore.
func NewRedisThoughtSignatureStore(client *redis.Client, ttl time.Duration) *RedisThoughtSignatureStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisThoughtSignatureStore{client: client, ttl: ttl}
}

func (s *RedisThoughtSignatureStore) Get(ctx context.Context, toolCallID string) (string, bool, error) {
	val, err := s.client.Get(ctx, signatureKey(toolCallID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisThoughtSignatureStore) Set(ctx context.Context, toolCallID, signature string) error {
	return s.client.Set(ctx, signatureKey(toolCallID), signature, s.ttl).Err()
}

func signatureKey(toolCallID string) string {
	return "llmgw:thought_sig:" + toolCallID
}
