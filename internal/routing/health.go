// Package routing implements the Routing Engine (C5): auto/direct-provider/
// model-only selection branches and the cheapest-from-available scoring
// rule (spec.md §4.5), backed by a Redis-resident rolling metrics window
// grounded on registry/registry.go's HealthTracker pattern.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Metrics is the recent-window health snapshot for one (model, provider)
// pair (spec.md §4.5a: "fetches recent (5-minute) metrics {uptime,
// average_latency, throughput}").
type Metrics struct {
	Uptime     float64 // percentage, 0-100
	Latency    float64 // milliseconds
	Throughput float64 // requests/sec
}

// HealthStore is the provider-metric store port. The underlying storage
// engine is a collaborator per spec.md §5 ("Cache store, provider-metric
// store, logger, DB: accessed through their own clients; they own their
// concurrency discipline").
type HealthStore interface {
	Metrics(ctx context.Context, modelID, providerID string) (Metrics, error)
	RecordOutcome(ctx context.Context, modelID, providerID string, succeeded bool, latencyMS float64) error
}

const rollingWindow = 5 * time.Minute

// RedisHealthStore backs HealthStore with Redis sorted sets, one per
// (model, provider) pair, trimmed to the rolling window on every read and
// write -- grounded on registry/registry.go's redis.Client + rmap wiring,
// repurposed from agent/service health to per-mapping routing health.
type RedisHealthStore struct {
	client *redis.Client
}

// NewRedisHealthStore constructs a RedisHealthStore.
func NewRedisHealthStore(client *redis.Client) *RedisHealthStore {
	return &RedisHealthStore{client: client}
}

type outcomeSample struct {
	Succeeded bool    `json:"ok"`
	LatencyMS float64 `json:"latency_ms"`
}

func key(modelID, providerID string) string {
	return fmt.Sprintf("llmgw:health:%s:%s", modelID, providerID)
}

// RecordOutcome appends a sample to the rolling window, fire-and-forget
// from the caller's perspective (spec.md §4.11: "reports health to the
// env-pool key").
func (s *RedisHealthStore) RecordOutcome(ctx context.Context, modelID, providerID string, succeeded bool, latencyMS float64) error {
	sample := outcomeSample{Succeeded: succeeded, LatencyMS: latencyMS}
	raw, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	now := float64(time.Now().UnixMilli())
	k := key(modelID, providerID)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: now, Member: raw})
	pipe.ZRemRangeByScore(ctx, k, "-inf", fmt.Sprintf("%f", now-float64(rollingWindow.Milliseconds())))
	pipe.Expire(ctx, k, rollingWindow*2)
	_, err = pipe.Exec(ctx)
	return err
}

// Metrics computes uptime/latency/throughput over the rolling window.
func (s *RedisHealthStore) Metrics(ctx context.Context, modelID, providerID string) (Metrics, error) {
	k := key(modelID, providerID)
	now := float64(time.Now().UnixMilli())
	members, err := s.client.ZRangeByScore(ctx, k, &redis.ZRangeBy{
		Min: fmt.Sprintf("%f", now-float64(rollingWindow.Milliseconds())),
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return Metrics{}, err
	}
	if len(members) == 0 {
		// No samples yet: assume healthy so a brand new mapping is not
		// permanently demoted by the uptime<80% rule.
		return Metrics{Uptime: 100, Latency: 0, Throughput: 0}, nil
	}
	var (
		succeeded  int
		latencySum float64
	)
	for _, raw := range members {
		var sample outcomeSample
		if err := json.Unmarshal([]byte(raw), &sample); err != nil {
			continue
		}
		if sample.Succeeded {
			succeeded++
		}
		latencySum += sample.LatencyMS
	}
	total := len(members)
	return Metrics{
		Uptime:     100 * float64(succeeded) / float64(total),
		Latency:    latencySum / float64(total),
		Throughput: float64(total) / rollingWindow.Seconds(),
	}, nil
}

// InMemoryHealthStore is a process-local HealthStore for tests and
// single-node deployments.
type InMemoryHealthStore struct {
	data map[string]Metrics
}

// NewInMemoryHealthStore constructs an InMemoryHealthStore with default
// healthy metrics for every lookup unless overridden via Set.
func NewInMemoryHealthStore() *InMemoryHealthStore {
	return &InMemoryHealthStore{data: make(map[string]Metrics)}
}

// Set overrides the metrics returned for a (model, provider) pair; used by
// tests to exercise the low-uptime-fallback and scoring-rule branches.
func (s *InMemoryHealthStore) Set(modelID, providerID string, m Metrics) {
	s.data[key(modelID, providerID)] = m
}

func (s *InMemoryHealthStore) Metrics(_ context.Context, modelID, providerID string) (Metrics, error) {
	if m, ok := s.data[key(modelID, providerID)]; ok {
		return m, nil
	}
	return Metrics{Uptime: 100}, nil
}

func (s *InMemoryHealthStore) RecordOutcome(context.Context, string, string, bool, float64) error {
	return nil
}
