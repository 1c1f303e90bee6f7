// Package logstore implements the Logger (C12): one structured record per
// attempt, with parent/child linkage for retried attempts, grounded on
// features/runlog/mongo/store.go and clients/mongo/client.go's append-only
// event-log persistence pattern, repurposed from agent run events to
// gateway attempt records.
package logstore

import (
	"context"

	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/telemetry"
)

// Record is one attempt's persisted log row (spec.md §4.12's field list).
type Record struct {
	ID              string
	RetriedByLogID  string
	Retried         bool
	APIKeyID        string
	ProjectID       string
	OrgID           string
	RequestedModel  string
	UsedModel       string
	NativeMapping   string
	Provider        string
	Sampling        map[string]any
	Usage           model.TokenUsage
	DurationMS      float64
	TimeToFirstTokenMS          float64
	TimeToFirstReasoningTokenMS float64
	Cost            map[string]float64
	RoutingMetadata model.RoutingMetadata
	FinishReason    model.StopReason
	HasError        bool
	ErrorDetails    string
	Streamed        bool
	Canceled        bool
	Cached          bool
	ToolResults     []string
	Plugins         []string
	PluginResults   map[string]any

	// Retention-gated fields: populated only when the organization's
	// retention level permits storing raw content (spec.md §4.12).
	Content           string
	ReasoningContent  string
	RawRequestPayload  []byte
	RawResponsePayload []byte
}

// Store persists attempt records.
type Store interface {
	Insert(ctx context.Context, rec Record) error
}

// Logger emits structured telemetry for every attempt and persists it to
// the durable Store, mirroring the teacher's two-sided logging (operational
// structured logs via telemetry.Logger, durable Mongo-backed events via
// clients/mongo).
type Logger struct {
	store Store
	log   telemetry.Logger
}

// New constructs a Logger.
func New(store Store, log telemetry.Logger) *Logger {
	return &Logger{store: store, log: log}
}

// Aggregate summarizes a window of attempt records for reporting, per
// spec.md §8 invariant 10 and its error_rate/cache_rate boundary behaviors.
type Aggregate struct {
	RequestCount int
	ErrorCount   int
	CachedCount  int
	ErrorRate    float64
	CacheRate    float64
}

// Summarize computes an Aggregate over recs. error_rate and cache_rate are
// percentages (0-100); both are 0 when recs is empty, per spec.md §8's
// request_count=0 boundary.
func Summarize(recs []Record) Aggregate {
	agg := Aggregate{RequestCount: len(recs)}
	if agg.RequestCount == 0 {
		return agg
	}
	for _, r := range recs {
		if r.HasError {
			agg.ErrorCount++
		}
		if r.Cached {
			agg.CachedCount++
		}
	}
	agg.ErrorRate = float64(agg.ErrorCount) / float64(agg.RequestCount) * 100
	agg.CacheRate = float64(agg.CachedCount) / float64(agg.RequestCount) * 100
	return agg
}

// Log writes one attempt record, emitting a structured log line alongside
// the durable write. Persistence failures are logged but not propagated,
// since a logging failure must never fail the client-facing request.
func (l *Logger) Log(ctx context.Context, rec Record) {
	if l.log != nil {
		l.log.Info(ctx, "attempt recorded",
			"log_id", rec.ID,
			"provider", rec.Provider,
			"model", rec.UsedModel,
			"has_error", rec.HasError,
			"retried", rec.Retried,
			"streamed", rec.Streamed,
			"canceled", rec.Canceled,
			"cached", rec.Cached,
		)
	}
	if l.store == nil {
		return
	}
	if err := l.store.Insert(ctx, rec); err != nil && l.log != nil {
		l.log.Warn(ctx, "attempt record persistence failed", "log_id", rec.ID, "error", err)
	}
}
