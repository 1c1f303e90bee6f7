package logstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/logstore"
)

type fakeStore struct {
	mu      sync.Mutex
	records []logstore.Record
	failNext bool
}

func (f *fakeStore) Insert(_ context.Context, rec logstore.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return errors.New("insert failed")
	}
	f.records = append(f.records, rec)
	return nil
}

type fakeTelemetry struct {
	mu    sync.Mutex
	warns int
}

func (f *fakeTelemetry) Debug(context.Context, string, ...any) {}
func (f *fakeTelemetry) Info(context.Context, string, ...any)  {}
func (f *fakeTelemetry) Warn(context.Context, string, ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warns++
}
func (f *fakeTelemetry) Error(context.Context, string, ...any) {}

func TestLogPersistsRecordToStore(t *testing.T) {
	store := &fakeStore{}
	logger := logstore.New(store, nil)
	logger.Log(context.Background(), logstore.Record{ID: "req1", HasError: false})

	require.Len(t, store.records, 1)
	require.Equal(t, "req1", store.records[0].ID)
}

// TestLogSwallowsStoreFailure verifies a persistence failure never
// propagates to the caller -- a logging failure must not fail the
// client-facing request.
func TestLogSwallowsStoreFailure(t *testing.T) {
	store := &fakeStore{failNext: true}
	tel := &fakeTelemetry{}
	logger := logstore.New(store, tel)

	require.NotPanics(t, func() {
		logger.Log(context.Background(), logstore.Record{ID: "req1"})
	})
	require.Equal(t, 1, tel.warns)
}

// TestSummarizeEmptyYieldsZeroRates verifies the §8 boundary:
// request_count=0 -> error_rate=0, and by the same rule, cache_rate=0.
func TestSummarizeEmptyYieldsZeroRates(t *testing.T) {
	agg := logstore.Summarize(nil)
	require.Equal(t, 0, agg.RequestCount)
	require.Equal(t, float64(0), agg.ErrorRate)
	require.Equal(t, float64(0), agg.CacheRate)
}

// TestSummarizeAllCachedYieldsHundred verifies the §8 boundary:
// cache_rate with all cached -> 100.
func TestSummarizeAllCachedYieldsHundred(t *testing.T) {
	recs := []logstore.Record{{Cached: true}, {Cached: true}, {Cached: true}}
	agg := logstore.Summarize(recs)
	require.Equal(t, float64(100), agg.CacheRate)
}

// TestSummarizeErrorRateProperty verifies invariant 10: error_rate equals
// error_count/request_count*100 exactly, within 1e-9 floating-point
// tolerance, for any mix of error/non-error records.
func TestSummarizeErrorRateProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("error_rate matches error_count/request_count*100", prop.ForAll(
		func(total, errors int) bool {
			if errors > total {
				errors = total
			}
			recs := make([]logstore.Record, total)
			for i := 0; i < errors; i++ {
				recs[i] = logstore.Record{HasError: true}
			}
			agg := logstore.Summarize(recs)
			want := float64(errors) / float64(total) * 100
			diff := agg.ErrorRate - want
			if diff < 0 {
				diff = -diff
			}
			return diff < 1e-9
		},
		gen.IntRange(1, 500),
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}
