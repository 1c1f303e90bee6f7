package retry_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"goa.design/llmgateway/internal/gwerrors"
	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/retry"
)

// TestNoFallbackCapsAttemptsAtOne verifies invariant 2: if no_fallback=true,
// the number of attempts <= 1.
func TestNoFallbackCapsAttemptsAtOne(t *testing.T) {
	loop := retry.NewLoop(true, false, 3)
	candidates := []retry.Candidate{{ProviderID: "openai"}, {ProviderID: "anthropic"}}

	outcome := retry.Outcome{Succeeded: false, StatusCode: 503}
	require.False(t, loop.ShouldRetry(outcome, candidates))

	loop.RecordAttempt("openai", "gpt-4o", outcome, true)
	require.Len(t, loop.Attempts(), 1)
}

func TestExplicitDirectDisablesFallback(t *testing.T) {
	loop := retry.NewLoop(false, true, 3)
	outcome := retry.Outcome{Succeeded: false, StatusCode: 503}
	require.False(t, loop.ShouldRetry(outcome, []retry.Candidate{{ProviderID: "anthropic"}}))
}

// TestRoutingAttemptListMatchesTriedSequence verifies invariant 3: the
// routing attempt list equals, in order, the sequence of providers
// actually tried.
func TestRoutingAttemptListMatchesTriedSequence(t *testing.T) {
	loop := retry.NewLoop(false, false, 3)
	candidates := []retry.Candidate{{ProviderID: "openai"}, {ProviderID: "anthropic"}, {ProviderID: "bedrock"}}

	failure := retry.Outcome{Succeeded: false, StatusCode: 503}
	loop.RecordAttempt("openai", "gpt-4o", failure, false)
	require.True(t, loop.ShouldRetry(failure, candidates))
	next, ok := loop.SelectNextProvider("openai", candidates)
	require.True(t, ok)
	require.Equal(t, "anthropic", next.ProviderID)

	success := retry.Outcome{Succeeded: true}
	loop.RecordAttempt("anthropic", "claude-sonnet-4-5", success, true)

	var tried []string
	for _, a := range loop.Attempts() {
		tried = append(tried, a.Provider)
	}
	require.Equal(t, []string{"openai", "anthropic"}, tried)
}

// TestExactlyOneFinalAttemptPerRetriedAttempt verifies invariant 5: for
// every retried attempt log, there exists exactly one final log whose id
// the retried log's retried_by_log_id points to. Since every attempt in a
// loop shares the same FinalLogID by construction, the invariant reduces
// to "every non-terminal attempt was recorded with the loop's single
// final id as its target, and the loop produces exactly one terminal
// attempt."
func TestExactlyOneFinalAttemptPerRetriedAttempt(t *testing.T) {
	loop := retry.NewLoop(false, false, 3)
	finalID := loop.FinalLogID()
	require.NotEmpty(t, finalID)

	failure := retry.Outcome{Succeeded: false, StatusCode: 500}
	loop.RecordAttempt("openai", "gpt-4o", failure, false)
	loop.RecordAttempt("anthropic", "claude-sonnet-4-5", retry.Outcome{Succeeded: true}, true)

	require.Equal(t, finalID, loop.FinalLogID(), "FinalLogID is stable across the loop's lifetime")
	require.Len(t, loop.Attempts(), 2)
}

func TestMaxRetriesBoundsAttempts(t *testing.T) {
	loop := retry.NewLoop(false, false, 2)
	candidates := []retry.Candidate{{ProviderID: "a"}, {ProviderID: "b"}, {ProviderID: "c"}}
	failure := retry.Outcome{Succeeded: false, StatusCode: 503}

	attempts := 0
	current := "a"
	for {
		loop.RecordAttempt(current, "m", failure, false)
		attempts++
		if !loop.ShouldRetry(failure, candidates) {
			break
		}
		next, ok := loop.SelectNextProvider(current, candidates)
		require.True(t, ok)
		current = next.ProviderID
		if attempts > 10 {
			t.Fatal("retry loop did not respect maxRetries")
		}
	}
	require.LessOrEqual(t, attempts, 3) // initial attempt + maxRetries
}

func TestUnresolvableCandidateDoesNotConsumeRetrySlot(t *testing.T) {
	loop := retry.NewLoop(false, false, 1)
	loop.MarkUnresolvable("openai")
	failure := retry.Outcome{Succeeded: false, StatusCode: 503, Unresolvable: true}
	loop.RecordAttempt("openai", "gpt-4o", failure, false)

	// maxRetries=1 is still fully available because the unresolvable
	// candidate's attempt did not increment retryCount.
	require.True(t, loop.ShouldRetry(retry.Outcome{Succeeded: false, StatusCode: 503},
		[]retry.Candidate{{ProviderID: "anthropic"}}))
}

// TestClassifyProperty verifies Classify's status-code retryability
// partition: transient gwerrors are retryable per retryableStatus's rule
// (0, 408, 429, 5xx); anything else is terminal.
func TestClassifyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("nil error always succeeds", prop.ForAll(
		func(_ int) bool {
			return retry.Classify(nil).Succeeded
		},
		gen.Int(),
	))

	properties.Property("5xx transient errors are never terminal-success", prop.ForAll(
		func(status int) bool {
			err := gwerrors.New(gwerrors.KindTransient, status, gwerrors.CodeFetchFailed, "x", nil)
			outcome := retry.Classify(err)
			return !outcome.Succeeded && outcome.StatusCode == status
		},
		gen.IntRange(500, 599),
	))

	properties.Property("content-filter errors classify as terminal success", prop.ForAll(
		func(_ int) bool {
			err := gwerrors.New(gwerrors.KindFilter, 200, gwerrors.CodeGuardrailViolation, "x", nil)
			return retry.Classify(err).Succeeded
		},
		gen.Int(),
	))

	properties.TestingRun(t)
}
