// Package retry implements the Retry Orchestrator (C10): a
// Prepared -> Dispatched -> (Success | Failed) -> Prepared' state machine
// over provider candidates, grounded on spec.md §4.10 directly and on the
// bounded-retry loop idiom in features/model/middleware/ratelimit.go
// (explicit loop state instead of captured mutable outer variables).
package retry

import (
	"errors"

	"github.com/google/uuid"

	"goa.design/llmgateway/internal/gwerrors"
	"goa.design/llmgateway/internal/model"
)

// DefaultMaxRetries bounds the retry loop (spec.md §4.10: "small constant, e.g.
// 3"). Overridable via internal/config.Config.MaxRetries.
const DefaultMaxRetries = 3

// Candidate is one provider score eligible to be tried or retried.
type Candidate struct {
	ProviderID string
	Score      model.ProviderScore
}

// Outcome classifies one dispatch attempt's result for the retry
// predicate (spec.md §4.10: "status code is retryable (0 for
// connect/timeout; 408, 429, 5xx) -- 4xx client errors and content-filter
// are terminal").
type Outcome struct {
	Succeeded  bool
	StatusCode int
	ErrorType  model.ErrorType
	// Unresolvable marks a candidate whose context could not be built at
	// all (e.g. missing key): it does not consume a retry slot.
	Unresolvable bool
}

// Classify maps a dispatch error into an Outcome. Validation, auth, quota,
// filter, and client-error kinds are terminal; transient kinds are
// retryable.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Succeeded: true}
	}
	var gerr *gwerrors.Error
	if errors.As(err, &gerr) {
		switch gerr.Kind {
		case gwerrors.KindTransient:
			return Outcome{StatusCode: gerr.HTTPStatus, ErrorType: classifyErrorType(gerr), Succeeded: false}
		case gwerrors.KindFilter:
			// Content-filter is a terminal success per spec.md §4.9/§4.10
			// ("Terminal success (200 with finish_reason=content_filter)");
			// callers surface it as a Response, not through this path.
			return Outcome{Succeeded: true, ErrorType: model.ErrorTypeContentFilter}
		default:
			return Outcome{StatusCode: gerr.HTTPStatus, ErrorType: model.ErrorTypeClientError, Succeeded: false}
		}
	}
	return Outcome{StatusCode: 0, ErrorType: model.ErrorTypeOther, Succeeded: false}
}

func classifyErrorType(err *gwerrors.Error) model.ErrorType {
	switch err.Code {
	case gwerrors.CodeUpstreamTimeout, gwerrors.CodeCanceled:
		return model.ErrorTypeTimeout
	default:
		if err.HTTPStatus == 429 {
			return model.ErrorTypeRateLimit
		}
		if err.HTTPStatus >= 500 || err.HTTPStatus == 0 {
			return model.ErrorTypeServerError
		}
		return model.ErrorTypeClientError
	}
}

func retryableStatus(code int) bool {
	if code == 0 || code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code < 600
}

// Loop drives the per-request retry state machine. Construct one per
// incoming request.
type Loop struct {
	noFallback      bool
	explicitDirect  bool
	maxRetries      int
	retryCount      int
	failedProviders map[string]bool
	finalLogID      string
	attempts        []model.AttemptRecord
}

// NewLoop starts a Loop. explicitDirect is true when the caller pinned a
// provider (model.Request carries a provider-qualified model id), which
// disables fallback regardless of noFallback.
func NewLoop(noFallback, explicitDirect bool, maxRetries int) *Loop {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Loop{
		noFallback:      noFallback,
		explicitDirect:  explicitDirect,
		maxRetries:      maxRetries,
		failedProviders: make(map[string]bool),
		finalLogID:      uuid.NewString(),
	}
}

// FinalLogID is the id every attempt record in this loop is linked to
// (spec.md §4.10: "the final successful or finally-failed attempt uses
// <final_log_id> as its id").
func (l *Loop) FinalLogID() string { return l.finalLogID }

// Attempts returns the attempt log accumulated so far.
func (l *Loop) Attempts() []model.AttemptRecord { return l.attempts }

// ShouldRetry implements the should_retry predicate given the outcome of
// the most recent attempt and the remaining unused candidates.
func (l *Loop) ShouldRetry(outcome Outcome, remaining []Candidate) bool {
	if l.noFallback || l.explicitDirect {
		return false
	}
	if outcome.Succeeded {
		return false
	}
	if !retryableStatus(outcome.StatusCode) {
		return false
	}
	if l.retryCount >= l.maxRetries {
		return false
	}
	return len(l.unusedCandidates(remaining)) > 0
}

func (l *Loop) unusedCandidates(all []Candidate) []Candidate {
	var out []Candidate
	for _, c := range all {
		if !l.failedProviders[c.ProviderID] {
			out = append(out, c)
		}
	}
	return out
}

// SelectNextProvider picks the highest-scoring unused candidate from
// scores minus failed_provider_ids and the current provider (spec.md
// §4.10). Candidates must already be sorted best-first (lower Score is
// better, per internal/routing's ordering).
func (l *Loop) SelectNextProvider(current string, scores []Candidate) (Candidate, bool) {
	l.failedProviders[current] = true
	for _, c := range l.unusedCandidates(scores) {
		return c, true
	}
	return Candidate{}, false
}

// RecordAttempt appends one attempt to the attempt list. terminal marks the
// attempt that ends the loop (success or finally-failed); every other
// attempt that is not Unresolvable consumes one retry slot. The log-row
// fields (id, retried, retried_by_log_id) are not set here; the caller
// writes them using FinalLogID.
func (l *Loop) RecordAttempt(providerID, modelID string, outcome Outcome, terminal bool) {
	rec := model.AttemptRecord{
		Provider:   providerID,
		Model:      modelID,
		StatusCode: outcome.StatusCode,
		ErrorType:  outcome.ErrorType,
		Succeeded:  outcome.Succeeded,
	}
	l.attempts = append(l.attempts, rec)
	if !terminal && !outcome.Unresolvable {
		l.retryCount++
	}
}

// MarkUnresolvable records a candidate whose context could not be built
// (e.g. missing credential) without consuming a retry slot, per spec.md
// §4.10: "do not consume a retry slot; they are added to
// failed_provider_ids and the loop continues."
func (l *Loop) MarkUnresolvable(providerID string) {
	l.failedProviders[providerID] = true
}
