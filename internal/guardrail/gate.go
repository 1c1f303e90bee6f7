// Package guardrail implements the Guardrail Gate (C3). Per spec.md §1,
// guardrail classifier internals are out of scope -- only its
// check → {allowed, redactions, violations} contract is used.
package guardrail

import (
	"context"

	"goa.design/llmgateway/internal/gwerrors"
	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/telemetry"
)

// Violation is one guardrail finding.
type Violation struct {
	Rule    string
	Message string
}

// CheckResult is the external guardrail service's verdict.
type CheckResult struct {
	Allowed     bool
	Redactions  map[int]string // message index -> redacted content
	Violations  []Violation
}

// Checker is the external guardrail service contract (spec.md §4.3).
// Implementations are out of scope; only this interface is consumed.
type Checker interface {
	Check(ctx context.Context, messages []model.Message) (CheckResult, error)
}

// Gate implements C3: only organizations on the "enterprise" plan are
// checked; blocking violations fail the request, non-blocking violations
// are logged and redactions applied.
type Gate struct {
	checker Checker
	logger  telemetry.Logger
}

// New constructs a Gate.
func New(checker Checker, logger telemetry.Logger) *Gate {
	return &Gate{checker: checker, logger: logger}
}

// Apply runs the guardrail check for qualifying principals and returns the
// (possibly redacted) messages, or a gwerrors.Error if the request is
// blocked (spec.md §4.3).
func (g *Gate) Apply(ctx context.Context, org model.Organization, messages []model.Message) ([]model.Message, error) {
	if org.Plan != "enterprise" {
		return messages, nil
	}
	if g.checker == nil {
		return messages, nil
	}

	result, err := g.checker.Check(ctx, messages)
	if err != nil {
		// A checker error does not block the request: it is logged as a
		// warning and the messages pass through unmodified.
		if g.logger != nil {
			g.logger.Warn(ctx, "guardrail check failed, allowing request", "error", err.Error())
		}
		return messages, nil
	}

	for _, v := range result.Violations {
		if g.logger != nil {
			func() {
				defer func() { _ = recover() }()
				g.logger.Info(ctx, "guardrail violation", "rule", v.Rule, "message", v.Message)
			}()
		}
	}

	if !result.Allowed {
		msg := "request blocked by guardrail"
		if len(result.Violations) > 0 {
			msg = result.Violations[0].Message
		}
		return nil, gwerrors.GuardrailViolation(msg)
	}

	if len(result.Redactions) == 0 {
		return messages, nil
	}
	redacted := make([]model.Message, len(messages))
	copy(redacted, messages)
	for idx, content := range result.Redactions {
		if idx < 0 || idx >= len(redacted) {
			continue
		}
		redacted[idx].Parts = []model.Part{model.TextPart{Text: content}}
	}
	return redacted, nil
}
