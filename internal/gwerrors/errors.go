// Package gwerrors implements the tagged error sum described in spec.md
// §9's re-architecture note, replacing exception-based control flow with an
// explicit Kind plus a single HTTP boundary conversion.
package gwerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse classification of a gateway-level failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindQuota      Kind = "quota"
	KindFilter     Kind = "filter"
	KindTransient  Kind = "transient"
	KindClientErr  Kind = "client_err"
	KindInternal   Kind = "internal"
)

// Code is the stable machine-readable error code surfaced to clients
// (spec.md §6, error taxonomy).
type Code string

const (
	CodeInvalidJSON        Code = "invalid_json"
	CodeInvalidParameters  Code = "invalid_parameters"
	CodeInvalidRequest     Code = "invalid_request"
	CodeCapabilityMismatch Code = "capability_mismatch"
	CodeUnauthenticated    Code = "unauthenticated"
	CodeUsageLimit         Code = "usage_limit_exceeded"
	CodeInsufficientCredit Code = "insufficient_credits"
	CodeDevPlanExhausted   Code = "dev_plan_exhausted"
	CodeForbidden          Code = "forbidden"
	CodeProjectGone        Code = "project_gone"
	CodeGuardrailViolation Code = "guardrail_violation"
	CodeAllProvidersFailed Code = "all_providers_failed"
	CodeFetchFailed        Code = "fetch_failed"
	CodeUpstreamTimeout    Code = "upstream_timeout"
	CodeCanceled           Code = "canceled"
	CodeInternal           Code = "internal"
	CodeBufferOverflow     Code = "buffer_overflow"
)

// Error is the single error type that crosses component boundaries within
// the gateway core. It is converted to an HTTP response exactly once, at
// the httpapi boundary.
type Error struct {
	Kind       Kind
	HTTPStatus int
	Code       Code
	Message    string
	Retryable  bool
	cause      error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error. httpStatus is the status surfaced verbatim at
// the transport boundary.
func New(kind Kind, httpStatus int, code Code, message string, cause error) *Error {
	return &Error{Kind: kind, HTTPStatus: httpStatus, Code: code, Message: message, cause: cause}
}

// As is a small convenience wrapper over errors.As for callers that only
// need to branch on Kind/Code.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Constructors for the common taxonomy entries in spec.md §6-7.

func InvalidJSON(cause error) *Error {
	return New(KindValidation, http.StatusBadRequest, CodeInvalidJSON, "request body is not valid JSON", cause)
}

func InvalidParameters(msg string) *Error {
	return New(KindValidation, http.StatusBadRequest, CodeInvalidParameters, msg, nil)
}

func CapabilityMismatch(missingCapability string) *Error {
	return New(KindValidation, http.StatusBadRequest, CodeCapabilityMismatch,
		fmt.Sprintf("no eligible provider supports required capability %q", missingCapability), nil)
}

func Unauthenticated(msg string) *Error {
	return New(KindAuth, http.StatusUnauthorized, CodeUnauthenticated, msg, nil)
}

func UsageLimitExceeded() *Error {
	return New(KindAuth, http.StatusUnauthorized, CodeUsageLimit, "usage limit exceeded", nil)
}

func ProjectGone() *Error {
	return New(KindAuth, http.StatusGone, CodeProjectGone, "project has been archived", nil)
}

func Forbidden(msg string) *Error {
	return New(KindAuth, http.StatusForbidden, CodeForbidden, msg, nil)
}

func InsufficientCredits(msg string) *Error {
	return New(KindQuota, http.StatusPaymentRequired, CodeInsufficientCredit, msg, nil)
}

func GuardrailViolation(msg string) *Error {
	return New(KindFilter, http.StatusBadRequest, CodeGuardrailViolation, msg, nil)
}

func AllProvidersFailed(cause error) *Error {
	return New(KindTransient, http.StatusBadGateway, CodeAllProvidersFailed, "all candidate providers failed", cause)
}

func FetchFailed(cause error) *Error {
	return New(KindTransient, http.StatusBadGateway, CodeFetchFailed, "upstream request failed", cause)
}

func UpstreamTimeout(cause error) *Error {
	return New(KindTransient, http.StatusGatewayTimeout, CodeUpstreamTimeout, "upstream request timed out", cause)
}

func Canceled() *Error {
	return New(KindTransient, http.StatusBadRequest, CodeCanceled, "request canceled by client", nil)
}

func Internal(cause error) *Error {
	return New(KindInternal, http.StatusInternalServerError, CodeInternal, "internal error", cause)
}

// BufferOverflow reports that a streaming response exceeded MAX_BUFFER_SIZE
// (spec.md §4.9) while being reassembled, and the stream was aborted.
func BufferOverflow(limit int64) *Error {
	return New(KindClientErr, http.StatusRequestEntityTooLarge, CodeBufferOverflow,
		fmt.Sprintf("streaming response exceeded buffer limit of %d bytes", limit), nil)
}

// ClientError wraps an upstream 4xx response that is returned to the
// caller verbatim (spec.md §7: "Surfacing policy preserves upstream's
// original 4xx body when classified as client_error").
func ClientError(httpStatus int, body string) *Error {
	return New(KindClientErr, httpStatus, CodeInvalidRequest, body, nil)
}
