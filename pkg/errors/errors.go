// Package errors defines the unified error taxonomy for the gateway core.
// Provider failures are classified into kinds at the client boundary so
// the router can branch on classification instead of error identity.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an error for control-flow decisions.
type Kind string

const (
	// KindRateLimited means a specific provider is throttling. Non-fatal,
	// triggers fallback to the next binding.
	KindRateLimited Kind = "rate_limited"

	// KindTransient covers any other recoverable provider failure.
	// Non-fatal, triggers fallback.
	KindTransient Kind = "transient"

	// KindFatal covers provider failures that retrying elsewhere cannot
	// fix (malformed request, auth). The router still moves to the next
	// binding; the failure shows up in the aggregate on exhaustion.
	KindFatal Kind = "fatal"

	// KindServiceUnavailable means every binding in a fallback chain
	// failed. Fatal to the caller; carries the aggregated causes.
	KindServiceUnavailable Kind = "service_unavailable"

	// KindAdmissionRejected means a quota window rejected the request.
	KindAdmissionRejected Kind = "admission_rejected"

	// KindTemporarilyBlocked is a specialization of admission rejection
	// after repeated violations.
	KindTemporarilyBlocked Kind = "temporarily_blocked"
)

// Error is the standardized error type crossing component boundaries.
type Error struct {
	Kind       Kind
	Provider   string
	Model      string
	Message    string
	RetryAfter time.Duration
	Causes     []error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s]", e.Kind))
	if e.Provider != "" {
		sb.WriteString(" " + e.Provider)
		if e.Model != "" {
			sb.WriteString("/" + e.Model)
		}
		sb.WriteString(":")
	}
	sb.WriteString(" " + e.Message)
	if len(e.Causes) > 0 {
		parts := make([]string, len(e.Causes))
		for i, c := range e.Causes {
			parts[i] = c.Error()
		}
		sb.WriteString(" (" + strings.Join(parts, "; ") + ")")
	}
	return sb.String()
}

// Unwrap exposes the aggregated causes to errors.Is/As.
func (e *Error) Unwrap() []error {
	return e.Causes
}

// Is matches on Kind so callers can use errors.Is with kind sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// Retryable reports whether the next binding in a chain should be tried.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTransient:
		return true
	default:
		return false
	}
}

// NewRateLimited creates a provider throttling error.
func NewRateLimited(provider, model, message string) *Error {
	return &Error{Kind: KindRateLimited, Provider: provider, Model: model, Message: message}
}

// NewTransient creates a recoverable provider error.
func NewTransient(provider, model, message string) *Error {
	return &Error{Kind: KindTransient, Provider: provider, Model: model, Message: message}
}

// NewFatal creates a non-recoverable provider error.
func NewFatal(provider, model, message string) *Error {
	return &Error{Kind: KindFatal, Provider: provider, Model: model, Message: message}
}

// NewServiceUnavailable creates the aggregate chain-exhausted error.
// Causes are preserved in attempt order.
func NewServiceUnavailable(message string, causes ...error) *Error {
	return &Error{Kind: KindServiceUnavailable, Message: message, Causes: causes}
}

// NewAdmissionRejected creates a quota rejection with an optional
// retry-after hint.
func NewAdmissionRejected(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindAdmissionRejected, Message: message, RetryAfter: retryAfter}
}

// NewTemporarilyBlocked creates an escalated rejection after repeated
// violations.
func NewTemporarilyBlocked(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindTemporarilyBlocked, Message: message, RetryAfter: retryAfter}
}

// KindOf returns the classification of err, or KindFatal for errors
// that did not originate from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// IsRejection reports whether err is an admission-control rejection of
// either kind.
func IsRejection(err error) bool {
	switch KindOf(err) {
	case KindAdmissionRejected, KindTemporarilyBlocked:
		return true
	}
	return false
}
