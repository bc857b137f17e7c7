// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies a back-end failure. The set is closed: adapters
// and the orchestrator agree on these kinds, and the health manager's
// state transitions are keyed on them.
type ErrorKind string

const (
	// ErrInvalidInput indicates malformed request parameters (4xx-class).
	// Never retried.
	ErrInvalidInput ErrorKind = "INVALID_INPUT"

	// ErrAuthentication indicates missing or invalid credentials.
	// Disables the provider until a manual reset.
	ErrAuthentication ErrorKind = "AUTHENTICATION_ERROR"

	// ErrRateLimit indicates a per-window quota was exceeded. Sets a
	// cooldown from the server-provided reset time, or one hour.
	ErrRateLimit ErrorKind = "RATE_LIMIT"

	// ErrCreditExhausted indicates the account balance is spent.
	ErrCreditExhausted ErrorKind = "CREDIT_EXHAUSTED"

	// ErrQuotaExceeded indicates a hard account quota was hit.
	ErrQuotaExceeded ErrorKind = "QUOTA_EXCEEDED"

	// ErrProvider indicates a back-end internal failure (5xx-class).
	// Counts toward the circuit breaker.
	ErrProvider ErrorKind = "PROVIDER_ERROR"

	// ErrAPI is the catch-all for unclassified adapter errors.
	ErrAPI ErrorKind = "API_ERROR"

	// ErrTimeout indicates the per-attempt deadline was hit. Treated
	// as a transient provider error for health purposes.
	ErrTimeout ErrorKind = "TIMEOUT"
)

// SearchError is the uniform error shape produced by adapters and by
// the orchestrator's own dispatch machinery.
type SearchError struct {
	Provider string
	Kind     ErrorKind
	Message  string
	Details  string

	// ResetAt is the server-provided rate-limit reset time, if any.
	ResetAt *time.Time

	cause error
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *SearchError) Unwrap() error { return e.cause }

// Retryable reports whether an attempt against the same provider may
// be retried. Rate limits, invalid input and auth failures surface
// immediately to the fallback loop instead.
func (e *SearchError) Retryable() bool {
	switch e.Kind {
	case ErrRateLimit, ErrInvalidInput, ErrAuthentication:
		return false
	}
	return true
}

// NewSearchError builds a SearchError with the given classification.
func NewSearchError(provider string, kind ErrorKind, message string) *SearchError {
	return &SearchError{Provider: provider, Kind: kind, Message: message}
}

// WrapSearchError classifies an arbitrary adapter error, preserving an
// existing SearchError and mapping context deadline expiry to TIMEOUT.
func WrapSearchError(provider string, err error) *SearchError {
	var se *SearchError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &SearchError{Provider: provider, Kind: ErrTimeout, Message: "request timed out", cause: err}
	}
	return &SearchError{Provider: provider, Kind: ErrAPI, Message: err.Error(), cause: err}
}

// KindOf extracts the error kind, defaulting to API_ERROR for errors
// that did not come from an adapter.
func KindOf(err error) ErrorKind {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrAPI
}

// ClassifyStatus maps an HTTP response from a back-end into the error
// taxonomy. retryAfter is the raw Retry-After header value; both the
// delta-seconds and HTTP-date forms are honored.
func ClassifyStatus(provider string, status int, body, retryAfter string, clock Clock) *SearchError {
	se := &SearchError{Provider: provider, Message: fmt.Sprintf("unexpected status %d", status), Details: body}

	switch {
	case status == http.StatusTooManyRequests:
		se.Kind = ErrRateLimit
		if t, ok := parseRetryAfter(retryAfter, clock); ok {
			se.ResetAt = &t
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		se.Kind = ErrAuthentication
	case status == http.StatusPaymentRequired:
		se.Kind = ErrCreditExhausted
	case status >= 400 && status < 500:
		se.Kind = ErrInvalidInput
	case status >= 500:
		se.Kind = ErrProvider
	default:
		se.Kind = ErrAPI
	}

	return se
}

// parseRetryAfter parses a Retry-After header value.
func parseRetryAfter(v string, clock Clock) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return clock.Now().Add(time.Duration(secs) * time.Second), true
	}
	if t, err := http.ParseTime(v); err == nil {
		return t, true
	}
	return time.Time{}, false
}
