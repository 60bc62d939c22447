package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when the retry budget is used up on a
	// retryable failure.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrTerminalStatus is returned for HTTP statuses that are never retried.
	ErrTerminalStatus = errors.New("terminal http status")

	// ErrContextCancelled is returned when the context ends while waiting
	// between attempts.
	ErrContextCancelled = errors.New("context cancelled")
)

// TransportError describes a failed logical fetch: a terminal status, an
// exhausted retry budget or an aborted wait. It is scoped to the single
// request that produced it.
type TransportError struct {
	// URL is the target that failed.
	URL string

	// StatusCode is the last HTTP status seen, 0 for network failures.
	StatusCode int

	// Attempts is how many requests were sent.
	Attempts int

	// Class is the classification of the last failure.
	Class ErrorClass

	// Err is one of the package sentinels.
	Err error

	// Cause is the underlying network or context error, if any.
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("fetch %s: %v (status %d, %d attempts)", e.URL, e.Err, e.StatusCode, e.Attempts)
	} else if e.Attempts > 0 {
		msg = fmt.Sprintf("fetch %s: %v (%d attempts)", e.URL, e.Err, e.Attempts)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *TransportError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// shouldRetry determines if a failure class is worth another attempt.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
