package client

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrAuth is returned when no access token could be obtained.
	// It is always permanent.
	ErrAuth = errors.New("authentication failed")
)

// ErrorKind classifies a failed attempt for retry decisions.
type ErrorKind string

const (
	// KindTransient covers network failures, timeouts and 5xx responses.
	KindTransient ErrorKind = "transient"

	// KindRateLimited is a 429 response, possibly carrying a Retry-After hint.
	KindRateLimited ErrorKind = "rate_limited"

	// KindPermanent covers other 4xx responses, auth failures and bad payloads.
	KindPermanent ErrorKind = "permanent"
)

// APIError is a classified failure of a single Web API attempt.
type APIError struct {
	StatusCode int
	Kind       ErrorKind
	Endpoint   string
	Message    string

	// RetryAfter is the server's hint on a 429. Zero means absent.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	prefix := fmt.Sprintf("spotify %s error", e.Kind)
	if e.StatusCode > 0 {
		prefix = fmt.Sprintf("%s (status %d)", prefix, e.StatusCode)
	}
	if e.Endpoint != "" {
		prefix = fmt.Sprintf("%s on %s", prefix, e.Endpoint)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is returned by Retrier.Do when every allowed attempt
// failed with a retryable error.
type RetryExhaustedError struct {
	// Attempts is the number of attempts made, including the first.
	Attempts int

	// Kind is the classification of the last failure.
	Kind ErrorKind

	// Cause is the last failure.
	Cause error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts (%s): %v", ErrRetryExhausted, e.Attempts, e.Kind, e.Cause)
}

// Unwrap exposes both ErrRetryExhausted and the last cause.
func (e *RetryExhaustedError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Cause}
}

// KindOf classifies any error. Auth failures are permanent regardless of
// what they wrap; network errors are transient; unknown errors are permanent.
// Returns "" for a nil error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrAuth) {
		return KindPermanent
	}

	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Kind
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindPermanent
}

// RetryAfterOf returns the Retry-After hint carried by err, or zero.
func RetryAfterOf(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	return 0
}

// shouldRetry reports whether an error kind is worth another attempt.
func shouldRetry(kind ErrorKind) bool {
	switch kind {
	case KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}
