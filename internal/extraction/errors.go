package extraction

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed or oversized request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitError reports that the client exhausted its window.
type RateLimitError struct {
	ClientKey string
}

func (e *RateLimitError) Error() string {
	return "too many requests, please try again later"
}

// TransientUpstreamError is an overload failure that persisted through
// every retry.
type TransientUpstreamError struct {
	Attempts int
	Err      error
}

func (e *TransientUpstreamError) Error() string {
	return fmt.Sprintf("completion overloaded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientUpstreamError) Unwrap() error { return e.Err }

// PermanentUpstreamError is a completion failure that is not retried.
type PermanentUpstreamError struct {
	Err error
}

func (e *PermanentUpstreamError) Error() string {
	return fmt.Sprintf("completion failed: %v", e.Err)
}

func (e *PermanentUpstreamError) Unwrap() error { return e.Err }

// MalformedPayloadError reports a structured payload that could not be
// decoded. Chat turns degrade instead of surfacing it.
type MalformedPayloadError struct {
	Reason string
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed payload: %s: %v", e.Reason, e.Err)
	}
	return "malformed payload: " + e.Reason
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// IsClientError reports whether err should be answered with the error's
// own message rather than a generic failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	var re *RateLimitError
	return errors.As(err, &ve) || errors.As(err, &re)
}
