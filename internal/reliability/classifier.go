package reliability

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// StatusCoder is implemented by upstream errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// IsOverloadStatus classifies statuses that signal temporary unavailability.
func IsOverloadStatus(code int) bool {
	return code == http.StatusServiceUnavailable
}

// IsOverload reports whether err is a transient overload signal: an upstream
// service-unavailable status or an "overloaded" indication in the message.
// Context cancellation is never an overload.
func IsOverload(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) && IsOverloadStatus(sc.HTTPStatus()) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "overloaded")
}

// LinearBackoff returns the wait before the given attempt: none before the
// first attempt, then base × attempt.
func LinearBackoff(attempt int, base time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return base * time.Duration(attempt)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
