package llm

import (
	"errors"
	"fmt"
	"time"
)

// DefaultRetryAfter is the hint surfaced when a rate-limited backend does not
// supply its own Retry-After value.
const DefaultRetryAfter = 30 * time.Second

// RateLimitError signals a 429-class rejection from a backend, or a
// pre-flight daily-budget rejection from the credential layer. It is the only
// error class the retry wrapper acts on.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration // zero when the backend gave no hint
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: rate limited: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: rate limited", e.Provider)
}

// Hint returns the retry-after duration, falling back to the default.
func (e *RateLimitError) Hint() time.Duration {
	if e.RetryAfter > 0 {
		return e.RetryAfter
	}
	return DefaultRetryAfter
}

// IsRateLimit reports whether err is (or wraps) a rate-limit error.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// UpstreamError preserves the backend's own error message for diagnostics.
// It is not retried.
type UpstreamError struct {
	Provider string
	Status   string
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Status, e.Body)
}
