package llm

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures rate-limit retry behavior for provider calls.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first (default 3)
	BaseDelay   time.Duration // first backoff delay (default 1s)
}

// DefaultRetryConfig returns the standard 3-attempt exponential backoff.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// RetryProvider wraps a Provider so that rate-limit signals are retried with
// exponential backoff (delay = base * 2^(attempt-1)). Any other failure
// propagates immediately: retrying a missing key or a malformed request
// cannot succeed.
type RetryProvider struct {
	inner  Provider
	config *RetryConfig
}

// WithRetry wraps a provider with rate-limit retry logic.
func WithRetry(inner Provider, config *RetryConfig) *RetryProvider {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	return &RetryProvider{inner: inner, config: config}
}

// Name returns the underlying provider name.
func (r *RetryProvider) Name() string { return r.inner.Name() }

// GenerateEmbedding retries rate-limited embedding calls.
func (r *RetryProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.inner.GenerateEmbedding(ctx, text)
		return err
	})
	return out, err
}

// GenerateResponse retries rate-limited chat calls.
func (r *RetryProvider) GenerateResponse(ctx context.Context, systemPrompt, userMessage string, history []Message, opts *RequestOptions) (*Response, error) {
	var out *Response
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.inner.GenerateResponse(ctx, systemPrompt, userMessage, history, opts)
		return err
	})
	return out, err
}

// GenerateTags retries rate-limited tag calls.
func (r *RetryProvider) GenerateTags(ctx context.Context, text string) ([]string, error) {
	var out []string
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.inner.GenerateTags(ctx, text)
		return err
	})
	return out, err
}

func (r *RetryProvider) do(ctx context.Context, call func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		err := call(ctx)
		if err == nil {
			return nil
		}
		if !IsRateLimit(err) {
			return err
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("rate limit persisted after %d attempts: %w", r.config.MaxAttempts, lastErr)
}

// backoff returns the delay before the given attempt (attempt >= 2):
// base, 2*base, 4*base, ...
func (r *RetryProvider) backoff(attempt int) time.Duration {
	delay := r.config.BaseDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
