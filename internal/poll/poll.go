// Package poll waits for an asynchronous condition with a deadline. It backs
// operations that kick off background work and want a bounded wait for the
// result without blocking forever.
package poll

import (
	"context"
	"time"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultInterval = 2 * time.Second
)

// Fn reports whether the awaited condition holds. A non-nil error aborts the
// wait immediately.
type Fn func(ctx context.Context) (done bool, err error)

// Wait calls fn every interval until it reports done, errors, the timeout
// elapses or ctx is canceled. Hitting the timeout is not an error: the work
// may still complete later, so Wait returns (false, nil) and lets the caller
// decide. Context cancellation does return the context error.
func Wait(ctx context.Context, timeout, interval time.Duration, fn Fn) (bool, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// First check happens immediately, not after one interval.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := fn(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}

		select {
		case <-ctx.Done():
			if parentErr := contextCause(ctx); parentErr != nil {
				return false, parentErr
			}
			return false, nil
		case <-ticker.C:
		}
	}
}

// contextCause distinguishes our own deadline from an outside cancellation.
func contextCause(ctx context.Context) error {
	if ctx.Err() == context.Canceled {
		return context.Canceled
	}
	return nil
}
