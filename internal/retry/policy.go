// Package retry provides the one retry policy shared by the fetch and delivery paths.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy retries an operation with exponential backoff.
//
// MaxRetries is the number of retries after the first attempt, so a policy
// with MaxRetries 3 calls the operation at most 4 times. The wait before
// retry n (0-based) is BaseDelay*2^n, capped at MaxDelay.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Retryable decides whether an error is worth another attempt.
	// A nil predicate retries every error.
	Retryable func(error) bool
	Logger    *slog.Logger
	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Backoff returns the wait before retry attempt (0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	wait := p.BaseDelay
	for i := 0; i < attempt; i++ {
		wait *= 2
		if p.MaxDelay > 0 && wait >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && wait > p.MaxDelay {
		return p.MaxDelay
	}
	return wait
}

// Do runs fn until it succeeds, returns a non-retryable error, the retries
// are exhausted, or ctx is done. It returns the last error and the number of
// attempts made.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		attempts++
		err := fn(ctx)
		if err == nil {
			return attempts, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return attempts, lastErr
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return attempts, lastErr
		}
		if attempt == p.MaxRetries {
			break
		}

		wait := p.Backoff(attempt)
		if p.Logger != nil {
			p.Logger.WarnContext(ctx, "retrying call",
				"attempt", attempt+1,
				"max_retries", p.MaxRetries,
				"backoff_ms", wait.Milliseconds(),
				"error", err)
		}
		if err := p.wait(ctx, wait); err != nil {
			return attempts, lastErr
		}
	}
	return attempts, lastErr
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
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

// WithSleep returns a copy of p that waits through fn instead of a timer.
func (p Policy) WithSleep(fn func(ctx context.Context, d time.Duration) error) Policy {
	p.sleep = fn
	return p
}
