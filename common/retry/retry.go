// Package retry provides exponential-backoff retry logic for transient errors.
//
// Usage:
//
//	err := retry.Do(ctx, retry.Config{MaxAttempts: 3, Cooldown: 2 * time.Second}, func() error {
//	    return client.Call()
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts (including the first).
	// Zero or negative values are treated as 1 (no retries).
	MaxAttempts int
	// Cooldown is the fixed base wait added before every re-attempt.
	Cooldown time.Duration
	// Backoff is the exponential factor: the wait before re-attempt i
	// (zero-based) is Cooldown + Backoff^i seconds. Values below 1 are
	// replaced with the default.
	Backoff float64
	// MaxDelay caps the per-attempt wait so a sustained outage cannot grow
	// the backoff into multi-minute stalls.
	MaxDelay time.Duration
	// ShouldRetry is an optional predicate that lets callers classify errors
	// as retryable.  When nil, all non-nil errors are retried.
	ShouldRetry func(err error) bool
}

// DefaultConfig provides sensible defaults for short-lived network calls.
var DefaultConfig = Config{
	MaxAttempts: 3,
	Cooldown:    2 * time.Second,
	Backoff:     1.5,
	MaxDelay:    60 * time.Second,
}

// Delay returns the wait applied after failed attempt i (zero-based):
// Cooldown + Backoff^i seconds, capped at MaxDelay.
func (c Config) Delay(attempt int) time.Duration {
	backoff := c.Backoff
	if backoff < 1 {
		backoff = DefaultConfig.Backoff
	}
	maxDelay := c.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultConfig.MaxDelay
	}

	d := c.Cooldown + time.Duration(math.Pow(backoff, float64(attempt))*float64(time.Second))
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// Do calls fn up to cfg.MaxAttempts times, waiting cfg.Delay(i) between
// attempts.  It stops early when ctx is cancelled or fn returns nil.
// No wait is applied after the final attempt.  The error from the last
// attempt is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(err error) bool { return true }
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !shouldRetry(lastErr) {
			return lastErr
		}

		if attempt < cfg.MaxAttempts-1 {
			delay := cfg.Delay(attempt)
			slog.Debug("retry: attempt failed, retrying",
				"attempt", attempt+1, "max", cfg.MaxAttempts,
				"err", lastErr, "delay", delay)

			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return lastErr
}
