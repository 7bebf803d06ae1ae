package wapi

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig controls exponential backoff retry for transient API failures.
type RetryConfig struct {
	MaxRetries int           // max retry attempts (default 3, 0 = no retry)
	BaseDelay  time.Duration // initial backoff delay (default 2s)
	MaxDelay   time.Duration // maximum backoff delay (default 30s)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// retryable marks errors worth retrying. Conflict and not-found responses
// carry meaning for the orchestrator and must surface immediately.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case isPermanent(err):
		return false
	}
	return true
}

// executeWithRetry runs fn, retrying transient errors with exponential
// backoff + jitter. Returns the first successful result, or the last error
// once retries are exhausted or ctx is cancelled.
func executeWithRetry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err = fn()
		if err == nil || !retryable(err) {
			return result, err
		}

		if attempt < cfg.MaxRetries {
			delay := backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return result, err
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt) // base * 2^attempt
	if delay > max {
		delay = max
	}

	// Jitter: ±25% of delay
	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int63n(int64(quarter*2))) - quarter
		delay += jitter
	}

	return delay
}
