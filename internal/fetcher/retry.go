package fetcher

import (
	"context"
	"errors"
	"time"
)

// Policy is a reusable retry specification: how many attempts in total,
// how long to wait between them, and which failures are worth retrying.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	IsRetryable func(error) bool
}

// DefaultPolicy retries transient and rate-limit failures up to 3 attempts
// with exponential backoff starting at 2s, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
		IsRetryable: retryableFetchError,
	}
}

func retryableFetchError(err error) bool {
	var transient *TransientError
	var rateLimit *RateLimitError
	return errors.As(err, &transient) || errors.As(err, &rateLimit)
}

// Delay computes the wait before the next attempt. The exponential backoff
// doubles per attempt from BaseDelay; a Retry-After signal raises the delay
// when larger, still capped at MaxDelay.
func (p Policy) Delay(attempt int, err error) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	var rateLimit *RateLimitError
	if errors.As(err, &rateLimit) && rateLimit.RetryAfter > delay {
		delay = rateLimit.RetryAfter
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs op until it succeeds, exhausts MaxAttempts, or hits a
// non-retryable error. The last error is returned as-is so callers can
// inspect the taxonomy.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if p.IsRetryable == nil || !p.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		select {
		case <-time.After(p.Delay(attempt, lastErr)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
