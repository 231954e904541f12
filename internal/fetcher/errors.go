package fetcher

import (
	"fmt"
	"time"
)

// TransientError covers timeouts, connection failures and 5xx responses.
// The retry policy treats it as retryable.
type TransientError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transient fetch failure for %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("transient fetch failure for %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitError is raised on HTTP 429. RetryAfter carries the server's
// signaled delay, zero when the header was absent or unparseable.
type RateLimitError struct {
	URL        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s (retry after %s)", e.URL, e.RetryAfter)
}

// FatalError aborts the fetch without retrying: malformed URLs, client
// errors other than 429, oversized payloads.
type FatalError struct {
	URL    string
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal fetch failure for %s: %s", e.URL, e.Reason)
}
