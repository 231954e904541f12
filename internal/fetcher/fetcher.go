package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"FiscalScanner/internal/config"
	"FiscalScanner/internal/domain"
	"FiscalScanner/internal/ports"
)

// Client retrieves publisher content with retry/backoff, identity rotation
// and rate-limit detection. Network I/O only; no persistence.
type Client struct {
	http       *http.Client
	policy     Policy
	identities []string
	next       atomic.Uint32
	maxBytes   int64
	logger     *slog.Logger
}

var _ ports.ContentSource = (*Client)(nil)

// New builds a client from configuration; nil httpClient gets a default
// with the configured timeout.
func New(cfg config.FetcherConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	policy := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BackoffBaseSeconds > 0 {
		policy.BaseDelay = time.Duration(cfg.BackoffBaseSeconds) * time.Second
	}
	if cfg.BackoffCapSeconds > 0 {
		policy.MaxDelay = time.Duration(cfg.BackoffCapSeconds) * time.Second
	}

	identities := cfg.Identities
	if len(identities) == 0 {
		identities = []string{"FiscalScanner/1.0"}
	}

	maxBytes := int64(cfg.MaxDownloadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}

	return &Client{
		http:       httpClient,
		policy:     policy,
		identities: identities,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

// Fetch retrieves a page, retrying transient and rate-limit failures per
// the configured policy.
func (c *Client) Fetch(ctx context.Context, pageURL string) (domain.RawContent, error) {
	if _, err := url.ParseRequestURI(pageURL); err != nil {
		return domain.RawContent{}, &FatalError{URL: pageURL, Reason: fmt.Sprintf("malformed url: %v", err)}
	}

	var content domain.RawContent
	err := c.policy.Do(ctx, func() error {
		fetched, fetchErr := c.fetchOnce(ctx, pageURL, c.maxBytes)
		if fetchErr != nil {
			c.debug("fetch attempt failed", "url", pageURL, "error", fetchErr)
			return fetchErr
		}
		content = fetched
		return nil
	})
	if err != nil {
		return domain.RawContent{}, err
	}

	return content, nil
}

// DownloadFile streams the response, aborting as soon as the accumulated
// size exceeds maxSizeMB. Oversized payloads are a FatalError, not retried.
func (c *Client) DownloadFile(ctx context.Context, fileURL string, maxSizeMB int) ([]byte, error) {
	limit := int64(maxSizeMB) << 20
	if limit <= 0 {
		limit = c.maxBytes
	}

	var body []byte
	err := c.policy.Do(ctx, func() error {
		content, fetchErr := c.fetchOnce(ctx, fileURL, limit)
		if fetchErr != nil {
			return fetchErr
		}
		body = content.Body
		return nil
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}

func (c *Client) fetchOnce(ctx context.Context, pageURL string, limit int64) (domain.RawContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return domain.RawContent{}, &FatalError{URL: pageURL, Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("User-Agent", c.nextIdentity())

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.RawContent{}, &TransientError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.RawContent{}, &RateLimitError{URL: pageURL, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= http.StatusInternalServerError:
		return domain.RawContent{}, &TransientError{URL: pageURL, Status: resp.StatusCode}
	case resp.StatusCode >= http.StatusBadRequest:
		return domain.RawContent{}, &FatalError{URL: pageURL, Reason: fmt.Sprintf("status %s", resp.Status)}
	}

	body, err := readBounded(resp.Body, limit)
	if err != nil {
		if err == errTooLarge {
			return domain.RawContent{}, &FatalError{URL: pageURL, Reason: fmt.Sprintf("payload exceeds %d bytes", limit)}
		}
		return domain.RawContent{}, &TransientError{URL: pageURL, Err: err}
	}

	return domain.RawContent{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

var errTooLarge = fmt.Errorf("payload too large")

// readBounded accumulates the stream incrementally and stops the transfer
// the moment the limit is crossed, instead of buffering the whole response.
func readBounded(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 32<<10)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if int64(buf.Len())+int64(n) > limit {
				return nil, errTooLarge
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *Client) nextIdentity() string {
	idx := c.next.Add(1)
	return c.identities[int(idx)%len(c.identities)]
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
