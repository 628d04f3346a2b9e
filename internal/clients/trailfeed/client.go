// Package trailfeed downloads trail GeoJSON documents from their upstream
// publishers.
package trailfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxDocumentBytes bounds a single download
const maxDocumentBytes = 64 << 20

// HTTPDoer is the subset of *http.Client used by Client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for non-2xx upstream responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Client fetches documents over HTTP, retrying transient failures with
// exponential backoff
type Client struct {
	httpClient HTTPDoer
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// NewClient creates a client with a per-request timeout
func NewClient(timeout time.Duration, maxRetries uint64) *Client {
	return NewClientWithHTTPDoer(&http.Client{Timeout: timeout}, maxRetries)
}

// NewClientWithHTTPDoer creates a client using a custom HTTP implementation
func NewClientWithHTTPDoer(doer HTTPDoer, maxRetries uint64) *Client {
	return &Client{
		httpClient: doer,
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
}

// WithBackOff replaces the retry policy, mostly for tests
func (c *Client) WithBackOff(fn func() backoff.BackOff) *Client {
	c.newBackOff = fn
	return c
}

// Fetch downloads url. Network errors, 429 and 5xx responses are retried up
// to the configured number of times; other 4xx responses fail immediately.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	operation := func() error {
		data, err := c.get(ctx, url)
		if err != nil {
			return err
		}
		body = data
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	req.Header.Set("User-Agent", "rabbitmiles-trail-refresh/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > maxDocumentBytes {
		return nil, backoff.Permanent(fmt.Errorf("document exceeds %d bytes", maxDocumentBytes))
	}
	return data, nil
}
