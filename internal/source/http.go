package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ---------------------------------------------------------------------------
// Shared HTTP plumbing for the REST source adapters
// ---------------------------------------------------------------------------

const userAgent = "fetchd/1.0"

// Client wraps an http.Client with a per-source rate limiter and the
// status-code classification every adapter needs.
type Client struct {
	name    string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a rate-limited HTTP client for a source adapter.
// rps <= 0 disables local rate limiting.
func NewClient(name string, timeout time.Duration, rps float64) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		name:    name,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// GetJSON fetches url and decodes the JSON body into out.
// Non-200 statuses and body failures come back as classified *Error values.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return NewError(c.name, KindTimeout, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return NewError(c.name, KindUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return NewError(c.name, KindTimeout, err)
		}
		return NewError(c.name, KindUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewError(c.name, KindRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return NewError(c.name, KindUnavailable, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return NewError(c.name, KindUnavailable, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewError(c.name, KindMalformed, err)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
