// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// Client wraps an http.Client with a User-Agent, a rate limiter and retry
// on transient statuses. The zero Limiter means unlimited.
type Client struct {
	HTTP       *http.Client
	UserAgent  string
	Limiter    *rate.Limiter
	MaxRetries int
}

// NewClient returns a Client limited to rps requests per second. A
// non-positive rps disables limiting.
func NewClient(hc *http.Client, userAgent string, rps float64) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	c := &Client{HTTP: hc, UserAgent: userAgent}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return c
}

// Do waits for the limiter, sets the User-Agent when the request has none,
// and sends the request with retry.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	return DoWithRetry(ctx, c.HTTP, req, c.MaxRetries)
}

// Get issues a GET request for url through Do.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.Do(ctx, req)
}
