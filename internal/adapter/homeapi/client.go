// Package homeapi is the subscriber-side HTTP client for the HomeMonitor
// REST API. Calls run behind a circuit breaker and carry their own timeout,
// independent of the websocket connection.
package homeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Strob0t/HomeMonitor/internal/domain/motion"
	"github.com/Strob0t/HomeMonitor/internal/logger"
	"github.com/Strob0t/HomeMonitor/internal/resilience"
)

// DefaultTimeout bounds a single pull.
const DefaultTimeout = 30 * time.Second

const (
	statsPath       = "/api/dashboard/stats"
	maxBodyBytes    = 64 << 10
	maxErrorSnippet = 200
)

// PullError reports a failed pull. Status is 0 when no response arrived.
type PullError struct {
	URL    string
	Status int
	Err    error
}

func (e *PullError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("pull %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("pull %s: %v", e.URL, e.Err)
}

func (e *PullError) Unwrap() error { return e.Err }

// Client pulls aggregate counters from the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithBreaker attaches a circuit breaker to all outgoing calls.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the API at baseURL (e.g. http://host:5000).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// DashboardStats fetches the aggregate counters. Every failure, including
// an open breaker, is returned as *PullError.
func (c *Client) DashboardStats(ctx context.Context) (motion.DashboardStats, error) {
	var stats motion.DashboardStats
	url := c.baseURL + statsPath

	call := func(ctx context.Context) error {
		return c.getJSON(ctx, url, &stats)
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		var pe *PullError
		if errors.As(err, &pe) {
			return motion.DashboardStats{}, pe
		}
		return motion.DashboardStats{}, &PullError{URL: url, Err: err}
	}
	return stats, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return &PullError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &PullError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &PullError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > maxErrorSnippet {
			snippet = snippet[:maxErrorSnippet]
		}
		return &PullError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", strings.TrimSpace(snippet))}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &PullError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
