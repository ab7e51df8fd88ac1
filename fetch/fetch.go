// Package fetch provides the reference-resource fetch collaborator.
//
// The orchestration core pulls profile documents and supporting
// resources (structure definitions, code systems, value sets) over
// plain HTTP GET. Failures degrade: a transport error or non-200
// status yields empty text, which upstream treats as "nothing to add".
package fetch

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gofhir/orchestra/pkg/logger"
)

// DefaultTimeout for fetch requests.
const DefaultTimeout = 30 * time.Second

// maxBodySize caps a fetched document at 50MB.
const maxBodySize = 50 * 1024 * 1024

// Client fetches text resources by URL.
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger

	fetches  atomic.Uint64
	failures atomic.Uint64
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the logger used for degraded fetches.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a fetch client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchText retrieves url via GET and returns the body as text.
// Any failure (bad URL, transport error, non-200 status, unreadable
// body) is logged and degrades to empty text; FetchText never returns
// an error.
func (c *Client) FetchText(ctx context.Context, url string) string {
	c.fetches.Add(1)

	if url == "" {
		c.failures.Add(1)
		c.logger.Warn("fetch skipped: empty URL")
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		c.failures.Add(1)
		c.logger.Warn("fetch %s: invalid request: %v", url, err)
		return ""
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.failures.Add(1)
		c.logger.Warn("fetch %s: %v", url, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.failures.Add(1)
		c.logger.Warn("fetch %s: status %d", url, resp.StatusCode)
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.failures.Add(1)
		c.logger.Warn("fetch %s: read body: %v", url, err)
		return ""
	}

	return string(body)
}

// Stats holds fetch counters.
type Stats struct {
	Fetches  uint64
	Failures uint64
}

// Stats returns the client's fetch counters.
func (c *Client) Stats() Stats {
	return Stats{
		Fetches:  c.fetches.Load(),
		Failures: c.failures.Load(),
	}
}
