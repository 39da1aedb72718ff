package cellar

import (
	"net/http"
	"sync"
	"time"
)

// HTTPClient abstracts the HTTP transport so tests can inject fakes and
// callers can share a rate-limited client across the SPARQL and fetch
// phases.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RateLimitedHTTPClient enforces a minimum interval between requests to the
// Publications Office. Safe for concurrent use.
type RateLimitedHTTPClient struct {
	client      HTTPClient
	minInterval time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// NewRateLimitedHTTPClient wraps client with a minimum interval between
// requests. A nil client gets a default with a 60 second timeout.
func NewRateLimitedHTTPClient(client HTTPClient, minInterval time.Duration) *RateLimitedHTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &RateLimitedHTTPClient{client: client, minInterval: minInterval}
}

// Do waits out the remainder of the interval since the previous request,
// then delegates to the wrapped client.
func (c *RateLimitedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < c.minInterval {
		time.Sleep(c.minInterval - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	return c.client.Do(req)
}
