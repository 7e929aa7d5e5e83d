// Package transport implements the HTTP-level request counter (spec.md
// §4.B) and the usage recorder that flushes aggregated cost rows (§4.C).
//
// Counting happens at the http.RoundTripper layer specifically because a
// single high-level listing call can expand into several paginated HTTP
// calls, and any counter placed above the transport would undercount.
package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/ratelimit"
)

// RedditHost is the only host this counter meters, matching spec.md §6.
const RedditHost = "oauth.reddit.com"

// Labels identify the tenant a batch of requests belongs to, for the
// per-(subreddit, scraper_type) counters spec.md §4.B names.
type Labels struct {
	Subreddit   string
	ScraperType models.ScraperType
}

// CountingTransport wraps an http.RoundTripper, incrementing a counter for
// every request to RedditHost and forwarding response headers to the
// rate-limit oracle. It counts failures and retries too — the caller is
// responsible for retry looping, but every attempt passes back through
// here and is counted.
type CountingTransport struct {
	next    http.RoundTripper
	oracle  *ratelimit.Oracle
	labels  Labels
	onEvent func(count int64)

	mu           sync.Mutex
	cycleCount   int64
	totalCount   int64
}

// NewCountingTransport builds a transport that counts requests destined
// for RedditHost, forwards rate-limit headers to oracle, and calls onEvent
// (if non-nil) once per counted request with the running cycle total.
func NewCountingTransport(next http.RoundTripper, oracle *ratelimit.Oracle, labels Labels, onEvent func(count int64)) *CountingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &CountingTransport{next: next, oracle: oracle, labels: labels, onEvent: onEvent}
}

// RoundTrip implements http.RoundTripper.
func (c *CountingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host != RedditHost {
		return c.next.RoundTrip(req)
	}

	resp, err := c.next.RoundTrip(req)

	c.mu.Lock()
	c.cycleCount++
	c.totalCount++
	cycle := c.cycleCount
	c.mu.Unlock()

	if c.onEvent != nil {
		c.onEvent(cycle)
	}

	if err == nil && resp != nil && c.oracle != nil {
		c.oracle.Observe(resp.Header)
	}

	return resp, err
}

// CycleCount returns the number of requests counted since the last
// ResetCycle call.
func (c *CountingTransport) CycleCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycleCount
}

// TotalCount returns the number of requests counted since construction.
func (c *CountingTransport) TotalCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCount
}

// ResetCycle zeroes the cycle counter and returns its value just before
// reset, for the Usage Recorder's flush loop.
func (c *CountingTransport) ResetCycle() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.cycleCount
	c.cycleCount = 0
	return n
}

// Labels returns the (subreddit, scraper_type) this transport meters.
func (c *CountingTransport) Labels() Labels { return c.labels }

// NewClient builds an *http.Client whose Transport is a CountingTransport,
// with a reasonable default timeout per spec.md §5.
func NewClient(oracle *ratelimit.Oracle, labels Labels) (*http.Client, *CountingTransport) {
	ct := NewCountingTransport(http.DefaultTransport, oracle, labels, nil)
	return &http.Client{Transport: ct, Timeout: 30 * time.Second}, ct
}
