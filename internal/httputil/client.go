// Package httputil builds the HTTP clients the ingest layer shares.
package httputil

import (
	"net/http"
	"time"
)

// DefaultTimeout suits the feed's GraphQL endpoint. Sitemap downloads run
// with a longer timeout since the index files are large.
const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client with an overall request timeout. A zero
// timeout falls back to DefaultTimeout rather than waiting forever.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}
