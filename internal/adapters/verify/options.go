package verify

import (
	"net/http"
	"time"
)

// Option configures an HTTPExtractor.
type Option func(*HTTPExtractor)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *HTTPExtractor) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *HTTPExtractor) {
		if c != nil {
			e.client = c
		}
	}
}

// WithRetries sets how many times a failed call is retried.
func WithRetries(n uint64) Option {
	return func(e *HTTPExtractor) { e.retries = n }
}
