// Package verify reads note counts back from submission evidence so they can
// be compared with what the player typed in.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/festrank/internal/domain/scoring"
)

// Extractor returns the counts visible in the evidence at url.
type Extractor interface {
	Extract(ctx context.Context, evidenceURL string) (scoring.Counts, error)
}

// Noop is used when no extractor is configured.
type Noop struct{}

// Extract always fails with ErrDisabled.
func (Noop) Extract(context.Context, string) (scoring.Counts, error) {
	return scoring.Counts{}, ErrDisabled
}

// HTTPExtractor posts the evidence URL to an extractor service and decodes
// the counts it answers with.
type HTTPExtractor struct {
	endpoint string
	client   *http.Client
	retries  uint64
}

// NewHTTPExtractor builds a client for the service at endpoint.
func NewHTTPExtractor(endpoint string, opts ...Option) *HTTPExtractor {
	e := &HTTPExtractor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		retries:  2,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type extractRequest struct {
	EvidenceURL string `json:"evidence_url"`
}

// Extract implements Extractor. Server errors and transport failures are
// retried with exponential backoff; 4xx answers are not.
func (e *HTTPExtractor) Extract(ctx context.Context, evidenceURL string) (scoring.Counts, error) {
	if evidenceURL == "" {
		return scoring.Counts{}, ErrNoEvidence
	}
	body, err := json.Marshal(extractRequest{EvidenceURL: evidenceURL})
	if err != nil {
		return scoring.Counts{}, fmt.Errorf("encode request: %w", err)
	}

	var counts scoring.Counts
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("%w: status %d", ErrExtractor, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			_, _ = io.Copy(io.Discard, resp.Body)
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrExtractor, resp.StatusCode))
		}
		if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decode: %w", ErrExtractor, err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.retries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return scoring.Counts{}, err
	}
	return counts, nil
}
