package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/festrank/internal/adapters/auth"
	"github.com/okian/festrank/internal/domain/types"
	"github.com/okian/festrank/pkg/logger"
)

// httpClient talks to the festrank API with bearer tokens.
type httpClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *httpClient {
	return &httpClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// do sends body as JSON and decodes the response into out when out is not
// nil. It returns the status code.
func (c *httpClient) do(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if out != nil && resp.StatusCode < http.StatusBadRequest && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func expect(status int, err error, want ...int) error {
	if err != nil {
		return err
	}
	for _, w := range want {
		if status == w {
			return nil
		}
	}
	return fmt.Errorf("unexpected status %d", status)
}

// setupCatalog adds every song and sets its difficulty on each instrument
// using a manager token.
func setupCatalog(ctx context.Context, c *httpClient, token string, songs []Song, instruments []string) (int, error) {
	added := 0
	for _, s := range songs {
		status, err := c.do(ctx, http.MethodPost, "/v1/songs", token, map[string]string{"name": s.Name}, nil)
		if err := expect(status, err, http.StatusCreated, http.StatusOK); err != nil {
			return added, fmt.Errorf("add song %q: %w", s.Name, err)
		}
		if status == http.StatusCreated {
			added++
		}
		for _, inst := range instruments {
			path := fmt.Sprintf("/v1/instruments/%s/songs/%s/difficulty", url.PathEscape(inst), url.PathEscape(s.Name))
			status, err := c.do(ctx, http.MethodPut, path, token, map[string]float64{"difficulty": s.Difficulty[inst]}, nil)
			if err := expect(status, err, http.StatusNoContent); err != nil {
				return added, fmt.Errorf("set difficulty %q on %s: %w", s.Name, inst, err)
			}
		}
	}
	return added, nil
}

// tokenCache issues one player token per user.
type tokenCache struct {
	provider *auth.Provider
	mu       sync.Mutex
	tokens   map[string]string
}

func (t *tokenCache) get(p Play) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tok, ok := t.tokens[p.UserID]; ok {
		return tok, nil
	}
	tok, err := t.provider.Issue(auth.Claims{UserID: p.UserID, Username: p.Username, Role: auth.RolePlayer}, tokenTTL)
	if err != nil {
		return "", err
	}
	t.tokens[p.UserID] = tok
	return tok, nil
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeDuplicate
	outcomeFailed
)

// submitPlays submits plays concurrently using a worker pool.
func submitPlays(ctx context.Context, cfg *Config, c *httpClient, plays []Play, stats *Stats) error {
	log := logger.Get().Named("loadgen")
	log.Info(ctx, "submitting plays", logger.Int("plays", len(plays)), logger.Int("workers", cfg.Workers))

	tokens := &tokenCache{provider: cfg.Tokens, tokens: map[string]string{}}
	var successful, duplicate, failed, submitted int64

	playChan := make(chan Play, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range playChan {
				switch submitSingle(ctx, c, tokens, p) {
				case outcomeSuccess:
					atomic.AddInt64(&successful, 1)
				case outcomeDuplicate:
					atomic.AddInt64(&duplicate, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
				n := atomic.AddInt64(&submitted, 1)
				if cfg.Verbose && n%1000 == 0 {
					log.Info(ctx, "progress", logger.Int("submitted", int(n)), logger.Int("total", len(plays)))
				}
			}
		}()
	}

	func() {
		defer close(playChan)
		for _, p := range plays {
			select {
			case <-ctx.Done():
				return
			case playChan <- p:
			}
		}
	}()
	wg.Wait()

	stats.PlaysSubmitted = int(atomic.LoadInt64(&submitted))
	stats.PlaysSuccessful = int(atomic.LoadInt64(&successful))
	stats.PlaysDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.PlaysFailed = int(atomic.LoadInt64(&failed))

	log.Info(ctx, "submission completed",
		logger.Int("successful", stats.PlaysSuccessful),
		logger.Int("duplicate", stats.PlaysDuplicate),
		logger.Int("failed", stats.PlaysFailed))
	return ctx.Err()
}

func submitSingle(ctx context.Context, c *httpClient, tokens *tokenCache, p Play) outcome {
	tok, err := tokens.get(p)
	if err != nil {
		return outcomeFailed
	}
	status, err := c.do(ctx, http.MethodPost, "/v1/submissions", tok, p, nil)
	switch {
	case err != nil:
		return outcomeFailed
	case status == http.StatusOK:
		return outcomeSuccess
	case status == http.StatusConflict:
		return outcomeDuplicate
	default:
		return outcomeFailed
	}
}

// fetchLeaderboard reads the top n rows of one instrument.
func fetchLeaderboard(ctx context.Context, c *httpClient, instrument string, n int) ([]types.Entry, error) {
	var rows []types.Entry
	path := fmt.Sprintf("/v1/leaderboard?instrument=%s&limit=%d", url.QueryEscape(instrument), n)
	status, err := c.do(ctx, http.MethodGet, path, "", nil, &rows)
	if err := expect(status, err, http.StatusOK); err != nil {
		return nil, fmt.Errorf("leaderboard %s: %w", instrument, err)
	}
	return rows, nil
}
