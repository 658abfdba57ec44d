// Package loadgen drives a running festrank server with generated players
// and plays, then checks the served leaderboards against a local replay.
package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/festrank/internal/adapters/auth"
	"github.com/okian/festrank/internal/domain/scoring"
	"github.com/okian/festrank/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Run executes a complete load run: health check, catalog setup, concurrent
// submissions and leaderboard verification.
func Run(ctx context.Context, cfg *Config, engine *scoring.Engine) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		var err error
		if engine, err = scoring.New(); err != nil {
			return nil, err
		}
	}
	log := logger.Get().Named("loadgen")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting load run",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("songs", cfg.Songs),
		logger.Int("plays_per_player", cfg.PlaysPerPlayer),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", cfg.Seed))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := checkHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	gen := NewGenerator(cfg.Seed)
	songs := gen.Catalog(cfg.Songs, cfg.Instruments)
	players := gen.Players(cfg.Players)
	plays := gen.Plays(players, songs, cfg.Instruments, cfg.PlaysPerPlayer)
	stats.PlaysGenerated = len(plays)

	manager, err := cfg.Tokens.Issue(auth.Claims{UserID: "loadgen", Username: "loadgen", Role: auth.RoleRankManager}, tokenTTL)
	if err != nil {
		return stats, fmt.Errorf("issue manager token: %w", err)
	}
	if stats.SongsAdded, err = setupCatalog(ctx, client, manager, songs, cfg.Instruments); err != nil {
		return stats, fmt.Errorf("catalog setup failed: %w", err)
	}

	if err := submitPlays(ctx, cfg, client, plays, stats); err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}
	if stats.PlaysFailed > 0 {
		return stats, fmt.Errorf("%d of %d plays failed", stats.PlaysFailed, stats.PlaysSubmitted)
	}

	expected := Expected(engine, songs, plays)
	var errs []error
	for _, inst := range cfg.Instruments {
		rows, err := fetchLeaderboard(ctx, client, inst, cfg.TopN)
		if err != nil {
			return stats, err
		}
		stats.LeaderboardsRead++
		stats.LeaderboardEntries += len(rows)
		if err := VerifyLeaderboard(inst, rows, expected[inst], cfg.TopN); err != nil {
			errs = append(errs, err)
			continue
		}
		if len(rows) > 0 && cfg.Verbose {
			log.Info(ctx, "leaderboard verified",
				logger.String("instrument", inst),
				logger.String("leader", rows[0].Username),
				logger.Float64("score", rows[0].Score))
		}
	}

	if cfg.OutputFile != "" {
		if err := savePlays(cfg.OutputFile, plays); err != nil {
			log.Warn(ctx, "failed to save plays", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logStats(ctx, log, stats)

	return stats, errors.Join(errs...)
}

func checkHealth(ctx context.Context, c *httpClient) error {
	status, err := c.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
	return expect(status, err, http.StatusOK)
}

// savePlays writes the generated plays as a JSON array.
func savePlays(filename string, plays []Play) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(plays, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plays: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

func logStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var successRate, playsPerSecond float64
	if stats.PlaysSubmitted > 0 {
		successRate = float64(stats.PlaysSuccessful) / float64(stats.PlaysSubmitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		playsPerSecond = float64(stats.PlaysSubmitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("songs_added", stats.SongsAdded),
		logger.Int("plays_generated", stats.PlaysGenerated),
		logger.Int("plays_successful", stats.PlaysSuccessful),
		logger.Int("plays_duplicate", stats.PlaysDuplicate),
		logger.Int("plays_failed", stats.PlaysFailed),
		logger.Int("leaderboards_read", stats.LeaderboardsRead),
		logger.Int("leaderboard_entries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("success_rate", successRate),
		logger.Float64("plays_per_second", playsPerSecond))
}
