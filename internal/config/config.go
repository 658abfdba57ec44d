// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) initializer to build a Config with defaults.
// - Load layers a YAML file and FESTRANK_* environment variables on top.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/okian/festrank/internal/domain/scoring"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFile, when set, also writes logs to a size-rotated file.
	LogFile      string `koanf:"log_file"`
	LogMaxSizeMB int    `koanf:"log_max_size_mb"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabaseDriver is sqlite or postgres.
	DatabaseDriver string `koanf:"database_driver"`
	DatabaseDSN    string `koanf:"database_dsn"`

	// LeaderboardBackend is memory or redis.
	LeaderboardBackend string `koanf:"leaderboard_backend"`
	RedisAddr          string `koanf:"redis_addr"`

	// QueueSize bounds the in-memory verification queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of verification workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the size of the submission deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /v1/leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	JWTSecret      string  `koanf:"jwt_secret"`
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// ExtractorURL points at the evidence text extractor. Empty disables
	// verification.
	ExtractorURL       string `koanf:"extractor_url"`
	ExtractorTimeoutMS int    `koanf:"extractor_timeout_ms"`

	// RoleMinSongs is the song count an instrument needs before it gets a label.
	RoleMinSongs int `koanf:"role_min_songs"`
	// OverallMinInstruments is how many labelled instruments earn an overall label.
	OverallMinInstruments int `koanf:"overall_min_instruments"`

	// Instruments lists the instruments a new song is added to.
	Instruments []string `koanf:"instruments"`

	Scoring Scoring `koanf:"scoring"`
}

// Scoring holds the engine constants and threshold tables.
type Scoring struct {
	DecayRate          float64       `koanf:"decay_rate"`
	AggregateTopK      int           `koanf:"aggregate_top_k"`
	NamedRankTopN      int           `koanf:"named_rank_top_n"`
	RankThresholds     scoring.Table `koanf:"rank_thresholds"`
	// InstrumentRankThresholds overrides RankThresholds per instrument.
	InstrumentRankThresholds map[string]scoring.Table `koanf:"instrument_rank_thresholds"`
	NamedThresholds          map[string]scoring.Table `koanf:"named_thresholds"`
	AccuracyThresholds       scoring.Table            `koanf:"accuracy_thresholds"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	named := scoring.DefaultNamedTables()
	return &Config{
		LogLevel:              "info",
		LogMaxSizeMB:          100,
		Addr:                  ":9080",
		DatabaseDriver:        "sqlite",
		DatabaseDSN:           "festrank.db",
		LeaderboardBackend:    "memory",
		RedisAddr:             "localhost:6379",
		QueueSize:             10_000,
		WorkerCount:           runtime.NumCPU(),
		DedupeSize:            50_000,
		MaxLeaderboardLimit:   100,
		RateLimitRPS:          20,
		RateLimitBurst:        40,
		ExtractorTimeoutMS:    5_000,
		RoleMinSongs:          4,
		OverallMinInstruments: 4,
		Instruments:           scoring.DefaultInstruments(),
		Scoring: Scoring{
			DecayRate:          scoring.DefaultDecay,
			AggregateTopK:      scoring.DefaultTopK,
			NamedRankTopN:      scoring.DefaultNamedTopN,
			RankThresholds:     scoring.DefaultRankTable(),
			NamedThresholds:    named.ByInstrument,
			AccuracyThresholds: scoring.DefaultAccuracyTable(),
		},
	}
}

// Validate checks every field the service cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Scoring.DecayRate <= 0 || c.Scoring.DecayRate >= 1:
		return fmt.Errorf("%w: scoring.decay_rate %v outside (0,1)", ErrInvalidConfig, c.Scoring.DecayRate)
	case c.Scoring.AggregateTopK <= 0:
		return fmt.Errorf("%w: scoring.aggregate_top_k must be positive", ErrInvalidConfig)
	case c.Scoring.NamedRankTopN <= 0:
		return fmt.Errorf("%w: scoring.named_rank_top_n must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	case len(c.Instruments) == 0:
		return fmt.Errorf("%w: instruments must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LeaderboardBackend) {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown leaderboard_backend %q", ErrInvalidConfig, c.LeaderboardBackend)
	}
	if _, err := scoring.New(c.EngineOptions()...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// EngineOptions converts the scoring section into engine options.
func (c *Config) EngineOptions() []scoring.Option {
	s := c.Scoring
	named := scoring.DefaultNamedTables()
	named.ByInstrument = s.NamedThresholds
	return []scoring.Option{
		scoring.WithDecay(s.DecayRate),
		scoring.WithTopK(s.AggregateTopK),
		scoring.WithNamedTopN(s.NamedRankTopN),
		scoring.WithRankTables(scoring.Tables{Default: s.RankThresholds, ByInstrument: s.InstrumentRankThresholds}),
		scoring.WithNamedTables(named),
		scoring.WithAccuracyTable(s.AccuracyThresholds),
	}
}
