package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "FESTRANK_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if FESTRANK_CONFIG is set
//  3. env (prefix FESTRANK_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// FESTRANK_QUEUE_SIZE -> queue_size, FESTRANK_SCORING_DECAY_RATE -> scoring.decay_rate
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if rest, ok := strings.CutPrefix(s, "scoring_"); ok {
			return "scoring." + rest
		}
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	// Lists and tables given by a layer replace the defaults; decoding into a
	// populated slice would keep stale trailing rows.
	if k.Exists("instruments") {
		cfg.Instruments = nil
	}
	if k.Exists("scoring.rank_thresholds") {
		cfg.Scoring.RankThresholds = nil
	}
	if k.Exists("scoring.accuracy_thresholds") {
		cfg.Scoring.AccuracyThresholds = nil
	}
	if k.Exists("scoring.instrument_rank_thresholds") {
		cfg.Scoring.InstrumentRankThresholds = nil
	}
	if k.Exists("scoring.named_thresholds") {
		cfg.Scoring.NamedThresholds = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
