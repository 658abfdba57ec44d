package loadgen

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/festrank/internal/adapters/auth"
	"github.com/okian/festrank/internal/domain/scoring"
)

// ErrInvalidConfig is returned when a run cannot start with the given Config.
var ErrInvalidConfig = errors.New("loadgen: invalid config")

// Config holds configuration for a load run.
type Config struct {
	BaseURL        string         // base URL of the service
	Tokens         *auth.Provider // signs player and manager tokens
	Players        int            // distinct players to simulate
	Songs          int            // songs added to the catalog
	PlaysPerPlayer int            // submissions per player
	Instruments    []string       // instruments plays are spread across
	Workers        int            // concurrent submitters
	Timeout        time.Duration  // per-request timeout
	TopN           int            // leaderboard rows fetched per instrument
	Seed           int64          // faker seed; equal seeds give equal runs
	OutputFile     string         // optional JSON dump of generated plays
	Verbose        bool
}

func (c *Config) validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Tokens == nil:
		return fmt.Errorf("%w: token provider is required", ErrInvalidConfig)
	case c.Players < 1 || c.Songs < 1 || c.PlaysPerPlayer < 1:
		return fmt.Errorf("%w: players, songs and plays must be positive", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.TopN < 1 || c.TopN > maxTopN:
		return fmt.Errorf("%w: top must be between 1 and %d", ErrInvalidConfig, maxTopN)
	}
	if len(c.Instruments) == 0 {
		c.Instruments = scoring.DefaultInstruments()
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return nil
}

// Song is one generated catalog entry.
type Song struct {
	Name       string             `json:"name"`
	TotalNotes int                `json:"total_notes"`
	Difficulty map[string]float64 `json:"difficulty"`
}

// Player is one simulated account.
type Player struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Play is a single full-combo submission.
type Play struct {
	SubmissionID string `json:"submission_id"`
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	Instrument   string `json:"instrument"`
	Song         string `json:"song"`
	Perfect      int    `json:"perfect"`
	Good         int    `json:"good"`
	Missed       int    `json:"missed"`
	Striked      int    `json:"striked"`
}

// Stats holds run statistics.
type Stats struct {
	SongsAdded         int
	PlaysGenerated     int
	PlaysSubmitted     int
	PlaysSuccessful    int
	PlaysDuplicate     int
	PlaysFailed        int
	LeaderboardsRead   int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
