// Package types contains common types used across the application
package types

// Entry represents a leaderboard row
type Entry struct {
	Rank       int     `json:"rank"`
	UserID     string  `json:"user_id"`
	Username   string  `json:"username"`
	Instrument string  `json:"instrument"`
	Score      float64 `json:"score"`
	Tier       string  `json:"tier"`
}

// AccuracyEntry represents an accuracy leaderboard row
type AccuracyEntry struct {
	Rank     int     `json:"rank"`
	UserID   string  `json:"user_id"`
	Username string  `json:"username"`
	Accuracy float64 `json:"accuracy"`
	Tier     string  `json:"tier"`
	Songs    int     `json:"songs"`
}

// SongEntry represents one row of a player's song breakdown
type SongEntry struct {
	Position          int     `json:"position"`
	Song              string  `json:"song"`
	Score             float64 `json:"score"`
	WeightPercent     float64 `json:"weight_percent"`
	Difficulty        float64 `json:"difficulty,omitempty"`
	Perfect           int     `json:"perfect"`
	Good              int     `json:"good"`
	MetadataAvailable bool    `json:"metadata_available"`
}

// InstrumentSummary is one instrument of a player profile
type InstrumentSummary struct {
	Instrument string  `json:"instrument"`
	Aggregate  float64 `json:"aggregate"`
	Tier       string  `json:"tier"`
	NamedRank  string  `json:"named_rank"`
	NamedMean  float64 `json:"named_mean"`
	Songs      int     `json:"songs"`
	Rank       int     `json:"rank,omitempty"`
}

// Profile represents everything shown for one player
type Profile struct {
	UserID      string              `json:"user_id"`
	Username    string              `json:"username"`
	Instruments []InstrumentSummary `json:"instruments"`
}

// Threshold is one row of a tier table as shown to players
type Threshold struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
}

// Tournament represents a player's named-rank standing on one instrument
type Tournament struct {
	UserID     string      `json:"user_id"`
	Instrument string      `json:"instrument"`
	NamedRank  string      `json:"named_rank"`
	Mean       float64     `json:"mean"`
	NextRank   string      `json:"next_rank,omitempty"`
	Needed     float64     `json:"needed,omitempty"`
	TopReached bool        `json:"top_reached"`
	Thresholds []Threshold `json:"thresholds"`
	Songs      []SongEntry `json:"songs"`
}
