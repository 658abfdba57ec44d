package model

import "time"

// PlayerInstrument is everything stored for one (player, instrument).
// Aggregate, Tier, NamedRank and NamedMean are caches derived from Bests.
type PlayerInstrument struct {
	UserID     string             `json:"user_id"`
	Username   string             `json:"username"`
	Instrument string             `json:"instrument"`
	Bests      map[string]float64 `json:"bests"`
	Aggregate  float64            `json:"aggregate"`
	Tier       string             `json:"tier"`
	NamedRank  string             `json:"named_rank"`
	NamedMean  float64            `json:"named_mean"`
	UpdatedAt  time.Time          `json:"updated_at"`
}
