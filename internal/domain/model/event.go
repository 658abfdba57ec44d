package model

import "time"

// InstrumentRank is the named rank of one instrument at the time of an event.
type InstrumentRank struct {
	Instrument string `json:"instrument"`
	NamedRank  string `json:"named_rank"`
	Songs      int    `json:"songs"`
}

// RanksRecomputed is published after a player's caches change.
type RanksRecomputed struct {
	UserID      string           `json:"user_id"`
	Username    string           `json:"username"`
	Instrument  string           `json:"instrument"`
	Aggregate   float64          `json:"aggregate"`
	Tier        string           `json:"tier"`
	NamedRank   string           `json:"named_rank"`
	Instruments []InstrumentRank `json:"instruments"`
	TS          time.Time        `json:"ts"`
}

// ReviewDecided is published when a moderator closes a review.
type ReviewDecided struct {
	Review Review    `json:"review"`
	TS     time.Time `json:"ts"`
}
