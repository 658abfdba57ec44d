package model

import (
	"time"

	"github.com/okian/festrank/internal/domain/scoring"
)

// Submission is a single performance result sent for scoring.
type Submission struct {
	ID          string         // idempotency key
	UserID      string         // player the score belongs to
	Username    string         // display name
	Instrument  string         // e.g. "Lead", "Pro Bass"
	Song        string         // song name as typed by the submitter
	Counts      scoring.Counts // raw note counts
	Difficulty  *float64       // required only while the song has no difficulty
	EvidenceURL string         // screenshot to verify asynchronously
	SubmittedBy string         // caller identity; differs from UserID for manager submissions
	TS          time.Time
}

// SubmissionResult reports what a submission changed.
type SubmissionResult struct {
	SubmissionID    string  `json:"submission_id"`
	Song            string  `json:"song"`
	Instrument      string  `json:"instrument"`
	Score           float64 `json:"score"`
	Previous        float64 `json:"previous"`
	Improved        bool    `json:"improved"`
	FirstSubmission bool    `json:"first_submission"`
	Aggregate       float64 `json:"aggregate"`
	Tier            string  `json:"tier"`
	NamedRank       string  `json:"named_rank"`
	NamedMean       float64 `json:"named_mean"`
	Verification    string  `json:"verification"`
}
