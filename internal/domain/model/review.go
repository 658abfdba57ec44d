package model

import (
	"time"

	"github.com/okian/festrank/internal/domain/scoring"
)

// ReviewStatus is the lifecycle state of a manual review.
type ReviewStatus string

// Review states.
const (
	ReviewPending  ReviewStatus = "pending"
	ReviewAccepted ReviewStatus = "accepted"
	ReviewDenied   ReviewStatus = "denied"
)

// Valid reports whether s is a known status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewAccepted, ReviewDenied:
		return true
	}
	return false
}

// Review is opened when the extracted counts disagree with the submitted ones.
type Review struct {
	ID           string         `json:"id"`
	SubmissionID string         `json:"submission_id"`
	UserID       string         `json:"user_id"`
	Instrument   string         `json:"instrument"`
	Song         string         `json:"song"`
	Score        float64        `json:"score"`
	Submitted    scoring.Counts `json:"submitted"`
	Extracted    scoring.Counts `json:"extracted"`
	EvidenceURL  string         `json:"evidence_url"`
	Status       ReviewStatus   `json:"status"`
	Moderator    string         `json:"moderator,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	DecidedAt    *time.Time     `json:"decided_at,omitempty"`
}
