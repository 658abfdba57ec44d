package model

import (
	"time"

	"github.com/okian/festrank/internal/domain/scoring"
)

// VerificationJob asks a worker to check a submission against its evidence.
type VerificationJob struct {
	SubmissionID string
	UserID       string
	Instrument   string
	Song         string
	Score        float64
	Counts       scoring.Counts
	EvidenceURL  string
	EnqueuedAt   time.Time
}
