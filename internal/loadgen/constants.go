package loadgen

import "time"

const (
	defaultTimeout = 30 * time.Second
	tokenTTL       = time.Hour
	maxTopN        = 100

	minNotes      = 300
	maxNotes      = 1800
	minDifficulty = 1.0
	maxDifficulty = 6.0

	// goodShare bounds the fraction of notes hit as good rather than perfect.
	goodShare = 0.1

	scoreTolerance       = 0.011
	percentageMultiplier = 100
)
