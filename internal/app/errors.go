package service

import "errors"

// Sentinel error kinds returned by the service. The HTTP layer maps them to
// status codes.
var (
	ErrInvalidSubmission  = errors.New("invalid submission")
	ErrInvalidCounts      = errors.New("invalid note counts")
	ErrNotFullCombo       = errors.New("missed and striked notes must be zero")
	ErrUnknownInstrument  = errors.New("unknown instrument")
	ErrUnknownSong        = errors.New("unknown song")
	ErrDifficultyRequired = errors.New("song has no difficulty yet; provide one")
	ErrInvalidDifficulty  = errors.New("difficulty must be positive")
	ErrDuplicate          = errors.New("submission already processed")
	ErrForbidden          = errors.New("rank manager role required")
	ErrInvalidLimit       = errors.New("invalid limit")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrReviewNotFound     = errors.New("review not found")
	ErrReviewClosed       = errors.New("review already decided")
	ErrInvalidSongName    = errors.New("song name must not be empty")
)
