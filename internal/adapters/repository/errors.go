package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrSongNotFound   = errors.New("song not found")
	ErrPlayerNotFound = errors.New("player not found")
	ErrReviewNotFound = errors.New("review not found")
	ErrReviewClosed   = errors.New("review already decided")
	ErrInvalidLimit   = errors.New("invalid leaderboard limit")
	ErrInvalidKey     = errors.New("identifier must not be empty")
	ErrUnknownDriver  = errors.New("unknown database driver")
)
