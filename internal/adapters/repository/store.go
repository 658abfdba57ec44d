// Package repository persists the song catalog, player records and manual
// reviews, and indexes aggregate scores for leaderboard reads.
package repository

import (
	"context"

	"github.com/okian/festrank/internal/domain/model"
)

// AllInstruments selects the combined leaderboard in LeaderboardIndex calls.
const AllInstruments = ""

// Entry represents a leaderboard row.
type Entry struct {
	Rank       int
	UserID     string
	Instrument string
	Score      float64
}

// CatalogStore holds song metadata keyed by (instrument, song).
type CatalogStore interface {
	// AddSong registers song on instrument with difficulty unset. It returns
	// false when the song already exists there.
	AddSong(ctx context.Context, instrument, song string) (bool, error)
	// GetSong returns ErrSongNotFound when the song is unknown.
	GetSong(ctx context.Context, instrument, song string) (model.SongMetadata, error)
	ListSongs(ctx context.Context, instrument string) ([]model.SongMetadata, error)
	SetDifficulty(ctx context.Context, instrument, song string, difficulty float64) error
	// SetDifficultyIfUnset stores difficulty only while none is set and
	// reports whether it wrote. Unknown songs return ErrSongNotFound.
	SetDifficultyIfUnset(ctx context.Context, instrument, song string, difficulty float64) (bool, error)
	// SetTotalNotesIfUnset stores totalNotes only while none is stored and
	// reports whether it wrote.
	SetTotalNotesIfUnset(ctx context.Context, instrument, song string, totalNotes int) (bool, error)
	// UpsertSong writes metadata as given. Used by imports.
	UpsertSong(ctx context.Context, meta model.SongMetadata) error
}

// PlayerStore holds per-(user, instrument) bests and derived caches.
type PlayerStore interface {
	// GetPlayer returns ErrPlayerNotFound when nothing is stored.
	GetPlayer(ctx context.Context, userID, instrument string) (model.PlayerInstrument, error)
	// SavePlayer writes the record and every best in one transaction.
	SavePlayer(ctx context.Context, p model.PlayerInstrument) error
	// ListPlayers returns all records for instrument, or every record when
	// instrument is AllInstruments.
	ListPlayers(ctx context.Context, instrument string) ([]model.PlayerInstrument, error)
	// PlayerInstruments returns every instrument record of one user.
	PlayerInstruments(ctx context.Context, userID string) ([]model.PlayerInstrument, error)
}

// ReviewStore holds manual reviews opened by evidence verification.
type ReviewStore interface {
	CreateReview(ctx context.Context, r model.Review) error
	GetReview(ctx context.Context, id string) (model.Review, error)
	// ListReviews returns reviews with status, oldest first. An empty status
	// returns every review.
	ListReviews(ctx context.Context, status model.ReviewStatus) ([]model.Review, error)
	// DecideReview closes a pending review. ErrReviewClosed when it is not pending.
	DecideReview(ctx context.Context, id string, status model.ReviewStatus, moderator string) (model.Review, error)
}

// LeaderboardIndex orders (user, instrument) pairs by aggregate score,
// highest first, ties by user then instrument. Ranks use competition
// ranking: equal scores share a rank and the next rank skips.
type LeaderboardIndex interface {
	// Set stores the current aggregate for (userID, instrument), replacing
	// any previous value, in both the instrument board and the combined one.
	Set(ctx context.Context, userID, instrument string, score float64) error
	// Top returns up to n entries from the instrument board, or from the
	// combined board for AllInstruments.
	Top(ctx context.Context, instrument string, n int) ([]Entry, error)
	// Rank returns ErrNotFound when the pair is not indexed.
	Rank(ctx context.Context, userID, instrument string) (Entry, error)
	Count(ctx context.Context, instrument string) (int, error)
	Close() error
}
