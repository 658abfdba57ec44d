package loadgen

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/festrank/internal/domain/types"
)

// ErrMismatch is returned when a served leaderboard disagrees with the
// locally replayed plays.
var ErrMismatch = errors.New("loadgen: leaderboard mismatch")

// VerifyLeaderboard checks got against the aggregates replayed locally for
// one instrument: row count, ordering, competition ranks and every score.
func VerifyLeaderboard(instrument string, got []types.Entry, expected map[string]float64, topN int) error {
	want := ranked(instrument, expected)
	if len(want) > topN {
		want = want[:topN]
	}
	if len(got) != len(want) {
		return fmt.Errorf("%w: %s has %d rows, want %d", ErrMismatch, instrument, len(got), len(want))
	}

	for i, row := range got {
		if i > 0 {
			prev := got[i-1]
			if row.Score > prev.Score {
				return fmt.Errorf("%w: %s row %d outranks row %d", ErrMismatch, instrument, i+1, i)
			}
			if row.Score == prev.Score && row.Rank != prev.Rank {
				return fmt.Errorf("%w: %s tied rows %d and %d have ranks %d and %d", ErrMismatch, instrument, i, i+1, prev.Rank, row.Rank)
			}
			if row.Score < prev.Score && row.Rank != i+1 {
				return fmt.Errorf("%w: %s row %d has rank %d", ErrMismatch, instrument, i+1, row.Rank)
			}
		}
		if !within(row.Score, want[i].Score) {
			return fmt.Errorf("%w: %s row %d scored %.2f, want %.2f", ErrMismatch, instrument, i+1, row.Score, want[i].Score)
		}
		agg, ok := expected[row.UserID]
		if !ok {
			return fmt.Errorf("%w: %s lists unknown player %s", ErrMismatch, instrument, row.UserID)
		}
		if !within(row.Score, agg) {
			return fmt.Errorf("%w: %s player %s scored %.2f, want %.2f", ErrMismatch, instrument, row.UserID, row.Score, agg)
		}
	}
	return nil
}

func within(a, b float64) bool { return math.Abs(a-b) <= scoreTolerance }
