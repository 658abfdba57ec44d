package repository

import (
	"strings"

	"github.com/okian/festrank/internal/domain/scoring"
)

// memberSep joins user and instrument in leaderboard members. It cannot
// appear in trimmed identifiers typed by users.
const memberSep = "\x1f"

// Key normalizes an identifier for storage lookups: lower-cased and trimmed.
// Every store applies it at its boundary so callers may pass raw input.
func Key(s string) string {
	return scoring.NormalizeKey(s)
}

func member(userID, instrument string) string {
	return Key(userID) + memberSep + Key(instrument)
}

func splitMember(m string) (userID, instrument string) {
	userID, instrument, _ = strings.Cut(m, memberSep)
	return userID, instrument
}

func countsOf(perfect, good, missed, striked int) scoring.Counts {
	return scoring.Counts{Perfect: perfect, Good: good, Missed: missed, Striked: striked}
}
