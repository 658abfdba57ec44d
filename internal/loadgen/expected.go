package loadgen

import (
	"sort"

	"github.com/okian/festrank/internal/domain/scoring"
	"github.com/okian/festrank/internal/domain/types"
)

// Expected replays plays through engine and returns the aggregate every
// player should hold, keyed by instrument then user ID.
func Expected(engine *scoring.Engine, songs []Song, plays []Play) map[string]map[string]float64 {
	byName := make(map[string]Song, len(songs))
	for _, s := range songs {
		byName[s.Name] = s
	}

	bests := map[string]map[string]map[string]float64{}
	for _, p := range plays {
		song, ok := byName[p.Song]
		if !ok {
			continue
		}
		score := scoring.Normalize(scoring.Counts{
			Perfect: p.Perfect,
			Good:    p.Good,
			Missed:  p.Missed,
			Striked: p.Striked,
		}, song.Difficulty[p.Instrument])

		users, ok := bests[p.Instrument]
		if !ok {
			users = map[string]map[string]float64{}
			bests[p.Instrument] = users
		}
		if users[p.UserID] == nil {
			users[p.UserID] = map[string]float64{}
		}
		if score > users[p.UserID][p.Song] {
			users[p.UserID][p.Song] = score
		}
	}

	out := make(map[string]map[string]float64, len(bests))
	for inst, users := range bests {
		out[inst] = make(map[string]float64, len(users))
		for user, b := range users {
			out[inst][user] = engine.Summarize(inst, b).Aggregate
		}
	}
	return out
}

// ranked orders expected aggregates the way the service ranks them.
func ranked(instrument string, aggregates map[string]float64) []types.Entry {
	rows := make([]types.Entry, 0, len(aggregates))
	for user, score := range aggregates {
		rows = append(rows, types.Entry{UserID: user, Instrument: instrument, Score: score})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].UserID < rows[j].UserID
	})
	for i := range rows {
		rows[i].Rank = i + 1
		if i > 0 && rows[i].Score == rows[i-1].Score {
			rows[i].Rank = rows[i-1].Rank
		}
	}
	return rows
}
