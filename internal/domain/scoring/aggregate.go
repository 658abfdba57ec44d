package scoring

import (
	"math"
	"sort"
)

// Aggregation defaults.
const (
	DefaultDecay     = 0.95
	DefaultTopK      = 100
	DefaultNamedTopN = 5
)

// SongScore pairs a song identifier with the player's best normalized score.
type SongScore struct {
	Song  string  `json:"song"`
	Score float64 `json:"score"`
}

// Ranked returns a copy of scores sorted by score descending, ties broken by
// song identifier ascending.
func Ranked(scores []SongScore) []SongScore {
	out := make([]SongScore, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Song < out[j].Song
		}
		return out[i].Score > out[j].Score
	})
	return out
}

// FromMap flattens a song->score map.
func FromMap(bests map[string]float64) []SongScore {
	out := make([]SongScore, 0, len(bests))
	for song, score := range bests {
		out = append(out, SongScore{Song: song, Score: score})
	}
	return out
}

// Weight returns the decay weight applied at position i (0-based).
func Weight(decay float64, i int) float64 {
	return math.Pow(decay, float64(i))
}

// Aggregate keeps the topK best scores and sums them with geometrically
// decaying weights. The result does not depend on input order.
func Aggregate(scores []SongScore, topK int, decay float64) float64 {
	if topK <= 0 || len(scores) == 0 {
		return 0
	}
	ranked := Ranked(scores)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	var (
		sum float64
		w   = 1.0
	)
	for _, s := range ranked {
		sum += s.Score * w
		w *= decay
	}
	return sum
}

// TopMean averages the n best scores, or fewer when fewer exist. Empty input
// yields 0.
func TopMean(scores []SongScore, n int) float64 {
	if n <= 0 || len(scores) == 0 {
		return 0
	}
	ranked := Ranked(scores)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	var sum float64
	for _, s := range ranked {
		sum += s.Score
	}
	return sum / float64(len(ranked))
}
