// Package scoring implements the pure scoring and ranking engine: the
// normalizer, the inverter, the decayed aggregator, the tier classifier and
// the named-rank deriver. Nothing in this package performs I/O or keeps
// mutable state.
package scoring

import "math"

// Normalizer constants.
const (
	scalingExponent = 0.1
	scalingFactor   = 0.02
	percent         = 100
	goodWeight      = 0.5
)

// Counts holds the raw note counts of a single play.
type Counts struct {
	Perfect int `json:"perfect"`
	Good    int `json:"good"`
	Missed  int `json:"missed"`
	Striked int `json:"striked"`
}

// Total returns the number of notes the play covered.
func (c Counts) Total() int {
	return c.Perfect + c.Good + c.Missed + c.Striked
}

// Negative reports whether any count is below zero.
func (c Counts) Negative() bool {
	return c.Perfect < 0 || c.Good < 0 || c.Missed < 0 || c.Striked < 0
}

// Round2 rounds to two decimal places, resolving exact halves to the even
// neighbour. Scores shared with the community use this rule, so 99.125
// becomes 99.12.
func Round2(v float64) float64 {
	return math.RoundToEven(v*percent) / percent
}

// scaling grows slowly with chart length so long charts are worth slightly more.
func scaling(totalNotes int) float64 {
	return 1 + math.Pow(float64(totalNotes), scalingExponent)*scalingFactor
}

// Normalize converts raw counts into a normalized score for a song of the
// given difficulty. A play with no notes scores 0.
func Normalize(c Counts, difficulty float64) float64 {
	total := c.Total()
	if total <= 0 {
		return 0
	}
	accuracy := float64(c.Perfect) / float64(total) * percent
	return Round2(accuracy * scaling(total) * difficulty)
}

// Invert estimates the perfect and good counts that produced score on a song
// with the given difficulty and note count. It returns (0, 0) when either is
// zero. The estimate always satisfies perfect+good == totalNotes.
func Invert(score, difficulty float64, totalNotes int) (perfect, good int) {
	if difficulty == 0 || totalNotes <= 0 {
		return 0, 0
	}
	ratio := score / (scaling(totalNotes) * difficulty * percent)
	perfect = int(math.RoundToEven(ratio * float64(totalNotes)))
	if perfect < 0 {
		perfect = 0
	}
	if perfect > totalNotes {
		perfect = totalNotes
	}
	return perfect, totalNotes - perfect
}

// WeightedAccuracy counts a good hit as half a perfect one and returns a
// percentage of totalNotes.
func WeightedAccuracy(perfect, good, totalNotes int) float64 {
	if totalNotes <= 0 {
		return 0
	}
	return (float64(perfect) + goodWeight*float64(good)) / float64(totalNotes) * percent
}
