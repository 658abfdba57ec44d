package scoring

import "fmt"

// NamedRank is the result of the named-rank deriver.
type NamedRank struct {
	Label string  `json:"label"`
	Mean  float64 `json:"mean"`
}

// Summary bundles every derived value for one (player, instrument).
type Summary struct {
	Aggregate float64   `json:"aggregate"`
	Tier      string    `json:"tier"`
	Named     NamedRank `json:"named_rank"`
	Songs     int       `json:"songs"`
}

// Engine binds the pure functions to one configuration. It is immutable
// after New and safe for concurrent use.
type Engine struct {
	decay    float64
	topK     int
	topN     int
	rank     Tables
	named    Tables
	accuracy Table
}

// New creates an engine with defaults overridden by opts and validates every
// threshold table.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		decay:    DefaultDecay,
		topK:     DefaultTopK,
		topN:     DefaultNamedTopN,
		rank:     DefaultRankTables(),
		named:    DefaultNamedTables(),
		accuracy: DefaultAccuracyTable(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.rank.Validate(); err != nil {
		return nil, fmt.Errorf("rank table: %w", err)
	}
	if err := e.named.Validate(); err != nil {
		return nil, fmt.Errorf("named tables: %w", err)
	}
	if err := e.accuracy.Validate(); err != nil {
		return nil, fmt.Errorf("accuracy table: %w", err)
	}
	return e, nil
}

// Decay returns the configured decay rate.
func (e *Engine) Decay() float64 { return e.decay }

// TopK returns how many songs count toward the aggregate.
func (e *Engine) TopK() int { return e.topK }

// TopN returns how many songs feed the named rank.
func (e *Engine) TopN() int { return e.topN }

// RankTable returns a copy of the aggregate tier table for instrument.
func (e *Engine) RankTable(instrument string) Table { return e.rank.For(instrument).Clone() }

// NamedTable returns a copy of the named-rank table for instrument.
func (e *Engine) NamedTable(instrument string) Table { return e.named.For(instrument).Clone() }

// AccuracyTable returns a copy of the accuracy tier table.
func (e *Engine) AccuracyTable() Table { return e.accuracy.Clone() }

// Aggregate computes the decayed aggregate of scores.
func (e *Engine) Aggregate(scores []SongScore) float64 {
	return Aggregate(scores, e.topK, e.decay)
}

// Tier classifies an aggregate score on instrument. An empty or unknown
// instrument uses the default table.
func (e *Engine) Tier(instrument string, aggregate float64) string {
	return e.rank.For(instrument).Classify(aggregate)
}

// NamedRank derives the named rank of scores on instrument.
func (e *Engine) NamedRank(instrument string, scores []SongScore) NamedRank {
	mean := TopMean(scores, e.topN)
	return NamedRank{Label: e.named.For(instrument).Classify(mean), Mean: mean}
}

// AccuracyTier classifies a weighted accuracy percentage.
func (e *Engine) AccuracyTier(accuracy float64) string {
	return e.accuracy.Classify(accuracy)
}

// Weight returns the decay weight at position i.
func (e *Engine) Weight(i int) float64 {
	return Weight(e.decay, i)
}

// Summarize runs the aggregator, the tier classifier and the named-rank
// deriver over the full best set of one (player, instrument).
func (e *Engine) Summarize(instrument string, bests map[string]float64) Summary {
	scores := FromMap(bests)
	agg := e.Aggregate(scores)
	return Summary{
		Aggregate: agg,
		Tier:      e.Tier(instrument, agg),
		Named:     e.NamedRank(instrument, scores),
		Songs:     len(scores),
	}
}
