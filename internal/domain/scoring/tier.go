package scoring

import (
	"fmt"
	"strings"
)

// Tier is one row of a threshold table.
type Tier struct {
	Label string  `json:"label" koanf:"label" yaml:"label"`
	Min   float64 `json:"min" koanf:"min" yaml:"min"`
}

// Table is an ordered list of tiers with strictly descending minimums and a
// zero floor as the last row.
type Table []Tier

// Validate checks the table invariants. It is meant to run once at startup.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTable, ErrEmptyTable)
	}
	for i, tier := range t {
		if strings.TrimSpace(tier.Label) == "" {
			return fmt.Errorf("%w: row %d: %w", ErrInvalidTable, i, ErrEmptyLabel)
		}
		if i > 0 && tier.Min >= t[i-1].Min {
			return fmt.Errorf("%w: %q (%v) after %q (%v): %w",
				ErrInvalidTable, tier.Label, tier.Min, t[i-1].Label, t[i-1].Min, ErrTableOrdering)
		}
	}
	if t[len(t)-1].Min != 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTable, ErrMissingFloor)
	}
	return nil
}

// Classify returns the label of the first tier whose minimum is at or below
// score. Scores below every minimum land on the floor tier.
func (t Table) Classify(score float64) string {
	if len(t) == 0 {
		return ""
	}
	for _, tier := range t {
		if score >= tier.Min {
			return tier.Label
		}
	}
	return t[len(t)-1].Label
}

// Next returns the tier directly above the one score falls in and the points
// still missing to reach it. ok is false when score already sits in the top
// tier.
func (t Table) Next(score float64) (next Tier, needed float64, ok bool) {
	for i, tier := range t {
		if score >= tier.Min {
			if i == 0 {
				return Tier{}, 0, false
			}
			return t[i-1], t[i-1].Min - score, true
		}
	}
	if len(t) < 2 {
		return Tier{}, 0, false
	}
	return t[len(t)-2], t[len(t)-2].Min - score, true
}

// Index returns the position of label in the table, or -1.
func (t Table) Index(label string) int {
	for i, tier := range t {
		if tier.Label == label {
			return i
		}
	}
	return -1
}

// Clone returns an independent copy of the table.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	copy(out, t)
	return out
}

// Tables maps normalized instrument names to threshold tables with a
// fallback for instruments that have none.
type Tables struct {
	Default      Table
	ByInstrument map[string]Table
}

// NormalizeKey lower-cases and trims an identifier.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// For returns the table for instrument, or the default table.
func (ts Tables) For(instrument string) Table {
	if t, ok := ts.ByInstrument[NormalizeKey(instrument)]; ok && len(t) > 0 {
		return t
	}
	return ts.Default
}

// Validate validates the default and every per-instrument table.
func (ts Tables) Validate() error {
	if err := ts.Default.Validate(); err != nil {
		return fmt.Errorf("default: %w", err)
	}
	for name, t := range ts.ByInstrument {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// DefaultRankTable classifies aggregate scores.
func DefaultRankTable() Table {
	return Table{
		{Label: "Top 50", Min: 100000},
		{Label: "Unreal", Min: 50000},
		{Label: "Champion", Min: 30000},
		{Label: "Diamond", Min: 25000},
		{Label: "Gold", Min: 17500},
		{Label: "Silver", Min: 10000},
		{Label: "Bronze", Min: 0},
	}
}

// DefaultRankTables uses the aggregate table for every instrument.
func DefaultRankTables() Tables {
	return Tables{Default: DefaultRankTable(), ByInstrument: map[string]Table{}}
}

// DefaultNamedTable classifies top-N means on a single instrument.
func DefaultNamedTable() Table {
	return Table{
		{Label: "Top 50", Min: 700},
		{Label: "Unreal", Min: 650},
		{Label: "Champion", Min: 600},
		{Label: "Diamond", Min: 500},
		{Label: "Gold", Min: 400},
		{Label: "Silver", Min: 300},
		{Label: "Bronze", Min: 0},
	}
}

// DefaultAccuracyTable classifies weighted accuracy percentages.
func DefaultAccuracyTable() Table {
	return Table{
		{Label: "Top 50", Min: 95},
		{Label: "Unreal", Min: 90},
		{Label: "Champion", Min: 80},
		{Label: "Diamond", Min: 70},
		{Label: "Gold", Min: 60},
		{Label: "Silver", Min: 50},
		{Label: "Bronze", Min: 0},
	}
}

// DefaultInstruments lists the instruments the community tracks.
func DefaultInstruments() []string {
	return []string{"Lead", "Vocals", "Drums", "Bass", "Pro Lead", "Pro Bass"}
}

// DefaultNamedTables returns one named-rank table per default instrument.
func DefaultNamedTables() Tables {
	ts := Tables{Default: DefaultNamedTable(), ByInstrument: map[string]Table{}}
	for _, inst := range DefaultInstruments() {
		ts.ByInstrument[NormalizeKey(inst)] = DefaultNamedTable()
	}
	return ts
}
