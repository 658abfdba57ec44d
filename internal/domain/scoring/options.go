package scoring

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithDecay sets the aggregation decay rate. Values outside (0, 1) are ignored.
func WithDecay(decay float64) Option {
	return func(e *Engine) {
		if decay > 0 && decay < 1 {
			e.decay = decay
		}
	}
}

// WithTopK sets how many songs count toward the aggregate.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithNamedTopN sets how many songs are averaged for the named rank.
func WithNamedTopN(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topN = n
		}
	}
}

// WithRankTable sets the default table used for aggregate tiers. Instruments
// without a table of their own use it.
func WithRankTable(t Table) Option {
	return func(e *Engine) {
		if len(t) > 0 {
			e.rank.Default = t.Clone()
		}
	}
}

// WithRankTables sets per-instrument aggregate tier tables. An empty default
// keeps the current one.
func WithRankTables(ts Tables) Option {
	return func(e *Engine) {
		cp := Tables{Default: ts.Default.Clone(), ByInstrument: make(map[string]Table, len(ts.ByInstrument))}
		for k, t := range ts.ByInstrument {
			cp.ByInstrument[NormalizeKey(k)] = t.Clone()
		}
		if len(cp.Default) == 0 {
			cp.Default = e.rank.Default
		}
		e.rank = cp
	}
}

// WithNamedTables sets the per-instrument named-rank tables.
func WithNamedTables(ts Tables) Option {
	return func(e *Engine) {
		cp := Tables{Default: ts.Default.Clone(), ByInstrument: make(map[string]Table, len(ts.ByInstrument))}
		for k, t := range ts.ByInstrument {
			cp.ByInstrument[NormalizeKey(k)] = t.Clone()
		}
		if len(cp.Default) == 0 {
			cp.Default = DefaultNamedTable()
		}
		e.named = cp
	}
}

// WithAccuracyTable sets the table used for accuracy tiers.
func WithAccuracyTable(t Table) Option {
	return func(e *Engine) {
		if len(t) > 0 {
			e.accuracy = t.Clone()
		}
	}
}
