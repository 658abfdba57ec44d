// Package model contains domain models passed between layers.
package model

// SongMetadata describes one song on one instrument.
type SongMetadata struct {
	Instrument    string  `json:"instrument"`
	Song          string  `json:"song"`
	Difficulty    float64 `json:"difficulty"`
	DifficultySet bool    `json:"difficulty_set"`
	TotalNotes    int     `json:"total_notes"`
}

// Complete reports whether the inverter has everything it needs.
func (m SongMetadata) Complete() bool {
	return m.DifficultySet && m.Difficulty > 0 && m.TotalNotes > 0
}

// Coverage summarises how much of the catalog carries note counts.
type Coverage struct {
	WithDifficulty int            `json:"with_difficulty"`
	WithTotalNotes int            `json:"with_total_notes"`
	Percent        float64        `json:"percent"`
	Missing        []SongMetadata `json:"missing"`
	Page           int            `json:"page"`
	Pages          int            `json:"pages"`
}
