package loadgen

import (
	"fmt"
	"math"

	"github.com/brianvoe/gofakeit/v7"
)

// Generator produces deterministic catalogs, players and plays from a seed.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a generator seeded with seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(uint64(seed))}
}

// Catalog returns n songs with unique names. Every instrument gets its own
// difficulty; note counts are shared.
func (g *Generator) Catalog(n int, instruments []string) []Song {
	seen := make(map[string]bool, n)
	songs := make([]Song, 0, n)
	for len(songs) < n {
		name := g.faker.SongName()
		if name == "" || seen[name] {
			name = fmt.Sprintf("%s %d", g.faker.HipsterWord(), len(songs)+1)
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		diff := make(map[string]float64, len(instruments))
		for _, inst := range instruments {
			d := g.faker.Float64Range(minDifficulty, maxDifficulty)
			diff[inst] = math.Round(d*10) / 10
		}
		songs = append(songs, Song{
			Name:       name,
			TotalNotes: g.faker.Number(minNotes, maxNotes),
			Difficulty: diff,
		})
	}
	return songs
}

// Players returns n players with unique IDs.
func (g *Generator) Players(n int) []Player {
	players := make([]Player, n)
	for i := range players {
		players[i] = Player{
			UserID:   g.faker.Numerify("##################"),
			Username: g.faker.Username(),
		}
	}
	return players
}

// Plays returns perPlayer full-combo plays for every player, spread across
// songs and instruments.
func (g *Generator) Plays(players []Player, songs []Song, instruments []string, perPlayer int) []Play {
	plays := make([]Play, 0, len(players)*perPlayer)
	for _, p := range players {
		for i := 0; i < perPlayer; i++ {
			song := songs[g.faker.Number(0, len(songs)-1)]
			inst := instruments[g.faker.Number(0, len(instruments)-1)]
			good := g.faker.Number(0, int(float64(song.TotalNotes)*goodShare))
			plays = append(plays, Play{
				SubmissionID: g.faker.UUID(),
				UserID:       p.UserID,
				Username:     p.Username,
				Instrument:   inst,
				Song:         song.Name,
				Perfect:      song.TotalNotes - good,
				Good:         good,
			})
		}
	}
	return plays
}
