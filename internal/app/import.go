package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/okian/festrank/internal/adapters/repository"
	"github.com/okian/festrank/internal/domain/model"
	"github.com/okian/festrank/pkg/logger"
)

// ImportStats summarises a legacy import.
type ImportStats struct {
	Songs        int `json:"songs"`
	Players      int `json:"players"`
	Records      int `json:"records"`
	Skipped      int `json:"skipped"`
	BestsRead    int `json:"bests_read"`
	BadUsernames int `json:"bad_usernames"`
}

type legacySong struct {
	Difficulty json.RawMessage `json:"difficulty"`
	TotalNotes int             `json:"total_notes"`
}

// legacyDifficulty reads a difficulty that is either a number or a
// placeholder string meaning unset.
func legacyDifficulty(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, f > 0
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil && v > 0 {
			return v, true
		}
	}
	return 0, false
}

// ImportSongInfo loads a legacy {instrument: {song: {difficulty,
// total_notes}}} document into the catalog.
func (s *Service) ImportSongInfo(ctx context.Context, r io.Reader) (int, error) {
	var doc map[string]map[string]legacySong
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode song info: %w", err)
	}
	n := 0
	for inst, songs := range doc {
		display, err := s.resolveInstrument(inst)
		if err != nil {
			s.logger.Warn(ctx, "skipping unknown instrument", logger.String("instrument", inst))
			continue
		}
		for name, info := range songs {
			d, set := legacyDifficulty(info.Difficulty)
			meta := model.SongMetadata{
				Instrument:    display,
				Song:          name,
				Difficulty:    d,
				DifficultySet: set,
				TotalNotes:    info.TotalNotes,
			}
			if err := s.store.UpsertSong(ctx, meta); err != nil {
				return n, fmt.Errorf("import %q on %s: %w", name, display, err)
			}
			n++
		}
	}
	return n, nil
}

// ImportPlayerData loads a legacy {player_id: {username, <Instrument>:
// {songs: {name: score}}}} document. Cached ranks in the document are
// ignored and recomputed from the songs.
func (s *Service) ImportPlayerData(ctx context.Context, r io.Reader) (ImportStats, error) {
	var doc map[string]map[string]json.RawMessage
	var st ImportStats
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return st, fmt.Errorf("decode player data: %w", err)
	}

	for userID, fields := range doc {
		var username string
		if raw, ok := fields["username"]; ok {
			if err := json.Unmarshal(raw, &username); err != nil {
				st.BadUsernames++
				s.logger.Warn(ctx, "ignoring malformed username",
					logger.String("user_id", userID),
					logger.Error(err),
				)
			}
		}
		st.Players++
		for key, raw := range fields {
			if key == "username" {
				continue
			}
			inst, err := s.resolveInstrument(key)
			if err != nil {
				st.Skipped++
				continue
			}
			var rec struct {
				Songs map[string]float64 `json:"songs"`
			}
			if err := json.Unmarshal(raw, &rec); err != nil {
				st.Skipped++
				s.logger.Warn(ctx, "skipping malformed record",
					logger.String("user_id", userID),
					logger.String("instrument", inst),
					logger.Error(err),
				)
				continue
			}
			if err := s.importRecord(ctx, userID, username, inst, rec.Songs); err != nil {
				return st, err
			}
			st.Records++
			st.BestsRead += len(rec.Songs)
		}
	}
	return st, nil
}

func (s *Service) importRecord(ctx context.Context, userID, username, instrument string, songs map[string]float64) error {
	unlock := s.locks.lock(repository.Key(userID), repository.Key(instrument))
	defer unlock()

	p, err := s.store.GetPlayer(ctx, userID, instrument)
	switch {
	case errors.Is(err, repository.ErrPlayerNotFound):
		p = model.PlayerInstrument{UserID: userID, Instrument: instrument}
	case err != nil:
		return fmt.Errorf("load player: %w", err)
	}
	if p.Bests == nil {
		p.Bests = map[string]float64{}
	}
	if username != "" {
		p.Username = username
	}
	for name, score := range songs {
		if meta, err := s.store.GetSong(ctx, instrument, name); err == nil {
			name = meta.Song
		}
		if score > p.Bests[name] {
			p.Bests[name] = score
		}
	}
	_, err = s.recomputeLocked(ctx, p)
	return err
}
