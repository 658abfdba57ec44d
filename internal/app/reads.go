package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/okian/festrank/internal/adapters/repository"
	"github.com/okian/festrank/internal/domain/model"
	"github.com/okian/festrank/internal/domain/scoring"
	"github.com/okian/festrank/internal/domain/types"
)

// Leaderboard returns the top limit rows by aggregate for instrument, or
// across every instrument when instrument is empty.
func (s *Service) Leaderboard(ctx context.Context, instrument string, limit int) ([]types.Entry, error) {
	if limit == 0 {
		limit = defaultLeaderboardLimit
	}
	if limit < 0 || limit > s.maxLimit {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidLimit, s.maxLimit)
	}
	board := repository.AllInstruments
	if instrument != "" {
		var err error
		if board, err = s.resolveInstrument(instrument); err != nil {
			return nil, err
		}
	}

	rows, err := s.index.Top(ctx, board, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	names := map[string]string{}
	out := make([]types.Entry, len(rows))
	for i, r := range rows {
		display := s.byKey[r.Instrument]
		if display == "" {
			display = r.Instrument
		}
		out[i] = types.Entry{
			Rank:       r.Rank,
			UserID:     r.UserID,
			Username:   s.username(ctx, names, r.UserID, display),
			Instrument: display,
			Score:      r.Score,
			Tier:       s.engine.Tier(display, r.Score),
		}
	}
	return out, nil
}

// username looks up a display name once per user.
func (s *Service) username(ctx context.Context, cache map[string]string, userID, instrument string) string {
	if name, ok := cache[userID]; ok {
		return name
	}
	name := userID
	if p, err := s.store.GetPlayer(ctx, userID, instrument); err == nil && p.Username != "" {
		name = p.Username
	}
	cache[userID] = name
	return name
}

// PlayerProfile returns the per-instrument standing of one player.
func (s *Service) PlayerProfile(ctx context.Context, userID string) (types.Profile, error) {
	all, err := s.store.PlayerInstruments(ctx, userID)
	if err != nil {
		return types.Profile{}, fmt.Errorf("profile: %w", err)
	}
	if len(all) == 0 {
		return types.Profile{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, userID)
	}

	prof := types.Profile{UserID: userID, Instruments: make([]types.InstrumentSummary, 0, len(all))}
	for _, p := range all {
		if p.Username != "" {
			prof.Username = p.Username
		}
		sum := types.InstrumentSummary{
			Instrument: p.Instrument,
			Aggregate:  p.Aggregate,
			Tier:       p.Tier,
			NamedRank:  p.NamedRank,
			NamedMean:  p.NamedMean,
			Songs:      len(p.Bests),
		}
		if e, err := s.index.Rank(ctx, userID, p.Instrument); err == nil {
			sum.Rank = e.Rank
		}
		prof.Instruments = append(prof.Instruments, sum)
	}
	sort.Slice(prof.Instruments, func(i, j int) bool {
		return prof.Instruments[i].Aggregate > prof.Instruments[j].Aggregate
	})
	return prof, nil
}

func (s *Service) player(ctx context.Context, userID, instrument string) (model.PlayerInstrument, error) {
	instrument, err := s.resolveInstrument(instrument)
	if err != nil {
		return model.PlayerInstrument{}, err
	}
	p, err := s.store.GetPlayer(ctx, userID, instrument)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		return p, fmt.Errorf("%w: %s on %s", ErrPlayerNotFound, userID, instrument)
	}
	return p, err
}

// catalogIndex maps song keys to metadata for one instrument.
func (s *Service) catalogIndex(ctx context.Context, instrument string) (map[string]model.SongMetadata, error) {
	songs, err := s.store.ListSongs(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	out := make(map[string]model.SongMetadata, len(songs))
	for _, m := range songs {
		out[repository.Key(m.Instrument)+"\x1f"+repository.Key(m.Song)] = m
	}
	return out, nil
}

func lookup(catalog map[string]model.SongMetadata, instrument, song string) (model.SongMetadata, bool) {
	m, ok := catalog[repository.Key(instrument)+"\x1f"+repository.Key(song)]
	return m, ok
}

// songEntries renders ranked scores with their decay weight and, where the
// catalog knows the song, the estimated note split.
func (s *Service) songEntries(instrument string, ranked []scoring.SongScore, catalog map[string]model.SongMetadata) []types.SongEntry {
	out := make([]types.SongEntry, len(ranked))
	for i, sc := range ranked {
		e := types.SongEntry{
			Position:      i + 1,
			Song:          sc.Song,
			Score:         sc.Score,
			WeightPercent: scoring.Round2(100 * s.engine.Weight(i)),
		}
		if m, ok := lookup(catalog, instrument, sc.Song); ok && m.Complete() {
			e.Difficulty = m.Difficulty
			e.Perfect, e.Good = scoring.Invert(sc.Score, m.Difficulty, m.TotalNotes)
			e.MetadataAvailable = true
		}
		out[i] = e
	}
	return out
}

// SongBreakdown lists the player's best songs on instrument, highest first.
func (s *Service) SongBreakdown(ctx context.Context, userID, instrument string) ([]types.SongEntry, error) {
	p, err := s.player(ctx, userID, instrument)
	if err != nil {
		return nil, err
	}
	catalog, err := s.catalogIndex(ctx, p.Instrument)
	if err != nil {
		return nil, err
	}
	ranked := scoring.Ranked(scoring.FromMap(p.Bests))
	if len(ranked) > defaultBreakdownSize {
		ranked = ranked[:defaultBreakdownSize]
	}
	return s.songEntries(p.Instrument, ranked, catalog), nil
}

// TournamentRank reports the named rank of a player on instrument together
// with the distance to the next tier.
func (s *Service) TournamentRank(ctx context.Context, userID, instrument string) (types.Tournament, error) {
	p, err := s.player(ctx, userID, instrument)
	if err != nil {
		return types.Tournament{}, err
	}
	catalog, err := s.catalogIndex(ctx, p.Instrument)
	if err != nil {
		return types.Tournament{}, err
	}

	ranked := scoring.Ranked(scoring.FromMap(p.Bests))
	named := s.engine.NamedRank(p.Instrument, ranked)
	table := s.engine.NamedTable(p.Instrument)

	t := types.Tournament{
		UserID:     userID,
		Instrument: p.Instrument,
		NamedRank:  named.Label,
		Mean:       scoring.Round2(named.Mean),
		Thresholds: make([]types.Threshold, len(table)),
	}
	for i, tier := range table {
		t.Thresholds[i] = types.Threshold{Label: tier.Label, Min: tier.Min}
	}
	if next, needed, ok := table.Next(named.Mean); ok {
		t.NextRank = next.Label
		t.Needed = scoring.Round2(needed)
	} else {
		t.TopReached = true
	}

	if n := s.engine.TopN(); len(ranked) > n {
		ranked = ranked[:n]
	}
	t.Songs = s.songEntries(p.Instrument, ranked, catalog)
	return t, nil
}

// AccuracyLeaderboard ranks players by their mean weighted accuracy over
// songs whose metadata allows estimating the note split. An empty
// instrument pools every instrument per player.
func (s *Service) AccuracyLeaderboard(ctx context.Context, instrument string) ([]types.AccuracyEntry, error) {
	board := repository.AllInstruments
	if instrument != "" {
		var err error
		if board, err = s.resolveInstrument(instrument); err != nil {
			return nil, err
		}
	}
	players, err := s.store.ListPlayers(ctx, board)
	if err != nil {
		return nil, fmt.Errorf("accuracy: %w", err)
	}
	catalog, err := s.catalogIndex(ctx, board)
	if err != nil {
		return nil, err
	}

	type acc struct {
		name  string
		sum   float64
		songs int
	}
	byUser := map[string]*acc{}
	for _, p := range players {
		a := byUser[p.UserID]
		if a == nil {
			a = &acc{name: p.UserID}
			byUser[p.UserID] = a
		}
		if p.Username != "" {
			a.name = p.Username
		}
		for song, score := range p.Bests {
			m, ok := lookup(catalog, p.Instrument, song)
			if !ok || !m.Complete() {
				continue
			}
			perfect, good := scoring.Invert(score, m.Difficulty, m.TotalNotes)
			a.sum += scoring.WeightedAccuracy(perfect, good, m.TotalNotes)
			a.songs++
		}
	}

	out := make([]types.AccuracyEntry, 0, len(byUser))
	for id, a := range byUser {
		if a.songs == 0 {
			continue
		}
		mean := scoring.Round2(a.sum / float64(a.songs))
		out = append(out, types.AccuracyEntry{
			UserID:   id,
			Username: a.name,
			Accuracy: mean,
			Tier:     s.engine.AccuracyTier(mean),
			Songs:    a.songs,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Accuracy != out[j].Accuracy {
			return out[i].Accuracy > out[j].Accuracy
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > accuracyBoardSize {
		out = out[:accuracyBoardSize]
	}
	for i := range out {
		if i > 0 && out[i].Accuracy == out[i-1].Accuracy {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	return out, nil
}
