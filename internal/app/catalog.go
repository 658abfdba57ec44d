package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/festrank/internal/adapters/repository"
	"github.com/okian/festrank/internal/domain/model"
	"github.com/okian/festrank/pkg/logger"
	"github.com/okian/festrank/pkg/metrics"
)

// AddSong registers name on every configured instrument with difficulty
// unset. It returns the instruments the song was new on.
func (s *Service) AddSong(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidSongName
	}
	var added []string
	for _, inst := range s.instruments {
		ok, err := s.store.AddSong(ctx, inst, name)
		if err != nil {
			return added, fmt.Errorf("add %q on %s: %w", name, inst, err)
		}
		if ok {
			added = append(added, inst)
			metrics.RecordSongAdded()
		}
	}
	s.logger.Info(ctx, "song added",
		logger.String("song", name),
		logger.Int("instruments", len(added)),
	)
	return added, nil
}

// SetDifficulty overrides the difficulty of song on instrument.
func (s *Service) SetDifficulty(ctx context.Context, instrument, song string, difficulty float64) error {
	if difficulty <= 0 {
		return ErrInvalidDifficulty
	}
	instrument, err := s.resolveInstrument(instrument)
	if err != nil {
		return err
	}
	err = s.store.SetDifficulty(ctx, instrument, song, difficulty)
	if errors.Is(err, repository.ErrSongNotFound) {
		return fmt.Errorf("%w: %q on %s", ErrUnknownSong, song, instrument)
	}
	return err
}

// ListSongs returns the catalog of one instrument, or all of it.
func (s *Service) ListSongs(ctx context.Context, instrument string) ([]model.SongMetadata, error) {
	board := repository.AllInstruments
	if instrument != "" {
		var err error
		if board, err = s.resolveInstrument(instrument); err != nil {
			return nil, err
		}
	}
	return s.store.ListSongs(ctx, board)
}

// Coverage reports how many songs with a difficulty also know their note
// count, listing the ones that do not a page at a time.
func (s *Service) Coverage(ctx context.Context, page int) (model.Coverage, error) {
	songs, err := s.store.ListSongs(ctx, repository.AllInstruments)
	if err != nil {
		return model.Coverage{}, fmt.Errorf("coverage: %w", err)
	}

	var cov model.Coverage
	var missing []model.SongMetadata
	for _, m := range songs {
		if !m.DifficultySet {
			continue
		}
		cov.WithDifficulty++
		if m.TotalNotes > 0 {
			cov.WithTotalNotes++
		} else {
			missing = append(missing, m)
		}
	}
	if cov.WithDifficulty > 0 {
		cov.Percent = float64(cov.WithTotalNotes) / float64(cov.WithDifficulty) * 100
	}

	cov.Pages = (len(missing) + coveragePageSize - 1) / coveragePageSize
	if cov.Pages == 0 {
		cov.Pages = 1
	}
	cov.Page = min(max(page, 1), cov.Pages)
	lo := (cov.Page - 1) * coveragePageSize
	hi := min(lo+coveragePageSize, len(missing))
	cov.Missing = append([]model.SongMetadata{}, missing[lo:hi]...)
	return cov, nil
}
