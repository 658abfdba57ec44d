package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/okian/festrank/internal/adapters/events"
	"github.com/okian/festrank/internal/adapters/mq/queue"
	"github.com/okian/festrank/internal/adapters/repository"
	"github.com/okian/festrank/internal/domain/model"
	"github.com/okian/festrank/internal/domain/scoring"
	"github.com/okian/festrank/pkg/logger"
	"github.com/okian/festrank/pkg/metrics"
)

// indexTolerance absorbs the fixed-point rounding of in-memory indexes.
const indexTolerance = 1e-6

// Verification states reported in a SubmissionResult.
const (
	VerificationQueued  = "queued"
	VerificationNone    = "none"
	VerificationDropped = "dropped"
)

func validateSubmission(sub *model.Submission) error {
	if strings.TrimSpace(sub.UserID) == "" || strings.TrimSpace(sub.Song) == "" {
		return fmt.Errorf("%w: user_id and song are required", ErrInvalidSubmission)
	}
	c := sub.Counts
	if c.Negative() {
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidCounts)
	}
	if c.Missed != 0 || c.Striked != 0 {
		return ErrNotFullCombo
	}
	if c.Total() == 0 {
		return fmt.Errorf("%w: no notes", ErrInvalidCounts)
	}
	if sub.Difficulty != nil && *sub.Difficulty <= 0 {
		return ErrInvalidDifficulty
	}
	return nil
}

// Submit scores one performance and updates the player's best, caches and
// leaderboard position. The same submission ID is processed at most once.
func (s *Service) Submit(ctx context.Context, sub model.Submission) (res model.SubmissionResult, err error) { //nolint:gocritic // hugeParam: request value
	ctx, span := s.tracer.Start(ctx, "Submit")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := validateSubmission(&sub); err != nil {
		_ = metrics.RecordSubmission(sub.Instrument, metrics.OutcomeRejected)
		return res, err
	}
	instrument, err := s.resolveInstrument(sub.Instrument)
	if err != nil {
		_ = metrics.RecordSubmission(sub.Instrument, metrics.OutcomeRejected)
		return res, err
	}
	sub.Instrument = instrument
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.TS.IsZero() {
		sub.TS = s.now()
	}
	span.SetAttributes(
		attribute.String("submission.id", sub.ID),
		attribute.String("user.id", sub.UserID),
		attribute.String("instrument", instrument),
	)

	if s.deduper.SeenAndRecord(ctx, sub.ID) {
		_ = metrics.RecordSubmission(instrument, metrics.OutcomeDuplicate)
		return res, fmt.Errorf("%w: %s", ErrDuplicate, sub.ID)
	}
	defer func() {
		if err != nil {
			// let the client retry with the same ID
			s.deduper.Unrecord(ctx, sub.ID)
			_ = metrics.RecordSubmission(instrument, metrics.OutcomeRejected)
		}
	}()

	meta, err := s.songFor(ctx, instrument, sub)
	if err != nil {
		return res, err
	}
	sub.Song = meta.Song

	start := time.Now()
	score := scoring.Normalize(sub.Counts, meta.Difficulty)
	metrics.RecordNormalizeLatency(float64(time.Since(start).Microseconds()) / 1000)

	res = model.SubmissionResult{
		SubmissionID: sub.ID,
		Song:         meta.Song,
		Instrument:   instrument,
		Score:        score,
		Verification: VerificationNone,
	}

	p, changed, err := s.applyBest(ctx, &sub, score, &res)
	if err != nil {
		return res, err
	}
	res.Aggregate = p.Aggregate
	res.Tier = p.Tier
	res.NamedRank = p.NamedRank
	res.NamedMean = p.NamedMean

	if changed {
		s.publishRanks(ctx, p)
	}
	if sub.EvidenceURL != "" {
		res.Verification = s.enqueueVerification(ctx, &sub, score)
	}

	outcome := metrics.OutcomeAccepted
	if res.Improved {
		outcome = metrics.OutcomeImproved
	}
	_ = metrics.RecordSubmission(instrument, outcome)
	s.logger.Debug(ctx, "submission scored",
		logger.String("submission_id", sub.ID),
		logger.String("user_id", sub.UserID),
		logger.String("instrument", instrument),
		logger.String("song", meta.Song),
		logger.Float64("score", score),
		logger.Bool("improved", res.Improved),
	)
	return res, nil
}

// songFor resolves the catalog entry, storing the difficulty supplied with
// the submission when none is set and fixing the total note count on first use.
func (s *Service) songFor(ctx context.Context, instrument string, sub model.Submission) (model.SongMetadata, error) { //nolint:gocritic // hugeParam: request value
	meta, err := s.store.GetSong(ctx, instrument, sub.Song)
	if errors.Is(err, repository.ErrSongNotFound) {
		return meta, fmt.Errorf("%w: %q on %s", ErrUnknownSong, sub.Song, instrument)
	}
	if err != nil {
		return meta, err
	}

	if !meta.DifficultySet {
		if sub.Difficulty == nil {
			return meta, ErrDifficultyRequired
		}
		wrote, err := s.store.SetDifficultyIfUnset(ctx, instrument, meta.Song, *sub.Difficulty)
		if err != nil {
			return meta, fmt.Errorf("store difficulty: %w", err)
		}
		if wrote {
			meta.Difficulty = *sub.Difficulty
			meta.DifficultySet = true
		} else {
			// another submission set it first; score against the stored value
			if meta, err = s.store.GetSong(ctx, instrument, meta.Song); err != nil {
				return meta, fmt.Errorf("reload song: %w", err)
			}
			if !meta.DifficultySet {
				return meta, ErrDifficultyRequired
			}
		}
	}

	if meta.TotalNotes == 0 {
		total := sub.Counts.Total()
		if _, err := s.store.SetTotalNotesIfUnset(ctx, instrument, meta.Song, total); err != nil {
			return meta, fmt.Errorf("store total notes: %w", err)
		}
		meta.TotalNotes = total
	}
	return meta, nil
}

// applyBest runs the serialized part of the pipeline for one (user,
// instrument): best update, recompute, persist and index.
func (s *Service) applyBest(ctx context.Context, sub *model.Submission, score float64, res *model.SubmissionResult) (model.PlayerInstrument, bool, error) {
	unlock := s.locks.lock(repository.Key(sub.UserID), repository.Key(sub.Instrument))
	defer unlock()

	p, err := s.store.GetPlayer(ctx, sub.UserID, sub.Instrument)
	switch {
	case errors.Is(err, repository.ErrPlayerNotFound):
		p = model.PlayerInstrument{UserID: sub.UserID, Instrument: sub.Instrument, Bests: map[string]float64{}}
	case err != nil:
		return p, false, fmt.Errorf("load player: %w", err)
	}
	if p.Bests == nil {
		p.Bests = map[string]float64{}
	}

	song := sub.Song
	prev, had := p.Bests[song]
	res.Previous = prev
	res.FirstSubmission = !had
	res.Improved = !had || score > prev

	renamed := sub.Username != "" && sub.Username != p.Username
	if renamed {
		p.Username = sub.Username
	}
	if !res.Improved && !renamed {
		s.reindexIfStale(ctx, p)
		return p, false, nil
	}
	if res.Improved {
		p.Bests[song] = score
	}

	p, err = s.recomputeLocked(ctx, p)
	return p, res.Improved, err
}

// Recompute re-derives the cached aggregate, tier and named rank of one
// (user, instrument) from its bests and persists them.
func (s *Service) Recompute(ctx context.Context, userID, instrument string) (model.PlayerInstrument, error) {
	instrument, err := s.resolveInstrument(instrument)
	if err != nil {
		return model.PlayerInstrument{}, err
	}
	unlock := s.locks.lock(repository.Key(userID), repository.Key(instrument))
	defer unlock()

	p, err := s.store.GetPlayer(ctx, userID, instrument)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		return p, ErrPlayerNotFound
	}
	if err != nil {
		return p, err
	}
	return s.recomputeLocked(ctx, p)
}

func (s *Service) recomputeLocked(ctx context.Context, p model.PlayerInstrument) (model.PlayerInstrument, error) { //nolint:gocritic // hugeParam: record value
	ctx, span := s.tracer.Start(ctx, "Recompute")
	defer span.End()
	start := time.Now()

	sum := s.engine.Summarize(p.Instrument, p.Bests)
	p.Aggregate = sum.Aggregate
	p.Tier = sum.Tier
	p.NamedRank = sum.Named.Label
	p.NamedMean = sum.Named.Mean
	p.UpdatedAt = s.now()
	span.SetAttributes(
		attribute.Int("songs", sum.Songs),
		attribute.Float64("aggregate", sum.Aggregate),
	)

	if err := s.store.SavePlayer(ctx, p); err != nil {
		span.RecordError(err)
		return p, fmt.Errorf("save player: %w", err)
	}
	// The store is the source of truth once SavePlayer commits. A lost index
	// write is repaired by the next submission for the pair or by Warm.
	if err := s.indexPlayer(ctx, p); err != nil {
		span.RecordError(err)
	}
	metrics.RecordRankRecompute(float64(time.Since(start).Microseconds()) / 1000)
	return p, nil
}

func (s *Service) indexPlayer(ctx context.Context, p model.PlayerInstrument) error { //nolint:gocritic // hugeParam: record value
	err := s.index.Set(ctx, p.UserID, p.Instrument, p.Aggregate)
	if err != nil {
		metrics.RecordErrorByComponent("index", "set")
		s.logger.Warn(ctx, "index player",
			logger.String("user_id", p.UserID),
			logger.String("instrument", p.Instrument),
			logger.Error(err),
		)
	}
	return err
}

// reindexIfStale rewrites the index entry of p when it is missing or does
// not hold the stored aggregate.
func (s *Service) reindexIfStale(ctx context.Context, p model.PlayerInstrument) { //nolint:gocritic // hugeParam: record value
	e, err := s.index.Rank(ctx, p.UserID, p.Instrument)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		s.logger.Warn(ctx, "read index entry", logger.String("user_id", p.UserID), logger.Error(err))
		return
	case math.Abs(e.Score-p.Aggregate) < indexTolerance:
		return
	}
	if s.indexPlayer(ctx, p) == nil {
		s.logger.Info(ctx, "index entry repaired",
			logger.String("user_id", p.UserID),
			logger.String("instrument", p.Instrument),
		)
	}
}

func (s *Service) publishRanks(ctx context.Context, p model.PlayerInstrument) { //nolint:gocritic // hugeParam: record value
	all, err := s.store.PlayerInstruments(ctx, p.UserID)
	if err != nil {
		s.logger.Warn(ctx, "load instruments for event", logger.String("user_id", p.UserID), logger.Error(err))
		return
	}
	ranks := make([]model.InstrumentRank, 0, len(all))
	for _, pi := range all {
		ranks = append(ranks, model.InstrumentRank{
			Instrument: pi.Instrument,
			NamedRank:  pi.NamedRank,
			Songs:      len(pi.Bests),
		})
	}
	ev := model.RanksRecomputed{
		UserID:      p.UserID,
		Username:    p.Username,
		Instrument:  p.Instrument,
		Aggregate:   p.Aggregate,
		Tier:        p.Tier,
		NamedRank:   p.NamedRank,
		Instruments: ranks,
		TS:          s.now(),
	}
	if err := s.bus.Publish(ctx, events.TopicRanksRecomputed, ev); err != nil {
		s.logger.Warn(ctx, "publish ranks recomputed", logger.Error(err))
	}
}

func (s *Service) enqueueVerification(ctx context.Context, sub *model.Submission, score float64) string {
	err := s.queue.Enqueue(ctx, queue.Job{
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		Instrument:   sub.Instrument,
		Song:         sub.Song,
		Score:        score,
		Counts:       sub.Counts,
		EvidenceURL:  sub.EvidenceURL,
	})
	if err != nil {
		s.logger.Warn(ctx, "verification not queued",
			logger.String("submission_id", sub.ID),
			logger.Error(err),
		)
		return VerificationDropped
	}
	return VerificationQueued
}
