package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/festrank/internal/adapters/events"
	"github.com/okian/festrank/internal/adapters/mq/queue"
	"github.com/okian/festrank/internal/adapters/repository"
	"github.com/okian/festrank/internal/adapters/verify"
	"github.com/okian/festrank/internal/domain/model"
	"github.com/okian/festrank/pkg/logger"
	"github.com/okian/festrank/pkg/metrics"
)

// Verify compares a submission with the counts extracted from its evidence
// and opens a review when they differ. It never changes stored scores.
func (s *Service) Verify(ctx context.Context, j queue.Job) error { //nolint:gocritic // hugeParam: job value
	extracted, err := s.extractor.Extract(ctx, j.EvidenceURL)
	switch {
	case errors.Is(err, verify.ErrDisabled), errors.Is(err, verify.ErrNoEvidence):
		_ = metrics.RecordVerification(metrics.VerifySkipped)
		return nil
	case err != nil:
		_ = metrics.RecordVerification(metrics.VerifyError)
		return fmt.Errorf("extract evidence: %w", err)
	}

	if extracted == j.Counts {
		_ = metrics.RecordVerification(metrics.VerifyMatch)
		return nil
	}
	_ = metrics.RecordVerification(metrics.VerifyMismatch)

	r := model.Review{
		ID:           uuid.NewString(),
		SubmissionID: j.SubmissionID,
		UserID:       j.UserID,
		Instrument:   j.Instrument,
		Song:         j.Song,
		Score:        j.Score,
		Submitted:    j.Counts,
		Extracted:    extracted,
		EvidenceURL:  j.EvidenceURL,
		Status:       model.ReviewPending,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateReview(ctx, r); err != nil {
		return fmt.Errorf("open review: %w", err)
	}
	metrics.RecordReviewOpened()
	s.logger.Info(ctx, "review opened",
		logger.String("review_id", r.ID),
		logger.String("submission_id", j.SubmissionID),
		logger.Any("submitted", j.Counts),
		logger.Any("extracted", extracted),
	)
	if err := s.bus.Publish(ctx, events.TopicReviewOpened, r); err != nil {
		s.logger.Warn(ctx, "publish review opened", logger.Error(err))
	}
	return nil
}

// ListReviews returns reviews with status; empty status returns all.
func (s *Service) ListReviews(ctx context.Context, status model.ReviewStatus) ([]model.Review, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidSubmission, status)
	}
	return s.store.ListReviews(ctx, status)
}

// DecideReview closes a pending review. The decision is recorded and
// published; per-song bests are left as they are.
func (s *Service) DecideReview(ctx context.Context, id string, accept bool, moderator string) (model.Review, error) {
	status := model.ReviewDenied
	if accept {
		status = model.ReviewAccepted
	}
	r, err := s.store.DecideReview(ctx, id, status, moderator)
	switch {
	case errors.Is(err, repository.ErrReviewNotFound):
		return r, fmt.Errorf("%w: %s", ErrReviewNotFound, id)
	case errors.Is(err, repository.ErrReviewClosed):
		return r, fmt.Errorf("%w: %s", ErrReviewClosed, id)
	case err != nil:
		return r, fmt.Errorf("decide review: %w", err)
	}

	metrics.RecordReviewDecided(string(status))
	s.logger.Info(ctx, "review decided",
		logger.String("review_id", id),
		logger.String("status", string(status)),
		logger.String("moderator", moderator),
	)
	if err := s.bus.Publish(ctx, events.TopicReviewDecided, model.ReviewDecided{Review: r, TS: s.now()}); err != nil {
		s.logger.Warn(ctx, "publish review decided", logger.Error(err))
	}
	return r, nil
}
