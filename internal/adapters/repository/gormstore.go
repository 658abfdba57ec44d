package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/okian/festrank/internal/domain/model"
	"github.com/okian/festrank/pkg/metrics"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type songRow struct {
	Instrument     string `gorm:"primaryKey;size:64"`
	SongKey        string `gorm:"primaryKey;size:255"`
	InstrumentName string `gorm:"size:64"`
	Name           string `gorm:"size:255"`
	Difficulty     float64
	DifficultySet  bool `gorm:"index"`
	TotalNotes     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (songRow) TableName() string { return "songs" }

type playerRow struct {
	UserID         string `gorm:"primaryKey;size:128"`
	Instrument     string `gorm:"primaryKey;size:64"`
	Username       string `gorm:"size:128"`
	InstrumentName string `gorm:"size:64"`
	Aggregate      float64
	Tier           string `gorm:"size:32"`
	NamedRank      string `gorm:"size:32"`
	NamedMean      float64
	UpdatedAt      time.Time
}

func (playerRow) TableName() string { return "player_instruments" }

type bestRow struct {
	UserID     string `gorm:"primaryKey;size:128"`
	Instrument string `gorm:"primaryKey;size:64"`
	SongKey    string `gorm:"primaryKey;size:255"`
	Song       string `gorm:"size:255"`
	Score      float64
}

func (bestRow) TableName() string { return "song_bests" }

type reviewRow struct {
	ID               string `gorm:"primaryKey;size:64"`
	SubmissionID     string `gorm:"index;size:64"`
	UserID           string `gorm:"index;size:128"`
	Instrument       string `gorm:"size:64"`
	Song             string `gorm:"size:255"`
	Score            float64
	SubmittedPerfect int
	SubmittedGood    int
	SubmittedMissed  int
	SubmittedStriked int
	ExtractedPerfect int
	ExtractedGood    int
	ExtractedMissed  int
	ExtractedStriked int
	EvidenceURL      string `gorm:"size:1024"`
	Status           string `gorm:"index;size:16"`
	Moderator        string `gorm:"size:128"`
	CreatedAt        time.Time
	DecidedAt        *time.Time
}

func (reviewRow) TableName() string { return "reviews" }

// GormStore implements CatalogStore, PlayerStore and ReviewStore on gorm.
type GormStore struct {
	db *gorm.DB
}

// Open connects with driver ("sqlite" or "postgres") and migrates the schema.
func Open(driver, dsn string, opts ...GormOption) (*GormStore, error) {
	cfg := &gormConfig{logLevel: logger.Silent, slowThreshold: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(cfg)
	}

	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(cfg.logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if cfg.maxOpenConns > 0 {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(cfg.maxOpenConns)
		}
	}
	return NewGormStore(db)
}

// NewGormStore wraps an open connection and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&songRow{}, &playerRow{}, &bestRow{}, &reviewRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

func observe(start time.Time, write bool) {
	ms := float64(time.Since(start).Microseconds()) / 1000
	if write {
		metrics.RecordRepositoryUpdateLatency("gorm", ms)
		return
	}
	metrics.RecordRepositoryQueryLatency("gorm", ms)
}

func toSong(r songRow) model.SongMetadata {
	return model.SongMetadata{
		Instrument:    r.InstrumentName,
		Song:          r.Name,
		Difficulty:    r.Difficulty,
		DifficultySet: r.DifficultySet,
		TotalNotes:    r.TotalNotes,
	}
}

// AddSong implements CatalogStore.AddSong.
func (s *GormStore) AddSong(ctx context.Context, instrument, song string) (bool, error) {
	defer observe(time.Now(), true)
	if Key(instrument) == "" || Key(song) == "" {
		return false, ErrInvalidKey
	}
	row := songRow{
		Instrument:     Key(instrument),
		SongKey:        Key(song),
		InstrumentName: strings.TrimSpace(instrument),
		Name:           strings.TrimSpace(song),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("add song: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetSong implements CatalogStore.GetSong.
func (s *GormStore) GetSong(ctx context.Context, instrument, song string) (model.SongMetadata, error) {
	defer observe(time.Now(), false)
	var row songRow
	err := s.db.WithContext(ctx).
		Where("instrument = ? AND song_key = ?", Key(instrument), Key(song)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.SongMetadata{}, ErrSongNotFound
	}
	if err != nil {
		return model.SongMetadata{}, fmt.Errorf("get song: %w", err)
	}
	return toSong(row), nil
}

// ListSongs implements CatalogStore.ListSongs. AllInstruments lists every song.
func (s *GormStore) ListSongs(ctx context.Context, instrument string) ([]model.SongMetadata, error) {
	defer observe(time.Now(), false)
	var rows []songRow
	q := s.db.WithContext(ctx).Order("instrument, song_key")
	if k := Key(instrument); k != AllInstruments {
		q = q.Where("instrument = ?", k)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	out := make([]model.SongMetadata, len(rows))
	for i, r := range rows {
		out[i] = toSong(r)
	}
	return out, nil
}

// SetDifficulty implements CatalogStore.SetDifficulty.
func (s *GormStore) SetDifficulty(ctx context.Context, instrument, song string, difficulty float64) error {
	defer observe(time.Now(), true)
	res := s.db.WithContext(ctx).Model(&songRow{}).
		Where("instrument = ? AND song_key = ?", Key(instrument), Key(song)).
		Updates(map[string]any{"difficulty": difficulty, "difficulty_set": true})
	if res.Error != nil {
		return fmt.Errorf("set difficulty: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSongNotFound
	}
	return nil
}

// SetDifficultyIfUnset implements CatalogStore.SetDifficultyIfUnset.
func (s *GormStore) SetDifficultyIfUnset(ctx context.Context, instrument, song string, difficulty float64) (bool, error) {
	defer observe(time.Now(), true)
	res := s.db.WithContext(ctx).Model(&songRow{}).
		Where("instrument = ? AND song_key = ? AND difficulty_set = ?", Key(instrument), Key(song), false).
		Updates(map[string]any{"difficulty": difficulty, "difficulty_set": true})
	if res.Error != nil {
		return false, fmt.Errorf("set difficulty: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	if _, err := s.GetSong(ctx, instrument, song); err != nil {
		return false, err
	}
	return false, nil
}

// SetTotalNotesIfUnset implements CatalogStore.SetTotalNotesIfUnset.
func (s *GormStore) SetTotalNotesIfUnset(ctx context.Context, instrument, song string, totalNotes int) (bool, error) {
	defer observe(time.Now(), true)
	res := s.db.WithContext(ctx).Model(&songRow{}).
		Where("instrument = ? AND song_key = ? AND total_notes = 0", Key(instrument), Key(song)).
		Update("total_notes", totalNotes)
	if res.Error != nil {
		return false, fmt.Errorf("set total notes: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpsertSong implements CatalogStore.UpsertSong.
func (s *GormStore) UpsertSong(ctx context.Context, meta model.SongMetadata) error {
	defer observe(time.Now(), true)
	if Key(meta.Instrument) == "" || Key(meta.Song) == "" {
		return ErrInvalidKey
	}
	row := songRow{
		Instrument:     Key(meta.Instrument),
		SongKey:        Key(meta.Song),
		InstrumentName: strings.TrimSpace(meta.Instrument),
		Name:           strings.TrimSpace(meta.Song),
		Difficulty:     meta.Difficulty,
		DifficultySet:  meta.DifficultySet,
		TotalNotes:     meta.TotalNotes,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument"}, {Name: "song_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "difficulty", "difficulty_set", "total_notes", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert song: %w", err)
	}
	return nil
}

// GetPlayer implements PlayerStore.GetPlayer.
func (s *GormStore) GetPlayer(ctx context.Context, userID, instrument string) (model.PlayerInstrument, error) {
	defer observe(time.Now(), false)
	var row playerRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND instrument = ?", Key(userID), Key(instrument)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PlayerInstrument{}, ErrPlayerNotFound
	}
	if err != nil {
		return model.PlayerInstrument{}, fmt.Errorf("get player: %w", err)
	}
	players, err := s.attachBests(ctx, []playerRow{row})
	if err != nil {
		return model.PlayerInstrument{}, err
	}
	return players[0], nil
}

// SavePlayer implements PlayerStore.SavePlayer.
func (s *GormStore) SavePlayer(ctx context.Context, p model.PlayerInstrument) error {
	defer observe(time.Now(), true)
	user, inst := Key(p.UserID), Key(p.Instrument)
	if user == "" || inst == "" {
		return ErrInvalidKey
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	row := playerRow{
		UserID:         user,
		Instrument:     inst,
		Username:       p.Username,
		InstrumentName: strings.TrimSpace(p.Instrument),
		Aggregate:      p.Aggregate,
		Tier:           p.Tier,
		NamedRank:      p.NamedRank,
		NamedMean:      p.NamedMean,
		UpdatedAt:      updated,
	}
	bests := make([]bestRow, 0, len(p.Bests))
	for song, score := range p.Bests {
		bests = append(bests, bestRow{UserID: user, Instrument: inst, SongKey: Key(song), Song: strings.TrimSpace(song), Score: score})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("save player: %w", err)
		}
		if len(bests) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "instrument"}, {Name: "song_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"song", "score"}),
		}).CreateInBatches(&bests, 200).Error
	})
	if err != nil {
		return fmt.Errorf("save player %s/%s: %w", user, inst, err)
	}
	return nil
}

// ListPlayers implements PlayerStore.ListPlayers.
func (s *GormStore) ListPlayers(ctx context.Context, instrument string) ([]model.PlayerInstrument, error) {
	defer observe(time.Now(), false)
	var rows []playerRow
	q := s.db.WithContext(ctx).Order("user_id, instrument")
	if k := Key(instrument); k != AllInstruments {
		q = q.Where("instrument = ?", k)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return s.attachBests(ctx, rows)
}

// PlayerInstruments implements PlayerStore.PlayerInstruments.
func (s *GormStore) PlayerInstruments(ctx context.Context, userID string) ([]model.PlayerInstrument, error) {
	defer observe(time.Now(), false)
	var rows []playerRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", Key(userID)).Order("instrument").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list player instruments: %w", err)
	}
	return s.attachBests(ctx, rows)
}

func (s *GormStore) attachBests(ctx context.Context, rows []playerRow) ([]model.PlayerInstrument, error) {
	out := make([]model.PlayerInstrument, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	idx := make(map[string]int, len(rows))
	users := make([]string, 0, len(rows))
	seen := map[string]bool{}
	for i, r := range rows {
		out[i] = model.PlayerInstrument{
			UserID:     r.UserID,
			Username:   r.Username,
			Instrument: r.InstrumentName,
			Bests:      map[string]float64{},
			Aggregate:  r.Aggregate,
			Tier:       r.Tier,
			NamedRank:  r.NamedRank,
			NamedMean:  r.NamedMean,
			UpdatedAt:  r.UpdatedAt,
		}
		idx[r.UserID+memberSep+r.Instrument] = i
		if !seen[r.UserID] {
			seen[r.UserID] = true
			users = append(users, r.UserID)
		}
	}
	sort.Strings(users)

	var bests []bestRow
	if err := s.db.WithContext(ctx).Where("user_id IN ?", users).Find(&bests).Error; err != nil {
		return nil, fmt.Errorf("load bests: %w", err)
	}
	for _, b := range bests {
		if i, ok := idx[b.UserID+memberSep+b.Instrument]; ok {
			out[i].Bests[b.Song] = b.Score
		}
	}
	return out, nil
}

func toReview(r reviewRow) model.Review {
	return model.Review{
		ID:           r.ID,
		SubmissionID: r.SubmissionID,
		UserID:       r.UserID,
		Instrument:   r.Instrument,
		Song:         r.Song,
		Score:        r.Score,
		Submitted:    countsOf(r.SubmittedPerfect, r.SubmittedGood, r.SubmittedMissed, r.SubmittedStriked),
		Extracted:    countsOf(r.ExtractedPerfect, r.ExtractedGood, r.ExtractedMissed, r.ExtractedStriked),
		EvidenceURL:  r.EvidenceURL,
		Status:       model.ReviewStatus(r.Status),
		Moderator:    r.Moderator,
		CreatedAt:    r.CreatedAt,
		DecidedAt:    r.DecidedAt,
	}
}

// CreateReview implements ReviewStore.CreateReview.
func (s *GormStore) CreateReview(ctx context.Context, r model.Review) error {
	defer observe(time.Now(), true)
	if r.ID == "" {
		return ErrInvalidKey
	}
	status := r.Status
	if status == "" {
		status = model.ReviewPending
	}
	row := reviewRow{
		ID:               r.ID,
		SubmissionID:     r.SubmissionID,
		UserID:           Key(r.UserID),
		Instrument:       strings.TrimSpace(r.Instrument),
		Song:             strings.TrimSpace(r.Song),
		Score:            r.Score,
		SubmittedPerfect: r.Submitted.Perfect,
		SubmittedGood:    r.Submitted.Good,
		SubmittedMissed:  r.Submitted.Missed,
		SubmittedStriked: r.Submitted.Striked,
		ExtractedPerfect: r.Extracted.Perfect,
		ExtractedGood:    r.Extracted.Good,
		ExtractedMissed:  r.Extracted.Missed,
		ExtractedStriked: r.Extracted.Striked,
		EvidenceURL:      r.EvidenceURL,
		Status:           string(status),
		CreatedAt:        r.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// GetReview implements ReviewStore.GetReview.
func (s *GormStore) GetReview(ctx context.Context, id string) (model.Review, error) {
	defer observe(time.Now(), false)
	var row reviewRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Review{}, ErrReviewNotFound
	}
	if err != nil {
		return model.Review{}, fmt.Errorf("get review: %w", err)
	}
	return toReview(row), nil
}

// ListReviews implements ReviewStore.ListReviews.
func (s *GormStore) ListReviews(ctx context.Context, status model.ReviewStatus) ([]model.Review, error) {
	defer observe(time.Now(), false)
	var rows []reviewRow
	q := s.db.WithContext(ctx).Order("created_at, id")
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	out := make([]model.Review, len(rows))
	for i, r := range rows {
		out[i] = toReview(r)
	}
	return out, nil
}

// DecideReview implements ReviewStore.DecideReview.
func (s *GormStore) DecideReview(ctx context.Context, id string, status model.ReviewStatus, moderator string) (model.Review, error) {
	defer observe(time.Now(), true)
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&reviewRow{}).
		Where("id = ? AND status = ?", id, string(model.ReviewPending)).
		Updates(map[string]any{"status": string(status), "moderator": moderator, "decided_at": now})
	if res.Error != nil {
		return model.Review{}, fmt.Errorf("decide review: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetReview(ctx, id); err != nil {
			return model.Review{}, err
		}
		return model.Review{}, ErrReviewClosed
	}
	return s.GetReview(ctx, id)
}
