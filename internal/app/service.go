// Package service wires the scoring engine to storage, the leaderboard
// index, the verification queue and the event bus. It implements every
// operation the HTTP API and the CLI expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/festrank/internal/adapters/events"
	"github.com/okian/festrank/internal/adapters/mq/queue"
	"github.com/okian/festrank/internal/adapters/mq/worker"
	"github.com/okian/festrank/internal/adapters/repository"
	"github.com/okian/festrank/internal/adapters/verify"
	"github.com/okian/festrank/internal/domain/dedupe"
	"github.com/okian/festrank/internal/domain/scoring"
	"github.com/okian/festrank/pkg/logger"
	"github.com/okian/festrank/pkg/metrics"
)

const (
	defaultLeaderboardLimit = 25
	defaultBreakdownSize    = 25
	accuracyBoardSize       = 10
	coveragePageSize        = 10
)

// Store is the persistence the service needs.
type Store interface {
	repository.CatalogStore
	repository.PlayerStore
	repository.ReviewStore
}

// Service implements the leaderboard use cases.
type Service struct {
	mu sync.RWMutex

	store     Store
	index     repository.LeaderboardIndex
	engine    *scoring.Engine
	deduper   dedupe.Deduper
	queue     queue.Queue
	pool      *worker.Pool
	bus       *events.Bus
	extractor verify.Extractor
	sink      LabelSink
	locks     keyLock
	tracer    trace.Tracer

	instruments []string
	byKey       map[string]string

	workerCount           int
	queueSize             int
	dedupeSize            int
	maxLimit              int
	roleMinSongs          int
	overallMinInstruments int

	started bool
	cancel  context.CancelFunc
	now     func() time.Time

	logger logger.Logger
}

// New constructs a Service over store and index.
func New(store Store, index repository.LeaderboardIndex, opts ...Option) (*Service, error) {
	if store == nil || index == nil {
		return nil, errors.New("service: store and index are required")
	}
	s := &Service{
		store:                 store,
		index:                 index,
		instruments:           scoring.DefaultInstruments(),
		workerCount:           runtime.NumCPU(),
		queueSize:             10_000,
		dedupeSize:            50_000,
		maxLimit:              100,
		roleMinSongs:          4,
		overallMinInstruments: 4,
		extractor:             verify.Noop{},
		tracer:                otel.Tracer("festrank/app"),
		now:                   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.engine == nil {
		e, err := scoring.New()
		if err != nil {
			return nil, fmt.Errorf("default engine: %w", err)
		}
		s.engine = e
	}
	if s.bus == nil {
		s.bus = events.NewBus()
	}
	if s.sink == nil {
		s.sink = NewLogSink(s.logger)
	}

	s.byKey = make(map[string]string, len(s.instruments))
	for _, name := range s.instruments {
		s.byKey[repository.Key(name)] = strings.TrimSpace(name)
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	q := queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.queue = q
	s.pool = worker.NewPool(q, worker.HandlerFunc(s.Verify),
		worker.WithWorkers(s.workerCount),
		worker.WithLogger(s.logger.Named("verify")),
	)
	return s, nil
}

// Engine returns the scoring engine in use.
func (s *Service) Engine() *scoring.Engine { return s.engine }

// Instruments returns the configured instrument names.
func (s *Service) Instruments() []string { return append([]string(nil), s.instruments...) }

// Start launches the verification workers and the label observer.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting leaderboard service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := s.bus.Subscribe(runCtx, events.TopicRanksRecomputed, s.onRanksRecomputed); err != nil {
		cancel()
		return fmt.Errorf("subscribe label observer: %w", err)
	}
	s.pool.Start(runCtx)
	s.cancel = cancel
	s.started = true

	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the verification queue and closes the bus.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping leaderboard service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.bus.Close(); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	s.started = false

	s.logger.Info(ctx, "leaderboard service stopped")
	return errors.Join(errs...)
}

// Warm rebuilds the leaderboard index from stored player records.
func (s *Service) Warm(ctx context.Context) (int, error) {
	players, err := s.store.ListPlayers(ctx, repository.AllInstruments)
	if err != nil {
		return 0, fmt.Errorf("warm index: %w", err)
	}
	for _, p := range players {
		if err := s.index.Set(ctx, p.UserID, p.Instrument, p.Aggregate); err != nil {
			return 0, fmt.Errorf("warm index: %w", err)
		}
	}
	s.refreshIndexMetrics(ctx)
	s.logger.Info(ctx, "leaderboard index warmed", logger.Int("records", len(players)))
	return len(players), nil
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	stats := map[string]any{
		"started":     started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"queueLength": s.queue.Len(),
		"dedupeSize":  s.deduper.Size(),
		"instruments": s.instruments,
	}
	if n, err := s.index.Count(ctx, repository.AllInstruments); err == nil {
		stats["rankedPairs"] = n
	}
	return stats
}

// resolveInstrument maps any casing of a configured instrument to its
// display name.
func (s *Service) resolveInstrument(name string) (string, error) {
	display, ok := s.byKey[repository.Key(name)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownInstrument, name)
	}
	return display, nil
}

func (s *Service) refreshIndexMetrics(ctx context.Context) {
	for _, name := range append([]string{repository.AllInstruments}, s.instruments...) {
		if n, err := s.index.Count(ctx, name); err == nil {
			label := name
			if label == repository.AllInstruments {
				label = "all"
			}
			metrics.UpdateLeaderboardSize(label, n)
		}
	}
}
