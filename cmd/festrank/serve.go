package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"

	"github.com/okian/festrank/internal/adapters/auth"
	"github.com/okian/festrank/internal/adapters/http/api"
	"github.com/okian/festrank/internal/adapters/http/site"
	"github.com/okian/festrank/internal/adapters/http/swagger"
	"github.com/okian/festrank/internal/adapters/repository"
	"github.com/okian/festrank/internal/adapters/verify"
	service "github.com/okian/festrank/internal/app"
	"github.com/okian/festrank/internal/config"
	"github.com/okian/festrank/internal/domain/scoring"
	"github.com/okian/festrank/pkg/logger"
	"github.com/okian/festrank/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the HTTP API",
		Action: runServe,
	}
}

// setup loads configuration and initializes logging from it.
func setup(ctx context.Context) (*config.Config, error) {
	if err := logger.Init(); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.LogFile != "" {
		if err := logger.InitWithOptions(logger.WithFile(cfg.LogFile, cfg.LogMaxSizeMB)); err != nil {
			return nil, fmt.Errorf("initialize log file: %w", err)
		}
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

// runtimeDeps is everything a configured process owns.
type runtimeDeps struct {
	store *repository.GormStore
	index repository.LeaderboardIndex
	svc   *service.Service
}

func (d *runtimeDeps) close() {
	if d.index != nil {
		_ = d.index.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// build opens storage and creates the service described by cfg.
func build(ctx context.Context, cfg *config.Config) (*runtimeDeps, error) {
	d := &runtimeDeps{}
	var err error
	if d.store, err = repository.Open(cfg.DatabaseDriver, cfg.DatabaseDSN); err != nil {
		return nil, err
	}

	switch cfg.LeaderboardBackend {
	case "redis":
		idx, err := repository.NewRedisIndex(ctx, cfg.RedisAddr)
		if err != nil {
			d.close()
			return nil, err
		}
		d.index = idx
	default:
		d.index = repository.NewTreapIndex()
	}

	engine, err := scoring.New(cfg.EngineOptions()...)
	if err != nil {
		d.close()
		return nil, err
	}

	opts := []service.Option{
		service.WithEngine(engine),
		service.WithInstruments(cfg.Instruments),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		service.WithLabelThresholds(cfg.RoleMinSongs, cfg.OverallMinInstruments),
	}
	if cfg.ExtractorURL != "" {
		opts = append(opts, service.WithExtractor(verify.NewHTTPExtractor(cfg.ExtractorURL,
			verify.WithTimeout(time.Duration(cfg.ExtractorTimeoutMS)*time.Millisecond))))
	}
	if d.svc, err = service.New(d.store, d.index, opts...); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

// newRouter mounts the API, the docs and the landing page.
func newRouter(svc api.Service, tokens *auth.Provider, cfg *config.Config) (http.Handler, error) {
	srv, err := api.NewServer(svc, tokens, api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	if err != nil {
		return nil, err
	}
	r := chi.NewRouter()
	srv.Register(r)
	swagger.Register(r)
	site.Register(r)
	return r, nil
}

func runServe(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	tokens, err := auth.NewProvider(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("jwt_secret: %w", err)
	}

	deps, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	warmed, err := deps.svc.Warm(ctx)
	if err != nil {
		return fmt.Errorf("warm leaderboard: %w", err)
	}
	log.Info(ctx, "leaderboard warmed", logger.Int("entries", warmed))

	if err := deps.svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := deps.svc.Stop(stopCtx); err != nil {
			log.Error(stopCtx, "service stop failed", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx)

	handler, err := newRouter(deps.svc, tokens, cfg)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	log.Info(shutdownCtx, "server stopped")
	return nil
}

// startSystemMetricsUpdater refreshes process gauges until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond)
	}
}
