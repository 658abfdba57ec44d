// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/festrank/internal/adapters/auth"
	"github.com/okian/festrank/internal/domain/model"
	"github.com/okian/festrank/internal/domain/types"
	"github.com/okian/festrank/pkg/logger"
)

// Service is everything the handlers call. It is implemented by the app
// service.
type Service interface {
	Submit(ctx context.Context, sub model.Submission) (model.SubmissionResult, error)

	Leaderboard(ctx context.Context, instrument string, limit int) ([]types.Entry, error)
	AccuracyLeaderboard(ctx context.Context, instrument string) ([]types.AccuracyEntry, error)
	PlayerProfile(ctx context.Context, userID string) (types.Profile, error)
	SongBreakdown(ctx context.Context, userID, instrument string) ([]types.SongEntry, error)
	TournamentRank(ctx context.Context, userID, instrument string) (types.Tournament, error)

	AddSong(ctx context.Context, name string) ([]string, error)
	SetDifficulty(ctx context.Context, instrument, song string, difficulty float64) error
	Coverage(ctx context.Context, page int) (model.Coverage, error)

	ListReviews(ctx context.Context, status model.ReviewStatus) ([]model.Review, error)
	DecideReview(ctx context.Context, id string, accept bool, moderator string) (model.Review, error)

	Stats(ctx context.Context) map[string]any
}

// Server wires HTTP routes for the business API.
type Server struct {
	svc     Service
	tokens  *auth.Provider
	limiter *ipLimiter
	logger  logger.Logger
}

// NewServer creates a new API server. tokens validates bearer tokens.
func NewServer(svc Service, tokens *auth.Provider, opts ...Option) (*Server, error) {
	if tokens == nil {
		return nil, ErrMissingAuth
	}
	cfg := &serverConfig{rps: defaultRPS, burst: defaultBurst}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("api")
	}
	return &Server{
		svc:     svc,
		tokens:  tokens,
		limiter: newIPLimiter(cfg.rps, cfg.burst),
		logger:  cfg.logger,
	}, nil
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, MetricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metricsHandler())
	r.Get("/stats", s.handleStats)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware, s.Authenticate)

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/leaderboard.xlsx", s.handleLeaderboardXLSX)
		r.Get("/accuracy", s.handleAccuracy)
		r.Get("/catalog/coverage", s.handleCoverage)

		r.Route("/players/{user}", func(r chi.Router) {
			r.Get("/", s.handleProfile)
			r.Get("/instruments/{instrument}/songs", s.handleSongs)
			r.Get("/instruments/{instrument}/tournament", s.handleTournament)
			r.Get("/instruments/{instrument}/chart.png", s.handleChart)
		})

		r.With(RequireCaller).Post("/submissions", s.handleSubmit)

		r.Group(func(r chi.Router) {
			r.Use(RequireManager)
			r.Post("/songs", s.handleAddSong)
			r.Put("/instruments/{instrument}/songs/{song}/difficulty", s.handleSetDifficulty)
			r.Get("/reviews", s.handleListReviews)
			r.Post("/reviews/{id}/decision", s.handleDecideReview)
		})
	})
}

// Handler returns a router with every route registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail maps err to a response and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}

// pathParam returns the unescaped value of a route parameter.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}
