package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/festrank/internal/adapters/export"
	service "github.com/okian/festrank/internal/app"
	"github.com/okian/festrank/internal/domain/model"
	"github.com/okian/festrank/internal/domain/scoring"
)

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats(r.Context()))
}

// submissionRequest is the body of POST /v1/submissions.
type submissionRequest struct {
	SubmissionID string   `json:"submission_id"`
	UserID       string   `json:"user_id"`
	Username     string   `json:"username"`
	Instrument   string   `json:"instrument"`
	Song         string   `json:"song"`
	Perfect      int      `json:"perfect"`
	Good         int      `json:"good"`
	Missed       int      `json:"missed"`
	Striked      int      `json:"striked"`
	Difficulty   *float64 `json:"difficulty,omitempty"`
	EvidenceURL  string   `json:"evidence_url,omitempty"`
}

func (req *submissionRequest) validate() error {
	switch {
	case strings.TrimSpace(req.Instrument) == "":
		return fmt.Errorf("%w: missing instrument", ErrBadRequest)
	case strings.TrimSpace(req.Song) == "":
		return fmt.Errorf("%w: missing song", ErrBadRequest)
	}
	return nil
}

// handleSubmit handles POST /v1/submissions. Players submit for
// themselves; rank managers may submit for anyone.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_submission"
	caller, _ := ClaimsFrom(r.Context())

	var req submissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	if req.UserID == "" {
		req.UserID = caller.UserID
		if req.Username == "" {
			req.Username = caller.Username
		}
	}
	if !strings.EqualFold(req.UserID, caller.UserID) && !caller.IsManager() {
		s.fail(w, r, NewKind(op, service.ErrForbidden))
		return
	}

	res, err := s.svc.Submit(r.Context(), model.Submission{
		ID:         req.SubmissionID,
		UserID:     req.UserID,
		Username:   req.Username,
		Instrument: req.Instrument,
		Song:       req.Song,
		Counts: scoring.Counts{
			Perfect: req.Perfect,
			Good:    req.Good,
			Missed:  req.Missed,
			Striked: req.Striked,
		},
		Difficulty:  req.Difficulty,
		EvidenceURL: req.EvidenceURL,
		SubmittedBy: caller.UserID,
	})
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, name)
	}
	return n, nil
}

// handleLeaderboard handles GET /v1/leaderboard?instrument=&limit=.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	limit, err := queryInt(r, "limit", 0)
	if err != nil || (r.URL.Query().Has("limit") && limit < 1) {
		s.fail(w, r, NewKind(op, ErrBadRequest))
		return
	}
	entries, err := s.svc.Leaderboard(r.Context(), r.URL.Query().Get("instrument"), limit)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleLeaderboardXLSX handles GET /v1/leaderboard.xlsx.
func (s *Server) handleLeaderboardXLSX(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard_xlsx"
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	entries, err := s.svc.Leaderboard(r.Context(), r.URL.Query().Get("instrument"), limit)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	data, err := export.LeaderboardXLSX(entries)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="leaderboard.xlsx"`)
	_, _ = w.Write(data)
}

// handleAccuracy handles GET /v1/accuracy?instrument=.
func (s *Server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.AccuracyLeaderboard(r.Context(), r.URL.Query().Get("instrument"))
	if err != nil {
		s.fail(w, r, Wrap("api.get_accuracy", err))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleProfile handles GET /v1/players/{user}.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	prof, err := s.svc.PlayerProfile(r.Context(), pathParam(r, "user"))
	if err != nil {
		s.fail(w, r, Wrap("api.get_profile", err))
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

// handleSongs handles GET /v1/players/{user}/instruments/{instrument}/songs.
func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.svc.SongBreakdown(r.Context(), pathParam(r, "user"), pathParam(r, "instrument"))
	if err != nil {
		s.fail(w, r, Wrap("api.get_songs", err))
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// handleTournament handles GET /v1/players/{user}/instruments/{instrument}/tournament.
func (s *Server) handleTournament(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.TournamentRank(r.Context(), pathParam(r, "user"), pathParam(r, "instrument"))
	if err != nil {
		s.fail(w, r, Wrap("api.get_tournament", err))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleChart handles GET /v1/players/{user}/instruments/{instrument}/chart.png.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_chart"
	user, instrument := pathParam(r, "user"), pathParam(r, "instrument")
	songs, err := s.svc.SongBreakdown(r.Context(), user, instrument)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	png, err := export.TopSongsChart(fmt.Sprintf("%s - %s", user, instrument), songs)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// handleCoverage handles GET /v1/catalog/coverage?page=.
func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_coverage"
	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	cov, err := s.svc.Coverage(r.Context(), page)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, cov)
}

type addSongRequest struct {
	Name string `json:"name"`
}

type addSongResponse struct {
	Song        string   `json:"song"`
	Instruments []string `json:"instruments"`
}

// handleAddSong handles POST /v1/songs.
func (s *Server) handleAddSong(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_song"
	var req addSongRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	added, err := s.svc.AddSong(r.Context(), req.Name)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	status := http.StatusCreated
	if len(added) == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, addSongResponse{Song: strings.TrimSpace(req.Name), Instruments: added})
}

type difficultyRequest struct {
	Difficulty float64 `json:"difficulty"`
}

// handleSetDifficulty handles PUT /v1/instruments/{instrument}/songs/{song}/difficulty.
func (s *Server) handleSetDifficulty(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_difficulty"
	var req difficultyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := s.svc.SetDifficulty(r.Context(), pathParam(r, "instrument"), pathParam(r, "song"), req.Difficulty); err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListReviews handles GET /v1/reviews?status=.
func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	status := model.ReviewStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.fail(w, r, NewKind("api.get_reviews", ErrBadRequest))
		return
	}
	reviews, err := s.svc.ListReviews(r.Context(), status)
	if err != nil {
		s.fail(w, r, Wrap("api.get_reviews", err))
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

// handleDecideReview handles POST /v1/reviews/{id}/decision.
func (s *Server) handleDecideReview(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_decision"
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	var accept bool
	switch strings.ToLower(req.Decision) {
	case "accept", "accepted":
		accept = true
	case "deny", "denied":
	default:
		s.fail(w, r, WrapKind(op, ErrBadRequest, fmt.Errorf("decision must be accept or deny, got %q", req.Decision)))
		return
	}
	caller, _ := ClaimsFrom(r.Context())
	moderator := caller.Username
	if moderator == "" {
		moderator = caller.UserID
	}
	review, err := s.svc.DecideReview(r.Context(), pathParam(r, "id"), accept, moderator)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, review)
}
