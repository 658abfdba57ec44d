package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/festrank/internal/adapters/auth"
	"github.com/okian/festrank/internal/adapters/http/api"
	service "github.com/okian/festrank/internal/app"
	"github.com/okian/festrank/internal/domain/model"
	"github.com/okian/festrank/internal/domain/types"
	"github.com/okian/festrank/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.InitWithOptions(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type mockService struct {
	submitted []model.Submission
	submitErr error

	leaderboard []types.Entry
	lbErr       error
	lbLimit     int
	lbInst      string

	songs     []types.SongEntry
	profile   types.Profile
	profErr   error
	added     []string
	diffCalls []string
	reviews   []model.Review
	decided   map[string]bool
}

func (m *mockService) Submit(_ context.Context, sub model.Submission) (model.SubmissionResult, error) {
	if m.submitErr != nil {
		return model.SubmissionResult{}, m.submitErr
	}
	m.submitted = append(m.submitted, sub)
	return model.SubmissionResult{SubmissionID: sub.ID, Song: sub.Song, Instrument: sub.Instrument, Score: 295.97, Improved: true}, nil
}

func (m *mockService) Leaderboard(_ context.Context, instrument string, limit int) ([]types.Entry, error) {
	m.lbInst, m.lbLimit = instrument, limit
	return m.leaderboard, m.lbErr
}

func (m *mockService) AccuracyLeaderboard(context.Context, string) ([]types.AccuracyEntry, error) {
	return []types.AccuracyEntry{{Rank: 1, UserID: "u1", Accuracy: 97.49, Tier: "Top 50", Songs: 1}}, nil
}

func (m *mockService) PlayerProfile(_ context.Context, userID string) (types.Profile, error) {
	if m.profErr != nil {
		return types.Profile{}, m.profErr
	}
	p := m.profile
	p.UserID = userID
	return p, nil
}

func (m *mockService) SongBreakdown(context.Context, string, string) ([]types.SongEntry, error) {
	return m.songs, nil
}

func (m *mockService) TournamentRank(_ context.Context, userID, instrument string) (types.Tournament, error) {
	return types.Tournament{UserID: userID, Instrument: instrument, NamedRank: "Bronze", NextRank: "Silver"}, nil
}

func (m *mockService) AddSong(_ context.Context, name string) ([]string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, service.ErrInvalidSongName
	}
	return m.added, nil
}

func (m *mockService) SetDifficulty(_ context.Context, instrument, song string, d float64) error {
	if d <= 0 {
		return service.ErrInvalidDifficulty
	}
	m.diffCalls = append(m.diffCalls, fmt.Sprintf("%s|%s|%v", instrument, song, d))
	return nil
}

func (m *mockService) Coverage(_ context.Context, page int) (model.Coverage, error) {
	return model.Coverage{Page: page, Pages: 3}, nil
}

func (m *mockService) ListReviews(context.Context, model.ReviewStatus) ([]model.Review, error) {
	return m.reviews, nil
}

func (m *mockService) DecideReview(_ context.Context, id string, accept bool, moderator string) (model.Review, error) {
	if id == "closed" {
		return model.Review{}, service.ErrReviewClosed
	}
	if m.decided == nil {
		m.decided = map[string]bool{}
	}
	m.decided[id] = accept
	return model.Review{ID: id, Moderator: moderator, Status: model.ReviewAccepted}, nil
}

func (m *mockService) Stats(context.Context) map[string]any {
	return map[string]any{"started": true}
}

type harness struct {
	svc     *mockService
	handler http.Handler
	player  string
	manager string
}

func newHarness(opts ...api.Option) *harness {
	tokens, err := auth.NewProvider("test-secret")
	So(err, ShouldBeNil)
	svc := &mockService{}
	srv, err := api.NewServer(svc, tokens, opts...)
	So(err, ShouldBeNil)

	player, err := tokens.Issue(auth.Claims{UserID: "u1", Username: "Axel", Role: auth.RolePlayer}, time.Hour)
	So(err, ShouldBeNil)
	manager, err := tokens.Issue(auth.Claims{UserID: "m1", Username: "Mod", Role: auth.RoleRankManager}, time.Hour)
	So(err, ShouldBeNil)
	return &harness{svc: svc, handler: srv.Handler(), player: player, manager: manager}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func TestSubmissions(t *testing.T) {
	Convey("Given the API", t, func() {
		h := newHarness()
		sub := map[string]any{"submission_id": "s1", "instrument": "Lead", "song": "Soulless 5", "perfect": 700, "good": 37}

		Convey("When a player submits for themselves", func() {
			w := h.do(http.MethodPost, "/v1/submissions", h.player, sub)

			Convey("Then the score is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(h.svc.submitted), ShouldEqual, 1)
				So(h.svc.submitted[0].UserID, ShouldEqual, "u1")
				So(h.svc.submitted[0].Username, ShouldEqual, "Axel")
				So(h.svc.submitted[0].Counts.Perfect, ShouldEqual, 700)
				So(w.Body.String(), ShouldContainSubstring, `"score":295.97`)
			})
		})

		Convey("When a player submits for someone else", func() {
			sub["user_id"] = "u2"
			w := h.do(http.MethodPost, "/v1/submissions", h.player, sub)
			So(w.Code, ShouldEqual, http.StatusForbidden)
			So(len(h.svc.submitted), ShouldEqual, 0)
		})

		Convey("When a manager submits for someone else", func() {
			sub["user_id"] = "u2"
			w := h.do(http.MethodPost, "/v1/submissions", h.manager, sub)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(h.svc.submitted[0].UserID, ShouldEqual, "u2")
			So(h.svc.submitted[0].SubmittedBy, ShouldEqual, "m1")
		})

		Convey("When the caller is anonymous", func() {
			w := h.do(http.MethodPost, "/v1/submissions", "", sub)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When the token is garbage", func() {
			w := h.do(http.MethodPost, "/v1/submissions", "not-a-token", sub)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When the body is malformed", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/submissions", strings.NewReader("{"))
			req.Header.Set("Authorization", "Bearer "+h.player)
			w := httptest.NewRecorder()
			h.handler.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "bad_request")
		})

		Convey("When the service rejects the counts", func() {
			h.svc.submitErr = fmt.Errorf("submit: %w", service.ErrNotFullCombo)
			w := h.do(http.MethodPost, "/v1/submissions", h.player, sub)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "not_full_combo")
		})

		Convey("When the submission was already processed", func() {
			h.svc.submitErr = service.ErrDuplicate
			w := h.do(http.MethodPost, "/v1/submissions", h.player, sub)
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When the song is unknown", func() {
			h.svc.submitErr = service.ErrUnknownSong
			w := h.do(http.MethodPost, "/v1/submissions", h.player, sub)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(errorCode(w), ShouldEqual, "unknown_song")
		})
	})
}

func TestReads(t *testing.T) {
	Convey("Given the API with leaderboard data", t, func() {
		h := newHarness()
		h.svc.leaderboard = []types.Entry{{Rank: 1, UserID: "u1", Username: "Axel", Instrument: "Lead", Score: 900, Tier: "Bronze"}}

		Convey("Then the leaderboard is public", func() {
			w := h.do(http.MethodGet, "/v1/leaderboard?instrument=Lead&limit=5", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(h.svc.lbInst, ShouldEqual, "Lead")
			So(h.svc.lbLimit, ShouldEqual, 5)

			var rows []types.Entry
			So(json.Unmarshal(w.Body.Bytes(), &rows), ShouldBeNil)
			So(rows[0].Username, ShouldEqual, "Axel")
		})

		Convey("Then a bad limit is rejected", func() {
			So(h.do(http.MethodGet, "/v1/leaderboard?limit=abc", "", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(h.do(http.MethodGet, "/v1/leaderboard?limit=0", "", nil).Code, ShouldEqual, http.StatusBadRequest)

			h.svc.lbErr = service.ErrInvalidLimit
			w := h.do(http.MethodGet, "/v1/leaderboard?limit=5000", "", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "limit_exceeded")
		})

		Convey("Then an internal failure hides its cause", func() {
			h.svc.lbErr = fmt.Errorf("redis: connection refused")
			w := h.do(http.MethodGet, "/v1/leaderboard", "", nil)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldNotContainSubstring, "redis")
		})

		Convey("Then the spreadsheet export is served", func() {
			w := h.do(http.MethodGet, "/v1/leaderboard.xlsx", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "spreadsheetml")
			So(w.Body.Len(), ShouldBeGreaterThan, 0)
		})

		Convey("Then the player routes resolve path parameters", func() {
			w := h.do(http.MethodGet, "/v1/players/u1", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"user_id":"u1"`)

			w = h.do(http.MethodGet, "/v1/players/u1/instruments/Pro%20Lead/tournament", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"instrument":"Pro Lead"`)

			w = h.do(http.MethodGet, "/v1/players/u1/instruments/Lead/songs", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then an unknown player is a 404", func() {
			h.svc.profErr = service.ErrPlayerNotFound
			So(h.do(http.MethodGet, "/v1/players/ghost", "", nil).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then the chart is a PNG", func() {
			h.svc.songs = []types.SongEntry{{Position: 1, Song: "Soulless 5", Score: 295.97}}
			w := h.do(http.MethodGet, "/v1/players/u1/instruments/Lead/chart.png", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "image/png")
		})

		Convey("Then coverage pages are passed through", func() {
			w := h.do(http.MethodGet, "/v1/catalog/coverage?page=2", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"page":2`)
		})

		Convey("Then accuracy, health, stats and metrics respond", func() {
			So(h.do(http.MethodGet, "/v1/accuracy?instrument=Lead", "", nil).Code, ShouldEqual, http.StatusOK)
			So(h.do(http.MethodGet, "/healthz", "", nil).Code, ShouldEqual, http.StatusOK)
			So(h.do(http.MethodGet, "/stats", "", nil).Body.String(), ShouldContainSubstring, "started")
			So(h.do(http.MethodGet, "/metrics", "", nil).Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestManagerRoutes(t *testing.T) {
	Convey("Given the API", t, func() {
		h := newHarness()
		h.svc.added = []string{"Lead", "Bass"}

		Convey("When a player tries to add a song", func() {
			w := h.do(http.MethodPost, "/v1/songs", h.player, map[string]string{"name": "Everlong"})
			So(w.Code, ShouldEqual, http.StatusForbidden)
		})

		Convey("When an anonymous caller lists reviews", func() {
			So(h.do(http.MethodGet, "/v1/reviews", "", nil).Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When a manager adds a song", func() {
			w := h.do(http.MethodPost, "/v1/songs", h.manager, map[string]string{"name": "Everlong"})
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Body.String(), ShouldContainSubstring, `"instruments":["Lead","Bass"]`)
		})

		Convey("When a manager sets a difficulty", func() {
			w := h.do(http.MethodPut, "/v1/instruments/Pro%20Bass/songs/Through%20the%20Fire/difficulty", h.manager, map[string]float64{"difficulty": 4.5})
			So(w.Code, ShouldEqual, http.StatusNoContent)
			So(h.svc.diffCalls, ShouldResemble, []string{"Pro Bass|Through the Fire|4.5"})

			w = h.do(http.MethodPut, "/v1/instruments/Lead/songs/X/difficulty", h.manager, map[string]float64{"difficulty": 0})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a manager decides a review", func() {
			w := h.do(http.MethodPost, "/v1/reviews/r1/decision", h.manager, map[string]string{"decision": "accept"})
			So(w.Code, ShouldEqual, http.StatusOK)
			So(h.svc.decided["r1"], ShouldBeTrue)
			So(w.Body.String(), ShouldContainSubstring, `"moderator":"Mod"`)

			w = h.do(http.MethodPost, "/v1/reviews/r1/decision", h.manager, map[string]string{"decision": "maybe"})
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			w = h.do(http.MethodPost, "/v1/reviews/closed/decision", h.manager, map[string]string{"decision": "deny"})
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When a review status filter is unknown", func() {
			So(h.do(http.MethodGet, "/v1/reviews?status=odd", h.manager, nil).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRateLimit(t *testing.T) {
	Convey("Given a tight rate limit", t, func() {
		h := newHarness(api.WithRateLimit(1, 2))

		Convey("Then requests beyond the burst get 429", func() {
			codes := make([]int, 0, 3)
			for i := 0; i < 3; i++ {
				codes = append(codes, h.do(http.MethodGet, "/v1/leaderboard", "", nil).Code)
			}
			So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})
		})

		Convey("Then health checks are not limited", func() {
			for i := 0; i < 5; i++ {
				So(h.do(http.MethodGet, "/healthz", "", nil).Code, ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestNewServerRequiresTokens(t *testing.T) {
	Convey("A server without a token provider is rejected", t, func() {
		_, err := api.NewServer(&mockService{}, nil)
		So(err, ShouldEqual, api.ErrMissingAuth)
	})
}
