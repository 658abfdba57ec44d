package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/festrank/internal/adapters/repository"
	service "github.com/okian/festrank/internal/app"
	"github.com/okian/festrank/internal/domain/model"
	"github.com/okian/festrank/internal/domain/scoring"
	"github.com/okian/festrank/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.InitWithOptions(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeExtractor struct {
	counts scoring.Counts
	err    error
}

func (f fakeExtractor) Extract(context.Context, string) (scoring.Counts, error) {
	return f.counts, f.err
}

// flakyIndex fails the next `failures` Set calls.
type flakyIndex struct {
	*repository.TreapIndex
	failures atomic.Int32
}

func (f *flakyIndex) Set(ctx context.Context, userID, instrument string, score float64) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("index down")
	}
	return f.TreapIndex.Set(ctx, userID, instrument, score)
}

type chanSink chan service.Labels

func (c chanSink) Apply(_ context.Context, l service.Labels) error {
	c <- l
	return nil
}

func newStore(t *testing.T) *repository.GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	st, err := repository.Open(repository.DriverSQLite, dsn, repository.WithMaxOpenConns(1))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newService(t *testing.T, opts ...service.Option) (*service.Service, *repository.GormStore) {
	t.Helper()
	st := newStore(t)
	svc, err := service.New(st, repository.NewTreapIndex(repository.WithSeed(1)), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, st
}

func fc(perfect, good int) scoring.Counts { return scoring.Counts{Perfect: perfect, Good: good} }

func diff(d float64) *float64 { return &d }

func TestSubmit(t *testing.T) {
	Convey("Given a service with one song in the catalog", t, func() {
		ctx := context.Background()
		svc, _ := newService(t)
		added, err := svc.AddSong(ctx, "Soulless 5")
		So(err, ShouldBeNil)
		So(len(added), ShouldEqual, len(scoring.DefaultInstruments()))

		Convey("When the first score arrives without a difficulty", func() {
			_, err := svc.Submit(ctx, model.Submission{ID: "s1", UserID: "u1", Instrument: "Lead", Song: "soulless 5", Counts: fc(700, 37)})

			Convey("Then a difficulty is required and the ID stays retryable", func() {
				So(errors.Is(err, service.ErrDifficultyRequired), ShouldBeTrue)

				res, err := svc.Submit(ctx, model.Submission{ID: "s1", UserID: "u1", Instrument: "lead", Song: "soulless 5", Counts: fc(700, 37), Difficulty: diff(3)})
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 295.97)
				So(res.Song, ShouldEqual, "Soulless 5")
				So(res.Instrument, ShouldEqual, "Lead")
				So(res.FirstSubmission, ShouldBeTrue)
				So(res.Improved, ShouldBeTrue)
				So(res.Aggregate, ShouldEqual, 295.97)
				So(res.Tier, ShouldEqual, "Bronze")
				So(res.NamedRank, ShouldEqual, "Bronze")
			})
		})

		Convey("When a score is stored", func() {
			_, err := svc.Submit(ctx, model.Submission{ID: "a", UserID: "u1", Username: "Axel", Instrument: "Lead", Song: "Soulless 5", Counts: fc(700, 37), Difficulty: diff(3)})
			So(err, ShouldBeNil)

			Convey("Then a lower score leaves the best untouched", func() {
				res, err := svc.Submit(ctx, model.Submission{ID: "b", UserID: "u1", Instrument: "Lead", Song: "Soulless 5", Counts: fc(600, 137)})
				So(err, ShouldBeNil)
				So(res.Improved, ShouldBeFalse)
				So(res.FirstSubmission, ShouldBeFalse)
				So(res.Previous, ShouldEqual, 295.97)
				So(res.Aggregate, ShouldEqual, 295.97)
			})

			Convey("Then replaying the same ID is rejected", func() {
				_, err := svc.Submit(ctx, model.Submission{ID: "a", UserID: "u1", Instrument: "Lead", Song: "Soulless 5", Counts: fc(700, 37)})
				So(errors.Is(err, service.ErrDuplicate), ShouldBeTrue)
			})

			Convey("Then the total note count is fixed by the first submission", func() {
				songs, err := svc.ListSongs(ctx, "Lead")
				So(err, ShouldBeNil)
				So(len(songs), ShouldEqual, 1)
				So(songs[0].TotalNotes, ShouldEqual, 737)
				So(songs[0].Difficulty, ShouldEqual, 3)
			})
		})

		Convey("When the submission is invalid", func() {
			_, err := svc.Submit(ctx, model.Submission{UserID: "u1", Instrument: "Lead", Song: "Soulless 5", Counts: scoring.Counts{Perfect: 10, Missed: 1}, Difficulty: diff(3)})
			So(errors.Is(err, service.ErrNotFullCombo), ShouldBeTrue)

			_, err = svc.Submit(ctx, model.Submission{UserID: "u1", Instrument: "Lead", Song: "Soulless 5", Counts: scoring.Counts{}, Difficulty: diff(3)})
			So(errors.Is(err, service.ErrInvalidCounts), ShouldBeTrue)

			_, err = svc.Submit(ctx, model.Submission{UserID: "u1", Instrument: "Lead", Song: "Soulless 5", Counts: fc(-1, 5), Difficulty: diff(3)})
			So(errors.Is(err, service.ErrInvalidCounts), ShouldBeTrue)

			_, err = svc.Submit(ctx, model.Submission{UserID: "u1", Instrument: "Kazoo", Song: "Soulless 5", Counts: fc(10, 0), Difficulty: diff(3)})
			So(errors.Is(err, service.ErrUnknownInstrument), ShouldBeTrue)

			_, err = svc.Submit(ctx, model.Submission{UserID: "u1", Instrument: "Lead", Song: "Nope", Counts: fc(10, 0), Difficulty: diff(3)})
			So(errors.Is(err, service.ErrUnknownSong), ShouldBeTrue)

			_, err = svc.Submit(ctx, model.Submission{UserID: "u1", Instrument: "Lead", Song: "Soulless 5", Counts: fc(10, 0), Difficulty: diff(-2)})
			So(errors.Is(err, service.ErrInvalidDifficulty), ShouldBeTrue)
		})
	})
}

func TestReadModels(t *testing.T) {
	Convey("Given two players on Lead", t, func() {
		ctx := context.Background()
		svc, _ := newService(t)
		_, err := svc.AddSong(ctx, "Soulless 5")
		So(err, ShouldBeNil)
		So(svc.SetDifficulty(ctx, "Lead", "Soulless 5", 3), ShouldBeNil)

		_, err = svc.Submit(ctx, model.Submission{UserID: "u1", Username: "Axel", Instrument: "Lead", Song: "Soulless 5", Counts: fc(700, 37)})
		So(err, ShouldBeNil)
		_, err = svc.Submit(ctx, model.Submission{UserID: "u2", Username: "Bea", Instrument: "Lead", Song: "Soulless 5", Counts: fc(650, 87)})
		So(err, ShouldBeNil)

		Convey("Then the leaderboard orders them by aggregate", func() {
			rows, err := svc.Leaderboard(ctx, "lead", 10)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(rows[0].UserID, ShouldEqual, "u1")
			So(rows[0].Username, ShouldEqual, "Axel")
			So(rows[0].Rank, ShouldEqual, 1)
			So(rows[0].Instrument, ShouldEqual, "Lead")
			So(rows[1].Rank, ShouldEqual, 2)
			So(rows[0].Score, ShouldBeGreaterThan, rows[1].Score)

			all, err := svc.Leaderboard(ctx, "", 0)
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, 2)
		})

		Convey("Then a limit above the cap is rejected", func() {
			_, err := svc.Leaderboard(ctx, "", 1000)
			So(errors.Is(err, service.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("Then the song breakdown estimates the note split", func() {
			songs, err := svc.SongBreakdown(ctx, "u1", "Lead")
			So(err, ShouldBeNil)
			So(len(songs), ShouldEqual, 1)
			So(songs[0].WeightPercent, ShouldEqual, 100)
			So(songs[0].MetadataAvailable, ShouldBeTrue)
			So(songs[0].Perfect, ShouldEqual, 700)
			So(songs[0].Good, ShouldEqual, 37)
		})

		Convey("Then the tournament rank shows the next tier", func() {
			tr, err := svc.TournamentRank(ctx, "u1", "Lead")
			So(err, ShouldBeNil)
			So(tr.NamedRank, ShouldEqual, "Bronze")
			So(tr.NextRank, ShouldEqual, "Silver")
			So(tr.Needed, ShouldAlmostEqual, 4.03, 0.001)
			So(tr.TopReached, ShouldBeFalse)
			So(len(tr.Thresholds), ShouldEqual, 7)
		})

		Convey("Then the profile lists the instrument with its rank", func() {
			prof, err := svc.PlayerProfile(ctx, "u2")
			So(err, ShouldBeNil)
			So(prof.Username, ShouldEqual, "Bea")
			So(len(prof.Instruments), ShouldEqual, 1)
			So(prof.Instruments[0].Rank, ShouldEqual, 2)
			So(prof.Instruments[0].Songs, ShouldEqual, 1)

			_, err = svc.PlayerProfile(ctx, "ghost")
			So(errors.Is(err, service.ErrPlayerNotFound), ShouldBeTrue)
		})

		Convey("Then the accuracy board ranks by weighted accuracy", func() {
			rows, err := svc.AccuracyLeaderboard(ctx, "Lead")
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(rows[0].UserID, ShouldEqual, "u1")
			So(rows[0].Accuracy, ShouldAlmostEqual, 97.49, 0.01)
			So(rows[0].Songs, ShouldEqual, 1)
			So(rows[0].Rank, ShouldEqual, 1)
		})

		Convey("Then coverage counts songs that know their notes", func() {
			_, err := svc.AddSong(ctx, "Everlong")
			So(err, ShouldBeNil)
			So(svc.SetDifficulty(ctx, "Lead", "Everlong", 2), ShouldBeNil)

			cov, err := svc.Coverage(ctx, 1)
			So(err, ShouldBeNil)
			So(cov.WithDifficulty, ShouldEqual, 2)
			So(cov.WithTotalNotes, ShouldEqual, 1)
			So(cov.Percent, ShouldEqual, 50)
			So(len(cov.Missing), ShouldEqual, 1)
			So(cov.Missing[0].Song, ShouldEqual, "Everlong")
			So(cov.Pages, ShouldEqual, 1)
		})
	})
}

func TestVerification(t *testing.T) {
	Convey("Given an extractor that disagrees with the player", t, func() {
		ctx := context.Background()
		svc, st := newService(t, service.WithExtractor(fakeExtractor{counts: fc(690, 47)}))
		_, err := svc.AddSong(ctx, "Soulless 5")
		So(err, ShouldBeNil)
		res, err := svc.Submit(ctx, model.Submission{UserID: "u1", Instrument: "Lead", Song: "Soulless 5", Counts: fc(700, 37), Difficulty: diff(3), EvidenceURL: "https://img/1.png"})
		So(err, ShouldBeNil)
		So(res.Verification, ShouldEqual, service.VerificationQueued)

		job := model.VerificationJob{SubmissionID: res.SubmissionID, UserID: "u1", Instrument: "Lead", Song: "Soulless 5", Score: res.Score, Counts: fc(700, 37), EvidenceURL: "https://img/1.png"}
		So(svc.Verify(ctx, job), ShouldBeNil)

		Convey("Then a pending review is opened", func() {
			reviews, err := svc.ListReviews(ctx, model.ReviewPending)
			So(err, ShouldBeNil)
			So(len(reviews), ShouldEqual, 1)
			So(reviews[0].Extracted, ShouldResemble, fc(690, 47))

			Convey("And deciding it keeps the best score", func() {
				r, err := svc.DecideReview(ctx, reviews[0].ID, false, "mod")
				So(err, ShouldBeNil)
				So(r.Status, ShouldEqual, model.ReviewDenied)

				_, err = svc.DecideReview(ctx, reviews[0].ID, true, "mod")
				So(errors.Is(err, service.ErrReviewClosed), ShouldBeTrue)

				p, err := st.GetPlayer(ctx, "u1", "Lead")
				So(err, ShouldBeNil)
				So(p.Bests["Soulless 5"], ShouldEqual, 295.97)
			})
		})

		Convey("Then an unknown review cannot be decided", func() {
			_, err := svc.DecideReview(ctx, "missing", true, "mod")
			So(errors.Is(err, service.ErrReviewNotFound), ShouldBeTrue)
		})
	})

	Convey("Given matching evidence", t, func() {
		ctx := context.Background()
		svc, _ := newService(t, service.WithExtractor(fakeExtractor{counts: fc(700, 37)}))
		So(svc.Verify(ctx, model.VerificationJob{Counts: fc(700, 37), EvidenceURL: "x"}), ShouldBeNil)

		reviews, err := svc.ListReviews(ctx, "")
		So(err, ShouldBeNil)
		So(len(reviews), ShouldEqual, 0)
	})
}

func TestDeriveLabels(t *testing.T) {
	Convey("Given ranks on several instruments", t, func() {
		priority := []string{"Top 50", "Unreal", "Champion", "Diamond", "Gold", "Silver", "Bronze"}
		ev := model.RanksRecomputed{
			UserID: "u1",
			Instruments: []model.InstrumentRank{
				{Instrument: "Lead", NamedRank: "Gold", Songs: 10},
				{Instrument: "Bass", NamedRank: "Silver", Songs: 4},
				{Instrument: "Drums", NamedRank: "Diamond", Songs: 7},
				{Instrument: "Vocals", NamedRank: "Gold", Songs: 5},
				{Instrument: "Pro Lead", NamedRank: "Top 50", Songs: 3},
			},
		}

		Convey("Then only instruments with enough songs are labelled", func() {
			l := service.DeriveLabels(ev, 4, 4, priority)
			So(l.Instruments, ShouldResemble, []string{"Bass - Silver", "Drums - Diamond", "Lead - Gold", "Vocals - Gold"})
			So(l.Overall, ShouldEqual, "Diamond")
		})

		Convey("Then too few labelled instruments give no overall label", func() {
			l := service.DeriveLabels(ev, 6, 4, priority)
			So(len(l.Instruments), ShouldEqual, 2)
			So(l.Overall, ShouldBeEmpty)
		})
	})
}

func TestLabelObserver(t *testing.T) {
	Convey("Given a started service with a label sink", t, func() {
		ctx := context.Background()
		sink := make(chanSink, 4)
		svc, _ := newService(t, service.WithLabelSink(sink), service.WithLabelThresholds(1, 1))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		_, err := svc.AddSong(ctx, "Soulless 5")
		So(err, ShouldBeNil)
		_, err = svc.Submit(ctx, model.Submission{UserID: "u1", Username: "Axel", Instrument: "Drums", Song: "Soulless 5", Counts: fc(700, 37), Difficulty: diff(3)})
		So(err, ShouldBeNil)

		Convey("Then the sink receives the derived labels", func() {
			select {
			case l := <-sink:
				So(l.UserID, ShouldEqual, "u1")
				So(l.Instruments, ShouldResemble, []string{"Drums - Bronze"})
				So(l.Overall, ShouldEqual, "Bronze")
			case <-time.After(2 * time.Second):
				So("labels", ShouldEqual, "delivered")
			}
		})
	})
}

func TestConcurrentSubmissions(t *testing.T) {
	Convey("Given many songs submitted at once for one player", t, func() {
		ctx := context.Background()
		svc, st := newService(t)
		const n = 20
		for i := 0; i < n; i++ {
			_, err := svc.AddSong(ctx, fmt.Sprintf("Song %02d", i))
			So(err, ShouldBeNil)
		}

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := svc.Submit(ctx, model.Submission{
					UserID: "u1", Instrument: "Bass", Song: fmt.Sprintf("Song %02d", i),
					Counts: fc(100+i, 10), Difficulty: diff(2),
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			So(err, ShouldBeNil)
		}

		Convey("Then no best is lost and the caches match the bests", func() {
			p, err := st.GetPlayer(ctx, "u1", "Bass")
			So(err, ShouldBeNil)
			So(len(p.Bests), ShouldEqual, n)
			So(p.Aggregate, ShouldAlmostEqual, svc.Engine().Aggregate(scoring.FromMap(p.Bests)), 1e-9)
		})
	})
}

func TestConcurrentFirstDifficulty(t *testing.T) {
	Convey("Given a song without a difficulty", t, func() {
		ctx := context.Background()
		svc, st := newService(t)
		_, err := svc.AddSong(ctx, "Soulless 5")
		So(err, ShouldBeNil)

		Convey("When several players submit it at once with different difficulties", func() {
			const n = 8
			var wg sync.WaitGroup
			results := make(chan model.SubmissionResult, n)
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := svc.Submit(ctx, model.Submission{
						UserID: fmt.Sprintf("u%d", i), Instrument: "Lead", Song: "Soulless 5",
						Counts: fc(700, 37), Difficulty: diff(float64(i + 1)),
					})
					errs <- err
					results <- res
				}(i)
			}
			wg.Wait()
			close(errs)
			close(results)
			for err := range errs {
				So(err, ShouldBeNil)
			}

			Convey("Then exactly one difficulty is stored and every score uses it", func() {
				meta, err := st.GetSong(ctx, "Lead", "Soulless 5")
				So(err, ShouldBeNil)
				So(meta.DifficultySet, ShouldBeTrue)
				want := scoring.Normalize(fc(700, 37), meta.Difficulty)
				for res := range results {
					So(res.Score, ShouldEqual, want)
				}
			})
		})
	})
}

func TestIndexFailure(t *testing.T) {
	Convey("Given a service whose index drops the next write", t, func() {
		ctx := context.Background()
		idx := &flakyIndex{TreapIndex: repository.NewTreapIndex(repository.WithSeed(1))}
		idx.failures.Store(1)
		svc, err := service.New(newStore(t), idx)
		So(err, ShouldBeNil)
		_, err = svc.AddSong(ctx, "Soulless 5")
		So(err, ShouldBeNil)

		res, err := svc.Submit(ctx, model.Submission{ID: "s1", UserID: "u1", Instrument: "Lead", Song: "Soulless 5", Counts: fc(700, 37), Difficulty: diff(3)})

		Convey("Then the stored best is still reported as accepted", func() {
			So(err, ShouldBeNil)
			So(res.Improved, ShouldBeTrue)
			So(res.FirstSubmission, ShouldBeTrue)
			So(res.Aggregate, ShouldEqual, 295.97)

			_, err := svc.Submit(ctx, model.Submission{ID: "s1", UserID: "u1", Instrument: "Lead", Song: "Soulless 5", Counts: fc(700, 37)})
			So(errors.Is(err, service.ErrDuplicate), ShouldBeTrue)
		})

		Convey("When a later score does not improve the best", func() {
			rows, err := svc.Leaderboard(ctx, "Lead", 0)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 0)

			res, err := svc.Submit(ctx, model.Submission{ID: "s2", UserID: "u1", Instrument: "Lead", Song: "Soulless 5", Counts: fc(600, 137)})
			So(err, ShouldBeNil)
			So(res.Improved, ShouldBeFalse)

			Convey("Then the missing leaderboard entry is repaired", func() {
				rows, err := svc.Leaderboard(ctx, "Lead", 0)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 1)
				So(rows[0].UserID, ShouldEqual, "u1")
				So(rows[0].Score, ShouldEqual, 295.97)

				all, err := svc.Leaderboard(ctx, "", 0)
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 1)
			})
		})
	})
}

func TestImportLegacy(t *testing.T) {
	Convey("Given legacy song and player documents", t, func() {
		ctx := context.Background()
		svc, st := newService(t)

		songs := `{"Lead": {"Soulless 5": {"difficulty": 3, "total_notes": 737}, "Everlong": {"difficulty": "X", "total_notes": 0}}}`
		players := `{"123": {"username": "Axel", "Lead": {"songs": {"soulless 5": 295.97, "Everlong": 120}, "final_rank_score": 1, "rank": "Gold", "named_rank": "Gold"}, "Kazoo": {"songs": {}}}}`

		n, err := svc.ImportSongInfo(ctx, strings.NewReader(songs))
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 2)

		stats, err := svc.ImportPlayerData(ctx, strings.NewReader(players))
		So(err, ShouldBeNil)
		So(stats.Players, ShouldEqual, 1)
		So(stats.Records, ShouldEqual, 1)
		So(stats.Skipped, ShouldEqual, 1)

		Convey("Then caches are recomputed instead of copied", func() {
			p, err := st.GetPlayer(ctx, "123", "Lead")
			So(err, ShouldBeNil)
			So(p.Username, ShouldEqual, "Axel")
			So(p.Bests["Soulless 5"], ShouldEqual, 295.97)
			So(p.Tier, ShouldEqual, "Bronze")

			everlong, err := st.GetSong(ctx, "Lead", "Everlong")
			So(err, ShouldBeNil)
			So(everlong.DifficultySet, ShouldBeFalse)
		})

		Convey("Then the player is on the leaderboard", func() {
			rows, err := svc.Leaderboard(ctx, "Lead", 5)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 1)
			So(rows[0].UserID, ShouldEqual, "123")
		})

		Convey("When a username is not a string", func() {
			doc := `{"456": {"username": 42, "Lead": {"songs": {"Soulless 5": 100}}}}`
			stats, err := svc.ImportPlayerData(ctx, strings.NewReader(doc))

			Convey("Then it is counted and the scores still import", func() {
				So(err, ShouldBeNil)
				So(stats.BadUsernames, ShouldEqual, 1)
				So(stats.Records, ShouldEqual, 1)

				p, err := st.GetPlayer(ctx, "456", "Lead")
				So(err, ShouldBeNil)
				So(p.Username, ShouldEqual, "")
				So(p.Bests["Soulless 5"], ShouldEqual, 100)
			})
		})
	})
}
