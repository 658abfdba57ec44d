package scoring_test

import (
	"fmt"
	"testing"

	scoring "github.com/okian/festrank/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAggregate(t *testing.T) {
	Convey("Given a set of per-song bests", t, func() {
		scores := []scoring.SongScore{
			{Song: "a", Score: 100},
			{Song: "b", Score: 300},
			{Song: "c", Score: 200},
		}

		Convey("When aggregating with the default decay", func() {
			got := scoring.Aggregate(scores, scoring.DefaultTopK, scoring.DefaultDecay)
			Convey("Then the sum should be decayed by position", func() {
				So(got, ShouldAlmostEqual, 300+200*0.95+100*0.95*0.95, 1e-9)
			})
		})

		Convey("When the input order is permuted", func() {
			reversed := []scoring.SongScore{scores[2], scores[0], scores[1]}
			Convey("Then the aggregate should not change", func() {
				So(scoring.Aggregate(reversed, 100, 0.95), ShouldEqual, scoring.Aggregate(scores, 100, 0.95))
			})
		})

		Convey("When only one score exists", func() {
			Convey("Then the aggregate should equal that score", func() {
				So(scoring.Aggregate([]scoring.SongScore{{Song: "x", Score: 412.5}}, 100, 0.95), ShouldEqual, 412.5)
			})
		})

		Convey("When the set is empty", func() {
			So(scoring.Aggregate(nil, 100, 0.95), ShouldEqual, 0)
		})

		Convey("When more songs exist than top K", func() {
			many := make([]scoring.SongScore, 0, 150)
			for i := 0; i < 150; i++ {
				many = append(many, scoring.SongScore{Song: fmt.Sprintf("s%03d", i), Score: 10})
			}
			Convey("Then only K songs should count", func() {
				So(scoring.Aggregate(many, 100, 1), ShouldEqual, 1000)
				So(scoring.Aggregate(many, 5, 1), ShouldEqual, 50)
			})
		})

		Convey("When one score is raised", func() {
			raised := []scoring.SongScore{scores[0], scores[1], {Song: "c", Score: 250}}
			Convey("Then the aggregate should not decrease", func() {
				So(scoring.Aggregate(raised, 100, 0.95), ShouldBeGreaterThanOrEqualTo, scoring.Aggregate(scores, 100, 0.95))
			})
		})
	})
}

func TestRanked(t *testing.T) {
	Convey("Given tied scores", t, func() {
		got := scoring.Ranked([]scoring.SongScore{
			{Song: "zeta", Score: 50},
			{Song: "alpha", Score: 50},
			{Song: "mid", Score: 80},
		})
		Convey("Then ties should be broken by song identifier", func() {
			So(got[0].Song, ShouldEqual, "mid")
			So(got[1].Song, ShouldEqual, "alpha")
			So(got[2].Song, ShouldEqual, "zeta")
		})
	})
}

func TestTopMean(t *testing.T) {
	Convey("Given fewer songs than N", t, func() {
		got := scoring.TopMean([]scoring.SongScore{{Song: "a", Score: 600}, {Song: "b", Score: 800}}, 5)
		Convey("Then every available song should be averaged", func() {
			So(got, ShouldEqual, 700)
		})
	})

	Convey("Given more songs than N", t, func() {
		got := scoring.TopMean([]scoring.SongScore{
			{Song: "a", Score: 10}, {Song: "b", Score: 20}, {Song: "c", Score: 30},
		}, 2)
		So(got, ShouldEqual, 25)
	})

	Convey("Given no songs", t, func() {
		So(scoring.TopMean(nil, 5), ShouldEqual, 0)
	})
}
