package scoring_test

import (
	"errors"
	"testing"

	scoring "github.com/okian/festrank/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEngine(t *testing.T) {
	Convey("Given an engine with default configuration", t, func() {
		e, err := scoring.New()
		So(err, ShouldBeNil)

		Convey("When summarizing two songs on lead", func() {
			sum := e.Summarize("Lead", map[string]float64{"one": 600, "two": 800})

			Convey("Then every derived value should follow from the bests", func() {
				So(sum.Songs, ShouldEqual, 2)
				So(sum.Aggregate, ShouldAlmostEqual, 800+600*0.95, 1e-9)
				So(sum.Tier, ShouldEqual, "Bronze")
				So(sum.Named.Mean, ShouldEqual, 700)
				So(sum.Named.Label, ShouldEqual, "Top 50")
			})
		})

		Convey("When summarizing nothing", func() {
			sum := e.Summarize("Drums", nil)
			So(sum.Aggregate, ShouldEqual, 0)
			So(sum.Tier, ShouldEqual, "Bronze")
			So(sum.Named.Label, ShouldEqual, "Bronze")
		})

		Convey("Then weights should decay geometrically", func() {
			So(e.Weight(0), ShouldEqual, 1)
			So(e.Weight(2), ShouldAlmostEqual, 0.9025, 1e-12)
		})
	})

	Convey("Given custom options", t, func() {
		e, err := scoring.New(
			scoring.WithDecay(0.5),
			scoring.WithTopK(2),
			scoring.WithNamedTopN(1),
			scoring.WithNamedTables(scoring.Tables{
				Default:      scoring.DefaultNamedTable(),
				ByInstrument: map[string]scoring.Table{"Vocals": {{Label: "Loud", Min: 50}, {Label: "Quiet", Min: 0}}},
			}),
		)
		So(err, ShouldBeNil)

		sum := e.Summarize("vocals", map[string]float64{"a": 40, "b": 60, "c": 80})
		So(sum.Aggregate, ShouldEqual, 80+60*0.5)
		So(sum.Named.Mean, ShouldEqual, 80)
		So(sum.Named.Label, ShouldEqual, "Loud")
	})

	Convey("Given aggregate tables keyed by instrument", t, func() {
		e, err := scoring.New(scoring.WithRankTables(scoring.Tables{
			ByInstrument: map[string]scoring.Table{" Pro Bass": {{Label: "Deep", Min: 1000}, {Label: "Shallow", Min: 0}}},
		}))
		So(err, ShouldBeNil)

		Convey("Then the instrument table should classify its own aggregates", func() {
			So(e.Tier("pro bass", 1500), ShouldEqual, "Deep")
			So(e.Summarize("Pro Bass", map[string]float64{"a": 999}).Tier, ShouldEqual, "Shallow")
		})

		Convey("Then other instruments should fall back to the default table", func() {
			So(e.Tier("Lead", 17500), ShouldEqual, "Gold")
			So(e.Tier("", 10000), ShouldEqual, "Silver")
			So(e.RankTable("Kazoo"), ShouldResemble, scoring.DefaultRankTable())
		})
	})

	Convey("Given a decay rate outside (0, 1)", t, func() {
		Convey("Then the option should be ignored", func() {
			for _, d := range []float64{1, 0, -0.5, 1.2} {
				e, err := scoring.New(scoring.WithDecay(d))
				So(err, ShouldBeNil)
				So(e.Decay(), ShouldEqual, scoring.DefaultDecay)
			}
		})
	})

	Convey("Given an invalid table", t, func() {
		_, err := scoring.New(scoring.WithRankTable(scoring.Table{{Label: "Only", Min: 5}}))
		So(errors.Is(err, scoring.ErrInvalidTable), ShouldBeTrue)

		_, err = scoring.New(scoring.WithRankTables(scoring.Tables{
			ByInstrument: map[string]scoring.Table{"Lead": {{Label: "Only", Min: 5}}},
		}))
		So(errors.Is(err, scoring.ErrInvalidTable), ShouldBeTrue)
	})
}
