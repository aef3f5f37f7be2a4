package forecast_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/forecast"
	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/pkg/logger"
)

type fakeRegistry struct {
	events     map[string]model.Event
	past       []model.Event
	pastErr    error
	lastBefore time.Time
	lastLimit  int
}

func (f *fakeRegistry) GetEvent(_ context.Context, id string) (model.Event, error) {
	ev, ok := f.events[id]
	if !ok {
		return model.Event{}, errkind.New("fake.get_event", errkind.ErrNotFound, id)
	}
	return ev, nil
}

func (f *fakeRegistry) ListPastEvents(_ context.Context, _ string, before time.Time, limit int) ([]model.Event, error) {
	f.lastBefore = before
	f.lastLimit = limit
	return f.past, f.pastErr
}

// 2026-06-03 is a Wednesday, 2026-06-06 a Saturday.
var (
	weekdayMorning = time.Date(2026, 6, 3, 10, 0, 0, 0, time.UTC)
	weekdayEvening = time.Date(2026, 6, 3, 19, 30, 0, 0, time.UTC)
	saturdayNoon   = time.Date(2026, 6, 6, 12, 0, 0, 0, time.UTC)
	saturdayNight  = time.Date(2026, 6, 6, 20, 0, 0, 0, time.UTC)
)

func pastCounts(counts ...int) []model.Event {
	out := make([]model.Event, len(counts))
	for i, c := range counts {
		out[i] = model.Event{ID: "past", VenueID: "v1", CheckinCount: c}
	}
	return out
}

func TestPredictAttendance(t *testing.T) {
	Convey("Given an event with no history", t, func() {
		reg := &fakeRegistry{events: map[string]model.Event{
			"e1": {ID: "e1", VenueID: "v1", StartsAt: weekdayMorning},
			"e2": {ID: "e2", VenueID: "v1", StartsAt: saturdayNight},
		}}
		p := forecast.NewPredictor(reg, forecast.WithLogger(logger.NewNop()))

		Convey("When predicting an ordinary slot", func() {
			fc, err := p.PredictAttendance(context.Background(), "e1")

			Convey("Then the forecast is zero with base confidence and no factors", func() {
				So(err, ShouldBeNil)
				So(fc.PredictedCount, ShouldEqual, 0)
				So(fc.Confidence, ShouldAlmostEqual, 0.6)
				So(fc.ContributingFactors, ShouldBeEmpty)
				So(fc.HistoricalEvents, ShouldEqual, 0)
				So(reg.lastBefore.Equal(weekdayMorning), ShouldBeTrue)
				So(reg.lastLimit, ShouldEqual, forecast.DefaultHistory)
			})
		})

		Convey("When predicting a weekend prime-time slot", func() {
			fc, err := p.PredictAttendance(context.Background(), "e2")

			Convey("Then both factors apply and the count stays zero", func() {
				So(err, ShouldBeNil)
				So(fc.PredictedCount, ShouldEqual, 0)
				So(fc.ContributingFactors, ShouldResemble, []model.Factor{
					{Name: forecast.FactorWeekend, Weight: 0.3},
					{Name: forecast.FactorPrimeTime, Weight: 0.2},
				})
			})
		})

		Convey("When the event does not exist", func() {
			_, err := p.PredictAttendance(context.Background(), "missing")

			Convey("Then it is not found", func() {
				So(errors.Is(err, errkind.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the event id is blank", func() {
			_, err := p.PredictAttendance(context.Background(), " ")
			So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
		})

		Convey("When the registry fails listing history", func() {
			reg.pastErr = errors.New("connection refused")
			_, err := p.PredictAttendance(context.Background(), "e1")
			So(errors.Is(err, errkind.ErrUpstream), ShouldBeTrue)
		})
	})

	Convey("Given an event with a long history", t, func() {
		reg := &fakeRegistry{
			events: map[string]model.Event{"e1": {ID: "e1", VenueID: "v1", StartsAt: weekdayMorning}},
			past:   pastCounts(100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100),
		}
		p := forecast.NewPredictor(reg, forecast.WithLogger(logger.NewNop()))
		fc, err := p.PredictAttendance(context.Background(), "e1")

		Convey("Then at most ten past events are used and confidence is capped", func() {
			So(err, ShouldBeNil)
			So(fc.HistoricalEvents, ShouldEqual, 10)
			So(fc.Confidence, ShouldAlmostEqual, 0.95)
			So(fc.PredictedCount, ShouldEqual, 100)
		})
	})
}

func TestPredict(t *testing.T) {
	cases := []struct {
		name       string
		start      time.Time
		past       []model.Event
		want       int
		confidence float64
		factors    int
	}{
		{"weekday morning", weekdayMorning, pastCounts(100, 200), 150, 0.7, 0},
		{"weekday evening", weekdayEvening, pastCounts(100, 200), 180, 0.7, 1},
		{"saturday noon", saturdayNoon, pastCounts(100), 130, 0.65, 1},
		{"saturday night", saturdayNight, pastCounts(100), 156, 0.65, 2},
		{"rounds half up", weekdayMorning, pastCounts(1, 2), 2, 0.7, 0},
		{"four past events", weekdayMorning, pastCounts(10, 10, 10, 10), 10, 0.8, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := forecast.Predict(model.Event{ID: "e", VenueID: "v", StartsAt: tc.start}, tc.past, time.UTC)
			if fc.PredictedCount != tc.want {
				t.Errorf("predicted = %d, want %d", fc.PredictedCount, tc.want)
			}
			if d := fc.Confidence - tc.confidence; d > 1e-9 || d < -1e-9 {
				t.Errorf("confidence = %v, want %v", fc.Confidence, tc.confidence)
			}
			if len(fc.ContributingFactors) != tc.factors {
				t.Errorf("factors = %v, want %d", fc.ContributingFactors, tc.factors)
			}
		})
	}
}

func TestPredictUsesConfiguredZone(t *testing.T) {
	// 2026-06-05 23:30 UTC is Saturday 08:30 in Tokyo.
	start := time.Date(2026, 6, 5, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)

	utc := forecast.Predict(model.Event{StartsAt: start}, nil, time.UTC)
	if len(utc.ContributingFactors) != 0 {
		t.Errorf("expected no factors in UTC, got %v", utc.ContributingFactors)
	}

	jst := forecast.Predict(model.Event{StartsAt: start}, nil, tokyo)
	if len(jst.ContributingFactors) != 1 || jst.ContributingFactors[0].Name != forecast.FactorWeekend {
		t.Errorf("expected weekend factor in JST, got %v", jst.ContributingFactors)
	}
}
