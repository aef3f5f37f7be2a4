package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/fanpulse/internal/adapters/storage"
	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/pkg/logger"
)

var base = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

type backend struct {
	name string
	open func(t *testing.T) storage.Store
}

func backends() []backend {
	return []backend{
		{"memory", func(*testing.T) storage.Store { return storage.NewMemory() }},
		{"sqlite", func(t *testing.T) storage.Store {
			s, err := storage.OpenSQLite(context.Background(), storage.MemoryPath, logger.NewNop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		}},
		{"guarded", func(*testing.T) storage.Store {
			return storage.NewGuarded(storage.NewMemory(), storage.DefaultBreakerConfig(), logger.NewNop())
		}},
	}
}

func locationAt(entity, venue string, minute int) model.AnalyticsRecord {
	return model.NewLocationRecord(model.LocationPing{
		EntityID:   entity,
		Latitude:   40,
		Longitude:  -3,
		ObservedAt: base.Add(time.Duration(minute) * time.Minute),
		VenueID:    venue,
	})
}

func TestRecordLogContract(t *testing.T) {
	for _, b := range backends() {
		b := b
		Convey("Given a "+b.name+" record log with mixed records", t, func() {
			ctx := context.Background()
			s := b.open(t)
			defer s.Close()

			r1 := locationAt("u1", "v1", 0)
			r2 := locationAt("u1", "v1", 10)
			r3 := locationAt("u2", "v2", 5)
			r4 := model.NewUsageRecord("u3", "open_map", base.Add(20*time.Minute))
			r5 := locationAt("u4", "v1", 10)
			for _, r := range []model.AnalyticsRecord{r1, r2, r3, r4, r5} {
				So(s.Append(ctx, r), ShouldBeNil)
			}

			Convey("When querying newest first without a filter", func() {
				got, err := s.Query(ctx, model.RecordFilter{Order: model.NewestFirst})

				Convey("Then all records come back newest first with later appends first on ties", func() {
					So(err, ShouldBeNil)
					So(ids(got), ShouldResemble, []string{r4.ID, r5.ID, r2.ID, r3.ID, r1.ID})
				})
			})

			Convey("When querying oldest first", func() {
				got, err := s.Query(ctx, model.RecordFilter{Order: model.OldestFirst})
				So(err, ShouldBeNil)
				So(ids(got), ShouldResemble, []string{r1.ID, r3.ID, r2.ID, r5.ID, r4.ID})
			})

			Convey("When filtering by type and venue", func() {
				got, err := s.Query(ctx, model.RecordFilter{Type: model.RecordLocation, VenueID: "v1", Order: model.NewestFirst})

				Convey("Then only matching records are returned with their payload", func() {
					So(err, ShouldBeNil)
					So(ids(got), ShouldResemble, []string{r5.ID, r2.ID, r1.ID})
					So(got[2].Payload.EntityID, ShouldEqual, "u1")
					So(got[2].Payload.Latitude, ShouldEqual, 40.0)
					So(got[2].Type, ShouldEqual, model.RecordLocation)
					So(got[2].ObservedAt.Equal(r1.ObservedAt), ShouldBeTrue)
				})
			})

			Convey("When filtering by a half-open time range", func() {
				got, err := s.Query(ctx, model.RecordFilter{
					From:  base.Add(5 * time.Minute),
					To:    base.Add(20 * time.Minute),
					Order: model.OldestFirst,
				})
				So(err, ShouldBeNil)
				So(ids(got), ShouldResemble, []string{r3.ID, r2.ID, r5.ID})
			})

			Convey("When limiting", func() {
				got, err := s.Query(ctx, model.RecordFilter{Order: model.NewestFirst, Limit: 2})
				So(err, ShouldBeNil)
				So(ids(got), ShouldResemble, []string{r4.ID, r5.ID})
			})

			Convey("And usage payloads survive", func() {
				got, err := s.Query(ctx, model.RecordFilter{Type: model.RecordUsage})
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].Payload.Action, ShouldEqual, "open_map")
			})
		})
	}
}

func TestRegistryContract(t *testing.T) {
	for _, b := range backends() {
		b := b
		Convey("Given a "+b.name+" registry with one venue and its events", t, func() {
			ctx := context.Background()
			s := b.open(t)
			defer s.Close()

			So(s.UpsertVenue(ctx, model.Venue{ID: "v1", Name: "Arena", Capacity: 5000, OpensAt: "09:00", ClosesAt: "23:00"}), ShouldBeNil)
			for i, count := range []int{100, 200, 300} {
				So(s.UpsertEvent(ctx, model.Event{
					ID:           []string{"e1", "e2", "e3"}[i],
					VenueID:      "v1",
					Name:         "match",
					StartsAt:     base.AddDate(0, 0, -7*(3-i)),
					CheckinCount: count,
				}), ShouldBeNil)
			}
			So(s.UpsertEvent(ctx, model.Event{ID: "next", VenueID: "v1", StartsAt: base}), ShouldBeNil)
			So(s.UpsertEvent(ctx, model.Event{ID: "other", VenueID: "v2", StartsAt: base.Add(-time.Hour)}), ShouldBeNil)

			Convey("When reading the venue", func() {
				v, err := s.GetVenue(ctx, "v1")
				So(err, ShouldBeNil)
				So(v.Name, ShouldEqual, "Arena")
				So(v.Capacity, ShouldEqual, 5000)
				So(v.ClosesAt, ShouldEqual, "23:00")
			})

			Convey("When reading unknown ids", func() {
				_, err := s.GetVenue(ctx, "nope")
				So(errors.Is(err, errkind.ErrNotFound), ShouldBeTrue)
				_, err = s.GetEvent(ctx, "nope")
				So(errors.Is(err, errkind.ErrNotFound), ShouldBeTrue)
				err = s.AddCheckin(ctx, "nope", "u1", base)
				So(errors.Is(err, errkind.ErrNotFound), ShouldBeTrue)
			})

			Convey("When listing past events", func() {
				past, err := s.ListPastEvents(ctx, "v1", base, 2)

				Convey("Then only earlier events at the venue come back, most recent first", func() {
					So(err, ShouldBeNil)
					So(past, ShouldHaveLength, 2)
					So(past[0].ID, ShouldEqual, "e3")
					So(past[0].CheckinCount, ShouldEqual, 300)
					So(past[1].ID, ShouldEqual, "e2")
				})
			})

			Convey("When checking in twice and once more by someone else", func() {
				So(s.AddCheckin(ctx, "next", "u1", base), ShouldBeNil)
				So(s.AddCheckin(ctx, "next", "u1", base.Add(time.Minute)), ShouldBeNil)
				So(s.AddCheckin(ctx, "next", "u2", base), ShouldBeNil)

				Convey("Then each entity counts once", func() {
					ev, err := s.GetEvent(ctx, "next")
					So(err, ShouldBeNil)
					So(ev.CheckinCount, ShouldEqual, 2)
					So(ev.StartsAt.Equal(base), ShouldBeTrue)
				})
			})

			Convey("When counting events in a day", func() {
				n, err := s.CountEventsBetween(ctx, base.Add(-2*time.Hour), base.Add(time.Hour))
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)

				n, err = s.CountEventsBetween(ctx, base.Add(-2*time.Hour), base)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})

			Convey("When an event is upserted again", func() {
				So(s.UpsertEvent(ctx, model.Event{ID: "e1", VenueID: "v1", Name: "renamed", StartsAt: base.AddDate(0, 0, -21), CheckinCount: 1}), ShouldBeNil)
				ev, err := s.GetEvent(ctx, "e1")
				So(err, ShouldBeNil)
				So(ev.Name, ShouldEqual, "renamed")
				So(ev.CheckinCount, ShouldEqual, 1)
			})
		})
	}
}

func ids(records []model.AnalyticsRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// flakyStore fails every call while down is set.
type flakyStore struct {
	*storage.Memory
	down  bool
	calls int
}

func (f *flakyStore) Query(ctx context.Context, filter model.RecordFilter) ([]model.AnalyticsRecord, error) {
	f.calls++
	if f.down {
		return nil, errors.New("disk I/O error")
	}
	return f.Memory.Query(ctx, filter)
}

func TestGuarded(t *testing.T) {
	Convey("Given a guarded store whose backend is down", t, func() {
		ctx := context.Background()
		inner := &flakyStore{Memory: storage.NewMemory(), down: true}
		g := storage.NewGuarded(inner, storage.BreakerConfig{
			Name:             "test-store",
			FailureThreshold: 3,
			Timeout:          time.Hour,
		}, logger.NewNop())

		Convey("When calls keep failing", func() {
			for i := 0; i < 3; i++ {
				_, err := g.Query(ctx, model.RecordFilter{})
				So(errors.Is(err, errkind.ErrUpstream), ShouldBeTrue)
			}

			Convey("Then the breaker opens and fails fast as upstream", func() {
				So(g.State(), ShouldEqual, gobreaker.StateOpen)
				_, err := g.Query(ctx, model.RecordFilter{})
				So(errors.Is(err, errkind.ErrUpstream), ShouldBeTrue)
				So(errors.Is(err, gobreaker.ErrOpenState), ShouldBeTrue)
				So(inner.calls, ShouldEqual, 3)
			})
		})

		Convey("When lookups miss", func() {
			for i := 0; i < 5; i++ {
				_, err := g.GetEvent(ctx, "missing")
				So(errors.Is(err, errkind.ErrNotFound), ShouldBeTrue)
				So(errors.Is(err, errkind.ErrUpstream), ShouldBeFalse)
			}

			Convey("Then the breaker stays closed", func() {
				So(g.State(), ShouldEqual, gobreaker.StateClosed)
			})
		})
	})
}
