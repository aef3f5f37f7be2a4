package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/fanpulse/internal/adapters/repository"
	"github.com/okian/fanpulse/internal/adapters/storage"
	service "github.com/okian/fanpulse/internal/app"
	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/pkg/logger"
	"github.com/okian/fanpulse/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var baseTime = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC) // Wednesday

func newStarted(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	opts = append([]service.Option{
		service.WithWorkerCount(2),
		service.WithClock(func() time.Time { return baseTime }),
		service.WithLogger(logger.NewNop()),
	}, opts...)
	svc := service.New(opts...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return svc
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldBeFalse)
			So(stats["ttlSeconds"], ShouldEqual, 3600)
			So(stats["timezone"], ShouldEqual, "UTC")
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(50_000),
			service.WithDedupeSize(25_000),
			service.WithLocationTTL(10*time.Minute),
		)

		Convey("Then they are reflected in the stats", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50_000)
			So(stats["dedupeSize"], ShouldEqual, 25_000)
			So(stats["ttlSeconds"], ShouldEqual, 600)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithLogger(logger.NewNop()))
		// Ensure service is stopped after test
		defer svc.Stop()

		Convey("When calling operations before Start", func() {
			err := svc.RecordUsage(context.Background(), "u1", "tap", time.Time{})

			Convey("Then they report the service is not started", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(errors.Is(err, errkind.ErrUpstream), ShouldBeTrue)
			})
		})

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
				So(stats["queueLength"], ShouldEqual, 0)
				So(stats["activeEntities"], ShouldEqual, 0)
			})

			Convey("And starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And cancelling the start context does not stop the workers", func() {
				cancel()
				So(svc.RecordUsage(context.Background(), "u1", "tap", time.Time{}), ShouldBeNil)
				So(eventually(func() bool { return svc.GetStats()["queueLength"] == 0 }), ShouldBeTrue)
			})

			Convey("And stopping makes operations fail again", func() {
				svc.Stop()
				svc.Stop()
				_, err := svc.GetDashboardSnapshot(context.Background())
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})

			Convey("And a restart after Stop serves from fresh backends", func() {
				bg := context.Background()
				So(svc.RecordLocation(bg, model.LocationPing{
					EntityID: "u1", Latitude: 40, Longitude: -3, ObservedAt: time.Now(), VenueID: "v1",
				}), ShouldBeNil)
				svc.Stop()

				So(svc.Start(bg), ShouldBeNil)
				So(svc.RecordLocation(bg, model.LocationPing{
					EntityID: "u2", Latitude: 40, Longitude: -3, ObservedAt: time.Now(), VenueID: "v1",
				}), ShouldBeNil)

				_, ok, err := svc.GetLocation(bg, "u1")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
				_, ok, err = svc.GetLocation(bg, "u2")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)

				_, err = svc.ComputeHeatmap(bg, model.HeatmapQuery{})
				So(err, ShouldBeNil)
			})
		})
	})

	Convey("Given a service running on injected backends", t, func() {
		svc := service.New(
			service.WithLogger(logger.NewNop()),
			service.WithKV(repository.NewMemStore()),
			service.WithStore(storage.NewMemory()),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		svc.Stop()

		Convey("When starting it again", func() {
			err := svc.Start(context.Background())

			Convey("Then it refuses to serve from the closed backends", func() {
				So(errors.Is(err, service.ErrBackendsClosed), ShouldBeTrue)
				So(errors.Is(err, errkind.ErrUpstream), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldBeFalse)
			})
		})
	})
}

// cacheLookups reads the live cache lookup counter for result.
func cacheLookups(t *testing.T, result string) float64 {
	t.Helper()
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != "fanpulse_engine_cache_lookups_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestService_GetLocationCountsOnce(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newStarted(t)
		defer svc.Stop()
		ctx := context.Background()
		So(svc.RecordLocation(ctx, model.LocationPing{EntityID: "u1", Latitude: 40, Longitude: -3, ObservedAt: baseTime}), ShouldBeNil)

		Convey("When looking up a live and an unknown entity", func() {
			hits, misses := cacheLookups(t, "hit"), cacheLookups(t, "miss")
			_, ok, err := svc.GetLocation(ctx, "u1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			_, ok, err = svc.GetLocation(ctx, "nobody")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			Convey("Then each lookup is counted exactly once", func() {
				So(cacheLookups(t, "hit")-hits, ShouldEqual, 1)
				So(cacheLookups(t, "miss")-misses, ShouldEqual, 1)
			})
		})
	})
}

func TestService_Validation(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newStarted(t)
		defer svc.Stop()
		ctx := context.Background()

		Convey("Then malformed pings are rejected as validation errors", func() {
			err := svc.RecordLocation(ctx, model.LocationPing{EntityID: "u1", Latitude: 91, ObservedAt: baseTime})
			So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)

			err = svc.RecordLocation(ctx, model.LocationPing{EntityID: " ", ObservedAt: baseTime})
			So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
		})

		Convey("Then blank identifiers are rejected", func() {
			So(errors.Is(svc.RecordUsage(ctx, "", "tap", time.Time{}), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(svc.RecordUsage(ctx, "u1", " ", time.Time{}), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(svc.RecordCheckin(ctx, "u1", "", time.Time{}), errkind.ErrValidation), ShouldBeTrue)
			_, _, err := svc.GetLocation(ctx, "  ")
			So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
		})

		Convey("Then seeding rejects incomplete metadata", func() {
			So(errors.Is(svc.UpsertVenue(ctx, model.Venue{Capacity: 10}), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(svc.UpsertVenue(ctx, model.Venue{ID: "v1", Capacity: -1}), errkind.ErrValidation), ShouldBeTrue)
			So(errors.Is(svc.UpsertEvent(ctx, model.Event{ID: "e1", VenueID: "v1"}), errkind.ErrValidation), ShouldBeTrue)
		})

		Convey("Then checking in to an unknown event is not found", func() {
			err := svc.RecordCheckin(ctx, "u1", "missing", time.Time{})
			So(errors.Is(err, errkind.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then an unknown entity has no location", func() {
			_, ok, err := svc.GetLocation(ctx, "ghost")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestService_Checkins(t *testing.T) {
	Convey("Given an event with a historical baseline", t, func() {
		svc := newStarted(t)
		defer svc.Stop()
		ctx := context.Background()

		So(svc.UpsertVenue(ctx, model.Venue{ID: "v1", Name: "North Stadium", Capacity: 50000}), ShouldBeNil)
		So(svc.UpsertEvent(ctx, model.Event{ID: "e1", VenueID: "v1", StartsAt: baseTime, CheckinCount: 10}), ShouldBeNil)

		Convey("When the same entity checks in twice and another once", func() {
			So(svc.RecordCheckin(ctx, "u1", "e1", time.Time{}), ShouldBeNil)
			So(svc.RecordCheckin(ctx, "u1", "e1", time.Time{}), ShouldBeNil)
			So(svc.RecordCheckin(ctx, "u2", "e1", time.Time{}), ShouldBeNil)

			Convey("Then the checkin feed shows them", func() {
				So(eventually(func() bool {
					snap, err := svc.GetDashboardSnapshot(ctx)
					return err == nil && len(snap.RecentActivity) == 3
				}), ShouldBeTrue)

				snap, err := svc.GetDashboardSnapshot(ctx)
				So(err, ShouldBeNil)
				So(snap.EventsToday, ShouldEqual, 1)
				So(snap.RecentActivity[0].Label, ShouldEqual, "check-in")
			})
		})
	})
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
