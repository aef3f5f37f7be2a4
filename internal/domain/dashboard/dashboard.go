// Package dashboard builds the best-effort status rollup: active entities,
// today's events, the busiest venues and the latest activity.
package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/pkg/logger"
	"github.com/okian/fanpulse/pkg/metrics"
)

// Defaults for the rollup.
const (
	DefaultTopVenues      = 5
	DefaultRecentActivity = 10
)

// Cache is the live view the dashboard reads.
type Cache interface {
	ActiveEntities(ctx context.Context) (int, error)
	ActiveVenues(ctx context.Context) ([]string, error)
	GetOccupants(ctx context.Context, venueID string) ([]string, error)
}

// Registry supplies venue metadata and event counts.
type Registry interface {
	GetVenue(ctx context.Context, id string) (model.Venue, error)
	CountEventsBetween(ctx context.Context, from, to time.Time) (int, error)
}

// RecordSource reads records from the durable analytics log.
type RecordSource interface {
	Query(ctx context.Context, f model.RecordFilter) ([]model.AnalyticsRecord, error)
}

// venueResult is the outcome of resolving one venue: either an activity row
// or a skip carrying the reason.
type venueResult struct {
	activity model.VenueActivity
	err      error
}

func (r venueResult) skipped() bool { return r.err != nil }

// Aggregator composes the dashboard snapshot.
type Aggregator struct {
	cache        Cache
	registry     Registry
	records      RecordSource
	clock        func() time.Time
	loc          *time.Location
	topVenues    int
	recent       int
	queryTimeout time.Duration
	logger       logger.Logger
}

// NewAggregator wires the aggregator to its sources.
func NewAggregator(cache Cache, registry Registry, records RecordSource, opts ...Option) *Aggregator {
	a := &Aggregator{
		cache:     cache,
		registry:  registry,
		records:   records,
		clock:     time.Now,
		loc:       time.UTC,
		topVenues: DefaultTopVenues,
		recent:    DefaultRecentActivity,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("dashboard")
	}
	return a
}

// DayBounds returns [00:00, next day 00:00) of the day containing now in loc.
func DayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// GetDashboardSnapshot builds the rollup. A venue whose occupants or
// metadata cannot be read is skipped and counted in SkippedVenues; failures
// of the entity count, the event count or the activity feed fail the call.
func (a *Aggregator) GetDashboardSnapshot(ctx context.Context) (model.DashboardSnapshot, error) {
	const op = "dashboard.snapshot"
	start := time.Now()
	defer func() {
		metrics.RecordAnalyticsLatency("dashboard", float64(time.Since(start).Milliseconds()))
	}()

	if a.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.queryTimeout)
		defer cancel()
	}

	now := a.clock()
	snap := model.DashboardSnapshot{GeneratedAt: now}

	active, err := a.cache.ActiveEntities(ctx)
	if err != nil {
		metrics.RecordAnalyticsError("dashboard", errkind.Label(err))
		return model.DashboardSnapshot{}, errkind.Upstream(op, err)
	}
	snap.TotalActiveEntities = active

	from, to := DayBounds(now, a.loc)
	today, err := a.registry.CountEventsBetween(ctx, from, to)
	if err != nil {
		metrics.RecordAnalyticsError("dashboard", errkind.Label(err))
		return model.DashboardSnapshot{}, errkind.Upstream(op, err)
	}
	snap.EventsToday = today

	venues, err := a.cache.ActiveVenues(ctx)
	if err != nil {
		metrics.RecordAnalyticsError("dashboard", errkind.Label(err))
		return model.DashboardSnapshot{}, errkind.Upstream(op, err)
	}
	snap.TopVenues, snap.SkippedVenues = a.topVenueActivity(ctx, venues)

	feed, err := a.recentActivity(ctx)
	if err != nil {
		metrics.RecordAnalyticsError("dashboard", errkind.Label(err))
		return model.DashboardSnapshot{}, errkind.Upstream(op, err)
	}
	snap.RecentActivity = feed

	a.logger.Debug(ctx, "dashboard snapshot built",
		logger.Int("active_entities", snap.TotalActiveEntities),
		logger.Int("venues", len(venues)),
		logger.Int("skipped_venues", snap.SkippedVenues),
	)
	return snap, nil
}

func (a *Aggregator) resolveVenue(ctx context.Context, venueID string) venueResult {
	occupants, err := a.cache.GetOccupants(ctx, venueID)
	if err != nil {
		return venueResult{err: err}
	}
	venue, err := a.registry.GetVenue(ctx, venueID)
	if err != nil {
		return venueResult{err: err}
	}
	return venueResult{activity: model.VenueActivity{
		VenueID:   venueID,
		Name:      venue.Name,
		Capacity:  venue.Capacity,
		Occupants: len(occupants),
	}}
}

func (a *Aggregator) topVenueActivity(ctx context.Context, venues []string) ([]model.VenueActivity, int) {
	rows := make([]model.VenueActivity, 0, len(venues))
	skipped := 0
	for _, id := range venues {
		res := a.resolveVenue(ctx, id)
		if res.skipped() {
			skipped++
			metrics.RecordDashboardVenueSkipped()
			a.logger.Warn(ctx, "venue skipped in dashboard",
				logger.String("venue_id", id),
				logger.Error(res.err),
			)
			continue
		}
		rows = append(rows, res.activity)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Occupants != rows[j].Occupants {
			return rows[i].Occupants > rows[j].Occupants
		}
		return rows[i].VenueID < rows[j].VenueID
	})
	if len(rows) > a.topVenues {
		rows = rows[:a.topVenues]
	}
	return rows, skipped
}

func (a *Aggregator) recentActivity(ctx context.Context) ([]model.ActivityItem, error) {
	records, err := a.records.Query(ctx, model.RecordFilter{Order: model.NewestFirst, Limit: a.recent})
	if err != nil {
		return nil, err
	}
	if len(records) > a.recent {
		records = records[:a.recent]
	}
	items := make([]model.ActivityItem, len(records))
	for i, r := range records {
		items[i] = model.ActivityItem{
			RecordID:   r.ID,
			Type:       r.Type,
			Label:      r.Type.ActivityLabel(),
			EntityID:   r.Payload.EntityID,
			ObservedAt: r.ObservedAt,
		}
	}
	return items, nil
}
