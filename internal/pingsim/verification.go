package pingsim

import (
	"context"
	"errors"
	"net/url"

	"github.com/okian/fanpulse/pkg/logger"
)

// ErrNothingVerified is returned when no read route answered.
var ErrNothingVerified = errors.New("no analytics could be verified")

// verifyResults reads every analytics route back and compares what it can
// against the plan. Mismatches are logged and counted, not fatal: a busy
// service may still be draining its append queue.
func verifyResults(ctx context.Context, config *Config, client *HTTPClient, plan *Plan, stats *Stats) error {
	logger.Get().Info(ctx, "verifying results")
	log := logger.Get()
	answered := 0

	expected := make(map[string]int, len(plan.Venues))
	for _, v := range plan.Visitors {
		expected[v.VenueID]++
	}

	for _, venue := range plan.Venues {
		var snap snapshotResponse
		if err := client.GetJSON(ctx, "/v1/venues/"+venue.ID+"/snapshot", &snap); err != nil {
			log.Warn(ctx, "snapshot failed", logger.String("venue", venue.ID), logger.Error(err))
			continue
		}
		answered++
		if snap.Count != expected[venue.ID] {
			stats.SnapshotMismatches++
			log.Warn(ctx, "snapshot count mismatch",
				logger.String("venue", venue.ID),
				logger.Int("expected", expected[venue.ID]),
				logger.Int("got", snap.Count))
		} else if config.Verbose {
			log.Info(ctx, "snapshot verified", logger.String("venue", venue.ID), logger.Int("count", snap.Count))
		}
	}

	var hm heatmapResponse
	if err := client.GetJSON(ctx, "/v1/heatmap", &hm); err != nil {
		log.Warn(ctx, "heatmap failed", logger.Error(err))
	} else {
		answered++
		stats.HeatmapRecords = hm.RecordsScanned
		stats.PopularAreas = len(hm.PopularAreas)
		stats.MovementEdges = len(hm.MovementPatterns)
		weight := 0
		for _, p := range hm.Points {
			weight += p.Weight
		}
		if weight != hm.RecordsScanned {
			log.Warn(ctx, "heatmap weights do not add up",
				logger.Int("weight", weight),
				logger.Int("recordsScanned", hm.RecordsScanned))
		}
	}

	for _, e := range plan.Upcoming {
		var fc forecastResponse
		if err := client.GetJSON(ctx, "/v1/events/"+url.PathEscape(e.ID)+"/forecast", &fc); err != nil {
			log.Warn(ctx, "forecast failed", logger.String("event", e.ID), logger.Error(err))
			continue
		}
		answered++
		stats.ForecastsRetrieved++
		if config.Verbose {
			log.Info(ctx, "forecast",
				logger.String("event", e.ID),
				logger.Int("predicted", fc.PredictedCount),
				logger.Float64("confidence", fc.Confidence))
		}
	}

	var dash dashboardResponse
	if err := client.GetJSON(ctx, "/v1/dashboard", &dash); err != nil {
		log.Warn(ctx, "dashboard failed", logger.Error(err))
	} else {
		answered++
		stats.DashboardEntities = dash.TotalActiveEntities
		if dash.TotalActiveEntities < len(plan.Visitors) {
			log.Warn(ctx, "dashboard reports fewer active entities than simulated",
				logger.Int("expected", len(plan.Visitors)),
				logger.Int("got", dash.TotalActiveEntities))
		}
		displayTopVenues(ctx, dash)
	}

	if answered == 0 {
		return ErrNothingVerified
	}
	logger.Get().Info(ctx, "result verification completed", logger.Int("mismatches", stats.SnapshotMismatches))
	return nil
}

// displayTopVenues logs the dashboard's busiest venues.
func displayTopVenues(ctx context.Context, dash dashboardResponse) {
	for i, v := range dash.TopVenues {
		logger.Get().Info(ctx, "top venue",
			logger.Int("rank", i+1),
			logger.String("venue", v.VenueID),
			logger.Int("occupants", v.Occupants))
	}
}
