package pingsim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/fanpulse/pkg/logger"
)

// newRand returns a generator for one worker. Workers get distinct streams
// derived from the run seed so a seeded run is reproducible.
func newRand(seed uint64, worker int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(worker)+1)) //nolint:gosec // simulation data, not secrets
}

// generatePlan builds the venues, events and visitors of a run.
func generatePlan(ctx context.Context, config *Config, now time.Time, stats *Stats) (*Plan, error) {
	logger.Get().Info(ctx, "generating simulation plan",
		logger.Int("venues", config.Venues),
		logger.Int("entities", config.Entities),
		logger.Int("pingsPerEntity", config.PingsPerEntity))

	rng := newRand(config.Seed, 0)
	plan := &Plan{Venues: generateVenues(rng, config.Venues)}
	plan.Events, plan.Upcoming = generateEvents(rng, plan.Venues, config.PastEvents, now)

	visitors, err := generateVisitors(ctx, config, plan, now)
	if err != nil {
		return nil, err
	}
	plan.Visitors = visitors

	stats.PingsGenerated = len(visitors) * config.PingsPerEntity
	logger.Get().Info(ctx, "generated simulation plan",
		logger.Int("events", len(plan.Events)),
		logger.Int("pings", stats.PingsGenerated))
	return plan, nil
}

// generateVenues lays venues out on a five-column grid.
func generateVenues(rng *rand.Rand, n int) []Venue {
	venues := make([]Venue, n)
	for i := range venues {
		id := venueID(i)
		venues[i] = Venue{
			ID:        id,
			Name:      "Venue " + strconv.Itoa(i+1),
			Capacity:  minCapacity + rng.IntN(capacityRange),
			Latitude:  baseLatitude + float64(i%5)*venueSpacing,
			Longitude: baseLongitude + float64(i/5)*venueSpacing,
		}
	}
	return venues
}

// generateEvents returns every event to seed and, separately, the one
// upcoming event per venue that visitors check into.
func generateEvents(rng *rand.Rand, venues []Venue, past int, now time.Time) (all, upcoming []Event) {
	for _, v := range venues {
		for p := 1; p <= past; p++ {
			all = append(all, Event{
				ID:           v.ID + "-past-" + strconv.Itoa(p),
				VenueID:      v.ID,
				Name:         v.Name + " fixture " + strconv.Itoa(p),
				StartsAt:     now.Add(-time.Duration(p) * pastEventStride).UTC(),
				CheckinCount: minCheckins + rng.IntN(checkinRange),
			})
		}
		live := Event{
			ID:       v.ID + "-live",
			VenueID:  v.ID,
			Name:     v.Name + " tonight",
			StartsAt: now.Add(upcomingLead).UTC(),
		}
		all = append(all, live)
		upcoming = append(upcoming, live)
	}
	return all, upcoming
}

// generateVisitors creates the visitors concurrently, one slice of the
// population per worker.
func generateVisitors(ctx context.Context, config *Config, plan *Plan, now time.Time) ([]Visitor, error) {
	visitors := make([]Visitor, config.Entities)
	if config.Entities == 0 {
		return visitors, nil
	}

	type visitorResult struct {
		index   int
		visitor Visitor
		err     error
	}
	resultChan := make(chan visitorResult, config.Entities)

	workerCount := min(config.Workers, config.Entities)
	perWorker := config.Entities / workerCount

	for worker := 0; worker < workerCount; worker++ {
		start := worker * perWorker
		end := start + perWorker
		if worker == workerCount-1 {
			end = config.Entities
		}

		go func(worker, start, end int) {
			rng := newRand(config.Seed, worker+1)
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					resultChan <- visitorResult{index: i, err: ctx.Err()}
					return
				default:
					venue := plan.Venues[i%len(plan.Venues)]
					event := plan.Upcoming[i%len(plan.Upcoming)]
					resultChan <- visitorResult{index: i, visitor: generateVisitor(rng, venue, event, config.PingsPerEntity, now)}
				}
			}
		}(worker, start, end)
	}

	for i := 0; i < config.Entities; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during visitor generation: %w", ctx.Err())
		case result := <-resultChan:
			if result.err != nil {
				return nil, fmt.Errorf("failed to generate visitor %d: %w", result.index, result.err)
			}
			visitors[result.index] = result.visitor
		}
	}
	return visitors, nil
}

// generateVisitor walks one entity around its venue. The last ping is
// observed at now so every visitor is live when the run is verified.
func generateVisitor(rng *rand.Rand, venue Venue, event Event, pings int, now time.Time) Visitor {
	v := Visitor{
		EntityID: uuid.New().String(),
		VenueID:  venue.ID,
		EventID:  event.ID,
		Pings:    make([]Ping, pings),
	}

	lat := venue.Latitude + jitter(rng)
	lon := venue.Longitude + jitter(rng)
	for k := range v.Pings {
		v.Pings[k] = Ping{
			PingID:     uuid.New().String(),
			EntityID:   v.EntityID,
			VenueID:    venue.ID,
			Latitude:   lat,
			Longitude:  lon,
			ObservedAt: now.Add(-time.Duration(pings-1-k) * pingInterval).UTC(),
		}
		lat = clamp(lat+jitter(rng)/2, venue.Latitude)
		lon = clamp(lon+jitter(rng)/2, venue.Longitude)
	}
	return v
}

// jitter returns an offset in [-walkRadius, walkRadius).
func jitter(rng *rand.Rand) float64 {
	return (rng.Float64()*2 - 1) * walkRadius
}

// clamp keeps a coordinate within walkRadius of center.
func clamp(x, center float64) float64 {
	return max(center-walkRadius, min(center+walkRadius, x))
}

func venueID(i int) string {
	return fmt.Sprintf("venue-%03d", i+1)
}
