package location

import (
	"context"
	"strings"

	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/model"
)

// Reader is the part of the cache the occupancy tracker needs.
type Reader interface {
	GetOccupants(ctx context.Context, venueID string) ([]string, error)
	GetLocation(ctx context.Context, entityID string) (model.LocationPing, bool, error)
}

// Tracker answers who is currently at a venue.
type Tracker struct {
	cache Reader
}

// NewTracker returns a tracker reading from cache.
func NewTracker(cache Reader) *Tracker {
	return &Tracker{cache: cache}
}

// GetVenueSnapshot lists the venue's occupants with their last known
// positions. Occupants whose entry expires between the set read and the
// location read are left out, so Count always equals len(Occupants).
func (t *Tracker) GetVenueSnapshot(ctx context.Context, venueID string) (model.VenueSnapshot, error) {
	const op = "location.venue_snapshot"

	venueID = strings.TrimSpace(venueID)
	if venueID == "" {
		return model.VenueSnapshot{}, errkind.New(op, errkind.ErrValidation, "venue id is required")
	}

	ids, err := t.cache.GetOccupants(ctx, venueID)
	if err != nil {
		return model.VenueSnapshot{}, err
	}

	occupants := make([]model.Occupant, 0, len(ids))
	for _, id := range ids {
		ping, ok, err := t.cache.GetLocation(ctx, id)
		if err != nil {
			return model.VenueSnapshot{}, err
		}
		if !ok {
			continue
		}
		occupants = append(occupants, model.Occupant{
			EntityID:   ping.EntityID,
			Latitude:   ping.Latitude,
			Longitude:  ping.Longitude,
			ObservedAt: ping.ObservedAt,
		})
	}

	return model.VenueSnapshot{
		VenueID:   venueID,
		Count:     len(occupants),
		Occupants: occupants,
	}, nil
}
