// Package storage holds the durable side of the engine: the append-only
// analytics log and the venue/event registry.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/okian/fanpulse/internal/domain/model"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store closed")

// RecordLog is the durable append-only analytics log.
type RecordLog interface {
	// Append stores r. Records are never modified afterwards.
	Append(ctx context.Context, r model.AnalyticsRecord) error
	// Query returns records matching f sorted by ObservedAt in f.Order.
	// Records observed at the same instant are ordered by append order,
	// newest append first for NewestFirst.
	Query(ctx context.Context, f model.RecordFilter) ([]model.AnalyticsRecord, error)
}

// Registry is the static venue/event metadata and the check-ins per event.
// Unknown ids yield an error of kind errkind.ErrNotFound.
type Registry interface {
	GetVenue(ctx context.Context, id string) (model.Venue, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	// ListPastEvents returns up to limit events at venueID starting strictly
	// before before, most recent first.
	ListPastEvents(ctx context.Context, venueID string, before time.Time, limit int) ([]model.Event, error)
	// CountEventsBetween counts events starting in [from, to).
	CountEventsBetween(ctx context.Context, from, to time.Time) (int, error)
	// AddCheckin records that entityID checked in to eventID. Checking in
	// twice counts once.
	AddCheckin(ctx context.Context, eventID, entityID string, at time.Time) error

	UpsertVenue(ctx context.Context, v model.Venue) error
	UpsertEvent(ctx context.Context, ev model.Event) error
}

// Store is a backend serving both the log and the registry.
type Store interface {
	RecordLog
	Registry
	Close() error
}

func matches(r *model.AnalyticsRecord, f *model.RecordFilter) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.VenueID != "" && r.Payload.VenueID != f.VenueID {
		return false
	}
	if !f.From.IsZero() && r.ObservedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.ObservedAt.Before(f.To) {
		return false
	}
	return true
}
