package model

import (
	"time"

	"github.com/google/uuid"
)

// RecordType classifies an analytics record.
type RecordType string

// Known record types.
const (
	RecordLocation RecordType = "LOCATION"
	RecordCheckin  RecordType = "CHECKIN"
	RecordUsage    RecordType = "USAGE"
)

// ActivityLabel maps a record type to the text shown in activity feeds.
func (t RecordType) ActivityLabel() string {
	switch t {
	case RecordLocation:
		return "location updated"
	case RecordCheckin:
		return "check-in"
	case RecordUsage:
		return "app interaction"
	default:
		return "activity recorded"
	}
}

// RecordPayload holds the type-specific fields of an analytics record.
// Coordinates are only meaningful for LOCATION records.
type RecordPayload struct {
	EntityID  string  `json:"entity_id"`
	VenueID   string  `json:"venue_id,omitempty"`
	EventID   string  `json:"event_id,omitempty"`
	Action    string  `json:"action,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AnalyticsRecord is an append-only entry of the durable analytics log.
type AnalyticsRecord struct {
	ID         string        `json:"id"`
	Type       RecordType    `json:"type"`
	Payload    RecordPayload `json:"payload"`
	ObservedAt time.Time     `json:"observed_at"`
	// DedupeKey is set when the client supplied a ping id; it is not persisted.
	DedupeKey string `json:"-"`
}

// NewLocationRecord builds the durable record for a ping.
func NewLocationRecord(p LocationPing) AnalyticsRecord { //nolint:gocritic // pings are passed by value
	return AnalyticsRecord{
		ID:   uuid.NewString(),
		Type: RecordLocation,
		Payload: RecordPayload{
			EntityID:  p.EntityID,
			VenueID:   p.VenueID,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		},
		ObservedAt: p.ObservedAt,
		DedupeKey:  p.PingID,
	}
}

// NewCheckinRecord builds the durable record for an event check-in.
func NewCheckinRecord(entityID string, ev Event, at time.Time) AnalyticsRecord {
	return AnalyticsRecord{
		ID:   uuid.NewString(),
		Type: RecordCheckin,
		Payload: RecordPayload{
			EntityID: entityID,
			VenueID:  ev.VenueID,
			EventID:  ev.ID,
		},
		ObservedAt: at,
	}
}

// NewUsageRecord builds the durable record for an app interaction.
func NewUsageRecord(entityID, action string, at time.Time) AnalyticsRecord {
	return AnalyticsRecord{
		ID:   uuid.NewString(),
		Type: RecordUsage,
		Payload: RecordPayload{
			EntityID: entityID,
			Action:   action,
		},
		ObservedAt: at,
	}
}

// Ordering selects the sort direction of record queries.
type Ordering int

// Record orderings by ObservedAt.
const (
	NewestFirst Ordering = iota
	OldestFirst
)

// RecordFilter selects records from the durable log. Zero values mean "any".
type RecordFilter struct {
	Type    RecordType
	VenueID string
	From    time.Time // inclusive
	To      time.Time // exclusive
	Order   Ordering
	Limit   int
}
