package model

import "time"

// Venue is the static metadata of a physical location.
type Venue struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	// OpensAt and ClosesAt are "HH:MM" wall-clock strings; empty when unknown.
	OpensAt  string `json:"opens_at,omitempty"`
	ClosesAt string `json:"closes_at,omitempty"`
}

// Event is a scheduled occasion at a venue. CheckinCount is the number of
// check-ins recorded for it so far.
type Event struct {
	ID           string    `json:"id"`
	VenueID      string    `json:"venue_id"`
	Name         string    `json:"name"`
	StartsAt     time.Time `json:"starts_at"`
	CheckinCount int       `json:"checkin_count"`
}

// VenueActivity is one row of the dashboard's busiest venues.
type VenueActivity struct {
	VenueID   string `json:"venue_id"`
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Occupants int    `json:"occupants"`
}

// ActivityItem is one entry of the dashboard's recent activity feed.
type ActivityItem struct {
	RecordID   string     `json:"record_id"`
	Type       RecordType `json:"type"`
	Label      string     `json:"label"`
	EntityID   string     `json:"entity_id,omitempty"`
	ObservedAt time.Time  `json:"observed_at"`
}

// DashboardSnapshot is the best-effort status rollup.
type DashboardSnapshot struct {
	TotalActiveEntities int             `json:"total_active_entities"`
	EventsToday         int             `json:"events_today"`
	TopVenues           []VenueActivity `json:"top_venues"`
	RecentActivity      []ActivityItem  `json:"recent_activity"`
	SkippedVenues       int             `json:"skipped_venues"`
	GeneratedAt         time.Time       `json:"generated_at"`
}
