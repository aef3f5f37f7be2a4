// Package model contains domain models passed between layers.
package model

import "time"

// LocationPing is a single position report for an entity.
// Pings are immutable; a newer ping for the same entity supersedes the old one.
type LocationPing struct {
	EntityID   string    `json:"entity_id" validate:"required"`
	Latitude   float64   `json:"latitude" validate:"latitude"`
	Longitude  float64   `json:"longitude" validate:"longitude"`
	ObservedAt time.Time `json:"observed_at" validate:"required"`
	VenueID    string    `json:"venue_id,omitempty"`
	// PingID is an optional client identifier used to drop duplicate log appends.
	PingID string `json:"ping_id,omitempty"`
}

// Cell is a coordinate pair used as a movement node.
type Cell struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Cell returns the ping's position as a Cell.
func (p LocationPing) Cell() Cell { //nolint:gocritic // value receiver keeps pings immutable
	return Cell{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Occupant is an entity currently at a venue with its last known position.
type Occupant struct {
	EntityID   string    `json:"entity_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ObservedAt time.Time `json:"observed_at"`
}

// VenueSnapshot is the live occupancy of one venue.
// Count always equals len(Occupants).
type VenueSnapshot struct {
	VenueID   string     `json:"venue_id"`
	Count     int        `json:"count"`
	Occupants []Occupant `json:"occupants"`
}
