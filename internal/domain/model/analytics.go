package model

import "time"

// HeatmapPoint is a density bin: coordinates rounded to a fixed precision
// and the number of records that fell into the bin.
type HeatmapPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Weight    int     `json:"weight"`
}

// PopularArea is a cluster of nearby heatmap points. The coordinates are the
// point that seeded the cluster.
type PopularArea struct {
	Label       string  `json:"label"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Weight      int     `json:"weight"`
	MemberCount int     `json:"member_count"`
	// RadiusMeters is the great-circle distance from the seed to its farthest member.
	RadiusMeters float64 `json:"radius_meters"`
}

// MovementEdge is a directed transition between two positions and how often
// it was observed across all entities.
type MovementEdge struct {
	From           Cell    `json:"from"`
	To             Cell    `json:"to"`
	Count          int     `json:"count"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Heatmap is the combined result of a heatmap computation.
type Heatmap struct {
	Points           []HeatmapPoint `json:"heatmap_points"`
	PopularAreas     []PopularArea  `json:"popular_areas"`
	MovementPatterns []MovementEdge `json:"movement_patterns"`
	RecordsScanned   int            `json:"records_scanned"`
}

// HeatmapQuery narrows the records a heatmap is built from.
type HeatmapQuery struct {
	VenueID string
	From    time.Time
	To      time.Time
}

// Factor is one multiplicative adjustment applied to a forecast.
type Factor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// AttendanceForecast is the predicted turnout of an event.
type AttendanceForecast struct {
	EventID             string   `json:"event_id"`
	VenueID             string   `json:"venue_id"`
	PredictedCount      int      `json:"predicted_count"`
	Confidence          float64  `json:"confidence"`
	ContributingFactors []Factor `json:"contributing_factors"`
	HistoricalEvents    int      `json:"historical_events"`
}
