package pingsim

import "time"

// Config holds configuration for a simulation run
type Config struct {
	BaseURL        string        // Base URL of the service
	Venues         int           // Number of venues to seed
	Entities       int           // Number of simulated visitors
	PingsPerEntity int           // Location pings each visitor sends
	PastEvents     int           // Historical events seeded per venue
	Workers        int           // Number of concurrent workers
	Timeout        time.Duration // HTTP request timeout
	Settle         time.Duration // Wait before verifying, lets the append workers drain
	Seed           uint64        // Random seed; 0 picks one from the clock
	OutputFile     string        // Output file for generated pings
	LogFile        string        // Log file for simulation output
	Verbose        bool          // Enable verbose logging
}

// Venue is the body of PUT /v1/venues/{id}.
type Venue struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Capacity  int     `json:"capacity"`
	Latitude  float64 `json:"-"`
	Longitude float64 `json:"-"`
}

// Event is the body of PUT /v1/events/{id}.
type Event struct {
	ID           string    `json:"id"`
	VenueID      string    `json:"venue_id"`
	Name         string    `json:"name"`
	StartsAt     time.Time `json:"starts_at"`
	CheckinCount int       `json:"checkin_count"`
}

// Ping is the body of POST /v1/locations.
type Ping struct {
	PingID     string    `json:"ping_id"`
	EntityID   string    `json:"entity_id"`
	VenueID    string    `json:"venue_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ObservedAt time.Time `json:"observed_at"`
}

// Visitor is one simulated entity: the venue it attends, the event it checks
// into and its ordered pings.
type Visitor struct {
	EntityID string `json:"entity_id"`
	VenueID  string `json:"venue_id"`
	EventID  string `json:"event_id"`
	Pings    []Ping `json:"pings"`
}

// Plan is everything a run submits.
type Plan struct {
	Venues   []Venue   `json:"-"`
	Events   []Event   `json:"events"`
	Upcoming []Event   `json:"-"`
	Visitors []Visitor `json:"visitors"`
}

type checkinRequest struct {
	EntityID string    `json:"entity_id"`
	EventID  string    `json:"event_id"`
	At       time.Time `json:"at"`
}

type usageRequest struct {
	EntityID string    `json:"entity_id"`
	Action   string    `json:"action"`
	At       time.Time `json:"at"`
}

// AckResponse represents the response from an ingestion route
type AckResponse struct {
	Status string `json:"status"`
}

type snapshotResponse struct {
	VenueID string `json:"venue_id"`
	Count   int    `json:"count"`
}

type heatmapResponse struct {
	Points []struct {
		Weight int `json:"weight"`
	} `json:"heatmap_points"`
	PopularAreas     []struct{} `json:"popular_areas"`
	MovementPatterns []struct{} `json:"movement_patterns"`
	RecordsScanned   int        `json:"records_scanned"`
}

type forecastResponse struct {
	EventID        string  `json:"event_id"`
	PredictedCount int     `json:"predicted_count"`
	Confidence     float64 `json:"confidence"`
}

type dashboardResponse struct {
	TotalActiveEntities int `json:"total_active_entities"`
	EventsToday         int `json:"events_today"`
	TopVenues           []struct {
		VenueID   string `json:"venue_id"`
		Occupants int    `json:"occupants"`
	} `json:"top_venues"`
}

// Stats holds run statistics
type Stats struct {
	VenuesSeeded       int
	EventsSeeded       int
	PingsGenerated     int
	PingsSubmitted     int
	PingsAccepted      int
	PingsFailed        int
	CheckinsAccepted   int
	UsageAccepted      int
	RequestsThrottled  int
	SnapshotMismatches int
	HeatmapRecords     int
	PopularAreas       int
	MovementEdges      int
	ForecastsRetrieved int
	DashboardEntities  int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
