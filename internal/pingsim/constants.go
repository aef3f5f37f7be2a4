package pingsim

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Generation constants. Venues sit on a grid around baseLatitude/baseLongitude
// and visitors wander within walkRadius degrees of their venue.
const (
	baseLatitude    = 40.4168
	baseLongitude   = -3.7038
	venueSpacing    = 0.05
	walkRadius      = 0.002
	pingInterval    = 30 * time.Second
	pastEventStride = 7 * 24 * time.Hour
	upcomingLead    = 3 * time.Hour
	minCapacity     = 5_000
	capacityRange   = 45_000
	minCheckins     = 500
	checkinRange    = 4_500
	usageAction     = "open_app"
)

// Runner configuration constants.
const (
	DefaultSettle        = 2 * time.Second
	PercentageMultiplier = 100
	directoryPermission  = 0o750
	logFilePermission    = 0o600
	progressInterval     = time.Second
)
