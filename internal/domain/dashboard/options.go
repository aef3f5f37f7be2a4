package dashboard

import (
	"time"

	"github.com/okian/fanpulse/pkg/logger"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithClock sets the time source used for "today".
func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithLocation sets the zone that defines the day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithTopVenues sets how many venues are listed.
func WithTopVenues(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.topVenues = n
		}
	}
}

// WithRecentActivity sets how many records the activity feed shows.
func WithRecentActivity(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.recent = n
		}
	}
}

// WithQueryTimeout bounds the whole rollup.
func WithQueryTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.queryTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the aggregator.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}
