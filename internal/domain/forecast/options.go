package forecast

import (
	"time"

	"github.com/okian/fanpulse/pkg/logger"
)

// Option applies a configuration option to the Predictor.
type Option func(*Predictor)

// WithLocation sets the zone weekday and hour are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(p *Predictor) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithHistory sets how many past events are averaged.
func WithHistory(n int) Option {
	return func(p *Predictor) {
		if n > 0 {
			p.history = n
		}
	}
}

// WithQueryTimeout bounds the registry reads.
func WithQueryTimeout(d time.Duration) Option {
	return func(p *Predictor) {
		if d > 0 {
			p.queryTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the predictor.
func WithLogger(l logger.Logger) Option {
	return func(p *Predictor) {
		if l != nil {
			p.logger = l
		}
	}
}
