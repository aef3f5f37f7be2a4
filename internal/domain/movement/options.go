package movement

import (
	"time"

	"github.com/okian/fanpulse/pkg/logger"
)

// Option applies a configuration option to the Miner.
type Option func(*Miner)

// WithTopEdges sets how many edges are returned.
func WithTopEdges(n int) Option {
	return func(m *Miner) {
		if n > 0 {
			m.top = n
		}
	}
}

// WithMaxRecords caps the number of most recent records scanned.
func WithMaxRecords(n int) Option {
	return func(m *Miner) {
		if n > 0 {
			m.maxRecords = n
		}
	}
}

// WithQueryTimeout bounds the durable-store fetch.
func WithQueryTimeout(d time.Duration) Option {
	return func(m *Miner) {
		if d > 0 {
			m.queryTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the miner.
func WithLogger(l logger.Logger) Option {
	return func(m *Miner) {
		if l != nil {
			m.logger = l
		}
	}
}
