package heatmap

import (
	"time"

	"github.com/okian/fanpulse/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithPrecision sets the number of decimal places points are binned to.
func WithPrecision(p int) Option {
	return func(e *Engine) {
		if p >= 0 {
			e.precision = p
		}
	}
}

// WithThreshold sets the clustering distance in degrees.
func WithThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 {
			e.threshold = t
		}
	}
}

// WithMaxRecords caps the number of most recent records scanned.
func WithMaxRecords(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRecords = n
		}
	}
}

// WithTopAreas sets how many popular areas are returned.
func WithTopAreas(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topAreas = n
		}
	}
}

// WithTopEdges sets how many movement edges are returned.
func WithTopEdges(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topEdges = n
		}
	}
}

// WithQueryTimeout bounds the durable-store fetch.
func WithQueryTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.queryTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
