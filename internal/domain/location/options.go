package location

import (
	"time"

	"github.com/okian/fanpulse/pkg/logger"
)

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL sets how long entries and occupant memberships stay live.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets a custom logger for the cache.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}
