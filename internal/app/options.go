package service

import (
	"time"

	"github.com/okian/fanpulse/internal/adapters/repository"
	"github.com/okian/fanpulse/internal/adapters/storage"
	"github.com/okian/fanpulse/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of append workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the record queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many ping ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKV sets the cache primitive. The service closes it on Stop.
func WithKV(kv repository.KV) Option {
	return func(s *Service) {
		if kv != nil {
			s.kv = kv
		}
	}
}

// WithStore sets the durable store. The service closes it on Stop.
func WithStore(st storage.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithLocationTTL sets how long a ping keeps an entity live.
func WithLocationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithHeatmapPrecision sets the binning precision in decimal places.
func WithHeatmapPrecision(p int) Option {
	return func(s *Service) {
		if p >= 0 {
			s.precision = p
		}
	}
}

// WithClusterThreshold sets the clustering distance in degrees.
func WithClusterThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 {
			s.threshold = t
		}
	}
}

// WithMaxRecords caps the records scanned by heatmap and movement queries.
func WithMaxRecords(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRecords = n
		}
	}
}

// WithQueryTimeout bounds durable-store reads.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// WithLocation sets the zone for day boundaries and forecast factors.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock sets the time source. It only reaches the cache when the
// service creates the cache itself.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}
