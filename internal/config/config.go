// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config holding every default.
// - Load layers an optional YAML file and FANPULSE_* env vars on top.
// - Validation and load failures wrap this package's sentinel errors.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
	// Embedded zone data so Timezone resolves on hosts without tzdata.
	_ "time/tzdata"
)

// Backend names accepted by CacheBackend and StoreBackend.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is json or console.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// CacheBackend selects the live location cache: memory or badger.
	CacheBackend string `koanf:"cache_backend"`
	// BadgerPath is the badger directory; empty keeps badger in memory.
	BadgerPath string `koanf:"badger_path"`
	// LocationTTLSeconds is how long a ping keeps an entity live.
	LocationTTLSeconds int `koanf:"location_ttl_seconds"`
	// SweepIntervalMS is how often expired cache entries are reclaimed.
	SweepIntervalMS int `koanf:"sweep_interval_ms"`
	// ShardCount configures the number of shards in the in-memory cache.
	ShardCount int `koanf:"shard_count"`

	// StoreBackend selects the durable log and registry: memory or sqlite.
	StoreBackend string `koanf:"store_backend"`
	// SQLitePath is the database file; ":memory:" keeps it in memory.
	SQLitePath string `koanf:"sqlite_path"`

	// QueueSize bounds the in-memory record queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of durable-append workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets how many ping ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	HeatmapMaxRecords int     `koanf:"heatmap_max_records"`
	HeatmapPrecision  int     `koanf:"heatmap_precision"`
	ClusterThreshold  float64 `koanf:"cluster_threshold"`

	// Timezone is the IANA zone used for day boundaries and forecast factors.
	Timezone string `koanf:"timezone"`
	// QueryTimeoutMS bounds each durable-store read.
	QueryTimeoutMS int `koanf:"query_timeout_ms"`

	// IngestRateLimit is the requests per second allowed per client IP on
	// the ingestion routes; 0 disables it.
	IngestRateLimit int `koanf:"ingest_rate_limit"`

	BreakerFailureThreshold int `koanf:"breaker_failure_threshold"`
	BreakerTimeoutMS        int `koanf:"breaker_timeout_ms"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "json",
		Addr:                    ":9080",
		CacheBackend:            BackendMemory,
		LocationTTLSeconds:      3600,
		SweepIntervalMS:         30_000,
		ShardCount:              16,
		StoreBackend:            BackendMemory,
		SQLitePath:              "fanpulse.db",
		QueueSize:               100_000,
		WorkerCount:             runtime.NumCPU() * 2,
		DedupeSize:              50_000,
		HeatmapMaxRecords:       10_000,
		HeatmapPrecision:        4,
		ClusterThreshold:        0.01,
		Timezone:                "UTC",
		QueryTimeoutMS:          5_000,
		IngestRateLimit:         1_000,
		BreakerFailureThreshold: 5,
		BreakerTimeoutMS:        10_000,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.CacheBackend != BackendMemory && c.CacheBackend != BackendBadger:
		return fmt.Errorf("%w: cache_backend must be %s or %s, got %q", ErrInvalidConfig, BackendMemory, BackendBadger, c.CacheBackend)
	case c.StoreBackend != BackendMemory && c.StoreBackend != BackendSQLite:
		return fmt.Errorf("%w: store_backend must be %s or %s, got %q", ErrInvalidConfig, BackendMemory, BackendSQLite, c.StoreBackend)
	case c.StoreBackend == BackendSQLite && strings.TrimSpace(c.SQLitePath) == "":
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	case c.LocationTTLSeconds <= 0:
		return fmt.Errorf("%w: location_ttl_seconds must be positive", ErrInvalidConfig)
	case c.SweepIntervalMS <= 0:
		return fmt.Errorf("%w: sweep_interval_ms must be positive", ErrInvalidConfig)
	case c.ShardCount <= 0:
		return fmt.Errorf("%w: shard_count must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0 || c.WorkerCount <= 0 || c.DedupeSize <= 0:
		return fmt.Errorf("%w: queue_size, worker_count and dedupe_size must be positive", ErrInvalidConfig)
	case c.HeatmapMaxRecords <= 0:
		return fmt.Errorf("%w: heatmap_max_records must be positive", ErrInvalidConfig)
	case c.HeatmapPrecision < 0:
		return fmt.Errorf("%w: heatmap_precision must not be negative", ErrInvalidConfig)
	case c.ClusterThreshold <= 0:
		return fmt.Errorf("%w: cluster_threshold must be positive", ErrInvalidConfig)
	case c.QueryTimeoutMS <= 0:
		return fmt.Errorf("%w: query_timeout_ms must be positive", ErrInvalidConfig)
	case c.IngestRateLimit < 0:
		return fmt.Errorf("%w: ingest_rate_limit must not be negative", ErrInvalidConfig)
	case c.BreakerFailureThreshold <= 0 || c.BreakerTimeoutMS <= 0:
		return fmt.Errorf("%w: breaker settings must be positive", ErrInvalidConfig)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone: %w", ErrInvalidConfig, err)
	}
	return nil
}

// LocationTTL returns LocationTTLSeconds as a duration.
func (c *Config) LocationTTL() time.Duration {
	return time.Duration(c.LocationTTLSeconds) * time.Second
}

// SweepInterval returns SweepIntervalMS as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

// QueryTimeout returns QueryTimeoutMS as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMS) * time.Millisecond
}

// BreakerTimeout returns BreakerTimeoutMS as a duration.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutMS) * time.Millisecond
}

// Location loads the configured zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
