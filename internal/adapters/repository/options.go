// Package repository provides the live key/value cache primitive.
package repository

import (
	"time"

	"github.com/okian/fanpulse/pkg/logger"
)

// Default store configuration constants.
const (
	defaultShardCount = 16
)

// settings holds the options shared by every KV implementation.
type settings struct {
	shardCount int
	clock      Clock
	logger     logger.Logger
	inMemory   bool
}

func defaultSettings() settings {
	return settings{
		shardCount: defaultShardCount,
		clock:      time.Now,
	}
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithShardCount sets the number of lock shards of the in-memory store.
func WithShardCount(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithClock injects the clock used for every expiry decision.
func WithClock(c Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInMemory runs the badger store without touching disk.
func WithInMemory() Option {
	return func(s *settings) {
		s.inMemory = true
	}
}
