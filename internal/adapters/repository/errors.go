package repository

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrEmptyKey   = errors.New("empty cache key")
	ErrInvalidTTL = errors.New("ttl must be positive")
	ErrClosed     = errors.New("cache store closed")
)
