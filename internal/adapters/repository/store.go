// Package repository provides the live key/value cache primitive: plain keys
// and sets, each key and each set member carrying its own expiry.
package repository

import (
	"context"
	"time"
)

// Clock returns the current time. Expiry is always evaluated against it.
type Clock func() time.Time

// KV is the cache primitive the location cache is built on.
//
// An entry is live while now < expiresAt. Expired entries are never returned,
// whether or not a sweep has removed them yet.
type KV interface {
	// Set stores value under key, replacing any previous value and expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the live value for key. ok is false when absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// SAdd adds member to the set at key with its own expiry. Re-adding a
	// member refreshes its expiry.
	SAdd(ctx context.Context, key, member string, ttl time.Duration) error
	// SRem removes member from the set at key.
	SRem(ctx context.Context, key, member string) error
	// SMembers returns the live members of the set at key, sorted.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Keys returns live plain keys and sets with at least one live member
	// whose key starts with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Sweep removes expired keys and members and returns how many it removed.
	// An entry whose expiry was refreshed concurrently is never removed.
	Sweep(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}
