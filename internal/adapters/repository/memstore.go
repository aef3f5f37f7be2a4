package repository

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/fanpulse/pkg/metrics"
)

// MemStore is a sharded in-memory KV.
//
// Keys are spread over shards by xxhash so writers for different entities
// rarely contend. Expiry is lazy: reads compare the stored expiresAt with the
// injected clock, and Sweep reclaims memory.
type MemStore struct {
	shards []*shard
	now    Clock
	closed atomic.Bool
}

type item struct {
	value     []byte
	expiresAt time.Time
}

type shard struct {
	mu     sync.RWMutex
	values map[string]item
	sets   map[string]map[string]time.Time // set key -> member -> expiresAt
}

// NewMemStore constructs an in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &MemStore{
		shards: make([]*shard, cfg.shardCount),
		now:    cfg.clock,
	}
	for i := range s.shards {
		s.shards[i] = &shard{
			values: make(map[string]item),
			sets:   make(map[string]map[string]time.Time),
		}
	}

	metrics.UpdateCacheShardCount(cfg.shardCount)
	return s
}

func (s *MemStore) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

func live(now, expiresAt time.Time) bool {
	return now.Before(expiresAt)
}

func checkWrite(key string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

// Set implements KV.
func (s *MemStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer func() {
		metrics.RecordCacheOpLatency("set", float64(time.Since(start).Microseconds())/1000)
	}()

	if s.closed.Load() {
		return ErrClosed
	}
	if err := checkWrite(key, ttl); err != nil {
		return err
	}

	cp := make([]byte, len(value))
	copy(cp, value)

	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.values[key] = item{value: cp, expiresAt: s.now().Add(ttl)}
	sh.mu.Unlock()
	return nil
}

// Get implements KV.
func (s *MemStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}

	now := s.now()
	sh := s.shardFor(key)
	sh.mu.RLock()
	it, ok := sh.values[key]
	sh.mu.RUnlock()

	switch {
	case !ok:
		metrics.RecordCacheLookup("miss")
		return nil, false, nil
	case !live(now, it.expiresAt):
		metrics.RecordCacheLookup("expired")
		s.evictIfExpired(sh, key, now)
		return nil, false, nil
	}

	metrics.RecordCacheLookup("hit")
	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, true, nil
}

// evictIfExpired deletes key only if its current expiry has passed, so an
// entry refreshed after our read survives.
func (s *MemStore) evictIfExpired(sh *shard, key string, now time.Time) {
	sh.mu.Lock()
	if it, ok := sh.values[key]; ok && !live(now, it.expiresAt) {
		delete(sh.values, key)
	}
	sh.mu.Unlock()
}

// Delete implements KV.
func (s *MemStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.values, key)
	delete(sh.sets, key)
	sh.mu.Unlock()
	return nil
}

// SAdd implements KV.
func (s *MemStore) SAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	start := time.Now()
	defer func() {
		metrics.RecordCacheOpLatency("sadd", float64(time.Since(start).Microseconds())/1000)
	}()

	if s.closed.Load() {
		return ErrClosed
	}
	if err := checkWrite(key, ttl); err != nil {
		return err
	}
	if member == "" {
		return ErrEmptyKey
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	members, ok := sh.sets[key]
	if !ok {
		members = make(map[string]time.Time)
		sh.sets[key] = members
	}
	members[member] = s.now().Add(ttl)
	sh.mu.Unlock()
	return nil
}

// SRem implements KV.
func (s *MemStore) SRem(ctx context.Context, key, member string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	if members, ok := sh.sets[key]; ok {
		delete(members, member)
		if len(members) == 0 {
			delete(sh.sets, key)
		}
	}
	sh.mu.Unlock()
	return nil
}

// SMembers implements KV.
func (s *MemStore) SMembers(ctx context.Context, key string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	now := s.now()
	sh := s.shardFor(key)
	sh.mu.RLock()
	members := sh.sets[key]
	out := make([]string, 0, len(members))
	for m, exp := range members {
		if live(now, exp) {
			out = append(out, m)
		}
	}
	sh.mu.RUnlock()

	sort.Strings(out)
	return out, nil
}

// Keys implements KV.
func (s *MemStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	now := s.now()
	var out []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, it := range sh.values {
			if strings.HasPrefix(k, prefix) && live(now, it.expiresAt) {
				out = append(out, k)
			}
		}
		for k, members := range sh.sets {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			for _, exp := range members {
				if live(now, exp) {
					out = append(out, k)
					break
				}
			}
		}
		sh.mu.RUnlock()
	}

	sort.Strings(out)
	return out, nil
}

// Sweep implements KV. Each shard is swept under its write lock, so the
// expiry compared is always the entry's current one.
func (s *MemStore) Sweep(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	removed := 0
	for i, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		now := s.now()
		sh.mu.Lock()
		for k, it := range sh.values {
			if !live(now, it.expiresAt) {
				delete(sh.values, k)
				removed++
			}
		}
		for k, members := range sh.sets {
			for m, exp := range members {
				if !live(now, exp) {
					delete(members, m)
					removed++
				}
			}
			if len(members) == 0 {
				delete(sh.sets, k)
			}
		}
		size := len(sh.values) + len(sh.sets)
		sh.mu.Unlock()

		metrics.UpdateCacheKeysPerShard(strconv.Itoa(i), size)
	}

	metrics.RecordCacheSwept(removed)
	return removed, nil
}

// Close implements KV.
func (s *MemStore) Close() error {
	s.closed.Store(true)
	return nil
}
