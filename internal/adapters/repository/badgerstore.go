package repository

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/okian/fanpulse/pkg/logger"
	"github.com/okian/fanpulse/pkg/metrics"
)

// Key namespaces inside badger.
const (
	valuePrefix  = "k\x00"
	setPrefix    = "s\x00"
	keySeparator = 0x00

	envelopeHeader  = 8 // big-endian unix nanos of expiresAt
	sweepBatchSize  = 500
	vlogDiscardRate = 0.5
)

// BadgerStore is a KV backed by badger, so the live cache survives restarts.
//
// Every value is prefixed with its expiresAt, which is checked against the
// injected clock. Entries also carry a native badger TTL so compaction drops
// them eventually.
type BadgerStore struct {
	db       *badger.DB
	now      Clock
	inMemory bool
	logger   logger.Logger
}

// NewBadgerStore opens a badger database at path. An empty path, or
// WithInMemory, keeps everything in memory.
func NewBadgerStore(path string, opts ...Option) (*BadgerStore, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("badger-cache")
	}

	inMemory := cfg.inMemory || path == ""
	bopts := badger.DefaultOptions(path)
	if inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	return &BadgerStore{db: db, now: cfg.clock, inMemory: inMemory, logger: cfg.logger}, nil
}

func encodeEnvelope(expiresAt time.Time, value []byte) []byte {
	buf := make([]byte, envelopeHeader+len(value))
	binary.BigEndian.PutUint64(buf[:envelopeHeader], uint64(expiresAt.UnixNano()))
	copy(buf[envelopeHeader:], value)
	return buf
}

func decodeEnvelope(raw []byte) (time.Time, []byte, error) {
	if len(raw) < envelopeHeader {
		return time.Time{}, nil, fmt.Errorf("corrupt cache envelope of %d bytes", len(raw))
	}
	exp := time.Unix(0, int64(binary.BigEndian.Uint64(raw[:envelopeHeader])))
	return exp, raw[envelopeHeader:], nil
}

func valueKey(key string) []byte { return []byte(valuePrefix + key) }

func memberKey(key, member string) []byte {
	return []byte(setPrefix + key + string(rune(keySeparator)) + member)
}

func setScanPrefix(key string) []byte {
	return []byte(setPrefix + key + string(rune(keySeparator)))
}

// Set implements KV.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer func() {
		metrics.RecordCacheOpLatency("set", float64(time.Since(start).Microseconds())/1000)
	}()

	if err := checkWrite(key, ttl); err != nil {
		return err
	}
	env := encodeEnvelope(s.now().Add(ttl), value)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(valueKey(key), env).WithTTL(ttl))
	})
}

// Get implements KV.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		out []byte
		ok  bool
	)
	now := s.now()
	err := s.db.View(func(txn *badger.Txn) error {
		it, err := txn.Get(valueKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			metrics.RecordCacheLookup("miss")
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := it.ValueCopy(nil)
		if err != nil {
			return err
		}
		exp, value, err := decodeEnvelope(raw)
		if err != nil {
			return err
		}
		if !live(now, exp) {
			metrics.RecordCacheLookup("expired")
			return nil
		}
		metrics.RecordCacheLookup("hit")
		out, ok = value, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("badger get %q: %w", key, err)
	}
	return out, ok, nil
}

// Delete implements KV.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	members, err := s.scanKeys(setScanPrefix(key))
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(valueKey(key)); err != nil {
			return err
		}
		for _, k := range members {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// SAdd implements KV.
func (s *BadgerStore) SAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	start := time.Now()
	defer func() {
		metrics.RecordCacheOpLatency("sadd", float64(time.Since(start).Microseconds())/1000)
	}()

	if err := checkWrite(key, ttl); err != nil {
		return err
	}
	if member == "" {
		return ErrEmptyKey
	}
	env := encodeEnvelope(s.now().Add(ttl), nil)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(memberKey(key, member), env).WithTTL(ttl))
	})
}

// SRem implements KV.
func (s *BadgerStore) SRem(ctx context.Context, key, member string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(memberKey(key, member))
	})
}

// SMembers implements KV.
func (s *BadgerStore) SMembers(ctx context.Context, key string) ([]string, error) {
	prefix := setScanPrefix(key)
	now := s.now()
	var out []string
	err := s.iterate(prefix, func(k []byte, exp time.Time) {
		if live(now, exp) {
			out = append(out, string(k[len(prefix):]))
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Keys implements KV.
func (s *BadgerStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	now := s.now()
	var out []string

	vp := []byte(valuePrefix + prefix)
	err := s.iterate(vp, func(k []byte, exp time.Time) {
		if live(now, exp) {
			out = append(out, string(k[len(valuePrefix):]))
		}
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	sp := []byte(setPrefix + prefix)
	err = s.iterate(sp, func(k []byte, exp time.Time) {
		if !live(now, exp) {
			return
		}
		rest := k[len(setPrefix):]
		idx := bytes.IndexByte(rest, keySeparator)
		if idx < 0 {
			return
		}
		setKey := string(rest[:idx])
		if _, dup := seen[setKey]; !dup {
			seen[setKey] = struct{}{}
			out = append(out, setKey)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(out)
	return out, nil
}

// iterate calls fn for every key under prefix with its decoded expiry.
func (s *BadgerStore) iterate(prefix []byte, fn func(key []byte, expiresAt time.Time)) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var exp time.Time
			err := item.Value(func(val []byte) error {
				e, _, derr := decodeEnvelope(val)
				exp = e
				return derr
			})
			if err != nil {
				return err
			}
			fn(item.KeyCopy(nil), exp)
		}
		return nil
	})
}

func (s *BadgerStore) scanKeys(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := s.iterate(prefix, func(k []byte, _ time.Time) {
		keys = append(keys, k)
	})
	return keys, err
}

// Sweep implements KV. Candidates are re-read inside the deleting
// transaction; a concurrent refresh makes the commit conflict and the entry
// is left alone.
func (s *BadgerStore) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	var candidates [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				exp, _, derr := decodeEnvelope(val)
				if derr != nil || !live(now, exp) {
					candidates = append(candidates, item.KeyCopy(nil))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger sweep scan: %w", err)
	}

	removed := 0
	for start := 0; start < len(candidates); start += sweepBatchSize {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		end := start + sweepBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		n, err := s.sweepBatch(candidates[start:end], now)
		if errors.Is(err, badger.ErrConflict) {
			s.logger.Debug(ctx, "sweep batch conflicted with a concurrent write; retrying next cycle")
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("badger sweep: %w", err)
		}
		removed += n
	}

	if !s.inMemory {
		if err := s.db.RunValueLogGC(vlogDiscardRate); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			s.logger.Warn(ctx, "value log gc failed", logger.Error(err))
		}
	}

	metrics.RecordCacheSwept(removed)
	return removed, nil
}

func (s *BadgerStore) sweepBatch(keys [][]byte, now time.Time) (int, error) {
	n := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		n = 0
		for _, k := range keys {
			item, err := txn.Get(k)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if exp, _, derr := decodeEnvelope(raw); derr == nil && live(now, exp) {
				continue
			}
			if err := txn.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Close implements KV.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
