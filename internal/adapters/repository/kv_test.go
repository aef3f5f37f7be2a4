package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/fanpulse/pkg/logger"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type storeFactory struct {
	name string
	new  func(t *testing.T, clock *fakeClock) KV
}

func factories() []storeFactory {
	return []storeFactory{
		{"memstore", func(_ *testing.T, clock *fakeClock) KV {
			return NewMemStore(WithShardCount(4), WithClock(clock.Now))
		}},
		{"badgerstore", func(t *testing.T, clock *fakeClock) KV {
			s, err := NewBadgerStore("", WithClock(clock.Now), WithLogger(logger.NewNop()))
			if err != nil {
				t.Fatalf("open badger: %v", err)
			}
			return s
		}},
	}
}

func TestKVContract(t *testing.T) {
	for _, f := range factories() {
		f := f
		Convey("Given a "+f.name, t, func() {
			ctx := context.Background()
			clock := newFakeClock()
			kv := f.new(t, clock)
			Reset(func() { _ = kv.Close() })

			Convey("When a value is set", func() {
				So(kv.Set(ctx, "loc:u1", []byte("a"), time.Hour), ShouldBeNil)

				Convey("Then it is readable until the ttl elapses", func() {
					v, ok, err := kv.Get(ctx, "loc:u1")
					So(err, ShouldBeNil)
					So(ok, ShouldBeTrue)
					So(string(v), ShouldEqual, "a")

					clock.Advance(time.Hour - time.Nanosecond)
					_, ok, _ = kv.Get(ctx, "loc:u1")
					So(ok, ShouldBeTrue)

					clock.Advance(time.Nanosecond)
					_, ok, err = kv.Get(ctx, "loc:u1")
					So(err, ShouldBeNil)
					So(ok, ShouldBeFalse)
				})

				Convey("And overwriting refreshes value and expiry", func() {
					clock.Advance(30 * time.Minute)
					So(kv.Set(ctx, "loc:u1", []byte("b"), time.Hour), ShouldBeNil)
					clock.Advance(45 * time.Minute)
					v, ok, _ := kv.Get(ctx, "loc:u1")
					So(ok, ShouldBeTrue)
					So(string(v), ShouldEqual, "b")
				})

				Convey("And delete removes it", func() {
					So(kv.Delete(ctx, "loc:u1"), ShouldBeNil)
					_, ok, _ := kv.Get(ctx, "loc:u1")
					So(ok, ShouldBeFalse)
					So(kv.Delete(ctx, "loc:missing"), ShouldBeNil)
				})
			})

			Convey("When set members carry their own expiry", func() {
				So(kv.SAdd(ctx, "venue:v1:occupants", "u1", time.Hour), ShouldBeNil)
				clock.Advance(30 * time.Minute)
				So(kv.SAdd(ctx, "venue:v1:occupants", "u2", time.Hour), ShouldBeNil)

				Convey("Then only live members are listed", func() {
					m, err := kv.SMembers(ctx, "venue:v1:occupants")
					So(err, ShouldBeNil)
					So(m, ShouldResemble, []string{"u1", "u2"})

					clock.Advance(30 * time.Minute)
					m, _ = kv.SMembers(ctx, "venue:v1:occupants")
					So(m, ShouldResemble, []string{"u2"})
				})

				Convey("And re-adding refreshes a member", func() {
					clock.Advance(20 * time.Minute)
					So(kv.SAdd(ctx, "venue:v1:occupants", "u1", time.Hour), ShouldBeNil)
					clock.Advance(30 * time.Minute)
					m, _ := kv.SMembers(ctx, "venue:v1:occupants")
					So(m, ShouldResemble, []string{"u1", "u2"})
				})

				Convey("And SRem drops a member", func() {
					So(kv.SRem(ctx, "venue:v1:occupants", "u1"), ShouldBeNil)
					m, _ := kv.SMembers(ctx, "venue:v1:occupants")
					So(m, ShouldResemble, []string{"u2"})
				})
			})

			Convey("When enumerating keys by prefix", func() {
				So(kv.Set(ctx, "loc:u1", []byte("x"), time.Hour), ShouldBeNil)
				So(kv.Set(ctx, "loc:u2", []byte("x"), time.Minute), ShouldBeNil)
				So(kv.SAdd(ctx, "venue:v1:occupants", "u1", time.Hour), ShouldBeNil)
				So(kv.SAdd(ctx, "venue:v2:occupants", "u2", time.Minute), ShouldBeNil)
				clock.Advance(2 * time.Minute)

				Convey("Then expired keys and empty sets are excluded", func() {
					locs, err := kv.Keys(ctx, "loc:")
					So(err, ShouldBeNil)
					So(locs, ShouldResemble, []string{"loc:u1"})

					venues, err := kv.Keys(ctx, "venue:")
					So(err, ShouldBeNil)
					So(venues, ShouldResemble, []string{"venue:v1:occupants"})
				})

				Convey("And a sweep removes only what is expired", func() {
					n, err := kv.Sweep(ctx)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 2)
					_, ok, _ := kv.Get(ctx, "loc:u1")
					So(ok, ShouldBeTrue)
				})
			})

			Convey("When writes are invalid", func() {
				So(kv.Set(ctx, "", []byte("x"), time.Hour), ShouldEqual, ErrEmptyKey)
				So(kv.Set(ctx, "k", []byte("x"), 0), ShouldEqual, ErrInvalidTTL)
				So(kv.SAdd(ctx, "s", "", time.Hour), ShouldEqual, ErrEmptyKey)
			})
		})
	}
}

func TestMemStoreSweepRespectsRefresh(t *testing.T) {
	Convey("Given an entry refreshed after it was read as expired", t, func() {
		ctx := context.Background()
		clock := newFakeClock()
		s := NewMemStore(WithShardCount(1), WithClock(clock.Now))

		So(s.Set(ctx, "loc:u1", []byte("old"), time.Minute), ShouldBeNil)
		clock.Advance(2 * time.Minute)
		stale := clock.Now()

		// Refresh lands before the eviction check runs.
		So(s.Set(ctx, "loc:u1", []byte("new"), time.Minute), ShouldBeNil)
		s.evictIfExpired(s.shardFor("loc:u1"), "loc:u1", stale)

		Convey("Then the refreshed entry survives", func() {
			v, ok, err := s.Get(ctx, "loc:u1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(string(v), ShouldEqual, "new")
		})

		Convey("And a sweep keeps it too", func() {
			n, err := s.Sweep(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})
	})
}

func TestMemStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(WithShardCount(8))

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("loc:u%d-%d", w, i)
				if err := s.Set(ctx, key, []byte("x"), time.Hour); err != nil {
					t.Errorf("set: %v", err)
				}
				if err := s.SAdd(ctx, "venue:v1:occupants", key, time.Hour); err != nil {
					t.Errorf("sadd: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	keys, _ := s.Keys(ctx, "loc:")
	if len(keys) != 16*200 {
		t.Fatalf("expected %d keys, got %d", 16*200, len(keys))
	}
	members, _ := s.SMembers(ctx, "venue:v1:occupants")
	if len(members) != 16*200 {
		t.Fatalf("expected %d members, got %d", 16*200, len(members))
	}
}

func TestMemStoreClosed(t *testing.T) {
	s := NewMemStore()
	_ = s.Close()
	if err := s.Set(context.Background(), "k", nil, time.Second); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSweeperServe(t *testing.T) {
	Convey("Given a sweeper on a short interval", t, func() {
		clock := newFakeClock()
		s := NewMemStore(WithClock(clock.Now))
		ctx, cancel := context.WithCancel(context.Background())
		So(s.Set(ctx, "loc:u1", []byte("x"), time.Minute), ShouldBeNil)
		clock.Advance(time.Hour)

		w := NewSweeper(s, 5*time.Millisecond, logger.NewNop())
		done := make(chan error, 1)
		go func() { done <- w.Serve(ctx) }()

		Convey("Then expired entries disappear and cancel stops it cleanly", func() {
			So(func() bool {
				deadline := time.Now().Add(time.Second)
				for time.Now().Before(deadline) {
					sh := s.shardFor("loc:u1")
					sh.mu.RLock()
					_, present := sh.values["loc:u1"]
					sh.mu.RUnlock()
					if !present {
						return true
					}
					time.Sleep(5 * time.Millisecond)
				}
				return false
			}(), ShouldBeTrue)

			cancel()
			So(<-done, ShouldBeNil)
			So(w.String(), ShouldEqual, "cache-sweeper")
		})
	})
}
