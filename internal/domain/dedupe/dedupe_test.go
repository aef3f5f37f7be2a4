package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	dedupe "github.com/okian/fanpulse/internal/domain/dedupe"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it starts empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When recording ping ids", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the id is new", func() {
				seen := d.SeenAndRecord(ctx, "ping-1")

				Convey("Then it returns false and records the id", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the id was already seen", func() {
				d.SeenAndRecord(ctx, "ping-1")
				seen := d.SeenAndRecord(ctx, "ping-1")

				Convey("Then it returns true without growing", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the id is unrecorded", func() {
				d.SeenAndRecord(ctx, "ping-1")
				d.Unrecord(ctx, "ping-1")

				Convey("Then a retry is accepted", func() {
					So(d.Size(), ShouldEqual, 0)
					So(d.SeenAndRecord(ctx, "ping-1"), ShouldBeFalse)
				})
			})

			Convey("And an unknown id is unrecorded", func() {
				d.SeenAndRecord(ctx, "ping-1")
				d.Unrecord(ctx, "ping-2")

				Convey("Then nothing changes", func() {
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When the deduper is bounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for i := 1; i <= 4; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("ping-%d", i))
			}

			Convey("Then the oldest id is forgotten first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "ping-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "ping-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "ping-2"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "ping-1"), ShouldBeFalse)
			})
		})

		Convey("When the deduper is unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("ping-%d", i))
			}

			Convey("Then every id is kept", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.SeenAndRecord(ctx, "ping-0"), ShouldBeTrue)
			})
		})
	})
}

func TestInMemoryDeduperConcurrent(t *testing.T) {
	d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10000))
	ctx := context.Background()

	var fresh atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if !d.SeenAndRecord(ctx, fmt.Sprintf("ping-%d", i)) {
					fresh.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := fresh.Load(); got != 500 {
		t.Fatalf("expected each id to be fresh exactly once, got %d", got)
	}
	if d.Size() != 500 {
		t.Fatalf("expected size 500, got %d", d.Size())
	}
}
