package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/fanpulse/internal/domain/model"
)

func record(entity string) model.AnalyticsRecord {
	return model.NewUsageRecord(entity, "tap", time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC))
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	r1 := record("u1")
	if !q.Enqueue(ctx, r1) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != r1.ID {
		t.Errorf("expected %s, got %s", r1.ID, got.ID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if q.Capacity() != 2 {
		t.Fatalf("expected capacity 2, got %d", q.Capacity())
	}
	if !q.Enqueue(ctx, record("u1")) || !q.Enqueue(ctx, record("u2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, record("u3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, record("u1")) {
		t.Error("expected enqueue to fail on a cancelled context")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	const producers, perProducer = 10, 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				r := record(fmt.Sprintf("u%d_%d", id, j))
				for !q.Enqueue(ctx, r) {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}

	consumed := make(chan string, producers*perProducer)
	var consumers sync.WaitGroup
	for i := 0; i < producers; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for r := range q.Dequeue(ctx) {
				consumed <- r.ID
			}
		}()
	}

	wg.Wait()
	_ = q.Close()
	consumers.Wait()

	if got := len(consumed); got != producers*perProducer {
		t.Errorf("expected %d records consumed, got %d", producers*perProducer, got)
	}
}

func TestInMemoryQueue_CloseDrains(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	r1, r2 := record("u1"), record("u2")
	if !q.Enqueue(ctx, r1) || !q.Enqueue(ctx, r2) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, r1) {
		t.Error("expected enqueue to fail after closing")
	}

	var drained []string
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for done := false; !done; {
		select {
		case r, ok := <-ch:
			if !ok {
				done = true
				break
			}
			drained = append(drained, r.ID)
		case <-timeout:
			t.Fatal("expected dequeue channel to close after draining")
		}
	}
	if len(drained) != 2 || drained[0] != r1.ID || drained[1] != r2.ID {
		t.Errorf("expected queued records in order, got %v", drained)
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got %v", err)
	}
}
