// Package queue is the bounded hand-off between ingestion and the durable
// analytics log. Enqueue never blocks: a full queue rejects the record.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 100000
)

// Record is the payload type flowing through the queue.
type Record = model.AnalyticsRecord

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a record to the queue.
	// Returns false if the queue is full or closed and the record was not enqueued.
	Enqueue(ctx context.Context, r Record) bool

	// Dequeue returns a channel that receives records as they become available.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Record

	// Len returns the current number of queued records.
	Len(ctx context.Context) int

	// Close stops accepting records. Records already queued can still be dequeued.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	records  chan Record
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.records = make(chan Record, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Capacity returns the maximum number of queued records.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Enqueue adds a record to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Record) bool { //nolint:gocritic // hugeParam: records are passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
	}

	select {
	case q.records <- r:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return true
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that receives records as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Record {
	out := make(chan Record)
	go func() {
		defer close(out)
		for r := range q.records {
			select {
			case out <- r:
				metrics.RecordQueueDequeue()
				q.updateGauges()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.records)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Len returns the current number of queued records.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.updateGauges()
	return len(q.records)
}

// Close stops accepting records.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.records)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
