// Package worker drains the record queue into the durable analytics log.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/pkg/logger"
	"github.com/okian/fanpulse/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	defaultAppendTimeout    = 5 * time.Second
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Appender writes a record to the durable log.
type Appender interface {
	Append(ctx context.Context, r model.AnalyticsRecord) error
}

// Queue defines how workers receive records.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.AnalyticsRecord
}

// Worker drains records into an Appender.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called
	// or the queue is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the record in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue         Queue
	appender      Appender
	name          string
	appendTimeout time.Duration
	onProcessed   func()

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, appender Appender, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:         queue,
		appender:      appender,
		name:          "worker",
		appendTimeout: defaultAppendTimeout,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	records := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case r, ok := <-records:
			if !ok {
				return
			}
			if err := w.process(ctx, r); err != nil {
				w.logger.Error(ctx, "error appending record", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process appends a single record. Failures are logged and counted but not
// retried.
func (w *InMemoryWorker) process(ctx context.Context, r model.AnalyticsRecord) error { //nolint:gocritic // records are passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	appendCtx, cancel := context.WithTimeout(ctx, w.appendTimeout)
	defer cancel()

	if err := w.appender.Append(appendCtx, r); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordRecordDropped()
		metrics.RecordErrorByComponent("worker", "append_error")
		metrics.RecordErrorByType("append_error", "high")
		w.logger.Error(ctx, "append failed, record dropped",
			logger.String("record_id", r.ID),
			logger.String("type", string(r.Type)),
			logger.Error(err),
		)
		return fmt.Errorf("append record %s: %w", r.ID, err)
	}

	metrics.RecordRecordAppended(string(r.Type))
	if w.onProcessed != nil {
		w.onProcessed()
	}
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown     chan struct{}
	shutdownOnce sync.Once

	processedCount    atomic.Int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a new worker pool. opts are applied to every worker.
func NewPool(workerCount int, queue Queue, appender Appender, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             queue,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		workerOpts = append(workerOpts, withOnProcessed(pool.RecordProcessedMessage))
		pool.workers[i] = NewInMemoryWorker(queue, appender, workerOpts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	now := time.Now()
	if elapsed := now.Sub(p.lastProcessedTime).Seconds(); elapsed > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(p.processedCount.Swap(0)) / elapsed)
	}
	p.lastProcessedTime = now
}

// RecordProcessedMessage increments the processed message count.
func (p *Pool) RecordProcessedMessage() {
	p.processedCount.Add(1)
}

// Shutdown closes the queue, lets the workers drain what is already queued
// and waits for them, bounded by ctx and an overall timeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	p.shutdownOnce.Do(func() { close(p.shutdown) })

	if timedOut {
		for _, w := range p.workers {
			w.shutdownOnce.Do(func() { close(w.shutdown) })
		}
		return fmt.Errorf("worker pool drain: %w", shutdownCtx.Err())
	}
	return nil
}
