package main

import (
	"context"
	"runtime"
	"time"

	app "github.com/okian/fanpulse/internal/app"
	"github.com/okian/fanpulse/pkg/metrics"
)

// Metric refresh intervals.
const (
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// ticker runs fn every interval until ctx is cancelled. It implements
// suture.Service.
type ticker struct {
	name     string
	interval time.Duration
	fn       func()
}

func (t *ticker) Serve(ctx context.Context) error {
	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tk.C:
			t.fn()
		}
	}
}

func (t *ticker) String() string { return t.name }

// newSystemMetricsUpdater refreshes runtime metrics.
func newSystemMetricsUpdater(interval time.Duration) *ticker {
	return &ticker{name: "system-metrics", interval: interval, fn: updateSystemMetrics}
}

// newServiceMetricsUpdater refreshes the engine's gauges from its stats.
func newServiceMetricsUpdater(svc *app.Service, interval time.Duration) *ticker {
	return &ticker{name: "service-metrics", interval: interval, fn: func() { updateServiceMetrics(svc) }}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	// Update memory usage
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	// Update goroutine count
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	// Update GC pause time
	if m.NumGC > 0 {
		// Calculate average GC pause time
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc *app.Service) {
	// GetStats refreshes the queue and worker gauges itself.
	stats := svc.GetStats()

	if n, ok := stats["activeEntities"].(int); ok {
		metrics.UpdateLiveEntities(n)
	}
	if n, ok := stats["activeVenues"].(int); ok {
		metrics.UpdateLiveVenues(n)
	}
}
