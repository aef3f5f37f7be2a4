package storage

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/pkg/logger"
	"github.com/okian/fanpulse/pkg/metrics"
)

// BreakerConfig configures the circuit breaker in front of a Store.
type BreakerConfig struct {
	Name string
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// MaxRequests is the number of trial calls let through while half-open.
	MaxRequests uint32
	// Interval resets the closed-state counts; zero never resets them.
	Interval time.Duration
	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration
}

// DefaultBreakerConfig returns production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "durable-store",
		FailureThreshold: 5,
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
	}
}

// Guarded wraps a Store with a circuit breaker. Every failure it returns is
// of kind errkind.ErrUpstream unless the inner store already classified it;
// an open breaker fails fast without touching the store.
type Guarded struct {
	inner  Store
	cb     *gobreaker.CircuitBreaker[any]
	logger logger.Logger
}

// NewGuarded wraps inner.
func NewGuarded(inner Store, cfg BreakerConfig, l logger.Logger) *Guarded {
	if l == nil {
		l = logger.Get().Named("storage")
	}
	def := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	g := &Guarded{inner: inner, logger: l}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Misses and bad input say nothing about the store's health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, errkind.ErrNotFound) ||
				errors.Is(err, errkind.ErrValidation) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			l.Warn(context.Background(), "durable store breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	}
	g.cb = gobreaker.NewCircuitBreaker[any](settings)
	metrics.UpdateBreakerState(cfg.Name, int(gobreaker.StateClosed))
	return g
}

// State reports the breaker state.
func (g *Guarded) State() gobreaker.State { return g.cb.State() }

func guard[T any](g *Guarded, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := g.cb.Execute(func() (any, error) {
		return fn()
	})
	metrics.RecordStorageLatency(op, float64(time.Since(start).Milliseconds()))

	var zero T
	if err != nil {
		if errkind.KindOf(err) != errkind.ErrNotFound {
			metrics.RecordStorageError(op)
		}
		return zero, errkind.Upstream("storage."+op, err)
	}
	v, _ := out.(T)
	return v, nil
}

func guardErr(g *Guarded, op string, fn func() error) error {
	_, err := guard(g, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Append implements RecordLog.
func (g *Guarded) Append(ctx context.Context, r model.AnalyticsRecord) error { //nolint:gocritic // records are values
	return guardErr(g, "append", func() error { return g.inner.Append(ctx, r) })
}

// Query implements RecordLog.
func (g *Guarded) Query(ctx context.Context, f model.RecordFilter) ([]model.AnalyticsRecord, error) {
	return guard(g, "query", func() ([]model.AnalyticsRecord, error) { return g.inner.Query(ctx, f) })
}

// GetVenue implements Registry.
func (g *Guarded) GetVenue(ctx context.Context, id string) (model.Venue, error) {
	return guard(g, "get_venue", func() (model.Venue, error) { return g.inner.GetVenue(ctx, id) })
}

// GetEvent implements Registry.
func (g *Guarded) GetEvent(ctx context.Context, id string) (model.Event, error) {
	return guard(g, "get_event", func() (model.Event, error) { return g.inner.GetEvent(ctx, id) })
}

// ListPastEvents implements Registry.
func (g *Guarded) ListPastEvents(ctx context.Context, venueID string, before time.Time, limit int) ([]model.Event, error) {
	return guard(g, "list_past_events", func() ([]model.Event, error) {
		return g.inner.ListPastEvents(ctx, venueID, before, limit)
	})
}

// CountEventsBetween implements Registry.
func (g *Guarded) CountEventsBetween(ctx context.Context, from, to time.Time) (int, error) {
	return guard(g, "count_events", func() (int, error) { return g.inner.CountEventsBetween(ctx, from, to) })
}

// AddCheckin implements Registry.
func (g *Guarded) AddCheckin(ctx context.Context, eventID, entityID string, at time.Time) error {
	return guardErr(g, "add_checkin", func() error { return g.inner.AddCheckin(ctx, eventID, entityID, at) })
}

// UpsertVenue implements Registry.
func (g *Guarded) UpsertVenue(ctx context.Context, v model.Venue) error {
	return guardErr(g, "upsert_venue", func() error { return g.inner.UpsertVenue(ctx, v) })
}

// UpsertEvent implements Registry.
func (g *Guarded) UpsertEvent(ctx context.Context, ev model.Event) error { //nolint:gocritic // events are values
	return guardErr(g, "upsert_event", func() error { return g.inner.UpsertEvent(ctx, ev) })
}

// Close implements Store.
func (g *Guarded) Close() error { return g.inner.Close() }
