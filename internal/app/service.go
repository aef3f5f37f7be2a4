// Package service composes the live cache, the durable store and the
// analytics engines into the operations served by the HTTP API.
package service

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	recordqueue "github.com/okian/fanpulse/internal/adapters/mq/queue"
	workerpool "github.com/okian/fanpulse/internal/adapters/mq/worker"
	"github.com/okian/fanpulse/internal/adapters/repository"
	"github.com/okian/fanpulse/internal/adapters/storage"
	"github.com/okian/fanpulse/internal/domain/dashboard"
	"github.com/okian/fanpulse/internal/domain/dedupe"
	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/forecast"
	"github.com/okian/fanpulse/internal/domain/heatmap"
	"github.com/okian/fanpulse/internal/domain/location"
	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/internal/domain/movement"
	"github.com/okian/fanpulse/pkg/logger"
	"github.com/okian/fanpulse/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize    = 100000
	defaultDedupeSize   = 50000
	defaultQueryTimeout = 5 * time.Second
	stopTimeout         = 30 * time.Second
)

// Service implements the engine operations.
type Service struct {
	mu sync.RWMutex

	// Backends. Created in Start when not injected; owned ones are
	// dropped on Stop so the next Start builds fresh ones.
	kv        repository.KV
	store     storage.Store
	ownsKV    bool
	ownsStore bool
	// injectedClosed is set once Stop has closed a backend passed in
	// through WithKV or WithStore.
	injectedClosed bool

	// Components
	cache      *location.Cache
	tracker    *location.Tracker
	heatmaps   *heatmap.Engine
	miner      *movement.Miner
	predictor  *forecast.Predictor
	aggregator *dashboard.Aggregator
	deduper    dedupe.Deduper
	queue      *recordqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// Configuration
	workerCount  int
	queueSize    int
	dedupeSize   int
	ttl          time.Duration
	precision    int
	threshold    float64
	maxRecords   int
	queryTimeout time.Duration
	loc          *time.Location
	clock        func() time.Time

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU() * 2,
		queueSize:    defaultQueueSize,
		dedupeSize:   defaultDedupeSize,
		ttl:          location.DefaultTTL,
		precision:    heatmap.DefaultPrecision,
		threshold:    heatmap.DefaultThreshold,
		maxRecords:   heatmap.DefaultMaxRecords,
		queryTimeout: defaultQueryTimeout,
		loc:          time.UTC,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components and starts the worker pool. Calling Start on
// a started service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.injectedClosed {
		return errkind.Wrap("service.start", errkind.ErrUpstream, ErrBackendsClosed)
	}

	s.logger.Info(ctx, "starting analytics engine...")

	if s.kv == nil {
		s.kv = repository.NewMemStore(repository.WithClock(s.clock))
		s.ownsKV = true
		s.logger.Info(ctx, "using in-memory cache")
	}
	if s.store == nil {
		s.store = storage.NewMemory()
		s.ownsStore = true
		s.logger.Info(ctx, "using in-memory durable store")
	}

	s.cache = location.NewCache(s.kv,
		location.WithTTL(s.ttl),
		location.WithLogger(s.logger.Named("location-cache")),
	)
	s.tracker = location.NewTracker(s.cache)
	s.heatmaps = heatmap.NewEngine(s.store,
		heatmap.WithPrecision(s.precision),
		heatmap.WithThreshold(s.threshold),
		heatmap.WithMaxRecords(s.maxRecords),
		heatmap.WithQueryTimeout(s.queryTimeout),
		heatmap.WithLogger(s.logger.Named("heatmap")),
	)
	s.miner = movement.NewMiner(s.store,
		movement.WithMaxRecords(s.maxRecords),
		movement.WithQueryTimeout(s.queryTimeout),
		movement.WithLogger(s.logger.Named("movement")),
	)
	s.predictor = forecast.NewPredictor(s.store,
		forecast.WithLocation(s.loc),
		forecast.WithQueryTimeout(s.queryTimeout),
		forecast.WithLogger(s.logger.Named("forecast")),
	)
	s.aggregator = dashboard.NewAggregator(s.cache, s.store, s.store,
		dashboard.WithClock(s.clock),
		dashboard.WithLocation(s.loc),
		dashboard.WithQueryTimeout(s.queryTimeout),
		dashboard.WithLogger(s.logger.Named("dashboard")),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = recordqueue.NewInMemoryQueue(recordqueue.WithCapacity(s.queueSize))

	// Workers outlive the start request; Stop cancels them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, s.store,
		workerpool.WithLogger(s.logger.Named("worker")),
		workerpool.WithAppendTimeout(s.queryTimeout),
	)
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "analytics engine started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("ttl", s.ttl),
	)
	return nil
}

// Stop drains the record queue into the durable store and closes the
// backends.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping analytics engine...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.cancel()

	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "closing durable store", logger.Error(err))
	}
	if err := s.kv.Close(); err != nil {
		s.logger.Error(ctx, "closing cache", logger.Error(err))
	}

	if !s.ownsKV || !s.ownsStore {
		s.injectedClosed = true
	}
	if s.ownsKV {
		s.kv, s.ownsKV = nil, false
	}
	if s.ownsStore {
		s.store, s.ownsStore = nil, false
	}

	s.started = false
	s.logger.Info(ctx, "analytics engine stopped")
}

// running returns the started state under the read lock.
func (s *Service) running(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return errkind.Wrap(op, errkind.ErrUpstream, ErrNotStarted)
	}
	return nil
}

// enqueue hands r to the durable write path. A full queue drops the record;
// the caller's live-cache write has already happened and is not undone.
func (s *Service) enqueue(ctx context.Context, r model.AnalyticsRecord) { //nolint:gocritic // records are values
	if r.DedupeKey != "" && s.deduper.SeenAndRecord(ctx, r.DedupeKey) {
		metrics.RecordPingDuplicate()
		s.logger.Debug(ctx, "duplicate ping id, not re-appended", logger.String("ping_id", r.DedupeKey))
		return
	}
	if !s.queue.Enqueue(ctx, r) {
		if r.DedupeKey != "" {
			s.deduper.Unrecord(ctx, r.DedupeKey)
		}
		metrics.RecordRecordDropped()
		s.logger.Warn(ctx, "record queue full, record dropped",
			logger.String("record_id", r.ID),
			logger.String("type", string(r.Type)),
		)
	}
}

// RecordLocation stores ping as the entity's live location and queues its
// LOCATION record. Only validation and cache failures are reported.
func (s *Service) RecordLocation(ctx context.Context, ping model.LocationPing) error { //nolint:gocritic // pings are values
	if err := s.running("service.record_location"); err != nil {
		return err
	}
	if err := s.cache.RecordLocation(ctx, ping); err != nil {
		return err
	}
	ping.EntityID = strings.TrimSpace(ping.EntityID)
	ping.VenueID = strings.TrimSpace(ping.VenueID)
	s.enqueue(ctx, model.NewLocationRecord(ping))
	return nil
}

// RecordCheckin registers entityID at eventID and queues a CHECKIN record.
// A zero at means now.
func (s *Service) RecordCheckin(ctx context.Context, entityID, eventID string, at time.Time) error {
	const op = "service.record_checkin"
	if err := s.running(op); err != nil {
		return err
	}

	entityID, eventID = strings.TrimSpace(entityID), strings.TrimSpace(eventID)
	if entityID == "" || eventID == "" {
		return errkind.New(op, errkind.ErrValidation, "entity id and event id are required")
	}
	if at.IsZero() {
		at = s.clock()
	}

	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return errkind.Upstream(op, err)
	}
	if err := s.store.AddCheckin(ctx, eventID, entityID, at); err != nil {
		return errkind.Upstream(op, err)
	}

	metrics.RecordCheckin()
	s.enqueue(ctx, model.NewCheckinRecord(entityID, ev, at))
	return nil
}

// RecordUsage queues a USAGE record. A zero at means now.
func (s *Service) RecordUsage(ctx context.Context, entityID, action string, at time.Time) error {
	const op = "service.record_usage"
	if err := s.running(op); err != nil {
		return err
	}

	entityID, action = strings.TrimSpace(entityID), strings.TrimSpace(action)
	if entityID == "" || action == "" {
		return errkind.New(op, errkind.ErrValidation, "entity id and action are required")
	}
	if at.IsZero() {
		at = s.clock()
	}

	metrics.RecordUsage()
	s.enqueue(ctx, model.NewUsageRecord(entityID, action, at))
	return nil
}

// GetLocation returns the entity's live location.
func (s *Service) GetLocation(ctx context.Context, entityID string) (model.LocationPing, bool, error) {
	const op = "service.get_location"
	if err := s.running(op); err != nil {
		return model.LocationPing{}, false, err
	}
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return model.LocationPing{}, false, errkind.New(op, errkind.ErrValidation, "entity id is required")
	}

	return s.cache.GetLocation(ctx, entityID)
}

// GetVenueSnapshot lists the venue's live occupants.
func (s *Service) GetVenueSnapshot(ctx context.Context, venueID string) (model.VenueSnapshot, error) {
	if err := s.running("service.venue_snapshot"); err != nil {
		return model.VenueSnapshot{}, err
	}
	return s.tracker.GetVenueSnapshot(ctx, venueID)
}

// ComputeHeatmap derives density points, popular areas and movement
// patterns from the durable log.
func (s *Service) ComputeHeatmap(ctx context.Context, q model.HeatmapQuery) (model.Heatmap, error) {
	if err := s.running("service.heatmap"); err != nil {
		return model.Heatmap{}, err
	}
	return s.heatmaps.ComputeHeatmap(ctx, q)
}

// ComputeMovementPatterns mines the most frequent transitions.
func (s *Service) ComputeMovementPatterns(ctx context.Context, q model.HeatmapQuery) ([]model.MovementEdge, error) {
	if err := s.running("service.movements"); err != nil {
		return nil, err
	}
	return s.miner.ComputeMovementPatterns(ctx, q)
}

// PredictAttendance forecasts an event's turnout.
func (s *Service) PredictAttendance(ctx context.Context, eventID string) (model.AttendanceForecast, error) {
	if err := s.running("service.forecast"); err != nil {
		return model.AttendanceForecast{}, err
	}
	return s.predictor.PredictAttendance(ctx, eventID)
}

// GetDashboardSnapshot builds the status rollup.
func (s *Service) GetDashboardSnapshot(ctx context.Context) (model.DashboardSnapshot, error) {
	if err := s.running("service.dashboard"); err != nil {
		return model.DashboardSnapshot{}, err
	}
	return s.aggregator.GetDashboardSnapshot(ctx)
}

// UpsertVenue registers or replaces venue metadata.
func (s *Service) UpsertVenue(ctx context.Context, v model.Venue) error {
	const op = "service.upsert_venue"
	if err := s.running(op); err != nil {
		return err
	}
	v.ID = strings.TrimSpace(v.ID)
	if v.ID == "" || v.Capacity < 0 {
		return errkind.New(op, errkind.ErrValidation, "venue id is required and capacity must not be negative")
	}
	return errkind.Upstream(op, s.store.UpsertVenue(ctx, v))
}

// UpsertEvent registers or replaces an event. CheckinCount is the
// historical baseline.
func (s *Service) UpsertEvent(ctx context.Context, ev model.Event) error { //nolint:gocritic // events are values
	const op = "service.upsert_event"
	if err := s.running(op); err != nil {
		return err
	}
	ev.ID, ev.VenueID = strings.TrimSpace(ev.ID), strings.TrimSpace(ev.VenueID)
	if ev.ID == "" || ev.VenueID == "" || ev.StartsAt.IsZero() || ev.CheckinCount < 0 {
		return errkind.New(op, errkind.ErrValidation, "event id, venue id and start time are required")
	}
	return errkind.Upstream(op, s.store.UpsertEvent(ctx, ev))
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"ttlSeconds":  int(s.ttl.Seconds()),
		"timezone":    s.loc.String(),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()
		if n, err := s.cache.ActiveEntities(ctx); err == nil {
			stats["activeEntities"] = n
		}
		if venues, err := s.cache.ActiveVenues(ctx); err == nil {
			stats["activeVenues"] = len(venues)
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerPool.Size())
	}

	return stats
}

// Size returns the current number of remembered ping ids.
func (s *Service) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}
