// Package api serves the engine over HTTP: ingestion, analytics reads and
// registry seeding.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/okian/fanpulse/internal/domain/model"
)

// Default server configuration constants.
const (
	defaultIngestRateLimit = 1000
	ingestRateWindow       = time.Second
	maxBodyBytes           = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	IngestDependencies
	QueryDependencies
	RegistryDependencies
}

// IngestDependencies accepts pings, check-ins and app interactions.
type IngestDependencies interface {
	RecordLocation(ctx context.Context, ping model.LocationPing) error
	RecordCheckin(ctx context.Context, entityID, eventID string, at time.Time) error
	RecordUsage(ctx context.Context, entityID, action string, at time.Time) error
}

// QueryDependencies serves live state and derived analytics.
type QueryDependencies interface {
	GetLocation(ctx context.Context, entityID string) (model.LocationPing, bool, error)
	GetVenueSnapshot(ctx context.Context, venueID string) (model.VenueSnapshot, error)
	ComputeHeatmap(ctx context.Context, q model.HeatmapQuery) (model.Heatmap, error)
	ComputeMovementPatterns(ctx context.Context, q model.HeatmapQuery) ([]model.MovementEdge, error)
	PredictAttendance(ctx context.Context, eventID string) (model.AttendanceForecast, error)
	GetDashboardSnapshot(ctx context.Context) (model.DashboardSnapshot, error)
}

// RegistryDependencies seeds venue and event metadata.
type RegistryDependencies interface {
	UpsertVenue(ctx context.Context, v model.Venue) error
	UpsertEvent(ctx context.Context, ev model.Event) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	ingestHandler   *IngestHandler
	queryHandler    *QueryHandler
	registryHandler *RegistryHandler

	ingestRateLimit int
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		ingestHandler:   NewIngestHandler(deps),
		queryHandler:    NewQueryHandler(deps),
		registryHandler: NewRegistryHandler(deps),
		ingestRateLimit: defaultIngestRateLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.ingestRateLimit > 0 {
				r.Use(httprate.Limit(s.ingestRateLimit, ingestRateWindow,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
						writeError(w, http.StatusTooManyRequests, codeRateLimited, ErrRateLimited)
					}),
				))
			}
			r.Post("/locations", MetricsMiddleware(s.ingestHandler.HandlePostLocation, "locations"))
			r.Post("/checkins", MetricsMiddleware(s.ingestHandler.HandlePostCheckin, "checkins"))
			r.Post("/usage", MetricsMiddleware(s.ingestHandler.HandlePostUsage, "usage"))
		})

		r.Get("/entities/{id}/location", MetricsMiddleware(s.queryHandler.HandleGetLocation, "location"))
		r.Get("/venues/{id}/snapshot", MetricsMiddleware(s.queryHandler.HandleGetSnapshot, "snapshot"))
		r.Get("/heatmap", MetricsMiddleware(s.queryHandler.HandleGetHeatmap, "heatmap"))
		r.Get("/movements", MetricsMiddleware(s.queryHandler.HandleGetMovements, "movements"))
		r.Get("/events/{id}/forecast", MetricsMiddleware(s.queryHandler.HandleGetForecast, "forecast"))
		r.Get("/dashboard", MetricsMiddleware(s.queryHandler.HandleGetDashboard, "dashboard"))

		r.Put("/venues/{id}", MetricsMiddleware(s.registryHandler.HandlePutVenue, "venues"))
		r.Put("/events/{id}", MetricsMiddleware(s.registryHandler.HandlePutEvent, "events"))
	})
}
