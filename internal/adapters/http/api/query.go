package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/model"
)

// movementsResponse wraps the mined edges.
type movementsResponse struct {
	MovementPatterns []model.MovementEdge `json:"movement_patterns"`
}

// QueryHandler handles live-state and analytics reads.
type QueryHandler struct {
	deps QueryDependencies
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(deps QueryDependencies) *QueryHandler {
	return &QueryHandler{deps: deps}
}

// HandleGetLocation handles GET /v1/entities/{id}/location requests.
func (h *QueryHandler) HandleGetLocation(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_location"
	ping, ok, err := h.deps.GetLocation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !ok {
		writeEngineError(w, errkind.Wrap(op, errkind.ErrNotFound, ErrNoLiveRecord))
		return
	}
	writeJSON(w, http.StatusOK, ping)
}

// HandleGetSnapshot handles GET /v1/venues/{id}/snapshot requests.
func (h *QueryHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.GetVenueSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleGetHeatmap handles GET /v1/heatmap?venue_id=&from=&to= requests.
func (h *QueryHandler) HandleGetHeatmap(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_heatmap"
	q, err := heatmapQuery(r)
	if err != nil {
		writeEngineError(w, badRequest(op, err))
		return
	}
	hm, err := h.deps.ComputeHeatmap(r.Context(), q)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hm)
}

// HandleGetMovements handles GET /v1/movements?venue_id=&from=&to= requests.
func (h *QueryHandler) HandleGetMovements(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_movements"
	q, err := heatmapQuery(r)
	if err != nil {
		writeEngineError(w, badRequest(op, err))
		return
	}
	edges, err := h.deps.ComputeMovementPatterns(r.Context(), q)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movementsResponse{MovementPatterns: edges})
}

// HandleGetForecast handles GET /v1/events/{id}/forecast requests.
func (h *QueryHandler) HandleGetForecast(w http.ResponseWriter, r *http.Request) {
	fc, err := h.deps.PredictAttendance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

// HandleGetDashboard handles GET /v1/dashboard requests.
func (h *QueryHandler) HandleGetDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.GetDashboardSnapshot(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
