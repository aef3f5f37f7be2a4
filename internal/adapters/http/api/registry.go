package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/fanpulse/internal/domain/model"
)

// RegistryHandler seeds venue and event metadata.
type RegistryHandler struct {
	deps RegistryDependencies
}

// NewRegistryHandler creates a new registry handler.
func NewRegistryHandler(deps RegistryDependencies) *RegistryHandler {
	return &RegistryHandler{deps: deps}
}

// HandlePutVenue handles PUT /v1/venues/{id} requests. The path id wins
// over any id in the body.
func (h *RegistryHandler) HandlePutVenue(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_venue"
	var v model.Venue
	if err := decodeBody(w, r, &v); err != nil {
		writeEngineError(w, badRequest(op, err))
		return
	}
	v.ID = chi.URLParam(r, "id")
	if err := h.deps.UpsertVenue(r.Context(), v); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePutEvent handles PUT /v1/events/{id} requests. checkin_count in the
// body is the historical baseline.
func (h *RegistryHandler) HandlePutEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_event"
	var ev model.Event
	if err := decodeBody(w, r, &ev); err != nil {
		writeEngineError(w, badRequest(op, err))
		return
	}
	ev.ID = chi.URLParam(r, "id")
	if err := h.deps.UpsertEvent(r.Context(), ev); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
