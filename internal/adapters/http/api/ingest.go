package api

import (
	"net/http"

	"github.com/okian/fanpulse/internal/domain/model"
)

// checkinRequest mirrors the OpenAPI schema for POST /v1/checkins.
type checkinRequest struct {
	EntityID string `json:"entity_id"`
	EventID  string `json:"event_id"`
	At       string `json:"at"`
}

// usageRequest mirrors the OpenAPI schema for POST /v1/usage.
type usageRequest struct {
	EntityID string `json:"entity_id"`
	Action   string `json:"action"`
	At       string `json:"at"`
}

// IngestHandler handles ingestion requests.
type IngestHandler struct {
	deps IngestDependencies
}

// NewIngestHandler creates a new ingestion handler.
func NewIngestHandler(deps IngestDependencies) *IngestHandler {
	return &IngestHandler{deps: deps}
}

// HandlePostLocation handles POST /v1/locations requests.
func (h *IngestHandler) HandlePostLocation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_location"
	var ping model.LocationPing
	if err := decodeBody(w, r, &ping); err != nil {
		writeEngineError(w, badRequest(op, err))
		return
	}
	if err := h.deps.RecordLocation(r.Context(), ping); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// HandlePostCheckin handles POST /v1/checkins requests.
func (h *IngestHandler) HandlePostCheckin(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_checkin"
	var req checkinRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, badRequest(op, err))
		return
	}
	at, err := parseTime("at", req.At)
	if err != nil {
		writeEngineError(w, badRequest(op, err))
		return
	}
	if err := h.deps.RecordCheckin(r.Context(), req.EntityID, req.EventID, at); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// HandlePostUsage handles POST /v1/usage requests.
func (h *IngestHandler) HandlePostUsage(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_usage"
	var req usageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeEngineError(w, badRequest(op, err))
		return
	}
	at, err := parseTime("at", req.At)
	if err != nil {
		writeEngineError(w, badRequest(op, err))
		return
	}
	if err := h.deps.RecordUsage(r.Context(), req.EntityID, req.Action, at); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
