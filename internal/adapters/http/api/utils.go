package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/fanpulse/internal/domain/model"
)

type ackResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeBody reads a single JSON document from r into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// parseTime parses an optional RFC3339 timestamp.
func parseTime(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s; must be RFC3339", name)
	}
	return t, nil
}

// heatmapQuery reads venue_id, from and to query parameters.
func heatmapQuery(r *http.Request) (model.HeatmapQuery, error) {
	q := r.URL.Query()
	from, err := parseTime("from", q.Get("from"))
	if err != nil {
		return model.HeatmapQuery{}, err
	}
	to, err := parseTime("to", q.Get("to"))
	if err != nil {
		return model.HeatmapQuery{}, err
	}
	return model.HeatmapQuery{
		VenueID: strings.TrimSpace(q.Get("venue_id")),
		From:    from,
		To:      to,
	}, nil
}
