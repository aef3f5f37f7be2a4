// Package movement reconstructs per-entity paths from location records and
// counts the most frequent directed transitions.
package movement

import (
	"context"
	"sort"
	"time"

	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/geo"
	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/pkg/logger"
	"github.com/okian/fanpulse/pkg/metrics"
)

// Defaults for movement mining.
const (
	DefaultTopEdges   = 20
	DefaultMaxRecords = 10000
)

// RecordSource reads records from the durable analytics log.
type RecordSource interface {
	Query(ctx context.Context, f model.RecordFilter) ([]model.AnalyticsRecord, error)
}

type edgeKey struct {
	from model.Cell
	to   model.Cell
}

// Mine groups LOCATION records by entity, orders each group by ObservedAt and
// counts one directed edge per consecutive pair, keyed by exact coordinates.
// It returns at most top edges by count descending; equal counts keep the
// order in which the edge was first produced. Entities with fewer than two
// records contribute nothing. Records of other types are ignored.
func Mine(records []model.AnalyticsRecord, top int) []model.MovementEdge {
	if top <= 0 {
		top = DefaultTopEdges
	}

	// Groups are visited in the order their entity first appears.
	var order []string
	paths := make(map[string][]model.AnalyticsRecord)
	for _, r := range records {
		if r.Type != model.RecordLocation || r.Payload.EntityID == "" {
			continue
		}
		id := r.Payload.EntityID
		if _, ok := paths[id]; !ok {
			order = append(order, id)
		}
		paths[id] = append(paths[id], r)
	}

	counts := make(map[edgeKey]int)
	var edges []edgeKey
	for _, id := range order {
		path := paths[id]
		if len(path) < 2 {
			continue
		}
		sort.SliceStable(path, func(i, j int) bool {
			return path[i].ObservedAt.Before(path[j].ObservedAt)
		})
		for i := 1; i < len(path); i++ {
			k := edgeKey{
				from: model.Cell{Latitude: path[i-1].Payload.Latitude, Longitude: path[i-1].Payload.Longitude},
				to:   model.Cell{Latitude: path[i].Payload.Latitude, Longitude: path[i].Payload.Longitude},
			}
			if _, seen := counts[k]; !seen {
				edges = append(edges, k)
			}
			counts[k]++
		}
	}

	sort.SliceStable(edges, func(i, j int) bool {
		return counts[edges[i]] > counts[edges[j]]
	})
	if len(edges) > top {
		edges = edges[:top]
	}

	out := make([]model.MovementEdge, len(edges))
	for i, k := range edges {
		out[i] = model.MovementEdge{
			From:           k.from,
			To:             k.to,
			Count:          counts[k],
			DistanceMeters: geo.HaversineMeters(k.from, k.to),
		}
	}
	return out
}

// LocationFilter is the durable-log filter shared by the heatmap and the
// movement miner: LOCATION records, newest first, capped at limit.
func LocationFilter(q model.HeatmapQuery, limit int) (model.RecordFilter, error) {
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return model.RecordFilter{}, errkind.New("movement.filter", errkind.ErrValidation, "from must be before to")
	}
	return model.RecordFilter{
		Type:    model.RecordLocation,
		VenueID: q.VenueID,
		From:    q.From,
		To:      q.To,
		Order:   model.NewestFirst,
		Limit:   limit,
	}, nil
}

// Miner fetches records itself and mines them.
type Miner struct {
	source       RecordSource
	top          int
	maxRecords   int
	queryTimeout time.Duration
	logger       logger.Logger
}

// NewMiner returns a miner reading from source.
func NewMiner(source RecordSource, opts ...Option) *Miner {
	m := &Miner{
		source:     source,
		top:        DefaultTopEdges,
		maxRecords: DefaultMaxRecords,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Get().Named("movement")
	}
	return m
}

// ComputeMovementPatterns mines the most recent location records matching q.
func (m *Miner) ComputeMovementPatterns(ctx context.Context, q model.HeatmapQuery) ([]model.MovementEdge, error) {
	const op = "movement.compute"
	start := time.Now()
	defer func() {
		metrics.RecordAnalyticsLatency("movement", float64(time.Since(start).Milliseconds()))
	}()

	f, err := LocationFilter(q, m.maxRecords)
	if err != nil {
		return nil, err
	}

	fetchCtx := ctx
	if m.queryTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, m.queryTimeout)
		defer cancel()
	}
	records, err := m.source.Query(fetchCtx, f)
	if err != nil {
		metrics.RecordAnalyticsError("movement", "upstream")
		return nil, errkind.Upstream(op, err)
	}
	metrics.RecordAnalyticsWorkingSet("movement", len(records))

	edges := Mine(records, m.top)
	m.logger.Debug(ctx, "movement patterns computed",
		logger.Int("records", len(records)),
		logger.Int("edges", len(edges)),
	)
	return edges, nil
}

// Top returns the configured number of edges kept.
func (m *Miner) Top() int { return m.top }
