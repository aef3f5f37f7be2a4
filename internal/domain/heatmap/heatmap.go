// Package heatmap bins location records into density points and groups the
// points into popular areas.
//
// Clustering is a single greedy pass in point order: a point joins the first
// cluster whose seed lies within the threshold, otherwise it seeds a new one.
// Seeds never move and points are never reassigned, so the result depends on
// input order.
package heatmap

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/geo"
	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/internal/domain/movement"
	"github.com/okian/fanpulse/pkg/logger"
	"github.com/okian/fanpulse/pkg/metrics"
)

// Defaults for heatmap computation.
const (
	DefaultPrecision  = 4
	DefaultThreshold  = 0.01
	DefaultMaxRecords = 10000
	DefaultTopAreas   = 10
)

// RecordSource reads records from the durable analytics log.
type RecordSource interface {
	Query(ctx context.Context, f model.RecordFilter) ([]model.AnalyticsRecord, error)
}

// Bin rounds each LOCATION record to precision decimal places and counts
// records per bin. Bins are returned in the order they were first seen.
func Bin(records []model.AnalyticsRecord, precision int) []model.HeatmapPoint {
	index := make(map[model.Cell]int)
	var points []model.HeatmapPoint
	for _, r := range records {
		if r.Type != model.RecordLocation {
			continue
		}
		c := geo.Bin(r.Payload.Latitude, r.Payload.Longitude, precision)
		if i, ok := index[c]; ok {
			points[i].Weight++
			continue
		}
		index[c] = len(points)
		points = append(points, model.HeatmapPoint{Latitude: c.Latitude, Longitude: c.Longitude, Weight: 1})
	}
	return points
}

type cluster struct {
	seed    model.Cell
	weight  int
	members int
	radius  float64
}

// Cluster groups points greedily. A point joins the first existing cluster
// whose seed is strictly closer than threshold degrees. Clusters are ordered
// by total weight descending, ties in creation order, and the first top are
// labelled "Popular Area 1" onwards.
func Cluster(points []model.HeatmapPoint, threshold float64, top int) []model.PopularArea {
	if top <= 0 {
		top = DefaultTopAreas
	}

	var clusters []*cluster
	for _, p := range points {
		c := model.Cell{Latitude: p.Latitude, Longitude: p.Longitude}
		var home *cluster
		for _, cl := range clusters {
			if geo.EuclideanDegrees(cl.seed, c) < threshold {
				home = cl
				break
			}
		}
		if home == nil {
			home = &cluster{seed: c}
			clusters = append(clusters, home)
		}
		home.weight += p.Weight
		home.members++
		if d := geo.HaversineMeters(home.seed, c); d > home.radius {
			home.radius = d
		}
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].weight > clusters[j].weight
	})
	if len(clusters) > top {
		clusters = clusters[:top]
	}

	areas := make([]model.PopularArea, len(clusters))
	for i, cl := range clusters {
		areas[i] = model.PopularArea{
			Label:        fmt.Sprintf("Popular Area %d", i+1),
			Latitude:     cl.seed.Latitude,
			Longitude:    cl.seed.Longitude,
			Weight:       cl.weight,
			MemberCount:  cl.members,
			RadiusMeters: cl.radius,
		}
	}
	return areas
}

// Engine computes heatmaps from the durable log.
type Engine struct {
	source       RecordSource
	precision    int
	threshold    float64
	maxRecords   int
	topAreas     int
	topEdges     int
	queryTimeout time.Duration
	logger       logger.Logger
}

// NewEngine returns an engine reading from source.
func NewEngine(source RecordSource, opts ...Option) *Engine {
	e := &Engine{
		source:     source,
		precision:  DefaultPrecision,
		threshold:  DefaultThreshold,
		maxRecords: DefaultMaxRecords,
		topAreas:   DefaultTopAreas,
		topEdges:   movement.DefaultTopEdges,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("heatmap")
	}
	return e
}

// ComputeHeatmap fetches the most recent LOCATION records matching q, newest
// first, and derives density points, popular areas and movement patterns
// from that single record set.
func (e *Engine) ComputeHeatmap(ctx context.Context, q model.HeatmapQuery) (model.Heatmap, error) {
	const op = "heatmap.compute"
	start := time.Now()
	defer func() {
		metrics.RecordAnalyticsLatency("heatmap", float64(time.Since(start).Milliseconds()))
	}()

	f, err := movement.LocationFilter(q, e.maxRecords)
	if err != nil {
		return model.Heatmap{}, err
	}

	fetchCtx := ctx
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}
	records, err := e.source.Query(fetchCtx, f)
	if err != nil {
		metrics.RecordAnalyticsError("heatmap", "upstream")
		return model.Heatmap{}, errkind.Upstream(op, err)
	}
	metrics.RecordAnalyticsWorkingSet("heatmap", len(records))

	points := Bin(records, e.precision)
	hm := model.Heatmap{
		Points:           points,
		PopularAreas:     Cluster(points, e.threshold, e.topAreas),
		MovementPatterns: movement.Mine(records, e.topEdges),
		RecordsScanned:   len(records),
	}
	if hm.Points == nil {
		hm.Points = []model.HeatmapPoint{}
	}
	if hm.MovementPatterns == nil {
		hm.MovementPatterns = []model.MovementEdge{}
	}

	e.logger.Debug(ctx, "heatmap computed",
		logger.Int("records", len(records)),
		logger.Int("points", len(hm.Points)),
		logger.Int("areas", len(hm.PopularAreas)),
	)
	return hm, nil
}
