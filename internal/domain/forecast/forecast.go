// Package forecast estimates the attendance of an upcoming event from the
// check-in counts of earlier events at the same venue.
//
// The model is a fixed heuristic: the mean of up to ten past counts, scaled
// by 1.3 on weekends and 1.2 for starts between 18:00 and 22:59. Confidence
// grows by 0.05 per past event from 0.6 and is capped at 0.95.
package forecast

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/pkg/logger"
	"github.com/okian/fanpulse/pkg/metrics"
)

// Model constants.
const (
	DefaultHistory = 10

	weekendMultiplier   = 1.3
	weekendImpact       = 0.3
	primeTimeMultiplier = 1.2
	primeTimeImpact     = 0.2
	primeTimeFirstHour  = 18
	primeTimeLastHour   = 22

	baseConfidence    = 0.6
	confidencePerPast = 0.05
	maxConfidence     = 0.95
)

// Factor names.
const (
	FactorWeekend   = "weekend"
	FactorPrimeTime = "prime_time"
)

// Registry is the part of the venue/event registry the predictor reads.
type Registry interface {
	// GetEvent returns an error of kind errkind.ErrNotFound for unknown ids.
	GetEvent(ctx context.Context, id string) (model.Event, error)
	// ListPastEvents returns up to limit events at venueID starting strictly
	// before before, most recent first.
	ListPastEvents(ctx context.Context, venueID string, before time.Time, limit int) ([]model.Event, error)
}

// Predict applies the model to ev given its past events. Weekday and hour
// are read in loc.
func Predict(ev model.Event, past []model.Event, loc *time.Location) model.AttendanceForecast { //nolint:gocritic // events are passed by value
	if loc == nil {
		loc = time.UTC
	}

	avg := 0.0
	if len(past) > 0 {
		sum := 0
		for _, p := range past {
			sum += p.CheckinCount
		}
		avg = float64(sum) / float64(len(past))
	}

	start := ev.StartsAt.In(loc)
	multiplier := 1.0
	factors := []model.Factor{}
	if wd := start.Weekday(); wd == time.Saturday || wd == time.Sunday {
		multiplier *= weekendMultiplier
		factors = append(factors, model.Factor{Name: FactorWeekend, Weight: weekendImpact})
	}
	if h := start.Hour(); h >= primeTimeFirstHour && h <= primeTimeLastHour {
		multiplier *= primeTimeMultiplier
		factors = append(factors, model.Factor{Name: FactorPrimeTime, Weight: primeTimeImpact})
	}

	predicted := int(math.Round(avg * multiplier))
	if predicted < 0 {
		predicted = 0
	}

	return model.AttendanceForecast{
		EventID:             ev.ID,
		VenueID:             ev.VenueID,
		PredictedCount:      predicted,
		Confidence:          math.Min(maxConfidence, baseConfidence+confidencePerPast*float64(len(past))),
		ContributingFactors: factors,
		HistoricalEvents:    len(past),
	}
}

// Predictor serves forecasts from a registry.
type Predictor struct {
	registry     Registry
	loc          *time.Location
	history      int
	queryTimeout time.Duration
	logger       logger.Logger
}

// NewPredictor returns a predictor reading from registry.
func NewPredictor(registry Registry, opts ...Option) *Predictor {
	p := &Predictor{
		registry: registry,
		loc:      time.UTC,
		history:  DefaultHistory,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("forecast")
	}
	return p
}

// PredictAttendance forecasts the attendance of eventID.
func (p *Predictor) PredictAttendance(ctx context.Context, eventID string) (model.AttendanceForecast, error) {
	const op = "forecast.predict"
	start := time.Now()
	defer func() {
		metrics.RecordAnalyticsLatency("forecast", float64(time.Since(start).Milliseconds()))
	}()

	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return model.AttendanceForecast{}, errkind.New(op, errkind.ErrValidation, "event id is required")
	}

	fetchCtx := ctx
	if p.queryTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.queryTimeout)
		defer cancel()
	}

	ev, err := p.registry.GetEvent(fetchCtx, eventID)
	if err != nil {
		metrics.RecordAnalyticsError("forecast", errkind.Label(err))
		return model.AttendanceForecast{}, errkind.Upstream(op, err)
	}

	past, err := p.registry.ListPastEvents(fetchCtx, ev.VenueID, ev.StartsAt, p.history)
	if err != nil {
		metrics.RecordAnalyticsError("forecast", errkind.Label(err))
		return model.AttendanceForecast{}, errkind.Upstream(op, err)
	}
	if len(past) > p.history {
		past = past[:p.history]
	}
	metrics.RecordAnalyticsWorkingSet("forecast", len(past))

	fc := Predict(ev, past, p.loc)
	p.logger.Debug(ctx, "attendance predicted",
		logger.String("event_id", ev.ID),
		logger.Int("historical_events", fc.HistoricalEvents),
		logger.Int("predicted", fc.PredictedCount),
	)
	return fc, nil
}
