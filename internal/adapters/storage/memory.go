package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/model"
)

// Memory is an in-process Store. It keeps everything until closed.
type Memory struct {
	mu       sync.RWMutex
	records  []model.AnalyticsRecord
	venues   map[string]model.Venue
	events   map[string]model.Event
	checkins map[string]map[string]time.Time
	closed   bool
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		venues:   make(map[string]model.Venue),
		events:   make(map[string]model.Event),
		checkins: make(map[string]map[string]time.Time),
	}
}

// Append implements RecordLog.
func (m *Memory) Append(ctx context.Context, r model.AnalyticsRecord) error { //nolint:gocritic // records are values
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	r.DedupeKey = ""
	m.records = append(m.records, r)
	return nil
}

// Query implements RecordLog.
func (m *Memory) Query(ctx context.Context, f model.RecordFilter) ([]model.AnalyticsRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	var out []model.AnalyticsRecord
	if f.Order == model.NewestFirst {
		for i := len(m.records) - 1; i >= 0; i-- {
			if matches(&m.records[i], &f) {
				out = append(out, m.records[i])
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	} else {
		for i := range m.records {
			if matches(&m.records[i], &f) {
				out = append(out, m.records[i])
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// GetVenue implements Registry.
func (m *Memory) GetVenue(_ context.Context, id string) (model.Venue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return model.Venue{}, ErrClosed
	}
	v, ok := m.venues[id]
	if !ok {
		return model.Venue{}, errkind.New("storage.get_venue", errkind.ErrNotFound, "venue "+id)
	}
	return v, nil
}

// GetEvent implements Registry.
func (m *Memory) GetEvent(_ context.Context, id string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return model.Event{}, ErrClosed
	}
	ev, ok := m.events[id]
	if !ok {
		return model.Event{}, errkind.New("storage.get_event", errkind.ErrNotFound, "event "+id)
	}
	return m.withCheckins(ev), nil
}

// withCheckins must be called with m.mu held.
func (m *Memory) withCheckins(ev model.Event) model.Event { //nolint:gocritic // events are values
	ev.CheckinCount += len(m.checkins[ev.ID])
	return ev
}

// ListPastEvents implements Registry.
func (m *Memory) ListPastEvents(_ context.Context, venueID string, before time.Time, limit int) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	var out []model.Event
	for _, ev := range m.events {
		if ev.VenueID == venueID && ev.StartsAt.Before(before) {
			out = append(out, m.withCheckins(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.After(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountEventsBetween implements Registry.
func (m *Memory) CountEventsBetween(_ context.Context, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	n := 0
	for _, ev := range m.events {
		if !ev.StartsAt.Before(from) && ev.StartsAt.Before(to) {
			n++
		}
	}
	return n, nil
}

// AddCheckin implements Registry.
func (m *Memory) AddCheckin(_ context.Context, eventID, entityID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.events[eventID]; !ok {
		return errkind.New("storage.add_checkin", errkind.ErrNotFound, "event "+eventID)
	}
	set, ok := m.checkins[eventID]
	if !ok {
		set = make(map[string]time.Time)
		m.checkins[eventID] = set
	}
	if _, dup := set[entityID]; !dup {
		set[entityID] = at
	}
	return nil
}

// UpsertVenue implements Registry.
func (m *Memory) UpsertVenue(_ context.Context, v model.Venue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.venues[v.ID] = v
	return nil
}

// UpsertEvent implements Registry. ev.CheckinCount is stored as the
// baseline that recorded check-ins are added to.
func (m *Memory) UpsertEvent(_ context.Context, ev model.Event) error { //nolint:gocritic // events are values
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.events[ev.ID] = ev
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
