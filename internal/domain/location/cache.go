// Package location keeps the live view of where entities are: one entry per
// entity and one occupant set per venue, both expiring after a fixed TTL.
package location

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/fanpulse/internal/adapters/repository"
	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/geo"
	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/pkg/logger"
	"github.com/okian/fanpulse/pkg/metrics"
)

// Key layout in the cache primitive.
const (
	entityKeyPrefix = "loc:"
	venueKeyPrefix  = "venue:"
	occupantsSuffix = ":occupants"

	// DefaultTTL is how long a ping keeps an entity live.
	DefaultTTL = 3600 * time.Second
)

// EntityKey is the cache key of an entity's current location.
func EntityKey(entityID string) string { return entityKeyPrefix + entityID }

// OccupantsKey is the cache key of a venue's occupant set.
func OccupantsKey(venueID string) string { return venueKeyPrefix + venueID + occupantsSuffix }

// Cache is the write-through store of current locations and venue occupants.
type Cache struct {
	kv     repository.KV
	ttl    time.Duration
	logger logger.Logger
}

// NewCache builds a location cache on top of kv.
func NewCache(kv repository.KV, opts ...Option) *Cache {
	c := &Cache{
		kv:  kv,
		ttl: DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("location-cache")
	}
	return c
}

// TTL returns the expiry applied to entries and memberships.
func (c *Cache) TTL() time.Duration { return c.ttl }

// RecordLocation stores ping as the entity's current location and, when the
// ping names a venue, adds the entity to that venue's occupants with the same
// TTL. Invalid pings are rejected before anything is written.
//
// The entry is written before the membership. If the membership write fails
// the entry stays; the pair converges once the entry expires.
func (c *Cache) RecordLocation(ctx context.Context, ping model.LocationPing) error { //nolint:gocritic // pings are passed by value
	const op = "location.record"

	if err := geo.ValidatePing(&ping); err != nil {
		metrics.RecordPingRejected("validation")
		return err
	}

	data, err := json.Marshal(ping)
	if err != nil {
		return errkind.Wrap(op, errkind.ErrValidation, err)
	}

	if err := c.kv.Set(ctx, EntityKey(ping.EntityID), data, c.ttl); err != nil {
		metrics.RecordPingRejected("upstream")
		return errkind.Wrap(op, errkind.ErrUpstream, fmt.Errorf("write entry %s: %w", ping.EntityID, err))
	}

	if ping.VenueID != "" {
		if err := c.kv.SAdd(ctx, OccupantsKey(ping.VenueID), ping.EntityID, c.ttl); err != nil {
			c.logger.Warn(ctx, "occupant membership write failed after entry write",
				logger.String("entity_id", ping.EntityID),
				logger.String("venue_id", ping.VenueID),
				logger.Error(err),
			)
			metrics.RecordPingRejected("upstream")
			return errkind.Wrap(op, errkind.ErrUpstream, fmt.Errorf("add occupant %s to %s: %w", ping.EntityID, ping.VenueID, err))
		}
	}

	metrics.RecordPingIngested()
	return nil
}

// GetLocation returns the entity's live location. ok is false when the entity
// never pinged or its entry expired.
func (c *Cache) GetLocation(ctx context.Context, entityID string) (model.LocationPing, bool, error) {
	const op = "location.get"

	raw, ok, err := c.kv.Get(ctx, EntityKey(entityID))
	if err != nil {
		return model.LocationPing{}, false, errkind.Wrap(op, errkind.ErrUpstream, err)
	}
	if !ok {
		return model.LocationPing{}, false, nil
	}

	var ping model.LocationPing
	if err := json.Unmarshal(raw, &ping); err != nil {
		return model.LocationPing{}, false, errkind.Wrap(op, errkind.ErrUpstream, fmt.Errorf("decode entry %s: %w", entityID, err))
	}
	return ping, true, nil
}

// GetOccupants returns the live members of the venue's occupant set that
// also still have a live location entry, sorted by entity id.
//
// Memberships expire on their own TTL and are never moved: an entity that
// pinged v1 and then v2 stays listed at v1 until that membership expires,
// and a v1 snapshot shows its latest (v2) coordinates.
func (c *Cache) GetOccupants(ctx context.Context, venueID string) ([]string, error) {
	const op = "location.occupants"

	members, err := c.kv.SMembers(ctx, OccupantsKey(venueID))
	if err != nil {
		return nil, errkind.Wrap(op, errkind.ErrUpstream, err)
	}

	out := make([]string, 0, len(members))
	for _, id := range members {
		_, ok, err := c.kv.Get(ctx, EntityKey(id))
		if err != nil {
			return nil, errkind.Wrap(op, errkind.ErrUpstream, err)
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// Evict drops the entity's location entry. Memberships left behind are
// filtered out by GetOccupants and expire on their own.
func (c *Cache) Evict(ctx context.Context, entityID string) error {
	if err := c.kv.Delete(ctx, EntityKey(entityID)); err != nil {
		return errkind.Wrap("location.evict", errkind.ErrUpstream, err)
	}
	return nil
}

// ActiveEntities counts entities with a live location entry.
func (c *Cache) ActiveEntities(ctx context.Context) (int, error) {
	keys, err := c.kv.Keys(ctx, entityKeyPrefix)
	if err != nil {
		return 0, errkind.Wrap("location.active_entities", errkind.ErrUpstream, err)
	}
	metrics.UpdateLiveEntities(len(keys))
	return len(keys), nil
}

// ActiveVenues lists venues whose occupant set has at least one live member.
func (c *Cache) ActiveVenues(ctx context.Context) ([]string, error) {
	keys, err := c.kv.Keys(ctx, venueKeyPrefix)
	if err != nil {
		return nil, errkind.Wrap("location.active_venues", errkind.ErrUpstream, err)
	}

	venues := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k, occupantsSuffix) {
			continue
		}
		venues = append(venues, strings.TrimSuffix(strings.TrimPrefix(k, venueKeyPrefix), occupantsSuffix))
	}
	metrics.UpdateLiveVenues(len(venues))
	return venues, nil
}
