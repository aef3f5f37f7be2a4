package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/fanpulse/internal/domain/errkind"
	"github.com/okian/fanpulse/internal/domain/model"
	"github.com/okian/fanpulse/pkg/logger"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS analytics_records (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT    NOT NULL UNIQUE,
	type        TEXT    NOT NULL,
	entity_id   TEXT    NOT NULL DEFAULT '',
	venue_id    TEXT    NOT NULL DEFAULT '',
	observed_at INTEGER NOT NULL,
	payload     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_type_time  ON analytics_records(type, observed_at);
CREATE INDEX IF NOT EXISTS idx_records_venue_time ON analytics_records(venue_id, observed_at);

CREATE TABLE IF NOT EXISTS venues (
	id        TEXT PRIMARY KEY,
	name      TEXT    NOT NULL DEFAULT '',
	capacity  INTEGER NOT NULL DEFAULT 0,
	opens_at  TEXT    NOT NULL DEFAULT '',
	closes_at TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	venue_id      TEXT    NOT NULL,
	name          TEXT    NOT NULL DEFAULT '',
	starts_at     INTEGER NOT NULL,
	base_checkins INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_events_venue_start ON events(venue_id, starts_at);
CREATE INDEX IF NOT EXISTS idx_events_start       ON events(starts_at);

CREATE TABLE IF NOT EXISTS checkins (
	event_id      TEXT    NOT NULL REFERENCES events(id),
	entity_id     TEXT    NOT NULL,
	checked_in_at INTEGER NOT NULL,
	PRIMARY KEY (event_id, entity_id)
);
`

const eventColumns = `e.id, e.venue_id, e.name, e.starts_at,
	e.base_checkins + (SELECT COUNT(*) FROM checkins c WHERE c.event_id = e.id)`

// SQLite is a Store on modernc.org/sqlite.
type SQLite struct {
	db     *sql.DB
	logger logger.Logger
}

// OpenSQLite opens (and migrates) the database at path. Pass MemoryPath for
// a throwaway database.
func OpenSQLite(ctx context.Context, path string, l logger.Logger) (*SQLite, error) {
	if l == nil {
		l = logger.Get().Named("sqlite")
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// Every connection to ":memory:" is its own database.
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}

	l.Info(ctx, "sqlite store opened", logger.String("path", path))
	return &SQLite{db: db, logger: l}, nil
}

// Append implements RecordLog.
func (s *SQLite) Append(ctx context.Context, r model.AnalyticsRecord) error { //nolint:gocritic // records are values
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Errorf("encode payload %s: %w", r.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analytics_records (id, type, entity_id, venue_id, observed_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Type), r.Payload.EntityID, r.Payload.VenueID, r.ObservedAt.UnixNano(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("append record %s: %w", r.ID, err)
	}
	return nil
}

// Query implements RecordLog.
func (s *SQLite) Query(ctx context.Context, f model.RecordFilter) ([]model.AnalyticsRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.VenueID != "" {
		where = append(where, "venue_id = ?")
		args = append(args, f.VenueID)
	}
	if !f.From.IsZero() {
		where = append(where, "observed_at >= ?")
		args = append(args, f.From.UnixNano())
	}
	if !f.To.IsZero() {
		where = append(where, "observed_at < ?")
		args = append(args, f.To.UnixNano())
	}

	var q strings.Builder
	q.WriteString("SELECT id, type, observed_at, payload FROM analytics_records")
	if len(where) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}
	if f.Order == model.NewestFirst {
		q.WriteString(" ORDER BY observed_at DESC, seq DESC")
	} else {
		q.WriteString(" ORDER BY observed_at ASC, seq ASC")
	}
	if f.Limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []model.AnalyticsRecord
	for rows.Next() {
		var (
			r        model.AnalyticsRecord
			typ      string
			observed int64
			payload  string
		)
		if err := rows.Scan(&r.ID, &typ, &observed, &payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
			return nil, fmt.Errorf("decode payload %s: %w", r.ID, err)
		}
		r.Type = model.RecordType(typ)
		r.ObservedAt = time.Unix(0, observed).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// GetVenue implements Registry.
func (s *SQLite) GetVenue(ctx context.Context, id string) (model.Venue, error) {
	var v model.Venue
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, capacity, opens_at, closes_at FROM venues WHERE id = ?`, id,
	).Scan(&v.ID, &v.Name, &v.Capacity, &v.OpensAt, &v.ClosesAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Venue{}, errkind.New("storage.get_venue", errkind.ErrNotFound, "venue "+id)
	}
	if err != nil {
		return model.Venue{}, fmt.Errorf("get venue %s: %w", id, err)
	}
	return v, nil
}

// GetEvent implements Registry.
func (s *SQLite) GetEvent(ctx context.Context, id string) (model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, errkind.New("storage.get_event", errkind.ErrNotFound, "event "+id)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return ev, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (model.Event, error) {
	var (
		ev     model.Event
		starts int64
	)
	if err := sc.Scan(&ev.ID, &ev.VenueID, &ev.Name, &starts, &ev.CheckinCount); err != nil {
		return model.Event{}, err
	}
	ev.StartsAt = time.Unix(0, starts).UTC()
	return ev, nil
}

// ListPastEvents implements Registry.
func (s *SQLite) ListPastEvents(ctx context.Context, venueID string, before time.Time, limit int) ([]model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events e
		WHERE e.venue_id = ? AND e.starts_at < ?
		ORDER BY e.starts_at DESC, e.id ASC`
	args := []any{venueID, before.UnixNano()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list past events of %s: %w", venueID, err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// CountEventsBetween implements Registry.
func (s *SQLite) CountEventsBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE starts_at >= ? AND starts_at < ?`,
		from.UnixNano(), to.UnixNano(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// AddCheckin implements Registry.
func (s *SQLite) AddCheckin(ctx context.Context, eventID, entityID string, at time.Time) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, eventID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return errkind.New("storage.add_checkin", errkind.ErrNotFound, "event "+eventID)
	}
	if err != nil {
		return fmt.Errorf("lookup event %s: %w", eventID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO checkins (event_id, entity_id, checked_in_at) VALUES (?, ?, ?)`,
		eventID, entityID, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("add checkin %s/%s: %w", eventID, entityID, err)
	}
	return nil
}

// UpsertVenue implements Registry.
func (s *SQLite) UpsertVenue(ctx context.Context, v model.Venue) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO venues (id, name, capacity, opens_at, closes_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, capacity = excluded.capacity,
			opens_at = excluded.opens_at, closes_at = excluded.closes_at`,
		v.ID, v.Name, v.Capacity, v.OpensAt, v.ClosesAt,
	)
	if err != nil {
		return fmt.Errorf("upsert venue %s: %w", v.ID, err)
	}
	return nil
}

// UpsertEvent implements Registry. ev.CheckinCount is stored as the
// baseline that recorded check-ins are added to.
func (s *SQLite) UpsertEvent(ctx context.Context, ev model.Event) error { //nolint:gocritic // events are values
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, venue_id, name, starts_at, base_checkins) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			venue_id = excluded.venue_id, name = excluded.name,
			starts_at = excluded.starts_at, base_checkins = excluded.base_checkins`,
		ev.ID, ev.VenueID, ev.Name, ev.StartsAt.UnixNano(), ev.CheckinCount,
	)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", ev.ID, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
