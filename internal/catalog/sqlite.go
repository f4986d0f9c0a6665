package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS venues (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	address       TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	price_range   TEXT NOT NULL DEFAULT '',
	opening_hours TEXT NOT NULL DEFAULT '',
	is_active     INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	venue_name  TEXT NOT NULL DEFAULT '',
	date        TEXT NOT NULL,
	start_time  TEXT NOT NULL DEFAULT '',
	price       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	is_active   INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS events_date_idx ON events (date);
`

// SQLiteStore is a local stand-in for the hosted database.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure catalog dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create catalog schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ActiveVenues(ctx context.Context, limit int) ([]Venue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, city, address, description, price_range, opening_hours
		FROM venues WHERE is_active = 1 ORDER BY name LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query venues: %w", err)
	}
	defer rows.Close()

	var out []Venue
	for rows.Next() {
		var v Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.Category, &v.City, &v.Address, &v.Description, &v.PriceRange, &v.OpeningHours); err != nil {
			return nil, fmt.Errorf("scan venue: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate venues: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpcomingEvents(ctx context.Context, from time.Time, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, category, city, venue_name, date, start_time, price, description
		FROM events WHERE is_active = 1 AND date >= ? ORDER BY date, start_time LIMIT ?`,
		dateOnly(from), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Title, &e.Category, &e.City, &e.VenueName, &e.Date, &e.StartTime, &e.Price, &e.Description); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
