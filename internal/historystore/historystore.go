// Package historystore provides an optional SQLite-backed durable sink for
// per-name invocation history, queried by `admin debug`. When a config
// enables it, it supplements the flat append-only debug log, which is
// still always written, with queryable retention.
package historystore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Event is one recorded invocation or watcher action.
type Event struct {
	ID     int64
	Name   string
	Time   time.Time
	Kind   string // "launch", "grace", "shutdown"
	Detail string
	Err    string
}

// Store is a SQLite-backed history sink.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	ts INTEGER NOT NULL,
	kind TEXT NOT NULL,
	detail TEXT,
	err TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_name_ts ON events(name, ts);
`

// Open opens (creating if needed) a SQLite history store at path. An empty
// path opens an in-memory database, useful for tests.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path+"?_journal=WAL&_timeout=5000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("historystore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("historystore: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("historystore: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Record appends one event. Best-effort by contract of the caller: history
// recording must never fail an invocation, so callers should log and
// discard errors rather than propagate them.
func (s *Store) Record(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (name, ts, kind, detail, err) VALUES (?, ?, ?, ?, ?)`,
		e.Name, e.Time.Unix(), e.Kind, e.Detail, e.Err,
	)
	if err != nil {
		return fmt.Errorf("historystore: record: %w", err)
	}
	return nil
}

// RecordBestEffort opens dsn, records e, and closes the connection, all
// best-effort: an empty dsn (history disabled) or any error along the way
// is silently discarded, since a write point's own operation must never
// fail on account of history recording.
func RecordBestEffort(dsn string, e Event) {
	if dsn == "" {
		return
	}
	store, err := Open(dsn)
	if err != nil {
		return
	}
	defer func() { _ = store.Close() }()
	_ = store.Record(context.Background(), e)
}

// Recent returns up to limit most recent events for name, newest first.
func (s *Store) Recent(ctx context.Context, name string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, ts, kind, detail, err FROM events WHERE name = ? ORDER BY ts DESC, id DESC LIMIT ?`,
		name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("historystore: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var e Event
		var ts int64
		if err := rows.Scan(&e.ID, &e.Name, &ts, &e.Kind, &e.Detail, &e.Err); err != nil {
			return nil, fmt.Errorf("historystore: scan: %w", err)
		}
		e.Time = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
