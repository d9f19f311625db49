// Package audit keeps an append-only SQLite log of registration lifecycle
// events for post-mortem diagnostics — "what happened to app X" after a
// crashed peer — never on the RegistryTable's routing hot path.
package audit

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"switchboard/internal/events"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS registration_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	occurred_at TEXT NOT NULL,
	kind TEXT NOT NULL,
	hostname TEXT NOT NULL,
	origin TEXT,
	reason TEXT
);`

// Log is the append-only event sink.
type Log struct {
	db *sql.DB
}

// Open creates (or reopens) the audit database at dir/audit.db.
func Open(dir string) (*Log, error) {
	path := filepath.Join(dir, "audit.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) insert(kind, hostname, origin, reason string) error {
	_, err := l.db.Exec(
		`INSERT INTO registration_events (occurred_at, kind, hostname, origin, reason) VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), kind, hostname, origin, reason,
	)
	return err
}

// Record appends one registration lifecycle event, translating the
// internal/events payload types the event bus publishes into rows.
func (l *Log) Record(evt events.Event) error {
	switch p := evt.Payload.(type) {
	case events.Registered:
		return l.insert("register", p.Hostname, p.Origin, "")
	case events.Unregistered:
		return l.insert("unregister", p.Hostname, "", p.Reason)
	case events.ConflictRejected:
		return l.insert("conflict", p.Hostname, p.Origin, "")
	default:
		return nil
	}
}

// Subscribe drains ch on a background goroutine, recording each
// one, until the channel is closed by Bus.Close. Errors are not fatal to
// the switchboard's main operation — the audit trail is a diagnostics
// convenience, not part of the routing contract.
func (l *Log) Subscribe(ch <-chan events.Event, onError func(error)) {
	go func() {
		for evt := range ch {
			if err := l.Record(evt); err != nil && onError != nil {
				onError(err)
			}
		}
	}()
}

// Entry is one row as surfaced to the admin diagnostics API.
type Entry struct {
	ID         int64  `json:"id"`
	OccurredAt string `json:"occurred_at"`
	Kind       string `json:"kind"`
	Hostname   string `json:"hostname"`
	Origin     string `json:"origin,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Recent returns the most recent n entries, newest first.
func (l *Log) Recent(n int) ([]Entry, error) {
	rows, err := l.db.Query(
		`SELECT id, occurred_at, kind, hostname, origin, reason FROM registration_events ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var origin, reason sql.NullString
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.Kind, &e.Hostname, &origin, &reason); err != nil {
			return nil, err
		}
		e.Origin = origin.String
		e.Reason = reason.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ForHostname returns every recorded event for hostname, oldest first.
func (l *Log) ForHostname(hostname string) ([]Entry, error) {
	rows, err := l.db.Query(
		`SELECT id, occurred_at, kind, hostname, origin, reason FROM registration_events WHERE hostname = ? ORDER BY id ASC`, hostname,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var origin, reason sql.NullString
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.Kind, &e.Hostname, &origin, &reason); err != nil {
			return nil, err
		}
		e.Origin = origin.String
		e.Reason = reason.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
