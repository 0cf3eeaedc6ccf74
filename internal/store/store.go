// Package store is the SQLite persistence layer for roster trend records.
//
// The roster_trends table is append-only from the pipeline's point of view:
// one row per (player, run), stamped with the run's scraped_at instant and
// week. Historical rows are never updated in place; duplicate cleanup is an
// out-of-band maintenance operation (see Store.BatchDelete).
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS roster_trends (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	player_id TEXT NOT NULL DEFAULT '',
	player_name TEXT NOT NULL,
	position TEXT NOT NULL DEFAULT '',
	team TEXT NOT NULL DEFAULT '',
	opponent TEXT NOT NULL DEFAULT '',
	pct_rostered REAL,
	pct_rostered_delta REAL,
	pct_started REAL,
	pct_started_delta REAL,
	adds INTEGER,
	drops INTEGER,
	scraped_at TEXT NOT NULL,
	week INTEGER NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
CREATE INDEX IF NOT EXISTS idx_roster_trends_week ON roster_trends(week);
CREATE INDEX IF NOT EXISTS idx_roster_trends_stamp ON roster_trends(scraped_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_roster_trends_run_player
	ON roster_trends(player_id, scraped_at) WHERE player_id != '';
`

// stampFormat is the canonical scraped_at encoding. Lexicographic order
// matches chronological order, which the baseline queries rely on.
const stampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// readPage bounds one page of a range-paginated full-table read.
const readPage = 1000

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path with the production
// pragmas applied and the schema ensured. Use ":memory:" in tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	if path == ":memory:" {
		// Each pool connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for maintenance tooling.
func (s *Store) DB() *sql.DB { return s.db }

// FormatStamp encodes a run timestamp the way the store persists it.
func FormatStamp(t time.Time) string {
	return t.UTC().Format(stampFormat)
}

// ParseStamp decodes a persisted run timestamp.
func ParseStamp(s string) (time.Time, error) {
	t, err := time.Parse(stampFormat, s)
	if err != nil {
		// Tolerate stamps written without fractional seconds.
		t, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse stamp %q: %w", s, err)
	}
	return t, nil
}
