package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) a SQLite database at the given path with WAL
// journaling and a busy timeout so concurrent writers wait instead of failing.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers in-process, which keeps the
	// session counter increment free of SQLITE_BUSY under concurrent ingestion.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	ts            INTEGER NOT NULL,
	event_type    TEXT NOT NULL,
	source        TEXT NOT NULL,
	session_id    TEXT,
	content       TEXT,
	numeric_value REAL,
	tags          TEXT,
	data          TEXT,
	metadata      TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);

CREATE TABLE IF NOT EXISTS insights (
	id                  TEXT PRIMARY KEY,
	created_at          INTEGER NOT NULL,
	time_window         TEXT NOT NULL,
	window_start        INTEGER,
	window_end          INTEGER,
	summary             TEXT NOT NULL,
	patterns            TEXT,
	recommendations     TEXT,
	confidence          REAL,
	source_events_count INTEGER,
	source_event_ids    TEXT,
	metadata            TEXT
);
CREATE INDEX IF NOT EXISTS idx_insights_created ON insights(created_at);

CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	topic       TEXT,
	started_at  INTEGER NOT NULL,
	ended_at    INTEGER,
	status      TEXT NOT NULL DEFAULT 'active',
	event_count INTEGER NOT NULL DEFAULT 0
);
`
