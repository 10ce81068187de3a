package failurelog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS failures (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	key        TEXT NOT NULL,
	endpoint   TEXT NOT NULL,
	stage      TEXT NOT NULL,
	reason     TEXT NOT NULL,
	pages      INTEGER NOT NULL DEFAULT 0,
	run_id     TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_failures_key ON failures(key);`

// SQLiteSink stores entries in a SQLite table
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
// Pass ":memory:" for an in-memory database.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating failure log directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Append inserts one row
func (s *SQLiteSink) Append(e Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO failures (key, endpoint, stage, reason, pages, run_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Key, e.Endpoint, e.Stage, e.Reason, e.Pages, e.RunID, e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting failure entry: %w", err)
	}
	return nil
}

// Entries returns every stored entry in insertion order
func (s *SQLiteSink) Entries() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT key, endpoint, stage, reason, pages, run_id, created_at FROM failures ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			ts string
		)
		if err := rows.Scan(&e.Key, &e.Endpoint, &e.Stage, &e.Reason, &e.Pages, &e.RunID, &ts); err != nil {
			return nil, fmt.Errorf("scanning failure row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
