// Package sqlite implements the storage backend (C1) against SQLite in WAL
// mode: a single-connection writer pool serializes mutations, a
// many-connection reader pool serves concurrent queries, per §4.8's
// "multi-reader-single-writer" durability policy.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS logs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp     TEXT NOT NULL,
	method        TEXT NOT NULL,
	jsonrpc_id    TEXT,
	server_name   TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	http_status   INTEGER NOT NULL DEFAULT 0,
	request_json  TEXT,
	response_json TEXT,
	error_json    TEXT,
	sse_event_json TEXT,
	client_name    TEXT,
	client_version TEXT,
	client_title   TEXT,
	server_version TEXT,
	server_title   TEXT,
	user_agent TEXT,
	client_ip  TEXT,
	tokens     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_logs_timestamp   ON logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_logs_method      ON logs(method);
CREATE INDEX IF NOT EXISTS idx_logs_server_name ON logs(server_name);
CREATE INDEX IF NOT EXISTS idx_logs_session_id  ON logs(session_id);

CREATE TABLE IF NOT EXISTS registered_servers (
	name              TEXT PRIMARY KEY,
	url               TEXT NOT NULL,
	health            TEXT NOT NULL DEFAULT 'unknown',
	last_health_check TEXT
);
`

// DB is the SQLite-backed storage backend (C1).
type DB struct {
	writer *sql.DB // MaxOpenConns(1): serializes all mutations
	reader *sql.DB // many connections: concurrent reads under WAL
}

// Open opens (creating if absent) the database file at path, applies the
// schema, and returns a DB with separate writer/reader pools.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open sqlite reader: %w", err)
	}
	reader.SetMaxOpenConns(4)
	reader.SetConnMaxIdleTime(5 * time.Minute)

	if err := writer.PingContext(ctx); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := writer.ExecContext(ctx, schema); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &DB{writer: writer, reader: reader}, nil
}

// Close closes both pools.
func (d *DB) Close() error {
	writerErr := d.writer.Close()
	readerErr := d.reader.Close()
	if writerErr != nil {
		return writerErr
	}
	return readerErr
}
