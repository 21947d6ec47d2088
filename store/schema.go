// Package store persists the sink's session event stream into a local
// SQLite database via identity -> session -> record upserts, and runs
// the retention sweeper that prunes old records. Grounded on the
// ClusterCockpit-cc-backend manifest's jmoiron/sqlx + mattn/go-sqlite3
// pairing for a local relational log/metrics store.
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS identity (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	writer_id BLOB NOT NULL,
	display_name TEXT,
	pid INTEGER,
	process_name TEXT,
	hostname TEXT NOT NULL,
	start_ms INTEGER,
	UNIQUE(writer_id, pid, process_name, hostname, start_ms)
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	identity_pk INTEGER NOT NULL REFERENCES identity(pk),
	connected_at INTEGER NOT NULL,
	last_seen_at INTEGER NOT NULL,
	disconnected_at INTEGER,
	reason INTEGER
);

CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identity_pk INTEGER NOT NULL REFERENCES identity(pk),
	session_id TEXT NOT NULL REFERENCES sessions(session_id),
	kind INTEGER NOT NULL,
	ts_ms INTEGER NOT NULL,
	received_ms INTEGER NOT NULL,
	span_id INTEGER,
	parent_id INTEGER,
	source TEXT,
	level INTEGER,
	message TEXT NOT NULL,
	fields_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_ts_ms ON records(ts_ms);
`

// Store wraps the database handle shared by the per-event upserts and the
// retention sweeper.
type Store struct {
	db *sqlx.DB
}

// Open creates or reuses the SQLite database at path and ensures its
// schema exists. Schema management is a plain CREATE TABLE IF NOT EXISTS
// rather than golang-migrate (see DESIGN.md): there is exactly one schema
// version, so a migration framework has nothing to version.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// tx runs fn within a transaction, committing on success and rolling
// back on any error fn returns (or panic it doesn't recover from).
func (s *Store) tx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
