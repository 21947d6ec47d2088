package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/grampelberg/laminar/metrics"
	"github.com/grampelberg/laminar/wire"
)

// Identity is the persisted row for one observed writer identity. It is
// never mutated or deleted once inserted.
type Identity struct {
	PK          int64          `db:"pk"`
	WriterID    []byte         `db:"writer_id"`
	DisplayName sql.NullString `db:"display_name"`
	PID         sql.NullInt64  `db:"pid"`
	ProcessName sql.NullString `db:"process_name"`
	Hostname    string         `db:"hostname"`
	StartMS     sql.NullInt64  `db:"start_ms"`
}

// upsertIdentity inserts the natural key derived from writerID and claims
// if it hasn't been seen before, then returns its surrogate pk either
// way. The natural key is (writer_id, pid, process_name, hostname,
// start_ms); display_name is informational only and excluded from it.
func upsertIdentity(ctx context.Context, tx *sqlx.Tx, m metrics.Recorder, writerID []byte, claims wire.Claims) (int64, error) {
	var pid, start sql.NullInt64
	var processName sql.NullString
	if claims.Source != nil {
		pid = sql.NullInt64{Int64: int64(claims.Source.PID), Valid: true}
		processName = sql.NullString{String: claims.Source.Name, Valid: true}
		start = sql.NullInt64{Int64: claims.Source.Start, Valid: true}
	}
	var displayName sql.NullString
	if claims.DisplayName != nil {
		displayName = sql.NullString{String: *claims.DisplayName, Valid: true}
	}

	// The UNIQUE constraint treats NULLs as distinct, so the existence check
	// uses the same NULL-safe IS comparison as the lookup below.
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO identity (writer_id, display_name, pid, process_name, hostname, start_ms)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM identity
			WHERE writer_id = ? AND hostname = ? AND pid IS ? AND process_name IS ? AND start_ms IS ?
		)
	`, writerID, displayName, pid, processName, claims.Hostname, start,
		writerID, claims.Hostname, pid, processName, start)
	if err != nil {
		return 0, fmt.Errorf("store: insert identity: %w", err)
	}
	m.Inc("db.insert", 1, "table", "identity")

	var pk int64
	err = tx.GetContext(ctx, &pk, `
		SELECT pk FROM identity
		WHERE writer_id = ? AND hostname = ? AND pid IS ? AND process_name IS ? AND start_ms IS ?
	`, writerID, claims.Hostname, pid, processName, start)
	if err != nil {
		return 0, fmt.Errorf("store: select identity: %w", err)
	}
	m.Inc("db.select", 1, "table", "identity")

	return pk, nil
}
