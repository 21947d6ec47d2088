package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/grampelberg/laminar/metrics"
	"github.com/grampelberg/laminar/wire"
)

// Record is the persisted row for one Data event.
type Record struct {
	ID         int64          `db:"id"`
	IdentityPK int64          `db:"identity_pk"`
	SessionID  string         `db:"session_id"`
	Kind       int            `db:"kind"`
	TimestampMS int64         `db:"ts_ms"`
	ReceivedMS int64          `db:"received_ms"`
	SpanID     sql.NullInt64  `db:"span_id"`
	ParentID   sql.NullInt64  `db:"parent_id"`
	Source     sql.NullString `db:"source"`
	Level      sql.NullInt64  `db:"level"`
	Message    string         `db:"message"`
	FieldsJSON string         `db:"fields_json"`
}

// insertRecord writes one Data event's record row. Records are
// write-once; only the retention sweeper ever deletes them.
func insertRecord(ctx context.Context, tx *sqlx.Tx, m metrics.Recorder, identityPK int64, sessionID uuid.UUID, receivedMS int64, rec wire.Record) error {
	var span, parent, level sql.NullInt64
	if rec.Trace.SpanID != nil {
		span = sql.NullInt64{Int64: int64(*rec.Trace.SpanID), Valid: true}
	}
	if rec.Trace.ParentID != nil {
		parent = sql.NullInt64{Int64: int64(*rec.Trace.ParentID), Valid: true}
	}
	if rec.Level != nil {
		level = sql.NullInt64{Int64: int64(*rec.Level), Valid: true}
	}
	source := sql.NullString{}
	if rec.Source != "" {
		source = sql.NullString{String: rec.Source, Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO records (identity_pk, session_id, kind, ts_ms, received_ms, span_id, parent_id, source, level, message, fields_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, identityPK, sessionID.String(), int(rec.Kind), rec.TimestampMS, receivedMS, span, parent, source, level, rec.Message, rec.Fields)
	if err != nil {
		return fmt.Errorf("store: insert record: %w", err)
	}
	m.Inc("db.insert", 1, "table", "records")
	return nil
}
