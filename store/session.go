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

// Session is the persisted row for one writer stream.
type Session struct {
	SessionID      string        `db:"session_id"`
	IdentityPK     int64         `db:"identity_pk"`
	ConnectedAt    int64         `db:"connected_at"`
	LastSeenAt     int64         `db:"last_seen_at"`
	DisconnectedAt sql.NullInt64 `db:"disconnected_at"`
	Reason         sql.NullInt64 `db:"reason"`
}

// upsertSession inserts the session row on first sight (Connect), or
// updates last_seen_at on every subsequent event, per spec.md §4.7.
//
// Sessions never receive further events after Disconnect (the session
// state machine's own invariant), so the conflict branch below is only
// ever reached for still-open sessions when disconnectedAt is nil —
// upsertSession never needs to guard against clobbering a previously set
// disconnect.
func upsertSession(ctx context.Context, tx *sqlx.Tx, m metrics.Recorder, id uuid.UUID, identityPK int64, at int64, disconnectedAt *int64, reason *wire.DisconnectReason) error {
	var disc, rsn sql.NullInt64
	if disconnectedAt != nil {
		disc = sql.NullInt64{Int64: *disconnectedAt, Valid: true}
	}
	if reason != nil {
		rsn = sql.NullInt64{Int64: int64(*reason), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, identity_pk, connected_at, last_seen_at, disconnected_at, reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			last_seen_at = excluded.last_seen_at,
			disconnected_at = excluded.disconnected_at,
			reason = excluded.reason
	`, id.String(), identityPK, at, at, disc, rsn)
	if err != nil {
		return fmt.Errorf("store: upsert session: %w", err)
	}
	m.Inc("db.insert", 1, "table", "sessions")
	return nil
}
