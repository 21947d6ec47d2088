package store

import (
	"context"
	"fmt"

	"github.com/grampelberg/laminar/wire"
)

// CrashRecovery runs once at reader startup, before any new events are
// accepted: every session left open by an unclean shutdown is closed
// with ReasonServerShutdown. It returns the number of sessions closed.
func (s *Store) CrashRecovery(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET disconnected_at = last_seen_at, reason = ?
		WHERE disconnected_at IS NULL
	`, int64(wire.ReasonServerShutdown))
	if err != nil {
		return 0, fmt.Errorf("store: crash recovery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: crash recovery rows affected: %w", err)
	}
	return n, nil
}
