package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/grampelberg/laminar/metrics"
	"github.com/grampelberg/laminar/sink"
)

// Consume drains a Session's event stream into the store until the
// channel closes, in identity -> session -> record order per event, per
// spec.md §4.7. A per-event persistence failure is reported to onErr
// (typically a logger) rather than aborting the stream: one bad event
// should not stop the rest of the session from being recorded.
func (s *Store) Consume(ctx context.Context, m metrics.Recorder, events <-chan sink.Event, onErr func(error)) {
	if m == nil {
		m = metrics.Noop{}
	}
	for ev := range events {
		if err := s.HandleEvent(ctx, m, ev); err != nil && onErr != nil {
			onErr(err)
		}
	}
}

// HandleEvent persists a single event within its own transaction. It is
// exported separately from Consume so a caller that must interleave
// other per-event work (such as the orchestrator's notify.Debouncer
// trigger on Data events) can drive the same persistence logic from its
// own receive loop instead of racing a second reader against Consume's.
func (s *Store) HandleEvent(ctx context.Context, m metrics.Recorder, ev sink.Event) error {
	if m == nil {
		m = metrics.Noop{}
	}
	now := time.Now().UnixMilli()

	return s.tx(ctx, func(tx *sqlx.Tx) error {
		identityPK, err := upsertIdentity(ctx, tx, m, []byte(ev.Observed), ev.Assertion)
		if err != nil {
			return err
		}

		switch ev.Kind {
		case sink.EventConnect, sink.EventHeartbeat:
			return upsertSession(ctx, tx, m, ev.SessionID, identityPK, now, nil, nil)

		case sink.EventData:
			if err := upsertSession(ctx, tx, m, ev.SessionID, identityPK, now, nil, nil); err != nil {
				return err
			}
			return insertRecord(ctx, tx, m, identityPK, ev.SessionID, now, *ev.Record)

		case sink.EventDisconnect:
			reason := ev.Reason
			return upsertSession(ctx, tx, m, ev.SessionID, identityPK, now, &now, &reason)

		case sink.EventError:
			// Errors are observability, not persisted state; the caller's
			// logger already saw ev.Err via the session's Error event.
			return nil
		}
		return nil
	})
}
