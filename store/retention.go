package store

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grampelberg/laminar/metrics"
)

// DefaultRetentionSweepInterval matches spec.md §4.8's default tick.
const DefaultRetentionSweepInterval = 60 * time.Second

// RetentionProvider supplies the live retention duration. Implementations
// are expected to guard their own internal state with a read lock, since
// Sweeper reads it once per tick from a background goroutine.
type RetentionProvider interface {
	RetentionDuration() time.Duration
}

// Sweeper periodically deletes records older than the configured
// retention duration. Identity and session rows are never touched.
type Sweeper struct {
	store    *Store
	cfg      RetentionProvider
	m        metrics.Recorder
	log      logrus.FieldLogger
	interval time.Duration
}

// SweeperOption configures a Sweeper at construction time.
type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the default 60s tick, primarily for tests.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(sw *Sweeper) {
		if d > 0 {
			sw.interval = d
		}
	}
}

// NewSweeper builds a Sweeper against store, reading the live retention
// duration from cfg on every tick.
func NewSweeper(store *Store, cfg RetentionProvider, m metrics.Recorder, log logrus.FieldLogger, opts ...SweeperOption) *Sweeper {
	if m == nil {
		m = metrics.Noop{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	sw := &Sweeper{store: store, cfg: cfg, m: m, log: log, interval: DefaultRetentionSweepInterval}
	for _, o := range opts {
		o(sw)
	}
	return sw
}

// Run ticks until ctx is done. A missed tick (the previous sweep still
// running when the next one fires) is dropped rather than queued,
// reproducing the source's MissedTickBehavior::Skip via time.Ticker's
// own built-in tick-dropping.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.tick(ctx)
		}
	}
}

func (sw *Sweeper) tick(ctx context.Context) {
	d := sw.cfg.RetentionDuration()
	if d < 0 {
		sw.log.WithField("retention", d).Warn("retention duration is negative, skipping sweep")
		return
	}

	cutoff := time.Now().Add(-d).UnixMilli()
	res, err := sw.store.db.ExecContext(ctx, `DELETE FROM records WHERE ts_ms < ?`, cutoff)
	if err != nil {
		sw.log.WithError(err).Error("retention sweep failed")
		return
	}
	n, err := res.RowsAffected()
	if err != nil {
		sw.log.WithError(err).Error("retention sweep: rows affected")
		return
	}
	sw.m.Inc("db.delete", float64(n), "table", "records")
	sw.log.WithField("rows", n).Info("retention sweep complete")
}
