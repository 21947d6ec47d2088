// Package orchestrator assembles the packages below it into the two
// runnable processes spec.md describes: the reader (accepts connections,
// persists events, prunes old records) and the writer (captures local
// span/event activity and streams it out). Grounded on
// Atsika-aznet/cmd/azurl/main.go's flat "parse flags/config, build the
// pieces, run until signaled" shape.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/grampelberg/laminar/config"
	"github.com/grampelberg/laminar/internal/logging"
	"github.com/grampelberg/laminar/metrics"
	"github.com/grampelberg/laminar/notify"
	"github.com/grampelberg/laminar/sink"
	"github.com/grampelberg/laminar/store"
	"github.com/grampelberg/laminar/tracing"
	"github.com/grampelberg/laminar/transport"
)

// ReaderOpts configures a Reader at construction time.
type ReaderOpts struct {
	// ConfigPath points at the YAML document config.LoadReaderConfig
	// reads; empty uses only environment overrides and defaults.
	ConfigPath string
	// ListenAddr is the UDP address the transport.Endpoint binds, e.g.
	// "0.0.0.0:7417".
	ListenAddr string
	// StorageDir holds the SQLite database file; created if absent.
	StorageDir string
	// OnNotify is invoked once per debounced batch of newly persisted
	// records, the UI-facing hook spec.md §4.9 describes. Optional.
	OnNotify func()
	// LogLevel is passed to internal/logging.New; empty defaults to info.
	LogLevel string
	// Registry is the Prometheus registry metrics are recorded against.
	// Nil builds a private registry, so multiple Readers in one process
	// (as in tests) never collide on metric names.
	Registry *prometheus.Registry
}

// Reader owns every long-running reader-side task: the store, the
// retention sweeper, the accept loop, and the debounce-driven UI
// notifications.
type Reader struct {
	cfg      *config.ReaderConfig
	secret   *transport.SecretKey
	endpoint *transport.Endpoint
	listener *transport.Listener
	store    *store.Store
	sweeper  *store.Sweeper
	debounce *notify.Debouncer
	metrics  metrics.Recorder
	log      logrus.FieldLogger
	onNotify func()
}

// NewReader loads configuration, resolves (or generates) the local
// identity, creates the storage directory, opens the store, and binds a
// listener. It does not yet run crash recovery or accept connections;
// call Run for that.
func NewReader(opts ReaderOpts) (*Reader, error) {
	log := logging.WithComponent(logging.New(opts.LogLevel), "reader")

	cfg, err := config.LoadReaderConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load reader config: %w", err)
	}

	secret, err := resolveOrGenerateKey(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve reader identity: %w", err)
	}

	if opts.StorageDir != "" {
		if err := os.MkdirAll(opts.StorageDir, 0o755); err != nil {
			return nil, fmt.Errorf("orchestrator: create storage dir %s: %w", opts.StorageDir, err)
		}
	}

	st, err := store.Open(filepath.Join(opts.StorageDir, "laminar.db"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open store: %w", err)
	}

	endpoint, err := transport.NewEndpoint(secret)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("orchestrator: build endpoint: %w", err)
	}

	listener, err := endpoint.Listen(opts.ListenAddr)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("orchestrator: listen on %s: %w", opts.ListenAddr, err)
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	rec := metrics.NewPrometheus(reg)

	sweeper := store.NewSweeper(st, cfg, rec, log)

	return &Reader{
		cfg:      cfg,
		secret:   secret,
		endpoint: endpoint,
		listener: listener,
		store:    st,
		sweeper:  sweeper,
		debounce: notify.New(notify.DefaultMaxLatency),
		metrics:  rec,
		log:      log,
		onNotify: opts.OnNotify,
	}, nil
}

// Addr returns the bound listen address, useful once ListenAddr was
// "host:0" and the kernel picked a port.
func (r *Reader) Addr() string { return r.listener.Addr().String() }

// Identity returns the reader's public identity, to hand to writers as
// their layer.remote configuration.
func (r *Reader) Identity() transport.Identity { return r.secret.Public() }

// Run blocks until ctx is canceled: it recovers sessions orphaned by a
// prior unclean shutdown, then runs the retention sweeper, the
// notification dispatcher, and the connection accept loop concurrently.
// It always closes the listener and the store before returning.
func (r *Reader) Run(ctx context.Context) error {
	defer r.store.Close()
	defer r.listener.Close()

	n, err := r.store.CrashRecovery(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: crash recovery: %w", err)
	}
	if n > 0 {
		r.log.WithField("sessions", n).Warn("recovered sessions left open by a prior unclean shutdown")
	}

	go r.sweeper.Run(ctx)
	go r.runNotifier(ctx)

	for {
		conn, peer, err := r.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.WithError(err).Warn("accept failed")
			continue
		}
		go r.handleConnection(ctx, conn, peer)
	}
}

func (r *Reader) handleConnection(ctx context.Context, conn *transport.Connection, peer transport.Identity) {
	r.log.WithField("peer", peer.String()).Info("connection accepted")

	spawn := func(ctx context.Context, s *sink.Session) {
		go r.drainSession(ctx, s)
	}

	if err := sink.RunConnection(ctx, conn, sink.Identity(peer), r.metrics, spawn); err != nil {
		r.log.WithError(err).WithField("peer", peer.String()).Warn("connection ended with error")
	}
}

// drainSession is the single consumer of one Session's event channel: it
// persists every event and triggers the debouncer on Data events, in
// that order, since a UI refresh should never race ahead of the write it
// is meant to reflect.
func (r *Reader) drainSession(ctx context.Context, s *sink.Session) {
	for ev := range s.Events() {
		if err := r.store.HandleEvent(ctx, r.metrics, ev); err != nil {
			r.log.WithError(err).Warn("failed to persist event")
			continue
		}
		if ev.Kind == sink.EventData {
			r.debounce.Trigger()
		}
	}
}

func (r *Reader) runNotifier(ctx context.Context) {
	if r.onNotify == nil {
		return
	}
	for {
		if err := r.debounce.Ready(ctx); err != nil {
			return
		}
		r.onNotify()
	}
}

func resolveOrGenerateKey(src config.KeySource) (*transport.SecretKey, error) {
	raw, ok, err := config.ResolveKey(src)
	if err != nil {
		return nil, err
	}
	if !ok {
		return transport.GenerateSecretKey()
	}
	return transport.SecretKeyFromBytes(raw)
}

// InstallTracing builds a TracerProvider driven by layer and installs
// layer's slog.Handler as the process-wide default logger. Reader does
// not call it; a writer process (cmd/writer, the end-to-end tests) calls
// it with its Writer's layer.
func InstallTracing(layer *tracing.Layer) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(layer))
	slog.SetDefault(slog.New(layer.Handler()))
	return tp
}
