package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/grampelberg/laminar/config"
	"github.com/grampelberg/laminar/driver"
	"github.com/grampelberg/laminar/emitter"
	"github.com/grampelberg/laminar/internal/logging"
	"github.com/grampelberg/laminar/metrics"
	"github.com/grampelberg/laminar/tracing"
	"github.com/grampelberg/laminar/transport"
	"github.com/grampelberg/laminar/wire"
)

// DefaultEmitterBuffer is the capacity of the emitter.Channel between the
// tracing layer and the driver.
const DefaultEmitterBuffer = 1024

// WriterOpts configures a Writer at construction time.
type WriterOpts struct {
	// ConfigPath points at the YAML document config.LoadEmitterOpts reads.
	ConfigPath string
	// SourceName overrides the Claims.DisplayName derived from the
	// running process, independent of the configured display_name.
	SourceName string
	// EmitterBuffer overrides DefaultEmitterBuffer.
	EmitterBuffer int
	// LogLevel is passed to internal/logging.New; empty defaults to info.
	LogLevel string
	// Registry is the Prometheus registry the driver's counters/gauges are
	// recorded against. Nil builds a private registry, so multiple
	// Writers in one process (as in tests) never collide on metric names.
	Registry *prometheus.Registry
}

// Writer wires a tracing.Layer through an emitter.Channel into a
// driver.Driver, the mirror image of Reader on the write side.
type Writer struct {
	layer  *tracing.Layer
	drv    *driver.Driver
	ch     *emitter.Channel
	log    logrus.FieldLogger
	remote string
}

// NewWriter loads the emitter configuration and assembles the layer,
// channel, and driver. When layer.remote is unset, the returned Writer's
// Layer is permanently Disabled (per spec.md §4.4) and Run is a no-op:
// this lets a process unconditionally install the writer without first
// checking whether tracing is configured.
func NewWriter(opts WriterOpts) (*Writer, error) {
	log := logging.WithComponent(logging.New(opts.LogLevel), "writer")

	emitterOpts, err := config.LoadEmitterOpts(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load emitter config: %w", err)
	}

	source := displayName(opts.SourceName, emitterOpts.DisplayName)

	if emitterOpts.Remote == "" {
		return &Writer{layer: tracing.New(nil, source), log: log}, nil
	}

	remote, err := transport.ParseIdentity(emitterOpts.Remote)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: parse layer.remote: %w", err)
	}

	bufSize := opts.EmitterBuffer
	if bufSize <= 0 {
		bufSize = DefaultEmitterBuffer
	}
	ch := emitter.New(bufSize)

	secret, err := transport.GenerateSecretKey()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: generate writer identity: %w", err)
	}
	endpoint, err := transport.NewEndpoint(secret)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build writer endpoint: %w", err)
	}

	connector := transport.NewWriterConnector(endpoint, emitterOpts.Remote, driver.DefaultConnectTimeout)
	claims := wire.Claims{
		Hostname:    hostnameOr(source),
		DisplayName: ptr(source),
		Source: &wire.SourceInfo{
			PID:   uint32(os.Getpid()),
			Name:  source,
			Start: time.Now().UnixMilli(),
		},
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	rec := metrics.NewPrometheus(reg)
	drv := driver.New(connector, claims, ch, rec)

	return &Writer{layer: tracing.New(ch, source), drv: drv, ch: ch, log: log, remote: remote.String()}, nil
}

// Layer returns the tracing.Layer to install as the process's span
// processor and slog handler, via InstallTracing.
func (w *Writer) Layer() *tracing.Layer { return w.layer }

// Close signals the writer to stop gracefully: the emitter channel is
// closed, which Run's underlying driver observes as emitter.Closed and
// answers with its graceful-stop handshake (stream.Finish, then waiting
// for the peer's acknowledgement) before Run returns. Safe to call before
// Run, or when no remote was configured.
func (w *Writer) Close() {
	if w.ch != nil {
		w.ch.Close()
	}
}

// Run blocks until ctx is canceled or the underlying driver stops (after
// Close, or on a permanent connect error), driving the driver's
// connect/reconnect/send loop. If no remote was configured, it returns
// immediately.
func (w *Writer) Run(ctx context.Context) {
	if w.drv == nil {
		return
	}
	w.log.WithField("remote", w.remote).Info("writer starting")
	w.drv.Run(ctx)
	w.ch.Close()
}

func displayName(override, configured string) string {
	if override != "" {
		return override
	}
	if configured != "" {
		return configured
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "laminar-writer"
}

func hostnameOr(fallback string) string {
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return fallback
}

func ptr(s string) *string { return &s }
