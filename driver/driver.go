// Package driver implements the writer-side connection manager: connect,
// reconnect, and the send loop described in spec.md §4.3. It is the
// closest analogue to Atsika-aznet's Conn/Dial state machine, reshaped
// from a bidirectional net.Conn into a one-way emit loop.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/grampelberg/laminar/emitter"
	"github.com/grampelberg/laminar/metrics"
	"github.com/grampelberg/laminar/wire"
)

// State is one of the four driver states.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stream is one opened unidirectional byte stream the driver writes
// frames to.
type Stream interface {
	// Write sends len(p) raw bytes, already length-prefixed by the
	// caller, to the peer.
	Write(p []byte) (int, error)
	// Finish signals graceful end-of-stream to the peer.
	Finish() error
	// Stopped blocks until the peer has acknowledged the stream is
	// stopped, or ctx is done, or the peer signals it is stopping the
	// stream unilaterally (the "peer-signaled stream-stop" branch of
	// spec.md §4.3's select).
	Stopped(ctx context.Context) error
}

// Connector opens a new authenticated connection and the single
// unidirectional stream the driver writes frames on. A real Connector
// wraps transport.Endpoint.Dial + Connection.OpenStream; tests use a
// fake.
type Connector interface {
	Connect(ctx context.Context) (Stream, error)
}

// Connect errors are classified as Transient or Permanent, per spec.md
// §4.3's table. The underlying transport package doesn't (and
// shouldn't) know about this taxonomy, so Connectors are expected to wrap
// their errors with ErrNoAddress / ErrInternalConsistency when they can
// tell the difference; anything else is treated as transient.
var (
	// ErrNoAddress means the transport has no route to the peer yet
	// (e.g. NAT traversal still discovering a path). Transient.
	ErrNoAddress = errors.New("driver: no address yet")
	// ErrInternalConsistency signals a permanent transport fault; the
	// driver stops rather than retrying.
	ErrInternalConsistency = errors.New("driver: internal consistency error")
)

// Driver runs the connect/reconnect/send loop for one writer identity.
type Driver struct {
	connector Connector
	claims    []byte // pre-serialized Claims frame payload
	in        *emitter.Channel
	m         metrics.Recorder
	cfg       config

	mu    sync.Mutex
	state State
}

// New builds a Driver that reads records from in and connects via
// connector, sending claims as the first frame of every new stream.
func New(connector Connector, claims wire.Claims, in *emitter.Channel, m metrics.Recorder, opts ...Option) *Driver {
	if m == nil {
		m = metrics.Noop{}
	}
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Driver{
		connector: connector,
		claims:    wire.EncodeClaims(claims),
		in:        in,
		m:         m,
		cfg:       cfg,
		state:     Disconnected,
	}
}

// State returns the driver's current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	if s == Connected {
		d.m.Set("driver.connected", 1)
	} else {
		d.m.Set("driver.connected", 0)
	}
}

// Run drives the driver to completion: it reconnects indefinitely on
// transient failures, and returns once it reaches Stopped — either
// because of a permanent error, or because the emitter channel closed
// and graceful shutdown finished.
func (d *Driver) Run(ctx context.Context) {
	d.setState(Disconnected)
	ticker := time.NewTicker(d.cfg.retryInterval)
	defer ticker.Stop()

	recvCh := make(chan emitter.Result)
	go func() {
		for {
			res := d.in.Recv()
			select {
			case recvCh <- res:
			case <-ctx.Done():
				return
			}
			if res.Outcome == emitter.Closed {
				return
			}
		}
	}()

	for {
		switch d.State() {
		case Stopped:
			return
		case Disconnected:
			select {
			case <-ctx.Done():
				d.setState(Stopped)
				return
			case <-ticker.C:
			}

			stream, err := d.connect(ctx)
			if err != nil {
				if errors.Is(err, ErrInternalConsistency) {
					d.setState(Stopped)
					return
				}
				// transient: stay Disconnected, retry next tick.
				continue
			}

			if _, err := stream.Write(frameFor(d.claims)); err != nil {
				// Handshake write failure is fatal to this attempt: the
				// spec treats it as exiting to Stopped rather than
				// retrying, since the stream is already unusable.
				d.setState(Stopped)
				return
			}

			d.m.Inc("driver.connect", 1)
			d.setState(Connected)
			d.runConnected(ctx, stream, recvCh)
		default:
			d.setState(Disconnected)
		}
	}
}

func (d *Driver) connect(ctx context.Context) (Stream, error) {
	connectCtx, cancel := context.WithTimeout(ctx, d.cfg.connectTimeout)
	defer cancel()

	d.setState(Connecting)
	stream, err := d.connector.Connect(connectCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			d.m.Inc("driver.error.connect.timeout", 1)
		} else if errors.Is(err, ErrNoAddress) {
			d.m.Inc("driver.error.connect.connect", 1)
		} else if errors.Is(err, ErrInternalConsistency) {
			return nil, err
		} else {
			d.m.Inc("driver.error.connect.connect", 1)
		}
		return nil, fmt.Errorf("driver: connect: %w", err)
	}
	return stream, nil
}

// runConnected is the select-over-two-branches body: (a) the peer
// signals the stream is stopped, (b) the next record arrives from the
// emitter. Neither branch starves the other — Stopped() runs in its own
// goroutine so a record arriving mid-wait is never dropped.
func (d *Driver) runConnected(ctx context.Context, stream Stream, recvCh <-chan emitter.Result) {
	stopped := make(chan struct{})
	go func() {
		_ = stream.Stopped(ctx)
		close(stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopped:
			d.m.Inc("driver.disconnected", 1)
			d.setState(Disconnected)
			return
		case res := <-recvCh:
			switch res.Outcome {
			case emitter.Delivered:
				payload := wire.EncodeRecord(*res.Record)
				d.m.Inc("driver.emit", 1)
				if _, err := stream.Write(frameFor(payload)); err != nil {
					d.m.Inc("driver.error.send", 1)
					d.setState(Disconnected)
					return
				}
				d.m.Inc("driver.sent", 1)
			case emitter.Lagged:
				d.m.Inc("driver.lagged", float64(res.Skipped))
			case emitter.Closed:
				d.gracefulShutdown(ctx, stream)
				d.setState(Stopped)
				return
			}
		}
	}
}

func (d *Driver) gracefulShutdown(ctx context.Context, stream Stream) {
	_ = stream.Finish()
	stopCtx, cancel := context.WithTimeout(ctx, d.cfg.gracefulTimeout)
	defer cancel()
	_ = stream.Stopped(stopCtx)
}

// frameFor prepends the u32-be length header to payload, matching
// wire.WriteFrame without requiring an io.Writer.
func frameFor(payload []byte) []byte {
	var buf [4]byte
	n := len(payload)
	buf[0] = byte(n >> 24)
	buf[1] = byte(n >> 16)
	buf[2] = byte(n >> 8)
	buf[3] = byte(n)
	out := make([]byte, 0, 4+n)
	out = append(out, buf[:]...)
	out = append(out, payload...)
	return out
}
