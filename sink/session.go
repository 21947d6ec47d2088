package sink

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/grampelberg/laminar/metrics"
	"github.com/grampelberg/laminar/wire"
)

// DefaultHeartbeatInterval matches spec.md §4.6's default.
const DefaultHeartbeatInterval = 30 * time.Second

// EventKind distinguishes the five events a Session ever emits.
type EventKind int

const (
	EventConnect EventKind = iota
	EventHeartbeat
	EventData
	EventError
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventHeartbeat:
		return "heartbeat"
	case EventData:
		return "data"
	case EventError:
		return "error"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is one item on a Session's event stream.
type Event struct {
	Kind      EventKind
	Record    *wire.Record
	Err       string
	Reason    wire.DisconnectReason
	SessionID uuid.UUID
	Observed  Identity
	Assertion wire.Claims
}

// SessionOption configures a Session at construction time.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	heartbeatInterval time.Duration
	eventBuffer       int
}

// WithHeartbeatInterval overrides the default heartbeat cadence.
func WithHeartbeatInterval(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		if d > 0 {
			c.heartbeatInterval = d
		}
	}
}

// WithEventBuffer sets the capacity of the bounded event channel. A
// Session blocks on a full channel: this is the only backpressure path
// from the protocol into the application.
func WithEventBuffer(n int) SessionOption {
	return func(c *sessionConfig) {
		if n > 0 {
			c.eventBuffer = n
		}
	}
}

// Session is one writer-opened stream's state machine: Connecting ->
// Open <-> Heartbeating -> Closing -> Terminated. The state itself is
// implicit in which event was last emitted; Session does not expose a
// queryable State() because nothing downstream needs it — only the
// event stream does.
type Session struct {
	ID        uuid.UUID
	Observed  Identity
	Assertion wire.Claims

	m      metrics.Recorder
	events chan Event
	cfg    sessionConfig
}

// NewSession builds a Session for one accepted stream, already bound to
// the peer identity and Claims decoded from its handshake frame.
func NewSession(observed Identity, assertion wire.Claims, m metrics.Recorder, opts ...SessionOption) *Session {
	if m == nil {
		m = metrics.Noop{}
	}
	cfg := sessionConfig{heartbeatInterval: DefaultHeartbeatInterval, eventBuffer: 16}
	for _, o := range opts {
		o(&cfg)
	}
	return &Session{
		ID:        uuid.New(),
		Observed:  observed,
		Assertion: assertion,
		m:         m,
		events:    make(chan Event, cfg.eventBuffer),
		cfg:       cfg,
	}
}

// Events returns the channel Session delivers events on. It is closed
// once Run returns.
func (s *Session) Events() <-chan Event { return s.events }

type frameResult struct {
	payload []byte
	err     error
}

// Run drives the session to completion, reading length-prefixed Record
// frames from r until it closes or errors. It always ends with exactly
// one Disconnect event, then closes the event channel.
func (s *Session) Run(ctx context.Context, r io.Reader) {
	defer close(s.events)

	s.emit(ctx, Event{Kind: EventConnect})

	frames := make(chan frameResult)
	go func() {
		for {
			payload, err := wire.ReadFrame(r)
			select {
			case frames <- frameResult{payload: payload, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case fr := <-frames:
			if fr.err != nil {
				s.handleStreamEnd(ctx, fr.err)
				return
			}
			rec, err := wire.DecodeRecord(fr.payload)
			if err != nil {
				s.emit(ctx, Event{Kind: EventError, Err: err.Error()})
				s.emit(ctx, Event{Kind: EventDisconnect, Reason: wire.ReasonTransportError})
				return
			}
			s.emit(ctx, Event{Kind: EventData, Record: &rec})

		case <-ticker.C:
			// time.Ticker already drops ticks the receiver falls behind
			// on, reproducing the skip-missed policy without extra state.
			s.emit(ctx, Event{Kind: EventHeartbeat})

		case <-ctx.Done():
			s.emit(ctx, Event{Kind: EventDisconnect, Reason: wire.ReasonTransportError})
			return
		}
	}
}

func (s *Session) handleStreamEnd(ctx context.Context, err error) {
	reason := wire.ReasonTransportError
	if errors.Is(err, io.EOF) {
		reason = wire.ReasonGraceful
	} else {
		s.emit(ctx, Event{Kind: EventError, Err: err.Error()})
	}
	s.emit(ctx, Event{Kind: EventDisconnect, Reason: reason})
}

func (s *Session) emit(ctx context.Context, e Event) {
	e.SessionID = s.ID
	e.Observed = s.Observed
	e.Assertion = s.Assertion

	select {
	case s.events <- e:
	case <-ctx.Done():
		return
	}

	if e.Kind == EventDisconnect {
		s.m.Inc("sink.event", 1, "event", e.Kind.String(), "reason", e.Reason.String())
		return
	}
	s.m.Inc("sink.event", 1, "event", e.Kind.String())
}
