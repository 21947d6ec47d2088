// Package wire implements the frame codec and data types exchanged between
// a laminar writer and a laminar reader: a length-prefixed frame carrying
// either a Claims handshake or a Record.
package wire

import "errors"

// Kind distinguishes an Event from a Span.
type Kind byte

const (
	KindEvent Kind = 0
	KindSpan  Kind = 1
)

// Level mirrors the tracing severity levels. Absence is represented
// separately (Record.Level is nil, encoded as a presence byte) rather than
// by a sentinel value.
type Level byte

const (
	LevelTrace Level = 0
	LevelDebug Level = 1
	LevelInfo  Level = 2
	LevelWarn  Level = 3
	LevelError Level = 4
	LevelOff   Level = 5
)

// Trace carries the span identity a Record was produced under.
type Trace struct {
	SpanID   *uint64
	ParentID *uint64
}

// Record is a single observation: an Event or a Span.
type Record struct {
	Kind      Kind
	TimestampMS int64
	Level     *Level
	Source    string
	Trace     Trace
	Message   string
	Fields    string // JSON object, serialized
}

// SourceInfo is the writer process metadata asserted in Claims.
type SourceInfo struct {
	PID   uint32
	Name  string
	Start int64 // ms since epoch
}

// Claims is the writer-asserted identity sent as the first frame on every
// stream.
type Claims struct {
	Hostname    string
	DisplayName *string
	Source      *SourceInfo
}

// DisconnectReason is a stable, wire-encoded integer.
type DisconnectReason byte

const (
	ReasonGraceful       DisconnectReason = 0
	ReasonTimeout        DisconnectReason = 1
	ReasonServerShutdown DisconnectReason = 2
	ReasonCrashRecovery  DisconnectReason = 3
	ReasonTransportError DisconnectReason = 4
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonGraceful:
		return "graceful"
	case ReasonTimeout:
		return "timeout"
	case ReasonServerShutdown:
		return "server_shutdown"
	case ReasonCrashRecovery:
		return "crash_recovery"
	case ReasonTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

var (
	// ErrMessageTooLong is returned by the sender when a payload would not
	// fit in the u32 length prefix. It never reaches the transport.
	ErrMessageTooLong = errors.New("wire: message exceeds maximum frame length")
	// ErrShortFrame is a transport error: the stream ended mid-frame.
	ErrShortFrame = errors.New("wire: short read after frame header")
	// ErrDecode wraps any failure to decode a frame's payload.
	ErrDecode = errors.New("wire: decode failed")
)

// MaxFrameLen is the largest payload the codec will encode, matching the
// u32 length prefix's range.
const MaxFrameLen = 1<<32 - 1
