package sink

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/grampelberg/laminar/wire"
)

func writeRecordFrame(t *testing.T, buf *bytes.Buffer, rec wire.Record) {
	t.Helper()
	if err := wire.WriteFrame(buf, wire.EncodeRecord(rec)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestSessionEmitsConnectDataThenGracefulDisconnect(t *testing.T) {
	var buf bytes.Buffer
	writeRecordFrame(t, &buf, wire.Record{Kind: wire.KindEvent, Message: "hi"})

	s := NewSession(Identity("peer"), wire.Claims{Hostname: "h"}, nil, WithHeartbeatInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx, &buf)
		close(done)
	}()

	var kinds []EventKind
	for ev := range s.Events() {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventData && ev.Record.Message != "hi" {
			t.Fatalf("expected message hi, got %q", ev.Record.Message)
		}
	}
	<-done

	want := []EventKind{EventConnect, EventData, EventDisconnect}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}

func TestSessionDisconnectReasonGracefulOnCleanEOF(t *testing.T) {
	s := NewSession(Identity("peer"), wire.Claims{Hostname: "h"}, nil, WithHeartbeatInterval(time.Hour))

	ctx := context.Background()
	go s.Run(ctx, bytes.NewReader(nil))

	var last Event
	for ev := range s.Events() {
		last = ev
	}
	if last.Kind != EventDisconnect || last.Reason != wire.ReasonGraceful {
		t.Fatalf("expected graceful disconnect, got %+v", last)
	}
}

func TestSessionDisconnectReasonTransportErrorOnShortFrame(t *testing.T) {
	s := NewSession(Identity("peer"), wire.Claims{Hostname: "h"}, nil, WithHeartbeatInterval(time.Hour))

	// Two header bytes with no payload: looks like a frame is starting
	// but the stream ends before it completes.
	broken := bytes.NewReader([]byte{0x00, 0x00})

	ctx := context.Background()
	go s.Run(ctx, broken)

	var kinds []EventKind
	var last Event
	for ev := range s.Events() {
		kinds = append(kinds, ev.Kind)
		last = ev
	}
	if last.Kind != EventDisconnect || last.Reason != wire.ReasonTransportError {
		t.Fatalf("expected transport-error disconnect, got %+v", last)
	}
	if kinds[0] != EventConnect {
		t.Fatalf("expected first event to be Connect, got %v", kinds[0])
	}
}

func TestSessionEmitsHeartbeats(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	s := NewSession(Identity("peer"), wire.Claims{Hostname: "h"}, nil, WithHeartbeatInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, pr)

	seenHeartbeat := false
	deadline := time.After(time.Second)
	for !seenHeartbeat {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatal("event channel closed before a heartbeat was observed")
			}
			if ev.Kind == EventHeartbeat {
				seenHeartbeat = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for a heartbeat event")
		}
	}
}

func TestSessionEachEventCarriesSessionIdentity(t *testing.T) {
	s := NewSession(Identity("peer-x"), wire.Claims{Hostname: "writer-x"}, nil, WithHeartbeatInterval(time.Hour))

	ctx := context.Background()
	go s.Run(ctx, bytes.NewReader(nil))

	for ev := range s.Events() {
		if ev.SessionID != s.ID {
			t.Fatalf("expected session id %v, got %v", s.ID, ev.SessionID)
		}
		if ev.Assertion.Hostname != "writer-x" {
			t.Fatalf("expected hostname writer-x, got %q", ev.Assertion.Hostname)
		}
	}
}
