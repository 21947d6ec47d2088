package emitter

import (
	"testing"
	"time"

	"github.com/grampelberg/laminar/wire"
)

func rec(msg string) *wire.Record {
	return &wire.Record{Kind: wire.KindEvent, Message: msg}
}

func TestSendNeverBlocksAndLags(t *testing.T) {
	c := New(1)
	c.Send(rec("0"))
	c.Send(rec("1"))
	c.Send(rec("2")) // buffer of 1: "0" and "1" both get evicted by the time "2" lands

	if got := c.Lagged(); got < 2 {
		t.Fatalf("expected at least 2 lagged, got %d", got)
	}

	res := c.Recv()
	if res.Outcome != Lagged {
		t.Fatalf("expected Lagged outcome first, got %v", res.Outcome)
	}

	res = c.Recv()
	if res.Outcome != Delivered || res.Record.Message != "2" {
		t.Fatalf("expected delivery of newest-kept record, got %+v", res)
	}
}

func TestRecvBlocksThenDelivers(t *testing.T) {
	c := New(4)
	done := make(chan Result, 1)
	go func() { done <- c.Recv() }()

	time.Sleep(20 * time.Millisecond)
	c.Send(rec("hello"))

	select {
	case res := <-done:
		if res.Outcome != Delivered || res.Record.Message != "hello" {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("Recv never returned")
	}
}

func TestCloseDrainsThenCloses(t *testing.T) {
	c := New(4)
	c.Send(rec("a"))
	c.Close()

	res := c.Recv()
	if res.Outcome != Delivered || res.Record.Message != "a" {
		t.Fatalf("expected buffered record to drain first, got %+v", res)
	}

	res = c.Recv()
	if res.Outcome != Closed {
		t.Fatalf("expected Closed after drain, got %+v", res)
	}
}

func TestLenIsEmptyIsClosed(t *testing.T) {
	c := New(2)
	if !c.IsEmpty() || c.Len() != 0 {
		t.Fatalf("expected empty channel")
	}
	c.Send(rec("x"))
	if c.IsEmpty() || c.Len() != 1 {
		t.Fatalf("expected one buffered record")
	}
	if c.IsClosed() {
		t.Fatalf("expected not closed")
	}
	c.Close()
	if !c.IsClosed() {
		t.Fatalf("expected closed")
	}
}
