package notify

import (
	"context"
	"testing"
	"time"
)

func TestTriggerThenReadyResolves(t *testing.T) {
	d := New(10 * time.Millisecond)
	d.Trigger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Ready(ctx); err != nil {
		t.Fatalf("expected Ready to resolve, got %v", err)
	}
}

func TestBurstOfTriggersCoalesce(t *testing.T) {
	d := New(30 * time.Millisecond)
	d.Trigger()
	d.Trigger()
	d.Trigger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Ready(ctx); err != nil {
		t.Fatalf("expected Ready to resolve, got %v", err)
	}
}

func TestReadyNeverResolvesWithoutAPriorTrigger(t *testing.T) {
	d := New(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.Ready(ctx)
	if err == nil {
		t.Fatal("expected Ready to block forever and return ctx.Err() on timeout")
	}
}

func TestReadyBlocksAgainAfterAPriorWindowAlreadyFired(t *testing.T) {
	d := New(10 * time.Millisecond)
	d.Trigger()

	firstCtx, firstCancel := context.WithTimeout(context.Background(), time.Second)
	defer firstCancel()
	if err := d.Ready(firstCtx); err != nil {
		t.Fatalf("expected first Ready to resolve, got %v", err)
	}

	secondCtx, secondCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer secondCancel()
	if err := d.Ready(secondCtx); err == nil {
		t.Fatal("expected a second Ready, with no intervening Trigger, to block until ctx is done rather than return nil immediately")
	}
}

func TestTriggerAfterReadyCallDoesNotWakeIt(t *testing.T) {
	d := New(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Ready(ctx) }()

	time.Sleep(5 * time.Millisecond)
	d.Trigger()

	err := <-done
	if err == nil {
		t.Fatal("expected Ready, called before any Trigger armed a timer, to time out regardless of a later Trigger")
	}
}
