// Package e2e exercises a writer and a reader wired together over a real
// loopback transport.Endpoint pair, covering the connect/data/disconnect
// round trip spec.md §8 names S1: a span and an event reach storage, and
// a disconnect closes the session.
package e2e

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/grampelberg/laminar/orchestrator"
)

func writeWriterConfig(t *testing.T, remote string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "writer.yaml")
	contents := "layer:\n  remote: " + remote + "\n  display_name: e2e-writer\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// startReader binds a reader on loopback with a known storage directory
// and runs it in the background until the test ends.
func startReader(t *testing.T) (*orchestrator.Reader, string) {
	t.Helper()
	storageDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	r, err := orchestrator.NewReader(orchestrator.ReaderOpts{
		ListenAddr: "127.0.0.1:0",
		StorageDir: storageDir,
	})
	if err != nil {
		cancel()
		t.Fatalf("NewReader: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r, filepath.Join(storageDir, "laminar.db")
}

func countRows(t *testing.T, dbPath, table string) int64 {
	t.Helper()
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		return 0
	}
	return n
}

func waitForRows(t *testing.T, dbPath, table string, min int64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if countRows(t, dbPath, table) >= min {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for >= %d rows in %s (have %d)", min, table, countRows(t, dbPath, table))
}

// TestWriterEmitsSpanAndEventToReader covers the data half of S1: a span start and a
// slog event from an instrumented writer process land as rows in the
// reader's store, under one identity and one session.
func TestWriterEmitsSpanAndEventToReader(t *testing.T) {
	reader, dbPath := startReader(t)

	cfgPath := writeWriterConfig(t, reader.Identity().String())
	w, err := orchestrator.NewWriter(orchestrator.WriterOpts{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	tp := orchestrator.InstallTracing(w.Layer())
	defer tp.Shutdown(context.Background())

	wctx, wcancel := context.WithCancel(context.Background())
	defer wcancel()
	go w.Run(wctx)

	tracer := tp.Tracer("e2e")
	_, span := tracer.Start(context.Background(), "do-work")
	slog.Info("hello from writer", "attempt", 1)
	span.End()

	waitForRows(t, dbPath, "identity", 1, 5*time.Second)
	waitForRows(t, dbPath, "sessions", 1, 5*time.Second)
	waitForRows(t, dbPath, "records", 2, 5*time.Second)
}

// TestWriterDisconnectRecordsReason covers the disconnect half of S1:
// when the writer stops driving its driver, the reader's session row
// eventually carries a non-null disconnected_at.
func TestWriterDisconnectRecordsReason(t *testing.T) {
	reader, dbPath := startReader(t)

	cfgPath := writeWriterConfig(t, reader.Identity().String())
	w, err := orchestrator.NewWriter(orchestrator.WriterOpts{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	tp := orchestrator.InstallTracing(w.Layer())
	defer tp.Shutdown(context.Background())

	go w.Run(context.Background())

	tracer := tp.Tracer("e2e")
	_, span := tracer.Start(context.Background(), "startup")
	span.End()
	waitForRows(t, dbPath, "sessions", 1, 5*time.Second)

	w.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		db, err := sql.Open("sqlite3", dbPath)
		if err != nil {
			t.Fatal(err)
		}
		var n int64
		err = db.QueryRow("SELECT COUNT(*) FROM sessions WHERE disconnected_at IS NOT NULL").Scan(&n)
		db.Close()
		if err == nil && n > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for session to be marked disconnected")
}
