// Command laminar-writer installs the tracing layer as the process-wide
// OpenTelemetry span processor and slog handler, then streams everything
// it captures to the configured reader until interrupted.
//
// The orchestrator.Writer wiring it uses is the part an instrumented
// application embeds in its own main; this binary exercises that wiring
// end to end and serves as a template for that integration.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/grampelberg/laminar/orchestrator"
)

func main() {
	configFlag := flag.String("config", "", "Path to the writer's YAML configuration file")
	logLevelFlag := flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")

	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := orchestrator.NewWriter(orchestrator.WriterOpts{
		ConfigPath: *configFlag,
		LogLevel:   *logLevelFlag,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "laminar-writer: %v\n", err)
		os.Exit(1)
	}

	tp := orchestrator.InstallTracing(w.Layer())
	defer tp.Shutdown(context.Background())

	slog.Info("laminar-writer starting")
	w.Run(ctx)
	w.Close()
	slog.Info("laminar-writer stopped")
}

func printUsage() {
	fmt.Println("laminar-writer - streams local span/event activity to a laminar reader")
	fmt.Println("Usage:")
	fmt.Println("  laminar-writer [-config <path>] [-log-level <level>]")
}
