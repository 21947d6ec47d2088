// Command laminar-reader runs the collector process: it accepts writer
// connections, persists their events, and prunes old records on a
// retention schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grampelberg/laminar/orchestrator"
)

func main() {
	configFlag := flag.String("config", "", "Path to the reader's YAML configuration file")
	listenFlag := flag.String("listen", "0.0.0.0:7417", "Address to accept writer connections on")
	storageFlag := flag.String("storage", "./laminar-data", "Directory holding the SQLite store")
	logLevelFlag := flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")

	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader, err := orchestrator.NewReader(orchestrator.ReaderOpts{
		ConfigPath: *configFlag,
		ListenAddr: *listenFlag,
		StorageDir: *storageFlag,
		LogLevel:   *logLevelFlag,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "laminar-reader: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("laminar-reader: listening on %s, identity %s\n", reader.Addr(), reader.Identity())

	if err := reader.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "laminar-reader: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("laminar-reader - accepts writer connections and persists their events")
	fmt.Println("Usage:")
	fmt.Println("  laminar-reader [-config <path>] [-listen <addr>] [-storage <dir>] [-log-level <level>]")
}
