// Command recon runs one reconciliation over a data directory and writes the
// report bundle.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/eshaffer321/recon-monitor/internal/cli"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/config"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/logging"
)

func main() {
	flags, err := cli.ParseRunFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	cfg := config.LoadOrEnv_WithPath(flags.ConfigPath)
	flags.Apply(cfg)

	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "recon")

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = app.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.RunRecon(ctx, app, flags, os.Stdout); err != nil {
		logger.Error("run failed", "error", err)
		_ = app.Close()
		os.Exit(1)
	}
}
