// Command vigil runs the validation gate: a deterministic policy enforcement
// point that evaluates proposed agent actions against a semantic ontology and
// domain validators, signs every verdict, and appends it to the audit ledger.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vigil-labs/vigil"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("VIGIL_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	app, err := vigil.New(
		vigil.WithLogger(logger),
		vigil.WithVersion(version),
	)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
