package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/botdiril/botdiril-game-backend/internal/platform/config"
	"github.com/botdiril/botdiril-game-backend/internal/platform/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// main loads configuration, wires dependencies, and runs until SIGINT or
// SIGTERM. Business logic lives in internal service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	level, _ := config.ParseLogLevel(cfg.Server.LogLevel)
	log := logger.New(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := bootstrap(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	log.Info("starting game backend", slog.String("version", version), slog.String("addr", cfg.Server.Addr))
	if err := app.Run(ctx); err != nil {
		log.Error("server stopped with error", "error", err)
		cleanup()
		os.Exit(1)
	}
	log.Info("server stopped")
}
