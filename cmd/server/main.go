package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mfrid/internal/app"
	"mfrid/internal/platform/config"
	"mfrid/internal/platform/logger"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Resolution logic lives in internal/identity.
func main() {
	cfg := config.FromEnv()
	log := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Serve(ctx); err != nil {
		log.Error("server stopped with error", "error", err)
		a.Close()
		os.Exit(1)
	}
}
