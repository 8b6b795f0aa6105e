package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"ragserver/internal/app"
)

// executeServe builds the application and runs the HTTP server until
// SIGINT or SIGTERM.
func executeServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Logger.Warn("closing application", "error", err)
		}
	}()

	// Inactive sessions are swept in the background for the life of the
	// server.
	go a.RunCleanup(ctx)

	a.Logger.Info("ragserver starting",
		"version", AppVersion,
		"addr", cfg.ListenAddr,
		"storage", cfg.StorageBackend,
		"embedding", cfg.EmbeddingProvider,
	)

	if err := a.Server.Run(ctx, cfg.ListenAddr); err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}
