// Package app provides application initialization and dependency wiring.
//
// App is the container that holds every long-lived component: configuration,
// storage, the embedding provider, the ingestion/retrieval/chat services, and
// the HTTP server. Setup builds the whole graph from a Config; Close releases
// it in reverse order.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ragserver/internal/api"
	"ragserver/internal/chat"
	"ragserver/internal/config"
	"ragserver/internal/document"
	"ragserver/internal/retrieval"
	"ragserver/internal/settings"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Pool is nil when the memory storage backend is selected.
	Pool *pgxpool.Pool

	Documents *document.Service
	Retrieval *retrieval.Service
	Chat      *chat.Orchestrator
	Settings  *settings.Store
	Server    *api.Server

	otelCleanup func()
}

// Close gracefully releases all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}

// RunCleanup periodically closes sessions idle longer than the configured
// maximum. Blocks until ctx is cancelled; run it in its own goroutine.
func (a *App) RunCleanup(ctx context.Context) {
	interval := a.Config.SessionCleanupInterval()
	maxIdle := a.Config.SessionMaxIdle()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			closed, err := a.Chat.CleanupInactive(ctx, maxIdle)
			if err != nil {
				a.Logger.Error("session cleanup failed", "error", err)
				continue
			}
			if closed > 0 {
				a.Logger.Info("closed inactive sessions", "count", closed)
			}
		}
	}
}
