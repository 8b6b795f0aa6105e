package observability

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"ragserver/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	shutdown, err := Setup(context.Background(), config.TracingConfig{}, logger)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown func is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown: %v", err)
	}
}

func TestSetupEnabled(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	cfg := config.TracingConfig{
		Endpoint:    "localhost:4318",
		ServiceName: "ragserver-test",
		Environment: "test",
		SampleRate:  0.5,
	}

	shutdown, err := Setup(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	// The exporter connects lazily; shutdown may fail to flush against a
	// collector that is not running, which is fine for this test.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
