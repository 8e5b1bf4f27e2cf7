package server

import (
	"context"
	"testing"
	"time"

	"github.com/convertlens/convertlens-go/internal/application/container"
	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/memory"
)

func TestStartAndStopShutDownCleanly(t *testing.T) {
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}

	c := container.NewContainer(memory.NewRepositories(), attribution.DefaultModelConfig(), logger, logging.GetBroadcaster())
	srv := New("0", c)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	// Give the listener a moment to bind before shutting down.
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned error after shutdown: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}
