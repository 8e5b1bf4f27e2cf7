// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/convertlens/convertlens-go/internal/application/container"
	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	sqlattribution "github.com/convertlens/convertlens-go/internal/infrastructure/persistence/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/database"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/memory"
	"github.com/convertlens/convertlens-go/internal/infrastructure/messaging/kafkasource"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/presentation/http/server"
	"github.com/convertlens/convertlens-go/pkg/config"
)

// Initialize performs the complete startup sequence and blocks until
// shutdown.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("Initializing ConvertLens attribution engine...")

	// Step 1: Structured logging and the log broadcaster
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	broadcaster := logging.GetBroadcaster()

	// Step 2: Model configuration
	modelConfig, err := config.LoadModelConfig(config.ModelConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load model configuration: %w", err)
	}
	logger.Startup().Info("Model configuration loaded",
		"models", len(modelConfig.Models), "windowDays", modelConfig.WindowDays)

	// Step 3: Storage
	repos, dbClose, err := openStorage(logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer dbClose()

	// Step 4: Dependency injection container
	appContainer := container.NewContainer(repos, modelConfig, logger, broadcaster)
	logger.Startup().Info("Dependency injection container created with singleton services")

	// Step 5: Resume recompute jobs interrupted by the last shutdown
	if err := appContainer.RecomputeService.ResumeInterrupted(ctx); err != nil {
		logger.Startup().Error("Failed to resume interrupted jobs", "error", err.Error())
	}

	// Step 6: Worker pool
	appContainer.WorkerPool.Start(ctx)

	// Step 7: Optional Kafka ingestion source
	var consumer *kafkasource.Consumer
	if config.KafkaEnabled {
		consumer = kafkasource.NewConsumer(
			strings.Split(config.KafkaBrokers, ","),
			config.KafkaTouchpointsTopic,
			config.KafkaConversionsTopic,
			config.KafkaGroupID,
			appContainer.IngestionService,
			logger,
		)
		consumer.Start(ctx)
	}

	// Step 8: HTTP server
	port := config.Port
	httpServer := server.New(port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"workers", config.WorkerCount,
		"queueCapacity", config.QueueCapacity,
		"port", port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	shutdownStart := time.Now()

	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	}

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Shutdown().Error("Error stopping Kafka consumer", "error", err.Error())
		}
	}

	// Drain in-flight attribution work before closing storage.
	appContainer.WorkerPool.Stop()
	broadcaster.Shutdown()

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))
	return logger.Close()
}

// openStorage builds the repository bundle for the configured driver.
// The returned close function is a no-op for the memory driver.
func openStorage(logger *logging.ChanneledLogger) (repositories.Bundle, func(), error) {
	switch config.DBDriver {
	case "memory":
		logger.Startup().Info("Using in-memory storage; data will not survive restarts")
		return memory.NewRepositories(), func() {}, nil

	case "libsql":
		dsn := database.TursoDSN(config.TursoDatabaseURL, config.TursoAuthToken)
		return openSQL("libsql", dsn, logger)

	case "sqlite3":
		return openSQL("sqlite3", config.DBPath, logger)
	}
	return repositories.Bundle{}, nil, fmt.Errorf("unknown DB_DRIVER %q", config.DBDriver)
}

func openSQL(driver, dsn string, logger *logging.ChanneledLogger) (repositories.Bundle, func(), error) {
	db, err := database.NewConnectionWithLogger(driver, dsn, logger)
	if err != nil {
		return repositories.Bundle{}, nil, err
	}
	if err := database.EnsureSchema(db, logger); err != nil {
		db.Close()
		return repositories.Bundle{}, nil, err
	}
	logger.Startup().Info("Database ready", "driver", driver)

	return sqlattribution.NewRepositories(db, logger), func() {
		if err := db.Close(); err != nil {
			logger.Shutdown().Error("Error closing database", "error", err.Error())
		}
	}, nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
