// Package container provides dependency injection for all singleton services
package container

import (
	"github.com/convertlens/convertlens-go/internal/application/services"
	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	"github.com/convertlens/convertlens-go/internal/infrastructure/caching"
	"github.com/convertlens/convertlens-go/internal/infrastructure/email"
	"github.com/convertlens/convertlens-go/internal/infrastructure/locking"
	"github.com/convertlens/convertlens-go/internal/infrastructure/messaging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/metrics"
	"github.com/convertlens/convertlens-go/internal/infrastructure/security"
	"github.com/convertlens/convertlens-go/pkg/config"
)

// Container holds all singleton services and infrastructure
// dependencies.
type Container struct {
	// Application services (stateless singletons)
	IngestionService   *services.IngestionService
	JourneyService     *services.JourneyService
	Processor          *services.ConversionProcessor
	PerformanceService *services.ChannelPerformanceService
	ComparisonService  *services.ModelComparisonService
	RecomputeService   *services.RecomputeService
	DeadLetterService  *services.DeadLetterService

	// Infrastructure
	Repos          repositories.Bundle
	Queue          *messaging.Queue
	WorkerPool     *messaging.WorkerPool
	Locks          *locking.CustomerLocks
	Tokens         *security.TokenService
	Alerts         email.AlertService
	Logger         *logging.ChanneledLogger
	LogBroadcaster *logging.LogBroadcaster
	Metrics        *metrics.Registry
	ModelConfig    attribution.ModelConfig
}

// NewContainer creates and wires all singleton services.
func NewContainer(
	repos repositories.Bundle,
	modelConfig attribution.ModelConfig,
	logger *logging.ChanneledLogger,
	broadcaster *logging.LogBroadcaster,
) *Container {
	reg := metrics.NewRegistry()
	queue := messaging.NewQueue(config.QueueCapacity, reg)
	locks := locking.NewCustomerLocks()
	cache := caching.NewSnapshotCache(config.SnapshotTTL)

	var alerts email.AlertService
	if config.ResendAPIKey != "" {
		var err error
		alerts, err = email.NewResendAlerter(config.ResendAPIKey, config.AlertEmailFrom, config.AlertEmailTo)
		if err != nil {
			logger.Startup().Warn("Dead-letter alerts disabled", "reason", err.Error())
			alerts = nil
		}
	}

	jwtSecret := config.JWTSecret
	if jwtSecret == "" {
		generated, err := security.GenerateSecureKey(64)
		if err != nil {
			logger.Startup().Error("Failed to generate admin token secret", "error", err.Error())
		} else {
			// Ephemeral secret: admin tokens stop verifying across
			// restarts until JWT_SECRET is configured.
			jwtSecret = generated
			logger.Startup().Warn("JWT_SECRET not set, generated an ephemeral admin token secret")
		}
	}

	journeys := services.NewJourneyService(repos.Touchpoints, logger)
	processor := services.NewConversionProcessor(journeys, repos.Results, locks, modelConfig, logger, reg)
	performance := services.NewChannelPerformanceService(repos, cache, config.SnapshotTTL, logger)
	comparison := services.NewModelComparisonService(repos, processor, modelConfig, logger)
	recompute := services.NewRecomputeService(repos, processor, performance, config.RecomputeBatchSize, logger)
	ingestion := services.NewIngestionService(repos, queue, locks, logger, reg)
	deadLetters := services.NewDeadLetterService(repos, queue, alerts, logger, reg)

	pool := messaging.NewWorkerPool(
		queue, processor, deadLetters, logger, reg,
		config.WorkerCount, config.MaxIngestionAttempts, config.RetryBackoffBase,
	)

	return &Container{
		IngestionService:   ingestion,
		JourneyService:     journeys,
		Processor:          processor,
		PerformanceService: performance,
		ComparisonService:  comparison,
		RecomputeService:   recompute,
		DeadLetterService:  deadLetters,

		Repos:          repos,
		Queue:          queue,
		WorkerPool:     pool,
		Locks:          locks,
		Tokens:         security.NewTokenService(jwtSecret, config.AdminTokenTTL),
		Alerts:         alerts,
		Logger:         logger,
		LogBroadcaster: broadcaster,
		Metrics:        reg,
		ModelConfig:    modelConfig,
	}
}
