// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/convertlens/convertlens-go/internal/application/container"
	"github.com/convertlens/convertlens-go/internal/presentation/http/handlers"
	"github.com/convertlens/convertlens-go/internal/presentation/http/middleware"
	"github.com/convertlens/convertlens-go/pkg/config"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RequestIDMiddleware())

	// Initialize handlers
	ingestHandlers := handlers.NewIngestHandlers(container.IngestionService, container.Logger)
	attributionHandlers := handlers.NewAttributionHandlers(container.Repos.Results, container.ComparisonService, container.Logger)
	performanceHandlers := handlers.NewPerformanceHandlers(container.PerformanceService, container.Logger)
	jobHandlers := handlers.NewJobHandlers(container.RecomputeService, container.Logger)
	deadLetterHandlers := handlers.NewDeadLetterHandlers(container.DeadLetterService, container.Logger)
	authHandlers := handlers.NewAuthHandlers(container.Tokens, config.AdminPasswordHash, container.Logger)
	opsHandlers := handlers.NewOpsHandlers(container.Logger, container.LogBroadcaster, container.Queue)

	r.GET("/health", opsHandlers.Health)
	r.GET("/metrics", gin.WrapH(container.Metrics.Handler()))

	api := r.Group("/api/v1")
	{
		// Ingestion endpoints consumed by the collection layer
		api.POST("/touchpoints", ingestHandlers.PostTouchpoint)
		api.POST("/conversions", ingestHandlers.PostConversion)
		api.POST("/spend", ingestHandlers.PostSpend)

		// Attribution queries
		api.GET("/attribution/:conversionId", attributionHandlers.GetResult)
		api.GET("/attribution/:conversionId/compare", attributionHandlers.CompareModels)
		api.GET("/performance", performanceHandlers.GetChannelPerformance)
	}

	// Operational endpoints behind admin auth
	api.POST("/admin/login", authHandlers.Login)
	admin := api.Group("/admin")
	admin.Use(middleware.AdminAuthMiddleware(container.Tokens))
	{
		admin.POST("/recompute", jobHandlers.PostRecompute)
		admin.GET("/jobs/:jobId", jobHandlers.GetJobStatus)
		admin.POST("/jobs/:jobId/cancel", jobHandlers.PostCancelJob)

		admin.GET("/dead-letters", deadLetterHandlers.ListDeadLetters)
		admin.POST("/dead-letters/:id/retry", deadLetterHandlers.RetryDeadLetter)

		admin.GET("/logs/levels", opsHandlers.GetLogLevels)
		admin.POST("/logs/levels", opsHandlers.SetLogLevel)
	}

	// Log streaming is a special case and can remain at top level
	r.GET("/logs/stream", opsHandlers.StreamLogs)

	return r
}
