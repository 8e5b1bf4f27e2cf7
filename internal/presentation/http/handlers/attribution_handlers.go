package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/convertlens/convertlens-go/internal/application/services"
	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
)

// AttributionHandlers serves attribution result queries and model
// comparison.
type AttributionHandlers struct {
	results    repositories.ResultRepository
	comparison *services.ModelComparisonService
	logger     *logging.ChanneledLogger
}

// NewAttributionHandlers creates attribution handlers with injected dependencies
func NewAttributionHandlers(results repositories.ResultRepository, comparison *services.ModelComparisonService, logger *logging.ChanneledLogger) *AttributionHandlers {
	return &AttributionHandlers{results: results, comparison: comparison, logger: logger}
}

// GetResult returns the attribution result for a conversion under one
// model, latest version unless ?version= is given.
func (h *AttributionHandlers) GetResult(c *gin.Context) {
	conversionID := c.Param("conversionId")
	model := attribution.ModelType(c.Query("modelType"))
	if !model.Valid() {
		respondError(c, attribution.NewValidationError("modelType", "unknown model type"))
		return
	}

	var (
		res *attribution.AttributionResult
		err error
	)
	if versionStr := c.Query("version"); versionStr != "" {
		version, convErr := strconv.Atoi(versionStr)
		if convErr != nil || version < 1 {
			respondError(c, attribution.NewValidationError("version", "must be a positive integer"))
			return
		}
		res, err = h.results.FindByVersion(c.Request.Context(), conversionID, model, version)
	} else {
		res, err = h.results.FindLatest(c.Request.Context(), conversionID, model)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// CompareModels returns one result per active model for a conversion,
// plus per-channel divergence.
func (h *AttributionHandlers) CompareModels(c *gin.Context) {
	start := time.Now()
	conversionID := c.Param("conversionId")

	comparison, err := h.comparison.Compare(c.Request.Context(), conversionID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.Attribution().Info("Model comparison request completed",
		"conversionId", conversionID, "models", len(comparison.Results), "duration", time.Since(start))
	c.JSON(http.StatusOK, comparison)
}
