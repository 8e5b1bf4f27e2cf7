package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/convertlens/convertlens-go/internal/application/services"
	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
)

// PerformanceHandlers serves channel and campaign performance rollups.
type PerformanceHandlers struct {
	performance *services.ChannelPerformanceService
	logger      *logging.ChanneledLogger
}

// NewPerformanceHandlers creates performance handlers with injected dependencies
func NewPerformanceHandlers(performance *services.ChannelPerformanceService, logger *logging.ChanneledLogger) *PerformanceHandlers {
	return &PerformanceHandlers{performance: performance, logger: logger}
}

// GetChannelPerformance returns the snapshot for a grouping key and
// period, recomputing when absent or stale. Exactly one of ?channel=
// or ?campaignId= selects the grouping.
func (h *PerformanceHandlers) GetChannelPerformance(c *gin.Context) {
	start := time.Now()

	key := attribution.PerformanceKey{
		Channel:    attribution.Channel(c.Query("channel")),
		CampaignID: c.Query("campaignId"),
	}
	if key.Channel == "" && key.CampaignID == "" {
		respondError(c, attribution.NewValidationError("channel", "channel or campaignId required"))
		return
	}
	if key.Channel != "" && key.CampaignID != "" {
		respondError(c, attribution.NewValidationError("channel", "channel and campaignId are mutually exclusive"))
		return
	}
	if key.Channel != "" && !key.Channel.Valid() {
		respondError(c, attribution.NewValidationError("channel", "unknown channel"))
		return
	}

	model := attribution.ModelType(c.Query("modelType"))
	if !model.Valid() {
		respondError(c, attribution.NewValidationError("modelType", "unknown model type"))
		return
	}

	from, err := time.Parse(time.RFC3339, c.Query("periodStart"))
	if err != nil {
		respondError(c, attribution.NewValidationError("periodStart", "must be RFC3339"))
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("periodEnd"))
	if err != nil {
		respondError(c, attribution.NewValidationError("periodEnd", "must be RFC3339"))
		return
	}
	if to.Before(from) {
		respondError(c, attribution.NewValidationError("periodEnd", "before periodStart"))
		return
	}

	snap, err := h.performance.GetPerformance(c.Request.Context(), key, from, to, model)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.Aggregation().Info("Channel performance request completed",
		"channel", key.Channel, "campaignId", key.CampaignID, "model", model, "duration", time.Since(start))

	body := gin.H{"snapshot": snap}
	if !snap.SpendKnown || snap.ROI == nil {
		body["note"] = "insufficient spend data, roi and roas undefined"
	}
	c.JSON(http.StatusOK, body)
}
