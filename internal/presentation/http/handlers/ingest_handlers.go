package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/convertlens/convertlens-go/internal/application/services"
	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
)

// IngestHandlers contains the handlers for the ingestion endpoints
// consumed by the external collection layer.
type IngestHandlers struct {
	ingestion *services.IngestionService
	logger    *logging.ChanneledLogger
}

// NewIngestHandlers creates ingest handlers with injected dependencies
func NewIngestHandlers(ingestion *services.IngestionService, logger *logging.ChanneledLogger) *IngestHandlers {
	return &IngestHandlers{ingestion: ingestion, logger: logger}
}

// PostTouchpoint ingests one touchpoint.
func (h *IngestHandlers) PostTouchpoint(c *gin.Context) {
	start := time.Now()

	var tp attribution.Touchpoint
	if err := c.ShouldBindJSON(&tp); err != nil {
		respondError(c, attribution.NewValidationError("body", "malformed JSON payload"))
		return
	}

	if err := h.ingestion.IngestTouchpoint(c.Request.Context(), &tp); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Ingest().Info("Touchpoint ingest request completed",
		"touchpointId", tp.ID, "duration", time.Since(start))
	c.JSON(http.StatusCreated, gin.H{"id": tp.ID})
}

// PostConversion ingests one conversion and queues it for attribution.
func (h *IngestHandlers) PostConversion(c *gin.Context) {
	start := time.Now()

	var conv attribution.ConversionEvent
	if err := c.ShouldBindJSON(&conv); err != nil {
		respondError(c, attribution.NewValidationError("body", "malformed JSON payload"))
		return
	}

	if err := h.ingestion.IngestConversion(c.Request.Context(), &conv); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Ingest().Info("Conversion ingest request completed",
		"conversionId", conv.ID, "duration", time.Since(start))
	c.JSON(http.StatusAccepted, gin.H{"id": conv.ID})
}

// PostSpend ingests one externally supplied spend record.
func (h *IngestHandlers) PostSpend(c *gin.Context) {
	start := time.Now()

	var rec attribution.SpendRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		respondError(c, attribution.NewValidationError("body", "malformed JSON payload"))
		return
	}

	if err := h.ingestion.IngestSpend(c.Request.Context(), &rec); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Ingest().Info("Spend ingest request completed",
		"spendId", rec.ID, "duration", time.Since(start))
	c.JSON(http.StatusCreated, gin.H{"id": rec.ID})
}
