package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/convertlens/convertlens-go/internal/application/services"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
)

// DeadLetterHandlers serves the operator endpoints for parked
// conversions.
type DeadLetterHandlers struct {
	deadLetters *services.DeadLetterService
	logger      *logging.ChanneledLogger
}

// NewDeadLetterHandlers creates dead-letter handlers with injected dependencies
func NewDeadLetterHandlers(deadLetters *services.DeadLetterService, logger *logging.ChanneledLogger) *DeadLetterHandlers {
	return &DeadLetterHandlers{deadLetters: deadLetters, logger: logger}
}

// ListDeadLetters returns every parked conversion, oldest first.
func (h *DeadLetterHandlers) ListDeadLetters(c *gin.Context) {
	letters, err := h.deadLetters.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deadLetters": letters, "count": len(letters)})
}

// RetryDeadLetter re-queues a parked conversion.
func (h *DeadLetterHandlers) RetryDeadLetter(c *gin.Context) {
	id := c.Param("id")
	if err := h.deadLetters.Retry(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Alert().Info("Dead letter retry requested", "deadLetterId", id)
	c.JSON(http.StatusAccepted, gin.H{"deadLetterId": id, "status": "requeued"})
}
