package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/convertlens/convertlens-go/internal/application/services"
	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
)

// RecomputeRequest is the payload for starting a historical recompute
// job.
type RecomputeRequest struct {
	ModelType  attribution.ModelType   `json:"modelType" binding:"required"`
	Params     attribution.ModelParams `json:"params"`
	WindowDays int                     `json:"windowDays"`
	FromDate   time.Time               `json:"fromDate" binding:"required"`
}

// JobHandlers serves the recompute job endpoints.
type JobHandlers struct {
	recompute *services.RecomputeService
	logger    *logging.ChanneledLogger
}

// NewJobHandlers creates job handlers with injected dependencies
func NewJobHandlers(recompute *services.RecomputeService, logger *logging.ChanneledLogger) *JobHandlers {
	return &JobHandlers{recompute: recompute, logger: logger}
}

// PostRecompute starts a historical recompute job and returns its ID.
func (h *JobHandlers) PostRecompute(c *gin.Context) {
	var req RecomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, attribution.NewValidationError("body", "malformed JSON payload"))
		return
	}
	if !req.ModelType.Valid() {
		respondError(c, attribution.NewValidationError("modelType", "unknown model type"))
		return
	}

	job, err := h.recompute.Start(c.Request.Context(), req.ModelType, req.Params, req.WindowDays, req.FromDate)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.Jobs().Info("Recompute request accepted", "jobId", job.ID, "model", req.ModelType)
	c.JSON(http.StatusAccepted, gin.H{"jobId": job.ID, "state": job.State})
}

// GetJobStatus returns the persisted state of a job.
func (h *JobHandlers) GetJobStatus(c *gin.Context) {
	job, err := h.recompute.Status(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// PostCancelJob requests cancellation of a running job.
func (h *JobHandlers) PostCancelJob(c *gin.Context) {
	jobID := c.Param("jobId")
	if err := h.recompute.Cancel(c.Request.Context(), jobID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID, "state": attribution.JobCancelled})
}
