package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/convertlens/convertlens-go/internal/infrastructure/messaging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
)

// OpsHandlers serves health, runtime log control, and the live log
// stream.
type OpsHandlers struct {
	logger      *logging.ChanneledLogger
	broadcaster *logging.LogBroadcaster
	queue       *messaging.Queue
	startedAt   time.Time
}

// NewOpsHandlers creates ops handlers with injected dependencies
func NewOpsHandlers(logger *logging.ChanneledLogger, broadcaster *logging.LogBroadcaster, queue *messaging.Queue) *OpsHandlers {
	return &OpsHandlers{
		logger:      logger,
		broadcaster: broadcaster,
		queue:       queue,
		startedAt:   time.Now().UTC(),
	}
}

// Health reports liveness and the current queue depth.
func (h *OpsHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime":     time.Since(h.startedAt).String(),
		"queueDepth": h.queue.Depth(),
	})
}

// GetLogLevels returns the current log level for every channel.
func (h *OpsHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.logger.GetChannelLevels())
}

// SetLogLevel changes the log level of one channel at runtime.
func (h *OpsHandlers) SetLogLevel(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	level, ok := parseLevel(req.Level)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log level specified"})
		return
	}

	if err := h.logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "channel": req.Channel, "level": req.Level})
}

// StreamLogs handles the SSE connection for live log streaming.
func (h *OpsHandlers) StreamLogs(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	level, ok := parseLevel(c.DefaultQuery("level", "INFO"))
	if !ok {
		level = slog.LevelInfo
	}
	filters := logging.AppliedFilters{
		Channel: logging.Channel(c.DefaultQuery("channel", "all")),
		Level:   level,
	}

	client := h.broadcaster.NewClient(filters)
	h.broadcaster.RegisterClient(client)
	defer h.broadcaster.UnregisterClient(client)

	fmt.Fprintf(c.Writer, ": connection established\n\n")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-client.Channel:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func parseLevel(s string) (slog.Level, bool) {
	switch s {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
