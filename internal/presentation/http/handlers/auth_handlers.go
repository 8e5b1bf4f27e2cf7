package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/security"
)

// AuthHandlers serves admin authentication for the operational
// endpoints.
type AuthHandlers struct {
	tokens            *security.TokenService
	adminPasswordHash string
	logger            *logging.ChanneledLogger
}

// NewAuthHandlers creates auth handlers with injected dependencies
func NewAuthHandlers(tokens *security.TokenService, adminPasswordHash string, logger *logging.ChanneledLogger) *AuthHandlers {
	return &AuthHandlers{tokens: tokens, adminPasswordHash: adminPasswordHash, logger: logger}
}

// Login exchanges the admin password for a bearer token.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}

	if h.adminPasswordHash == "" {
		h.logger.Auth().Warn("Admin login attempted but no admin password is configured")
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access not configured"})
		return
	}

	if err := security.CheckPassword(h.adminPasswordHash, req.Password); err != nil {
		h.logger.Auth().Warn("Admin login failed", "remoteAddr", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.tokens.IssueAdminToken()
	if err != nil {
		h.logger.LogError(logging.ChannelAuth, "issue_admin_token", err, nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	h.logger.Auth().Info("Admin login succeeded", "remoteAddr", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"token": token})
}
