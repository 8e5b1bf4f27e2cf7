// Package handlers provides the HTTP handlers for the attribution API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
)

// respondError maps a service error onto its taxonomy code and HTTP
// status. Internal failures never leak raw error text to callers.
func respondError(c *gin.Context, err error) {
	code := attribution.CodeFor(err)

	body := gin.H{"code": code}
	switch code {
	case attribution.CodeValidation:
		var ve *attribution.ValidationError
		errors.As(err, &ve)
		body["error"] = "validation failed"
		body["fields"] = ve.Fields
		c.JSON(http.StatusBadRequest, body)
	case attribution.CodeNotFound:
		body["error"] = "resource not found"
		c.JSON(http.StatusNotFound, body)
	case attribution.CodeConflict:
		body["error"] = "computation version already persisted"
		c.JSON(http.StatusConflict, body)
	case attribution.CodeThrottled:
		body["error"] = "processing queue full, retry with backoff"
		c.Header("Retry-After", "1")
		c.JSON(http.StatusTooManyRequests, body)
	case attribution.CodeDataUnavailable:
		body["error"] = "data source unavailable, retry with backoff"
		c.JSON(http.StatusServiceUnavailable, body)
	default:
		body["error"] = "internal error"
		c.JSON(http.StatusInternalServerError, body)
	}
}
