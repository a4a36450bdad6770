package httpapi

import (
	"errors"
	"net/http"

	"callqa/internal/analytics"
	"callqa/internal/audit"
	"callqa/internal/calls"
	"callqa/internal/health"
	"callqa/internal/pipeline"
	"callqa/internal/upstream"
	"callqa/internal/uploads"
	"callqa/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Pipeline  *pipeline.Service
	Calls     calls.Store
	Events    *audit.Service
	Analytics *analytics.Service
	Uploads   *uploads.LocalStore
	Health    *health.Checker
}

const msgCallNotFound = "Call not found"

// abortWithError maps service errors onto status codes and the JSON error
// body. Pipeline failures also carry the call id and failing stage.
func abortWithError(c *gin.Context, err error) {
	var se *pipeline.StageError
	if errors.As(err, &se) {
		c.AbortWithStatusJSON(stageStatus(se), gin.H{
			"error":  se.Detail(),
			"callId": se.CallID,
			"stage":  se.Stage,
		})
		return
	}

	switch {
	case errors.Is(err, pipeline.ErrInvalidInput),
		errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, analytics.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrAtCapacity):
		c.Header("Retry-After", "30")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "pipeline at capacity, retry later"})
	case errors.Is(err, calls.ErrDuplicateCallID):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "callId already exists"})
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": msgCallNotFound})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func stageStatus(se *pipeline.StageError) int {
	switch {
	case errors.Is(se, pipeline.ErrPersistFailed):
		return http.StatusInternalServerError
	case errors.Is(se, upstream.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DependencyHealth reports each dependency's state. It answers 200 even when
// degraded so dashboards can render the detail.
func (h Handlers) DependencyHealth(c *gin.Context) {
	if h.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusOK, h.Health.Check(c.Request.Context()))
}
