package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"thoughtcapture/internal/service"
)

type HealthHandler struct {
	health *service.HealthService
	logger *zap.Logger
}

func NewHealthHandler(health *service.HealthService, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{health: health, logger: logger}
}

// Report returns usage aggregates: totals, classification breakdown,
// active users and the override and engagement rates.
func (h *HealthHandler) Report(c *gin.Context) {
	report, err := h.health.Report(c.Request.Context())
	if err != nil {
		h.logger.Error("Health report failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}
