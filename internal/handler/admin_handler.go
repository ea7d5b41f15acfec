package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"thoughtcapture/internal/service"
	"thoughtcapture/pkg/outbox"
	"thoughtcapture/pkg/util"
)

// AdminHandler serves the operator API: login, manual retention runs and
// outbox inspection.
type AdminHandler struct {
	retention    *service.RetentionService
	outboxRepo   *outbox.Repository
	jwtSecret    string
	passwordHash string
	logger       *zap.Logger
}

func NewAdminHandler(
	retention *service.RetentionService,
	outboxRepo *outbox.Repository,
	jwtSecret, passwordHash string,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		retention:    retention,
		outboxRepo:   outboxRepo,
		jwtSecret:    jwtSecret,
		passwordHash: passwordHash,
		logger:       logger,
	}
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}

	if !util.CheckPassword(req.Password, h.passwordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := util.GenerateJWT("admin", h.jwtSecret)
	if err != nil {
		h.logger.Error("Failed to issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AdminHandler) RunRetention(c *gin.Context) {
	result, err := h.retention.Run(c.Request.Context())
	if err != nil {
		h.logger.Error("Manual retention run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "retention run failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AdminHandler) GetFailedOutboxEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := h.outboxRepo.GetFailedEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to load failed outbox events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *AdminHandler) ReplayOutboxEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	if err := h.outboxRepo.ReplayEvent(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to replay outbox event", zap.Int64("event_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "replay failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "replayed"})
}
