package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"thoughtcapture/internal/service"
	"thoughtcapture/internal/slack"
)

// Block actions interaction payload, posted by Slack as a form field.
type interactionPayload struct {
	Type string `json:"type"`
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Message struct {
		TS     string        `json:"ts"`
		Blocks []slack.Block `json:"blocks"`
	} `json:"message"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

type InteractionsHandler struct {
	status *service.StatusService
	logger *zap.Logger
}

func NewInteractionsHandler(status *service.StatusService, logger *zap.Logger) *InteractionsHandler {
	return &InteractionsHandler{status: status, logger: logger}
}

// HandleInteraction processes digest button taps. Duplicate taps are
// absorbed by the guarded status update, so Slack's retries are safe.
func (h *InteractionsHandler) HandleInteraction(c *gin.Context) {
	raw := c.PostForm("payload")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing payload"})
		return
	}

	var payload interactionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	if payload.Type == "block_actions" {
		for _, action := range payload.Actions {
			err := h.status.HandleDigestAction(c.Request.Context(), service.DigestActionInput{
				UserID:        payload.User.ID,
				ChannelID:     payload.Channel.ID,
				MessageTS:     payload.Message.TS,
				ActionID:      action.ActionID,
				ThoughtID:     action.Value,
				MessageBlocks: payload.Message.Blocks,
			})
			if err != nil {
				h.logger.Error("Digest action failed",
					zap.String("user_id", payload.User.ID),
					zap.String("action_id", action.ActionID),
					zap.Error(err),
				)
			}
		}
	}

	c.Status(http.StatusOK)
}
