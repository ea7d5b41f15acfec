package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"thoughtcapture/internal/service"
)

// Inbound Slack Events API envelope. Only the fields the service reads.
type slackEvent struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Event     struct {
		Type        string `json:"type"`
		SubType     string `json:"subtype"`
		User        string `json:"user"`
		BotID       string `json:"bot_id"`
		Text        string `json:"text"`
		TS          string `json:"ts"`
		Channel     string `json:"channel"`
		ChannelType string `json:"channel_type"`
		Reaction    string `json:"reaction"`
		Item        struct {
			Channel string `json:"channel"`
			TS      string `json:"ts"`
		} `json:"item"`
	} `json:"event"`
}

type SlackEventsHandler struct {
	capture  *service.CaptureService
	override *service.OverrideService
	schedule *service.ScheduleService
	access   *service.AccessChecker
	logger   *zap.Logger
}

func NewSlackEventsHandler(
	capture *service.CaptureService,
	override *service.OverrideService,
	schedule *service.ScheduleService,
	access *service.AccessChecker,
	logger *zap.Logger,
) *SlackEventsHandler {
	return &SlackEventsHandler{
		capture:  capture,
		override: override,
		schedule: schedule,
		access:   access,
		logger:   logger,
	}
}

// HandleEvent is the Events API entrypoint. Slack retries non-200
// responses, so processing errors are logged and acknowledged: every
// mutation downstream is idempotent against redelivery anyway.
func (h *SlackEventsHandler) HandleEvent(c *gin.Context) {
	var event slackEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	if event.Type == "url_verification" {
		c.JSON(http.StatusOK, gin.H{"challenge": event.Challenge})
		return
	}

	switch event.Event.Type {
	case "message":
		h.handleMessage(c, event)
	case "reaction_added":
		h.handleReaction(c, event)
	}

	c.Status(http.StatusOK)
}

func (h *SlackEventsHandler) handleMessage(c *gin.Context, event slackEvent) {
	e := event.Event
	// Only fresh user DMs; edits, joins and our own replies carry a
	// subtype or bot id.
	if e.BotID != "" || e.SubType != "" || e.ChannelType != "im" {
		return
	}
	if strings.TrimSpace(e.Text) == "" {
		return
	}

	ctx := c.Request.Context()

	if target, ok := service.ParseReclassifyCommand(e.Text); ok {
		if allowed, _ := h.access.Check(e.User); !allowed {
			return
		}
		if err := h.override.HandleTextOverride(ctx, e.User, e.Channel, e.TS, target); err != nil {
			h.logger.Error("Text override failed", zap.String("user_id", e.User), zap.Error(err))
		}
		return
	}

	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(e.Text)), "schedule") {
		if allowed, _ := h.access.Check(e.User); !allowed {
			return
		}
		if err := h.schedule.HandleScheduleCommand(ctx, e.User, e.Channel, e.Text); err != nil {
			h.logger.Error("Schedule command failed", zap.String("user_id", e.User), zap.Error(err))
		}
		return
	}

	if err := h.capture.Capture(ctx, service.CaptureInput{
		SlackUserID:    e.User,
		ChannelID:      e.Channel,
		SlackMessageTS: e.TS,
		Text:           e.Text,
	}); err != nil {
		h.logger.Error("Capture failed", zap.String("user_id", e.User), zap.Error(err))
	}
}

func (h *SlackEventsHandler) handleReaction(c *gin.Context, event slackEvent) {
	e := event.Event
	if allowed, _ := h.access.Check(e.User); !allowed {
		return
	}

	err := h.override.HandleReactionOverride(c.Request.Context(), e.User, e.Item.Channel, e.Item.TS, e.Reaction)
	if err != nil {
		h.logger.Error("Reaction override failed", zap.String("user_id", e.User), zap.Error(err))
	}
}
