package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	contracts "thoughtcapture/contracts/mq"
	"thoughtcapture/internal/model"
	"thoughtcapture/internal/repository"
	"thoughtcapture/internal/slack"
	"thoughtcapture/pkg/metrics"
	"thoughtcapture/pkg/outbox"
)

const (
	maxThoughtChars    = 4000
	captureRateLimit   = 60
	captureRateWindow  = time.Hour
	reactionCaptureAck = "brain"
)

const msgCaptureRateLimited = "You've hit the hourly capture limit. Give it a breather and try again in a bit."

const msgWelcome = "Hey! I'm your thought capture bot. DM me anything on your mind and I'll " +
	"sort it into *Action Required*, *Reference*, or *Noise*. Every week I'll send you a digest " +
	"of what still needs attention. Use `schedule <day> <HH:MM>` to pick when it arrives."

type slackAPI interface {
	PostMessage(ctx context.Context, channel, text string, blocks []slack.Block) (string, error)
	UpdateMessage(ctx context.Context, channel, ts, text string, blocks []slack.Block) error
	OpenConversation(ctx context.Context, userID string) (string, error)
	AddReaction(ctx context.Context, channel, ts, name string) error
	GetUserInfo(ctx context.Context, userID string) (*slack.UserInfo, error)
}

type captureThoughtStore interface {
	InsertWithOutboxEvent(ctx context.Context, params repository.InsertThoughtParams, event *outbox.Event) (*model.Thought, error)
	CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error)
}

type capturePrefsStore interface {
	FindByUserID(ctx context.Context, userID string) (*model.UserPrefs, error)
	MarkWelcomed(ctx context.Context, userID string) error
	SetTimezone(ctx context.Context, userID, timezone string) error
}

type analyticsLogger interface {
	LogEvent(ctx context.Context, eventType, userID string, properties map[string]any) error
}

// CaptureService turns an inbound DM into a stored thought plus a queued
// classification job, written atomically through the outbox.
type CaptureService struct {
	thoughts  captureThoughtStore
	prefs     capturePrefsStore
	analytics analyticsLogger
	slack     slackAPI
	access    *AccessChecker
	logger    *zap.Logger
}

func NewCaptureService(
	thoughts captureThoughtStore,
	prefs capturePrefsStore,
	analytics analyticsLogger,
	slackClient slackAPI,
	access *AccessChecker,
	logger *zap.Logger,
) *CaptureService {
	return &CaptureService{
		thoughts:  thoughts,
		prefs:     prefs,
		analytics: analytics,
		slack:     slackClient,
		access:    access,
		logger:    logger,
	}
}

type CaptureInput struct {
	SlackUserID    string
	ChannelID      string
	SlackMessageTS string
	Text           string
}

// Capture processes one message event. Redeliveries of the same Slack
// message collapse on the slack_message_ts unique constraint, so calling
// this twice never produces two thoughts or two classification jobs.
func (s *CaptureService) Capture(ctx context.Context, input CaptureInput) error {
	if allowed, reason := s.access.Check(input.SlackUserID); !allowed {
		metrics.IncrementThoughtCaptured("rejected")
		s.notify(ctx, input.ChannelID, reason)
		return nil
	}

	count, err := s.thoughts.CountByUserSince(ctx, input.SlackUserID, time.Now().UTC().Add(-captureRateWindow))
	if err != nil {
		return fmt.Errorf("capture rate check: %w", err)
	}
	if count >= captureRateLimit {
		metrics.IncrementThoughtCaptured("rate_limited")
		s.notify(ctx, input.ChannelID, msgCaptureRateLimited)
		return nil
	}

	text := truncateRunes(input.Text, maxThoughtChars)

	thoughtID := uuid.NewString()
	job := contracts.ClassificationJob{ThoughtID: thoughtID, UserID: input.SlackUserID}
	thought, err := s.thoughts.InsertWithOutboxEvent(ctx, repository.InsertThoughtParams{
		ID:             thoughtID,
		SlackUserID:    input.SlackUserID,
		SlackMessageTS: input.SlackMessageTS,
		Text:           text,
	}, newClassifyEvent(job))
	if err != nil {
		return fmt.Errorf("capture insert: %w", err)
	}
	if thought == nil {
		metrics.IncrementThoughtCaptured("duplicate")
		return nil
	}

	metrics.IncrementThoughtCaptured("created")

	// Everything past the insert is best effort; the thought and its job
	// are already committed.
	if err := s.slack.AddReaction(ctx, input.ChannelID, input.SlackMessageTS, reactionCaptureAck); err != nil {
		s.logger.Warn("Failed to ack capture with reaction", zap.Error(err))
	}

	if err := s.analytics.LogEvent(ctx, repository.EventThoughtCaptured, input.SlackUserID, map[string]any{
		"thought_id": thought.ID,
	}); err != nil {
		s.logger.Warn("Failed to log capture event", zap.Error(err))
	}

	s.welcomeIfNew(ctx, input.SlackUserID)

	return nil
}

// welcomeIfNew sends the one-time onboarding DM and seeds the user's
// timezone from their Slack profile.
func (s *CaptureService) welcomeIfNew(ctx context.Context, userID string) {
	prefs, err := s.prefs.FindByUserID(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to load prefs for welcome check", zap.Error(err))
		return
	}
	if prefs != nil && prefs.Welcomed {
		return
	}

	if info, err := s.slack.GetUserInfo(ctx, userID); err == nil && info.TZ != "" {
		if _, tzErr := time.LoadLocation(info.TZ); tzErr == nil {
			if err := s.prefs.SetTimezone(ctx, userID, info.TZ); err != nil {
				s.logger.Warn("Failed to store user timezone", zap.Error(err))
			}
		}
	}

	channel, err := s.slack.OpenConversation(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to open welcome conversation", zap.Error(err))
		return
	}
	if _, err := s.slack.PostMessage(ctx, channel, msgWelcome, nil); err != nil {
		s.logger.Warn("Failed to send welcome message", zap.Error(err))
		return
	}

	if err := s.prefs.MarkWelcomed(ctx, userID); err != nil {
		s.logger.Warn("Failed to mark user welcomed", zap.Error(err))
	}

	if err := s.analytics.LogEvent(ctx, repository.EventUserWelcomed, userID, nil); err != nil {
		s.logger.Warn("Failed to log welcome event", zap.Error(err))
	}
}

func (s *CaptureService) notify(ctx context.Context, channel, text string) {
	if _, err := s.slack.PostMessage(ctx, channel, text, nil); err != nil {
		s.logger.Warn("Failed to send notice", zap.Error(err))
	}
}

func newClassifyEvent(job contracts.ClassificationJob) *outbox.Event {
	return &outbox.Event{
		AggregateType: "thought",
		RoutingKey:    contracts.RoutingKeyClassify,
		Payload:       mustJSON(job),
		Status:        "pending",
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
