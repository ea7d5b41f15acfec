package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"thoughtcapture/internal/model"
	"thoughtcapture/internal/repository"
)

const (
	overrideRateLimit  = 60
	overrideRateWindow = time.Hour
)

const msgOverrideRateLimited = "You've hit the hourly reclassification limit. Try again later."

var reclassifyPattern = regexp.MustCompile(`(?i)^reclassify\s+as\s+(action|reference|noise)$`)

// Emoji reactions that override the label, accepted on the bot's
// classification reply or on the captured message itself.
var reactionOverrides = map[string]model.Classification{
	"pushpin":     model.ClassificationActionRequired,
	"file_folder": model.ClassificationReference,
	"wastebasket": model.ClassificationNoise,
}

type overrideThoughtStore interface {
	FindMostRecentByUser(ctx context.Context, userID, excludeMessageTS string) (*model.Thought, error)
	FindByBotReplyTS(ctx context.Context, ts string) (*model.Thought, error)
	FindByMessageTS(ctx context.Context, ts string) (*model.Thought, error)
	OverrideClassification(ctx context.Context, id string, classification model.Classification) (bool, error)
}

type overrideAnalyticsStore interface {
	LogEvent(ctx context.Context, eventType, userID string, properties map[string]any) error
	CountEventsSince(ctx context.Context, eventType, userID string, since time.Time) (int, error)
}

// OverrideService lets users correct a classification, either by typing
// "reclassify as <label>" or by reacting to the bot's classification reply.
type OverrideService struct {
	thoughts  overrideThoughtStore
	analytics overrideAnalyticsStore
	slack     slackAPI
	logger    *zap.Logger
}

func NewOverrideService(
	thoughts overrideThoughtStore,
	analytics overrideAnalyticsStore,
	slackClient slackAPI,
	logger *zap.Logger,
) *OverrideService {
	return &OverrideService{
		thoughts:  thoughts,
		analytics: analytics,
		slack:     slackClient,
		logger:    logger,
	}
}

// ParseReclassifyCommand recognizes the text override command. The short
// token "action" expands to action_required.
func ParseReclassifyCommand(text string) (model.Classification, bool) {
	m := reclassifyPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	switch strings.ToLower(m[1]) {
	case "action":
		return model.ClassificationActionRequired, true
	case "reference":
		return model.ClassificationReference, true
	case "noise":
		return model.ClassificationNoise, true
	}
	return "", false
}

// HandleTextOverride applies a typed reclassify command to the user's most
// recent thought. The command message itself is excluded from the lookup.
func (s *OverrideService) HandleTextOverride(ctx context.Context, userID, channel, messageTS string, target model.Classification) error {
	thought, err := s.thoughts.FindMostRecentByUser(ctx, userID, messageTS)
	if err != nil {
		return fmt.Errorf("override lookup: %w", err)
	}
	if thought == nil {
		s.notify(ctx, channel, "I couldn't find a recent thought of yours to reclassify.")
		return nil
	}

	s.apply(ctx, thought, userID, channel, target, "text_command")
	return nil
}

// HandleReactionOverride applies an emoji override. Reactions from anyone
// but the thought's owner, on unknown messages, or with unmapped emoji are
// silently ignored.
func (s *OverrideService) HandleReactionOverride(ctx context.Context, userID, channel, reactedTS, emoji string) error {
	target, ok := reactionOverrides[emoji]
	if !ok {
		return nil
	}

	thought, err := s.thoughts.FindByBotReplyTS(ctx, reactedTS)
	if err != nil {
		return fmt.Errorf("override lookup: %w", err)
	}
	if thought == nil {
		// Not a classification reply; the reaction may be on the captured
		// message itself.
		thought, err = s.thoughts.FindByMessageTS(ctx, reactedTS)
		if err != nil {
			return fmt.Errorf("override lookup: %w", err)
		}
	}
	if thought == nil || thought.SlackUserID != userID {
		return nil
	}

	s.apply(ctx, thought, userID, channel, target, "reaction")
	return nil
}

func (s *OverrideService) apply(ctx context.Context, thought *model.Thought, userID, channel string, target model.Classification, method string) {
	// A no-op override is confirmed but never counted against the rate
	// limit or logged.
	if thought.Classification == target {
		s.notify(ctx, channel, fmt.Sprintf("That one is already classified as *%s*.", target.Label()))
		return
	}

	count, err := s.analytics.CountEventsSince(ctx, repository.EventClassificationOverride, userID, time.Now().UTC().Add(-overrideRateWindow))
	if err != nil {
		s.logger.Error("Override rate check failed", zap.Error(err))
		return
	}
	if count >= overrideRateLimit {
		s.notify(ctx, channel, msgOverrideRateLimited)
		return
	}

	previous := thought.Classification
	applied, err := s.thoughts.OverrideClassification(ctx, thought.ID, target)
	if err != nil {
		s.logger.Error("Failed to apply override", zap.String("thought_id", thought.ID), zap.Error(err))
		return
	}
	if !applied {
		return
	}

	if err := s.analytics.LogEvent(ctx, repository.EventClassificationOverride, userID, map[string]any{
		"thought_id": thought.ID,
		"from":       string(previous),
		"to":         string(target),
		"method":     method,
	}); err != nil {
		s.logger.Warn("Failed to log override event", zap.Error(err))
	}

	s.notify(ctx, channel, fmt.Sprintf("Got it - reclassified as *%s*.", target.Label()))
}

func (s *OverrideService) notify(ctx context.Context, channel, text string) {
	if _, err := s.slack.PostMessage(ctx, channel, text, nil); err != nil {
		s.logger.Warn("Failed to send override notice", zap.Error(err))
	}
}
