package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"thoughtcapture/internal/model"
	"thoughtcapture/internal/repository"
	"thoughtcapture/internal/slack"
)

const snoozeDuration = 7 * 24 * time.Hour

type statusThoughtStore interface {
	FindByID(ctx context.Context, id string) (*model.Thought, error)
	UpdateStatus(ctx context.Context, id string, status model.Status, snoozeUntil *time.Time) (bool, error)
}

type statusDeliveryStore interface {
	FindBySlackMessageTS(ctx context.Context, ts string) (*model.DigestDelivery, error)
}

type statusAnalyticsStore interface {
	analyticsLogger
	HasDigestEngagement(ctx context.Context, messageTS string) (bool, error)
}

// StatusService applies digest button taps to the thought workflow state.
type StatusService struct {
	thoughts   statusThoughtStore
	deliveries statusDeliveryStore
	analytics  statusAnalyticsStore
	slack      slackAPI
	logger     *zap.Logger
}

func NewStatusService(
	thoughts statusThoughtStore,
	deliveries statusDeliveryStore,
	analytics statusAnalyticsStore,
	slackClient slackAPI,
	logger *zap.Logger,
) *StatusService {
	return &StatusService{
		thoughts:   thoughts,
		deliveries: deliveries,
		analytics:  analytics,
		slack:      slackClient,
		logger:     logger,
	}
}

type DigestActionInput struct {
	UserID    string
	ChannelID string
	MessageTS string
	ActionID  string
	ThoughtID string

	// MessageBlocks is the digest message as it currently renders, from
	// the interaction payload. The tapped item's buttons are replaced in
	// place and the message re-rendered.
	MessageBlocks []slack.Block
}

// HandleDigestAction processes one button tap. Terminal states absorb
// repeat taps: the tap is acknowledged by re-rendering the message, but
// the stored state never changes.
func (s *StatusService) HandleDigestAction(ctx context.Context, input DigestActionInput) error {
	status, ok := actionStatus(input.ActionID)
	if !ok {
		return nil
	}

	thought, err := s.thoughts.FindByID(ctx, input.ThoughtID)
	if err != nil {
		return fmt.Errorf("digest action lookup: %w", err)
	}
	if thought == nil || thought.SlackUserID != input.UserID {
		return nil
	}

	var snoozeUntil *time.Time
	if status == model.StatusSnoozed {
		t := time.Now().UTC().Add(snoozeDuration)
		snoozeUntil = &t
	}

	applied, err := s.thoughts.UpdateStatus(ctx, input.ThoughtID, status, snoozeUntil)
	if err != nil {
		return fmt.Errorf("digest action update: %w", err)
	}

	shown := status
	if !applied {
		// Duplicate tap or a terminal state won earlier; render whatever
		// the row actually says.
		current, err := s.thoughts.FindByID(ctx, input.ThoughtID)
		if err != nil {
			return fmt.Errorf("digest action re-read: %w", err)
		}
		if current == nil {
			return nil
		}
		shown = current.Status
	}

	if len(input.MessageBlocks) > 0 {
		updated := replaceActionBlock(input.MessageBlocks, input.ThoughtID, statusLine(shown))
		if err := s.slack.UpdateMessage(ctx, input.ChannelID, input.MessageTS, digestHeader, updated); err != nil {
			s.logger.Warn("Failed to update digest message", zap.Error(err))
		}
	}

	// Correlate the tap to the digest it arrived in; best effort.
	var delivery *model.DigestDelivery
	if d, err := s.deliveries.FindBySlackMessageTS(ctx, input.MessageTS); err != nil {
		s.logger.Warn("Failed to resolve digest delivery", zap.Error(err))
	} else {
		delivery = d
	}

	s.recordEngagement(ctx, input, delivery)

	if applied {
		props := map[string]any{
			"thought_id": input.ThoughtID,
			"action":     input.ActionID,
		}
		if delivery != nil {
			props["digest_period_start"] = delivery.PeriodStart.Format(time.RFC3339)
		}
		if err := s.analytics.LogEvent(ctx, repository.EventDigestActionTaken, input.UserID, props); err != nil {
			s.logger.Warn("Failed to log digest action", zap.Error(err))
		}
	}

	return nil
}

// recordEngagement logs one engagement event per digest message, on the
// first interaction with it, carrying the time from delivery to that
// interaction. Repeat taps on the same digest are not engagement.
func (s *StatusService) recordEngagement(ctx context.Context, input DigestActionInput, delivery *model.DigestDelivery) {
	if delivery == nil {
		return
	}

	engaged, err := s.analytics.HasDigestEngagement(ctx, input.MessageTS)
	if err != nil {
		s.logger.Warn("Failed to check digest engagement", zap.Error(err))
		return
	}
	if engaged {
		return
	}

	props := map[string]any{
		"message_ts":                   input.MessageTS,
		"digest_period_start":          delivery.PeriodStart.Format(time.RFC3339),
		"seconds_to_first_interaction": int64(time.Since(delivery.DeliveredAt).Seconds()),
	}
	if err := s.analytics.LogEvent(ctx, repository.EventDigestEngagement, input.UserID, props); err != nil {
		s.logger.Warn("Failed to log digest engagement", zap.Error(err))
	}
}

func actionStatus(actionID string) (model.Status, bool) {
	switch actionID {
	case ActionActedOn:
		return model.StatusActedOn, true
	case ActionSnooze:
		return model.StatusSnoozed, true
	case ActionDismiss:
		return model.StatusDismissed, true
	}
	return "", false
}

func statusLine(status model.Status) string {
	switch status {
	case model.StatusActedOn:
		return ":white_check_mark: Done"
	case model.StatusSnoozed:
		return ":zzz: Snoozed for a week"
	case model.StatusDismissed:
		return ":wastebasket: Dismissed"
	default:
		return ":grey_question: Open"
	}
}

// replaceActionBlock swaps the button row whose block_id matches the
// thought id for a static status line.
func replaceActionBlock(blocks []slack.Block, blockID, text string) []slack.Block {
	out := make([]slack.Block, 0, len(blocks))
	for _, b := range blocks {
		if b["type"] == "actions" && b["block_id"] == blockID {
			out = append(out, slack.ContextBlock(text))
			continue
		}
		out = append(out, b)
	}
	return out
}
