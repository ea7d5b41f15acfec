package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	contracts "thoughtcapture/contracts/mq"
	"thoughtcapture/internal/model"
	"thoughtcapture/internal/repository"
	"thoughtcapture/internal/slack"
	"thoughtcapture/pkg/metrics"
)

const (
	maxDigestItems    = 14
	digestItemPreview = 200
	digestHeader      = "Your weekly thought digest"
	digestEmptyHeader = "Your weekly thought digest: all clear!"
)

// Button action ids carried through Slack interaction payloads.
const (
	ActionActedOn = "digest_acted_on"
	ActionSnooze  = "digest_snooze"
	ActionDismiss = "digest_dismiss"
)

type DigestPayload struct {
	Text             string
	Blocks           []slack.Block
	ItemCount        int
	SnoozedItemCount int
	Empty            bool
}

// BuildDigestPayload renders digest items into Block Kit. Items are
// capped; action items outrank re-surfaced snoozed items, which outrank
// unclassified ones. counts feeds the empty-week summary and may be nil
// when items is non-empty.
func BuildDigestPayload(items []model.Thought, counts map[model.Classification]int) DigestPayload {
	if len(items) == 0 {
		return buildEmptyWeekPayload(counts)
	}

	ordered := orderDigestItems(items)

	shown := ordered
	hidden := 0
	if len(ordered) > maxDigestItems {
		shown = ordered[:maxDigestItems]
		hidden = len(ordered) - maxDigestItems
	}

	snoozedShown := 0
	blocks := []slack.Block{slack.SectionBlock("*" + digestHeader + "*"), slack.DividerBlock()}
	for _, t := range shown {
		if t.Status == model.StatusSnoozed {
			snoozedShown++
		}
		blocks = append(blocks,
			slack.SectionBlock(digestItemLine(t)),
			slack.ActionsBlock(t.ID,
				slack.ButtonSpec{Text: "Done", ActionID: ActionActedOn, Value: t.ID},
				slack.ButtonSpec{Text: "Snooze 1w", ActionID: ActionSnooze, Value: t.ID},
				slack.ButtonSpec{Text: "Dismiss", ActionID: ActionDismiss, Value: t.ID},
			),
		)
	}

	if hidden > 0 {
		blocks = append(blocks, slack.ContextBlock(fmt.Sprintf("...and %d more not shown.", hidden)))
	}

	return DigestPayload{
		Text:             digestHeader,
		Blocks:           blocks,
		ItemCount:        len(shown),
		SnoozedItemCount: snoozedShown,
	}
}

func buildEmptyWeekPayload(counts map[model.Classification]int) DigestPayload {
	captured := 0
	for _, n := range counts {
		captured += n
	}

	var body string
	if captured == 0 {
		body = "Nothing captured this week and nothing pending. Enjoy the quiet."
	} else {
		body = fmt.Sprintf(
			"You captured %d thoughts this week (%d reference, %d noise) and nothing needs your attention. Nice.",
			captured,
			counts[model.ClassificationReference],
			counts[model.ClassificationNoise],
		)
	}

	return DigestPayload{
		Text:   digestEmptyHeader,
		Blocks: []slack.Block{slack.SectionBlock("*" + digestEmptyHeader + "*"), slack.SectionBlock(body)},
		Empty:  true,
	}
}

// orderDigestItems buckets items by urgency, keeping capture order inside
// each bucket.
func orderDigestItems(items []model.Thought) []model.Thought {
	var action, snoozed, unclassified []model.Thought
	for _, t := range items {
		switch {
		case t.Status == model.StatusSnoozed:
			snoozed = append(snoozed, t)
		case t.Classification == model.ClassificationActionRequired:
			action = append(action, t)
		default:
			unclassified = append(unclassified, t)
		}
	}

	ordered := make([]model.Thought, 0, len(items))
	ordered = append(ordered, action...)
	ordered = append(ordered, snoozed...)
	ordered = append(ordered, unclassified...)
	return ordered
}

func digestItemLine(t model.Thought) string {
	text := "(content removed)"
	if t.Text != nil {
		text = truncateRunes(*t.Text, digestItemPreview)
	}

	switch {
	case t.Status == model.StatusSnoozed:
		return ":zzz: " + text
	case t.Classification == model.ClassificationUnclassified:
		return ":grey_question: " + text
	default:
		return ":small_red_triangle: " + text
	}
}

// DeliveryOutcome tells the queue consumer what happened to a delivery
// attempt that did not error.
type DeliveryOutcome int

const (
	DeliverySent DeliveryOutcome = iota
	DeliveryAlreadySent
)

type digestThoughtStore interface {
	FindDigestItems(ctx context.Context, userID string, periodStart, periodEnd, now time.Time) ([]model.Thought, error)
	CountByClassification(ctx context.Context, userID string, periodStart, periodEnd time.Time) (map[model.Classification]int, error)
}

type deliveryStore interface {
	HasDeliveryForPeriod(ctx context.Context, userID string, periodStart time.Time) (bool, error)
	Insert(ctx context.Context, params repository.InsertDeliveryParams) (bool, error)
}

// DigestService delivers one user's digest for one period, exactly once.
// The delivery record's (user, period_start) uniqueness is the idempotency
// boundary; the precheck only saves work on obvious redeliveries.
type DigestService struct {
	thoughts   digestThoughtStore
	deliveries deliveryStore
	analytics  analyticsLogger
	slack      slackAPI
	logger     *zap.Logger
}

func NewDigestService(
	thoughts digestThoughtStore,
	deliveries deliveryStore,
	analytics analyticsLogger,
	slackClient slackAPI,
	logger *zap.Logger,
) *DigestService {
	return &DigestService{
		thoughts:   thoughts,
		deliveries: deliveries,
		analytics:  analytics,
		slack:      slackClient,
		logger:     logger,
	}
}

// Deliver runs the delivery protocol for one job. Any error return means
// no delivery record was written and the job is safe to retry; a crash
// between the Slack send and the record insert is the one window where a
// retry can duplicate the message.
func (s *DigestService) Deliver(ctx context.Context, job contracts.DigestDeliveryJob) (DeliveryOutcome, error) {
	delivered, err := s.deliveries.HasDeliveryForPeriod(ctx, job.UserID, job.PeriodStart)
	if err != nil {
		return 0, fmt.Errorf("delivery precheck: %w", err)
	}
	if delivered {
		metrics.IncrementDigestDelivered("duplicate")
		return DeliveryAlreadySent, nil
	}

	now := time.Now().UTC()
	items, err := s.thoughts.FindDigestItems(ctx, job.UserID, job.PeriodStart, job.PeriodEnd, now)
	if err != nil {
		return 0, fmt.Errorf("digest item query: %w", err)
	}

	var counts map[model.Classification]int
	if len(items) == 0 {
		counts, err = s.thoughts.CountByClassification(ctx, job.UserID, job.PeriodStart, job.PeriodEnd)
		if err != nil {
			return 0, fmt.Errorf("digest count query: %w", err)
		}
	}
	payload := BuildDigestPayload(items, counts)

	channel, err := s.slack.OpenConversation(ctx, job.UserID)
	if err != nil {
		return 0, fmt.Errorf("digest conversation open: %w", err)
	}

	ts, err := s.slack.PostMessage(ctx, channel, payload.Text, payload.Blocks)
	if err != nil {
		return 0, fmt.Errorf("digest send: %w", err)
	}

	inserted, err := s.deliveries.Insert(ctx, repository.InsertDeliveryParams{
		SlackUserID:      job.UserID,
		ItemCount:        payload.ItemCount,
		SnoozedItemCount: payload.SnoozedItemCount,
		SlackMessageTS:   &ts,
		PeriodStart:      job.PeriodStart,
		PeriodEnd:        job.PeriodEnd,
	})
	if err != nil {
		// The message is already out; retrying here risks a double send,
		// but a missing record would re-send next period anyway. Retry.
		return 0, fmt.Errorf("delivery record insert: %w", err)
	}
	if !inserted {
		// A concurrent attempt won the insert race after our precheck.
		s.logger.Warn("Concurrent digest delivery detected",
			zap.String("user_id", job.UserID),
			zap.Time("period_start", job.PeriodStart),
		)
		metrics.IncrementDigestDelivered("duplicate")
		return DeliveryAlreadySent, nil
	}

	if payload.Empty {
		metrics.IncrementDigestDelivered("empty_week")
	} else {
		metrics.IncrementDigestDelivered("sent")
	}

	if err := s.analytics.LogEvent(ctx, repository.EventDigestSent, job.UserID, map[string]any{
		"item_count":         payload.ItemCount,
		"snoozed_item_count": payload.SnoozedItemCount,
		"empty_week":         payload.Empty,
	}); err != nil {
		s.logger.Warn("Failed to log digest event", zap.Error(err))
	}

	return DeliverySent, nil
}
