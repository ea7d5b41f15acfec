package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	contracts "thoughtcapture/contracts/mq"
	"thoughtcapture/internal/model"
	"thoughtcapture/internal/repository"
	"thoughtcapture/internal/service"
	"thoughtcapture/internal/slack"
	"thoughtcapture/pkg/metrics"
	"thoughtcapture/pkg/mq"
	"thoughtcapture/pkg/util"
)

const (
	maxClassifyRetries = 5
	handlerClassify    = "classify"
)

const msgClassifiedReply = "Got it - classified as *%s*. React with :pushpin: / :file_folder: / " +
	":wastebasket: or reply `reclassify as action|reference|noise` to change it."

type classifyThoughtStore interface {
	FindByID(ctx context.Context, id string) (*model.Thought, error)
	UpdateClassification(ctx context.Context, id string, classification model.Classification, source model.ClassificationSource, modelName string, latencyMS int64) (bool, error)
	UpdateBotReplyTS(ctx context.Context, id, botReplyTS string) error
}

type classifierAPI interface {
	Classify(ctx context.Context, text string) (*service.ClassifyResult, error)
}

type analyticsLogger interface {
	LogEvent(ctx context.Context, eventType, userID string, properties map[string]any) error
}

type slackMessenger interface {
	OpenConversation(ctx context.Context, userID string) (string, error)
	PostMessage(ctx context.Context, channel, text string, blocks []slack.Block) (string, error)
}

type dlqPublisher interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

type onceAcquirer interface {
	AcquireOnce(ctx context.Context, handler, key string) bool
	Release(ctx context.Context, handler, key string)
}

type retryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// ClassifyHandler consumes classification jobs. The conditional update in
// the store makes redelivered jobs and override races converge without
// duplicate side effects: only the attempt that flips the row off
// unclassified replies to the user.
type ClassifyHandler struct {
	thoughts     classifyThoughtStore
	classifier   classifierAPI
	analytics    analyticsLogger
	slack        slackMessenger
	dlq          dlqPublisher
	deduper      onceAcquirer
	retryCounter retryCounter
	logger       *zap.Logger
}

func NewClassifyHandler(
	thoughts classifyThoughtStore,
	classifier classifierAPI,
	analytics analyticsLogger,
	slackClient slackMessenger,
	dlq dlqPublisher,
	deduper onceAcquirer,
	counter retryCounter,
	logger *zap.Logger,
) *ClassifyHandler {
	return &ClassifyHandler{
		thoughts:     thoughts,
		classifier:   classifier,
		analytics:    analytics,
		slack:        slackClient,
		dlq:          dlq,
		deduper:      deduper,
		retryCounter: counter,
		logger:       logger,
	}
}

func (h *ClassifyHandler) Handle(ctx context.Context, data json.RawMessage) (mq.Outcome, error) {
	var job contracts.ClassificationJob
	if err := json.Unmarshal(data, &job); err != nil {
		h.parkPoison(data, fmt.Sprintf("malformed classification job: %v", err))
		return mq.OutcomeAlreadyDone, nil
	}

	logger := h.logger.With(zap.String("thought_id", job.ThoughtID))

	thought, err := h.thoughts.FindByID(ctx, job.ThoughtID)
	if err != nil {
		return h.retryOrPark(ctx, data, job.ThoughtID, err)
	}
	if thought == nil {
		logger.Info("Thought gone before classification, dropping job")
		return mq.OutcomeAlreadyDone, nil
	}
	if thought.Text == nil {
		logger.Info("Thought text purged before classification, dropping job")
		return mq.OutcomeAlreadyDone, nil
	}
	if thought.Classification != model.ClassificationUnclassified {
		return mq.OutcomeAlreadyDone, nil
	}

	// Best-effort guard against two workers burning classifier quota on
	// the same redelivered job; the conditional update below stays the
	// real arbiter.
	if !h.deduper.AcquireOnce(ctx, handlerClassify, job.ThoughtID) {
		return mq.OutcomeAlreadyDone, nil
	}

	// Past this point any failure releases the lock: the requeued or
	// replayed delivery must not be treated as a duplicate while the
	// thought is still unclassified.
	result, err := h.classifier.Classify(ctx, *thought.Text)
	if err != nil {
		h.deduper.Release(ctx, handlerClassify, job.ThoughtID)
		return h.retryOrPark(ctx, data, job.ThoughtID, err)
	}

	applied, err := h.thoughts.UpdateClassification(ctx, job.ThoughtID, result.Classification, model.SourceLLM, result.Model, result.LatencyMS)
	if err != nil {
		h.deduper.Release(ctx, handlerClassify, job.ThoughtID)
		return h.retryOrPark(ctx, data, job.ThoughtID, err)
	}
	if !applied {
		// An override or a concurrent worker got there first; their reply
		// stands.
		return mq.OutcomeAlreadyDone, nil
	}

	metrics.IncrementThoughtClassified(string(result.Classification), string(model.SourceLLM))

	if err := h.analytics.LogEvent(ctx, repository.EventThoughtClassified, thought.SlackUserID, map[string]any{
		"thought_id":     thought.ID,
		"classification": string(result.Classification),
		"latency_ms":     result.LatencyMS,
	}); err != nil {
		logger.Warn("Failed to log classification event", zap.Error(err))
	}

	h.reply(ctx, thought, result.Classification, logger)

	if err := h.retryCounter.Reset(ctx, util.FormatRetryKey(handlerClassify, job.ThoughtID)); err != nil {
		logger.Warn("Failed to reset retry counter", zap.Error(err))
	}

	return mq.OutcomeApplied, nil
}

// reply posts the classification confirmation and records its ts for emoji
// overrides. Failures here are logged and swallowed: the classification
// is committed, and a retry of the whole job would change nothing.
func (h *ClassifyHandler) reply(ctx context.Context, thought *model.Thought, classification model.Classification, logger *zap.Logger) {
	channel, err := h.slack.OpenConversation(ctx, thought.SlackUserID)
	if err != nil {
		logger.Warn("Failed to open conversation for reply", zap.Error(err))
		return
	}

	ts, err := h.slack.PostMessage(ctx, channel, fmt.Sprintf(msgClassifiedReply, classification.Label()), nil)
	if err != nil {
		logger.Warn("Failed to send classification reply", zap.Error(err))
		return
	}

	if err := h.thoughts.UpdateBotReplyTS(ctx, thought.ID, ts); err != nil {
		logger.Warn("Failed to store bot reply ts", zap.Error(err))
	}
}

// retryOrPark maps a processing error to an outcome: retryable errors
// requeue until the retry budget runs out, everything else goes straight
// to the DLQ.
func (h *ClassifyHandler) retryOrPark(ctx context.Context, data json.RawMessage, thoughtID string, err error) (mq.Outcome, error) {
	retryable, category := util.IsRetryableError(err)
	if !retryable {
		h.logger.Error("Non-retryable classification failure",
			zap.String("thought_id", thoughtID),
			zap.String("category", category),
			zap.Error(err),
		)
		h.parkPoison(data, err.Error())
		return mq.OutcomeAlreadyDone, nil
	}

	count, counterErr := h.retryCounter.IncrementAndGet(ctx, util.FormatRetryKey(handlerClassify, thoughtID))
	if counterErr == nil && count > maxClassifyRetries {
		h.logger.Error("Classification retry budget exhausted",
			zap.String("thought_id", thoughtID),
			zap.Int64("attempts", count),
			zap.Error(err),
		)
		h.parkPoison(data, err.Error())
		return mq.OutcomeAlreadyDone, nil
	}

	return mq.OutcomeRetry, err
}

func (h *ClassifyHandler) parkPoison(data []byte, reason string) {
	if err := h.dlq.PublishToDLQ(contracts.RoutingKeyClassify, data, reason); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
	}
}
