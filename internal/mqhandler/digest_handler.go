package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	contracts "thoughtcapture/contracts/mq"
	"thoughtcapture/internal/service"
	"thoughtcapture/pkg/mq"
	"thoughtcapture/pkg/util"
)

const (
	maxDeliverRetries = 5
	handlerDeliver    = "deliver"
)

type digestDeliverer interface {
	Deliver(ctx context.Context, job contracts.DigestDeliveryJob) (service.DeliveryOutcome, error)
}

// DigestHandler consumes digest delivery jobs. Failures before the Slack
// send are always safe to retry; the delivery record keeps a retry after
// the send from producing a second digest.
type DigestHandler struct {
	digests      digestDeliverer
	dlq          dlqPublisher
	retryCounter retryCounter
	logger       *zap.Logger
}

func NewDigestHandler(
	digests digestDeliverer,
	dlq dlqPublisher,
	counter retryCounter,
	logger *zap.Logger,
) *DigestHandler {
	return &DigestHandler{
		digests:      digests,
		dlq:          dlq,
		retryCounter: counter,
		logger:       logger,
	}
}

func (h *DigestHandler) Handle(ctx context.Context, data json.RawMessage) (mq.Outcome, error) {
	var job contracts.DigestDeliveryJob
	if err := json.Unmarshal(data, &job); err != nil {
		h.parkPoison(data, fmt.Sprintf("malformed delivery job: %v", err))
		return mq.OutcomeAlreadyDone, nil
	}

	retryKey := util.FormatRetryKey(handlerDeliver, job.UserID+":"+job.PeriodStart.UTC().Format("20060102T1504"))

	outcome, err := h.digests.Deliver(ctx, job)
	if err != nil {
		retryable, category := util.IsRetryableError(err)
		if !retryable {
			h.logger.Error("Non-retryable delivery failure",
				zap.String("user_id", job.UserID),
				zap.String("category", category),
				zap.Error(err),
			)
			h.parkPoison(data, err.Error())
			return mq.OutcomeAlreadyDone, nil
		}

		count, counterErr := h.retryCounter.IncrementAndGet(ctx, retryKey)
		if counterErr == nil && count > maxDeliverRetries {
			h.logger.Error("Delivery retry budget exhausted",
				zap.String("user_id", job.UserID),
				zap.Int64("attempts", count),
				zap.Error(err),
			)
			h.parkPoison(data, err.Error())
			return mq.OutcomeAlreadyDone, nil
		}
		return mq.OutcomeRetry, err
	}

	if err := h.retryCounter.Reset(ctx, retryKey); err != nil {
		h.logger.Warn("Failed to reset retry counter", zap.Error(err))
	}

	if outcome == service.DeliveryAlreadySent {
		return mq.OutcomeAlreadyDone, nil
	}
	return mq.OutcomeApplied, nil
}

func (h *DigestHandler) parkPoison(data []byte, reason string) {
	if err := h.dlq.PublishToDLQ(contracts.RoutingKeyDeliver, data, reason); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
	}
}
