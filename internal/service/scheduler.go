package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	contracts "thoughtcapture/contracts/mq"
	"thoughtcapture/internal/model"
	"thoughtcapture/internal/repository"
)

// Catch-up bounds: thoughts are re-enqueued only once they are clearly
// stuck (older than the grace period) but recent enough to still matter.
const (
	catchUpGrace   = 5 * time.Minute
	catchUpHorizon = time.Hour

	// Suppresses duplicate enqueues when scan windows overlap after a
	// restart. Far below the weekly cadence, so it never skips a real
	// digest.
	recentDeliveryGuard = time.Hour
)

type schedulerPrefsStore interface {
	FindAll(ctx context.Context) ([]model.UserPrefs, error)
}

type schedulerDeliveryStore interface {
	HasDeliverySince(ctx context.Context, userID string, since time.Time) (bool, error)
}

type schedulerThoughtStore interface {
	FindStaleUnclassified(ctx context.Context, olderThan, newerThan time.Time) ([]repository.StaleThought, error)
}

type jobPublisher interface {
	Publish(routingKey string, payload any) error
}

// SchedulerService owns the periodic scans: firing due digests and
// re-enqueueing thoughts whose classification job got lost.
type SchedulerService struct {
	prefs      schedulerPrefsStore
	deliveries schedulerDeliveryStore
	thoughts   schedulerThoughtStore
	publisher  jobPublisher
	access     *AccessChecker
	logger     *zap.Logger
}

func NewSchedulerService(
	prefs schedulerPrefsStore,
	deliveries schedulerDeliveryStore,
	thoughts schedulerThoughtStore,
	publisher jobPublisher,
	access *AccessChecker,
	logger *zap.Logger,
) *SchedulerService {
	return &SchedulerService{
		prefs:      prefs,
		deliveries: deliveries,
		thoughts:   thoughts,
		publisher:  publisher,
		access:     access,
		logger:     logger,
	}
}

// ScanDueDigests enqueues a delivery job for every user whose trigger
// window contains now. The job carries the period so retries deliver the
// same digest; the consumer's delivery record is the real idempotency
// guard.
func (s *SchedulerService) ScanDueDigests(ctx context.Context) {
	now := time.Now().UTC()

	prefs, err := s.prefs.FindAll(ctx)
	if err != nil {
		s.logger.Error("Digest scan failed to load prefs", zap.Error(err))
		return
	}

	enqueued := 0
	for _, p := range prefs {
		if allowed, _ := s.access.Check(p.SlackUserID); !allowed {
			continue
		}
		if !IsDigestDue(p, now) {
			continue
		}

		recent, err := s.deliveries.HasDeliverySince(ctx, p.SlackUserID, now.Add(-recentDeliveryGuard))
		if err != nil {
			s.logger.Error("Digest scan delivery check failed",
				zap.String("user_id", p.SlackUserID), zap.Error(err))
			continue
		}
		if recent {
			continue
		}

		start, end := ComputeDigestPeriod(now)
		job := contracts.DigestDeliveryJob{
			UserID:      p.SlackUserID,
			PeriodStart: start,
			PeriodEnd:   end,
		}
		if err := s.publisher.Publish(contracts.RoutingKeyDeliver, job); err != nil {
			s.logger.Error("Failed to enqueue digest delivery",
				zap.String("user_id", p.SlackUserID), zap.Error(err))
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		s.logger.Info("Enqueued digest deliveries", zap.Int("count", enqueued))
	}
}

// ScanStaleUnclassified re-enqueues classification jobs for thoughts that
// never got a label. The guarded classification update makes a duplicate
// job harmless.
func (s *SchedulerService) ScanStaleUnclassified(ctx context.Context) {
	now := time.Now().UTC()

	stale, err := s.thoughts.FindStaleUnclassified(ctx, now.Add(-catchUpGrace), now.Add(-catchUpHorizon))
	if err != nil {
		s.logger.Error("Catch-up scan failed", zap.Error(err))
		return
	}

	for _, t := range stale {
		job := contracts.ClassificationJob{ThoughtID: t.ID, UserID: t.SlackUserID}
		if err := s.publisher.Publish(contracts.RoutingKeyClassify, job); err != nil {
			s.logger.Error("Failed to re-enqueue classification",
				zap.String("thought_id", t.ID), zap.Error(err))
		}
	}

	if len(stale) > 0 {
		s.logger.Info("Re-enqueued stale classifications", zap.Int("count", len(stale)))
	}
}
