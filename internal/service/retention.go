package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Retention windows. Text is scrubbed first so even rows kept for the
// acted_on exemption lose their content.
const (
	textRetention   = 90 * 24 * time.Hour
	recordRetention = 180 * 24 * time.Hour
)

type retentionThoughtStore interface {
	PurgeExpired(ctx context.Context, cutoff90, cutoff180 time.Time) (textsPurged, recordsDeleted int64, err error)
}

type retentionAnalyticsStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type RetentionResult struct {
	TextsPurged    int64 `json:"texts_purged"`
	RecordsDeleted int64 `json:"records_deleted"`
	EventsDeleted  int64 `json:"events_deleted"`
}

// RetentionService runs the daily privacy sweep.
type RetentionService struct {
	thoughts  retentionThoughtStore
	analytics retentionAnalyticsStore
	logger    *zap.Logger
}

func NewRetentionService(
	thoughts retentionThoughtStore,
	analytics retentionAnalyticsStore,
	logger *zap.Logger,
) *RetentionService {
	return &RetentionService{thoughts: thoughts, analytics: analytics, logger: logger}
}

func (s *RetentionService) Run(ctx context.Context) (*RetentionResult, error) {
	now := time.Now().UTC()

	purged, deleted, err := s.thoughts.PurgeExpired(ctx, now.Add(-textRetention), now.Add(-recordRetention))
	if err != nil {
		return nil, fmt.Errorf("retention sweep: %w", err)
	}

	eventsDeleted, err := s.analytics.DeleteOlderThan(ctx, now.Add(-recordRetention))
	if err != nil {
		return nil, fmt.Errorf("analytics prune: %w", err)
	}

	result := &RetentionResult{
		TextsPurged:    purged,
		RecordsDeleted: deleted,
		EventsDeleted:  eventsDeleted,
	}

	s.logger.Info("Retention sweep complete",
		zap.Int64("texts_purged", result.TextsPurged),
		zap.Int64("records_deleted", result.RecordsDeleted),
		zap.Int64("events_deleted", result.EventsDeleted),
	)
	return result, nil
}
