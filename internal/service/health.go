package service

import (
	"context"
	"fmt"
	"time"

	"thoughtcapture/internal/model"
	"thoughtcapture/internal/repository"
)

const (
	activeUserWindow = 14 * 24 * time.Hour
	rateWindow       = 7 * 24 * time.Hour
)

type healthThoughtStore interface {
	CountAll(ctx context.Context) (int, error)
	CountAllByClassification(ctx context.Context) (map[model.Classification]int, error)
}

type healthAnalyticsStore interface {
	CountDistinctUsersSince(ctx context.Context, since time.Time) (int, error)
	CountEventsOfTypeSince(ctx context.Context, eventType string, since time.Time) (int, error)
}

type healthDeliveryStore interface {
	CountSince(ctx context.Context, since time.Time) (int, error)
}

type HealthReport struct {
	TotalThoughts    int            `json:"total_thoughts"`
	ByClassification map[string]int `json:"by_classification"`
	ActiveUsers14d   int            `json:"active_users_14d"`
	OverrideRate7d   float64        `json:"override_rate_7d"`
	EngagementRate7d float64        `json:"engagement_rate_7d"`
	GeneratedAt      time.Time      `json:"generated_at"`
}

// HealthService aggregates usage numbers for the health endpoint. The
// override rate is overrides per classification; the engagement rate is
// digests with at least one interaction per digest sent.
type HealthService struct {
	thoughts   healthThoughtStore
	analytics  healthAnalyticsStore
	deliveries healthDeliveryStore
}

func NewHealthService(thoughts healthThoughtStore, analytics healthAnalyticsStore, deliveries healthDeliveryStore) *HealthService {
	return &HealthService{thoughts: thoughts, analytics: analytics, deliveries: deliveries}
}

func (s *HealthService) Report(ctx context.Context) (*HealthReport, error) {
	now := time.Now().UTC()

	total, err := s.thoughts.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("health totals: %w", err)
	}

	byClass, err := s.thoughts.CountAllByClassification(ctx)
	if err != nil {
		return nil, fmt.Errorf("health breakdown: %w", err)
	}
	breakdown := make(map[string]int, len(byClass))
	for c, n := range byClass {
		breakdown[string(c)] = n
	}

	activeUsers, err := s.analytics.CountDistinctUsersSince(ctx, now.Add(-activeUserWindow))
	if err != nil {
		return nil, fmt.Errorf("health active users: %w", err)
	}

	since := now.Add(-rateWindow)
	classified, err := s.analytics.CountEventsOfTypeSince(ctx, repository.EventThoughtClassified, since)
	if err != nil {
		return nil, fmt.Errorf("health classified count: %w", err)
	}
	overrides, err := s.analytics.CountEventsOfTypeSince(ctx, repository.EventClassificationOverride, since)
	if err != nil {
		return nil, fmt.Errorf("health override count: %w", err)
	}
	// Digest sends are counted from the delivery records, not analytics.
	digestsSent, err := s.deliveries.CountSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("health digest count: %w", err)
	}
	// Engagement events are deduplicated per digest message, so the rate
	// never exceeds 1.0.
	engagements, err := s.analytics.CountEventsOfTypeSince(ctx, repository.EventDigestEngagement, since)
	if err != nil {
		return nil, fmt.Errorf("health engagement count: %w", err)
	}

	report := &HealthReport{
		TotalThoughts:    total,
		ByClassification: breakdown,
		ActiveUsers14d:   activeUsers,
		GeneratedAt:      now,
	}
	if classified > 0 {
		report.OverrideRate7d = float64(overrides) / float64(classified)
	}
	if digestsSent > 0 {
		report.EngagementRate7d = float64(engagements) / float64(digestsSent)
	}
	return report, nil
}
