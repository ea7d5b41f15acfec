package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event type names written to analytics_events.
const (
	EventThoughtCaptured        = "thought_captured"
	EventThoughtClassified      = "thought_classified"
	EventClassificationOverride = "classification_overridden"
	EventDigestSent             = "digest_sent"
	EventDigestActionTaken      = "digest_action_taken"
	EventDigestEngagement       = "digest_engagement"
	EventScheduleChanged        = "schedule_changed"
	EventUserWelcomed           = "user_welcomed"
)

type AnalyticsRepository struct {
	db *pgxpool.Pool
}

func NewAnalyticsRepository(db *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// LogEvent appends one analytics event. Properties may be nil.
func (r *AnalyticsRepository) LogEvent(ctx context.Context, eventType, userID string, properties map[string]any) error {
	props, err := encodeEventProperties(properties)
	if err != nil {
		return fmt.Errorf("failed to marshal event properties: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO analytics_events (id, event_type, slack_user_id, properties, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), eventType, userID, props, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to log analytics event: %w", err)
	}
	return nil
}

// encodeEventProperties always yields a JSON object. A nil map must not
// become SQL NULL: the properties column is NOT NULL and the insert names
// it explicitly, so the column default never applies.
func encodeEventProperties(properties map[string]any) ([]byte, error) {
	if properties == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(properties)
}

// CountEventsSince counts a user's events of one type after the cutoff.
// Backs the override rate guard.
func (r *AnalyticsRepository) CountEventsSince(ctx context.Context, eventType, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM analytics_events
		WHERE event_type = $1 AND slack_user_id = $2 AND created_at > $3
	`, eventType, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count analytics events: %w", err)
	}
	return count, nil
}

// CountDistinctUsersSince counts users with any event after the cutoff,
// for the active-user health metric.
func (r *AnalyticsRepository) CountDistinctUsersSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT slack_user_id) FROM analytics_events WHERE created_at > $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return count, nil
}

// HasDigestEngagement reports whether an engagement event was already
// recorded for the digest message. One engagement per digest message.
func (r *AnalyticsRepository) HasDigestEngagement(ctx context.Context, messageTS string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM analytics_events
			WHERE event_type = $1 AND properties->>'message_ts' = $2
		)
	`, EventDigestEngagement, messageTS).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check digest engagement: %w", err)
	}
	return exists, nil
}

// CountEventsOfTypeSince counts events of one type across all users.
func (r *AnalyticsRepository) CountEventsOfTypeSince(ctx context.Context, eventType string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM analytics_events
		WHERE event_type = $1 AND created_at > $2
	`, eventType, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count analytics events: %w", err)
	}
	return count, nil
}

// DeleteOlderThan prunes old analytics events during retention sweeps.
func (r *AnalyticsRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM analytics_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete analytics events: %w", err)
	}
	return tag.RowsAffected(), nil
}
