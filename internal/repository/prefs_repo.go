package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"thoughtcapture/internal/model"
)

// Trigger defaults for users who never ran the schedule command.
const (
	DefaultDigestDay    = 1 // Monday
	DefaultDigestHour   = 9
	DefaultDigestMinute = 0
	DefaultTimezone     = "America/New_York"
)

type PrefsRepository struct {
	db *pgxpool.Pool
}

func NewPrefsRepository(db *pgxpool.Pool) *PrefsRepository {
	return &PrefsRepository{db: db}
}

// FindByUserID returns (nil, nil) when the user has no prefs row.
func (r *PrefsRepository) FindByUserID(ctx context.Context, userID string) (*model.UserPrefs, error) {
	var p model.UserPrefs
	err := r.db.QueryRow(ctx, `
		SELECT slack_user_id, digest_day, digest_hour, digest_minute, timezone, welcomed, created_at, updated_at
		FROM user_prefs
		WHERE slack_user_id = $1
	`, userID).Scan(
		&p.SlackUserID, &p.DigestDay, &p.DigestHour, &p.DigestMinute,
		&p.Timezone, &p.Welcomed, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user prefs: %w", err)
	}
	return &p, nil
}

// UpsertSchedule sets a user's digest trigger, creating the row with
// defaults for the untouched columns when it does not exist yet.
func (r *PrefsRepository) UpsertSchedule(ctx context.Context, userID string, day, hour, minute int, timezone string) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_prefs (slack_user_id, digest_day, digest_hour, digest_minute, timezone, welcomed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $6)
		ON CONFLICT (slack_user_id) DO UPDATE
		SET digest_day = $2, digest_hour = $3, digest_minute = $4, timezone = $5, updated_at = $6
	`, userID, day, hour, minute, timezone, now)
	if err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}
	return nil
}

// MarkWelcomed flips the welcomed flag, creating a default row for a
// brand-new user.
func (r *PrefsRepository) MarkWelcomed(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_prefs (slack_user_id, digest_day, digest_hour, digest_minute, timezone, welcomed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
		ON CONFLICT (slack_user_id) DO UPDATE
		SET welcomed = TRUE, updated_at = $6
	`, userID, DefaultDigestDay, DefaultDigestHour, DefaultDigestMinute, DefaultTimezone, now)
	if err != nil {
		return fmt.Errorf("failed to mark user welcomed: %w", err)
	}
	return nil
}

// SetTimezone updates only the timezone, used when a user's Slack profile
// timezone is resolved at capture time.
func (r *PrefsRepository) SetTimezone(ctx context.Context, userID, timezone string) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_prefs (slack_user_id, digest_day, digest_hour, digest_minute, timezone, welcomed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $6)
		ON CONFLICT (slack_user_id) DO UPDATE
		SET timezone = $5, updated_at = $6
	`, userID, DefaultDigestDay, DefaultDigestHour, DefaultDigestMinute, timezone, now)
	if err != nil {
		return fmt.Errorf("failed to set timezone: %w", err)
	}
	return nil
}

// FindAll returns every prefs row. The scheduler scans all of them each
// tick; user counts are small enough that pagination is not needed.
func (r *PrefsRepository) FindAll(ctx context.Context) ([]model.UserPrefs, error) {
	rows, err := r.db.Query(ctx, `
		SELECT slack_user_id, digest_day, digest_hour, digest_minute, timezone, welcomed, created_at, updated_at
		FROM user_prefs
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query user prefs: %w", err)
	}
	defer rows.Close()

	prefs := []model.UserPrefs{}
	for rows.Next() {
		var p model.UserPrefs
		err := rows.Scan(
			&p.SlackUserID, &p.DigestDay, &p.DigestHour, &p.DigestMinute,
			&p.Timezone, &p.Welcomed, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user prefs: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}
