package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"thoughtcapture/internal/model"
)

type DeliveryRepository struct {
	db *pgxpool.Pool
}

func NewDeliveryRepository(db *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// HasDeliveryForPeriod reports whether a digest was already recorded for
// this user and period start. Used as a cheap precheck; the unique
// constraint on insert is the authoritative guard.
func (r *DeliveryRepository) HasDeliveryForPeriod(ctx context.Context, userID string, periodStart time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM digest_deliveries
			WHERE slack_user_id = $1 AND period_start = $2
		)
	`, userID, periodStart).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check delivery: %w", err)
	}
	return exists, nil
}

type InsertDeliveryParams struct {
	SlackUserID      string
	ItemCount        int
	SnoozedItemCount int
	SlackMessageTS   *string
	PeriodStart      time.Time
	PeriodEnd        time.Time
}

// Insert records a delivery. Returns false without error when a record
// for (slack_user_id, period_start) already exists, which the caller
// treats as a benign race with a concurrent delivery attempt.
func (r *DeliveryRepository) Insert(ctx context.Context, params InsertDeliveryParams) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO digest_deliveries (id, slack_user_id, delivered_at, item_count, snoozed_item_count, slack_message_ts, period_start, period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (slack_user_id, period_start) DO NOTHING
	`, uuid.NewString(), params.SlackUserID, time.Now().UTC(),
		params.ItemCount, params.SnoozedItemCount, params.SlackMessageTS,
		params.PeriodStart, params.PeriodEnd)
	if err != nil {
		return false, fmt.Errorf("failed to insert delivery: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindBySlackMessageTS resolves a delivery from the digest message a user
// interacted with. Returns (nil, nil) when unknown.
func (r *DeliveryRepository) FindBySlackMessageTS(ctx context.Context, ts string) (*model.DigestDelivery, error) {
	var d model.DigestDelivery
	err := r.db.QueryRow(ctx, `
		SELECT id, slack_user_id, delivered_at, item_count, snoozed_item_count, slack_message_ts, period_start, period_end
		FROM digest_deliveries
		WHERE slack_message_ts = $1
	`, ts).Scan(
		&d.ID, &d.SlackUserID, &d.DeliveredAt, &d.ItemCount,
		&d.SnoozedItemCount, &d.SlackMessageTS, &d.PeriodStart, &d.PeriodEnd,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find delivery: %w", err)
	}
	return &d, nil
}

// HasDeliverySince reports whether the user got any digest after the
// cutoff. The scheduler uses it to suppress duplicate enqueues when scan
// windows overlap.
func (r *DeliveryRepository) HasDeliverySince(ctx context.Context, userID string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM digest_deliveries
			WHERE slack_user_id = $1 AND delivered_at > $2
		)
	`, userID, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recent delivery: %w", err)
	}
	return exists, nil
}

// CountSince counts deliveries after the cutoff, for engagement metrics.
func (r *DeliveryRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM digest_deliveries WHERE delivered_at > $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count deliveries: %w", err)
	}
	return count, nil
}
