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
	"thoughtcapture/pkg/outbox"
)

// Lookback floor for unclassified items in the digest query. Snoozed items
// intentionally have no creation-time bound: once due they re-surface
// regardless of original capture time.
const unclassifiedDigestLookback = 30 * 24 * time.Hour

const thoughtColumns = `
	id, slack_user_id, slack_message_ts, text,
	classification, classification_source, classification_model, classification_latency_ms,
	status, snooze_until, created_at, classified_at, status_changed_at, text_purged_at, bot_reply_ts`

type ThoughtRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
}

func NewThoughtRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository) *ThoughtRepository {
	return &ThoughtRepository{db: db, outboxRepo: outboxRepo}
}

type InsertThoughtParams struct {
	SlackUserID    string
	SlackMessageTS string
	Text           string

	// ID may be pre-assigned by the caller so the outbox payload can carry
	// it; generated here when empty.
	ID string
}

// Insert creates a thought. Idempotent via ON CONFLICT (slack_message_ts)
// DO NOTHING; returns (nil, nil) when the source message was already
// captured.
func (r *ThoughtRepository) Insert(ctx context.Context, params InsertThoughtParams) (*model.Thought, error) {
	return r.insert(ctx, r.db, params)
}

// InsertWithOutboxEvent creates a thought and its outbox event in one
// transaction. A duplicate capture inserts nothing, including the event.
func (r *ThoughtRepository) InsertWithOutboxEvent(ctx context.Context, params InsertThoughtParams, event *outbox.Event) (*model.Thought, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin capture tx: %w", err)
	}
	defer tx.Rollback(ctx)

	thought, err := r.insert(ctx, tx, params)
	if err != nil {
		return nil, err
	}
	if thought == nil {
		return nil, nil
	}

	event.AggregateID = &thought.ID
	if err := r.outboxRepo.InsertEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit capture tx: %w", err)
	}

	return thought, nil
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *ThoughtRepository) insert(ctx context.Context, q queryer, params InsertThoughtParams) (*model.Thought, error) {
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO thoughts (id, slack_user_id, slack_message_ts, text, classification, classification_source, status, created_at)
		VALUES ($1, $2, $3, $4, 'unclassified', 'pending', 'open', $5)
		ON CONFLICT (slack_message_ts) DO NOTHING
		RETURNING id
	`

	var insertedID string
	err := q.QueryRow(ctx, query, id, params.SlackUserID, params.SlackMessageTS, params.Text, now).Scan(&insertedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // duplicate, silently dropped
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert thought: %w", err)
	}

	text := params.Text
	return &model.Thought{
		ID:                   insertedID,
		SlackUserID:          params.SlackUserID,
		SlackMessageTS:       params.SlackMessageTS,
		Text:                 &text,
		Classification:       model.ClassificationUnclassified,
		ClassificationSource: model.SourcePending,
		Status:               model.StatusOpen,
		CreatedAt:            now,
	}, nil
}

// FindByID returns (nil, nil) when the thought does not exist.
func (r *ThoughtRepository) FindByID(ctx context.Context, id string) (*model.Thought, error) {
	return r.findOne(ctx, `SELECT`+thoughtColumns+` FROM thoughts WHERE id = $1`, id)
}

func (r *ThoughtRepository) FindByMessageTS(ctx context.Context, ts string) (*model.Thought, error) {
	return r.findOne(ctx, `SELECT`+thoughtColumns+` FROM thoughts WHERE slack_message_ts = $1`, ts)
}

// FindByBotReplyTS resolves a thought from the classification reply it
// received, for emoji reaction overrides.
func (r *ThoughtRepository) FindByBotReplyTS(ctx context.Context, ts string) (*model.Thought, error) {
	return r.findOne(ctx, `SELECT`+thoughtColumns+` FROM thoughts WHERE bot_reply_ts = $1`, ts)
}

// FindMostRecentByUser returns the user's newest thought within 24 hours,
// excluding the message that triggered the lookup. Used by text overrides.
func (r *ThoughtRepository) FindMostRecentByUser(ctx context.Context, userID, excludeMessageTS string) (*model.Thought, error) {
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	query := `SELECT` + thoughtColumns + `
		FROM thoughts
		WHERE slack_user_id = $1
		  AND created_at > $2
		  AND slack_message_ts != $3
		ORDER BY created_at DESC
		LIMIT 1`
	return r.findOne(ctx, query, userID, cutoff, excludeMessageTS)
}

// CountByUserSince counts captures for the per-user rate guard.
func (r *ThoughtRepository) CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM thoughts
		WHERE slack_user_id = $1 AND created_at > $2
	`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count thoughts: %w", err)
	}
	return count, nil
}

// UpdateClassification sets the classification only if it is still
// unclassified. Returns whether the update took effect; a false return
// means another worker or an override already won the race and the caller
// must skip all downstream side effects.
func (r *ThoughtRepository) UpdateClassification(
	ctx context.Context,
	id string,
	classification model.Classification,
	source model.ClassificationSource,
	modelName string,
	latencyMS int64,
) (bool, error) {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE thoughts
		SET classification = $1, classification_source = $2,
		    classification_model = $3, classification_latency_ms = $4,
		    classified_at = $5
		WHERE id = $6 AND classification = 'unclassified'
	`, classification, source, modelName, latencyMS, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to update classification: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// OverrideClassification rewrites the classification unconditionally and
// marks the source as user_override. Ownership and rate checks happen in
// the service layer before this is called.
func (r *ThoughtRepository) OverrideClassification(ctx context.Context, id string, classification model.Classification) (bool, error) {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE thoughts
		SET classification = $1, classification_source = 'user_override',
		    classified_at = $2, status_changed_at = $2
		WHERE id = $3
	`, classification, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to override classification: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateBotReplyTS stores the classification reply's message ts for emoji
// override lookup.
func (r *ThoughtRepository) UpdateBotReplyTS(ctx context.Context, id, botReplyTS string) error {
	_, err := r.db.Exec(ctx, `UPDATE thoughts SET bot_reply_ts = $1 WHERE id = $2`, botReplyTS, id)
	if err != nil {
		return fmt.Errorf("failed to update bot reply ts: %w", err)
	}
	return nil
}

// UpdateStatus transitions the workflow status, guarded so terminal states
// absorb all further attempts. Returns whether the transition took effect;
// false is a successful idempotent no-op (a duplicate button tap).
func (r *ThoughtRepository) UpdateStatus(ctx context.Context, id string, status model.Status, snoozeUntil *time.Time) (bool, error) {
	now := time.Now().UTC()

	if status == model.StatusSnoozed && snoozeUntil != nil {
		tag, err := r.db.Exec(ctx, `
			UPDATE thoughts
			SET status = $1, snooze_until = $2, status_changed_at = $3
			WHERE id = $4
			  AND status NOT IN ('acted_on', 'dismissed')
		`, status, *snoozeUntil, now, id)
		if err != nil {
			return false, fmt.Errorf("failed to update status: %w", err)
		}
		return tag.RowsAffected() > 0, nil
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE thoughts
		SET status = $1, status_changed_at = $2
		WHERE id = $3
		  AND status NOT IN ('acted_on', 'dismissed')
	`, status, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to update status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindDigestItems gathers digest candidates: open action items created in
// the period, snoozed items that are due, and recent unclassified items.
func (r *ThoughtRepository) FindDigestItems(ctx context.Context, userID string, periodStart, periodEnd, now time.Time) ([]model.Thought, error) {
	unclassifiedFloor := now.Add(-unclassifiedDigestLookback)

	rows, err := r.db.Query(ctx, `SELECT`+thoughtColumns+`
		FROM thoughts
		WHERE slack_user_id = $1
		  AND (
		    (classification = 'action_required' AND status = 'open'
		     AND created_at >= $2 AND created_at < $3)
		    OR (status = 'snoozed' AND snooze_until <= $4)
		    OR (classification = 'unclassified' AND status = 'open'
		        AND created_at >= $5 AND created_at < $3)
		  )
		ORDER BY created_at ASC
	`, userID, periodStart, periodEnd, now, unclassifiedFloor)
	if err != nil {
		return nil, fmt.Errorf("failed to query digest items: %w", err)
	}
	defer rows.Close()

	return scanThoughts(rows)
}

// CountByClassification breaks down a user's captures in a period, for the
// empty-week summary.
func (r *ThoughtRepository) CountByClassification(ctx context.Context, userID string, periodStart, periodEnd time.Time) (map[model.Classification]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT classification, COUNT(*)
		FROM thoughts
		WHERE slack_user_id = $1
		  AND created_at >= $2 AND created_at < $3
		GROUP BY classification
	`, userID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to count by classification: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Classification]int)
	for rows.Next() {
		var c model.Classification
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, fmt.Errorf("failed to scan classification count: %w", err)
		}
		counts[c] = n
	}
	return counts, rows.Err()
}

// PurgeExpired runs the two-phase retention sweep. The purge pass runs
// first so rows that are about to be deleted are also counted as purged.
func (r *ThoughtRepository) PurgeExpired(ctx context.Context, cutoff90, cutoff180 time.Time) (textsPurged, recordsDeleted int64, err error) {
	now := time.Now().UTC()

	purgeTag, err := r.db.Exec(ctx, `
		UPDATE thoughts
		SET text = NULL, text_purged_at = $1
		WHERE created_at < $2
		  AND text IS NOT NULL
	`, now, cutoff90)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to purge thought text: %w", err)
	}

	deleteTag, err := r.db.Exec(ctx, `
		DELETE FROM thoughts
		WHERE created_at < $1
		  AND status != 'acted_on'
	`, cutoff180)
	if err != nil {
		return purgeTag.RowsAffected(), 0, fmt.Errorf("failed to delete expired thoughts: %w", err)
	}

	return purgeTag.RowsAffected(), deleteTag.RowsAffected(), nil
}

type StaleThought struct {
	ID          string
	SlackUserID string
}

// FindStaleUnclassified finds thoughts for the catch-up job: still
// unclassified, older than olderThan but newer than newerThan.
func (r *ThoughtRepository) FindStaleUnclassified(ctx context.Context, olderThan, newerThan time.Time) ([]StaleThought, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, slack_user_id FROM thoughts
		WHERE classification = 'unclassified'
		  AND created_at < $1
		  AND created_at > $2
	`, olderThan, newerThan)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale unclassified thoughts: %w", err)
	}
	defer rows.Close()

	var stale []StaleThought
	for rows.Next() {
		var s StaleThought
		if err := rows.Scan(&s.ID, &s.SlackUserID); err != nil {
			return nil, fmt.Errorf("failed to scan stale thought: %w", err)
		}
		stale = append(stale, s)
	}
	return stale, rows.Err()
}

// CountAll returns total thoughts, for the health endpoint.
func (r *ThoughtRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM thoughts`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count thoughts: %w", err)
	}
	return count, nil
}

// CountAllByClassification returns per-classification totals.
func (r *ThoughtRepository) CountAllByClassification(ctx context.Context) (map[model.Classification]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT classification, COUNT(*) FROM thoughts GROUP BY classification
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by classification: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Classification]int)
	for rows.Next() {
		var c model.Classification
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, fmt.Errorf("failed to scan classification count: %w", err)
		}
		counts[c] = n
	}
	return counts, rows.Err()
}

func (r *ThoughtRepository) findOne(ctx context.Context, query string, args ...any) (*model.Thought, error) {
	var t model.Thought
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&t.ID,
		&t.SlackUserID,
		&t.SlackMessageTS,
		&t.Text,
		&t.Classification,
		&t.ClassificationSource,
		&t.ClassificationModel,
		&t.ClassificationLatencyMS,
		&t.Status,
		&t.SnoozeUntil,
		&t.CreatedAt,
		&t.ClassifiedAt,
		&t.StatusChangedAt,
		&t.TextPurgedAt,
		&t.BotReplyTS,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find thought: %w", err)
	}
	return &t, nil
}

func scanThoughts(rows pgx.Rows) ([]model.Thought, error) {
	thoughts := []model.Thought{}
	for rows.Next() {
		var t model.Thought
		err := rows.Scan(
			&t.ID,
			&t.SlackUserID,
			&t.SlackMessageTS,
			&t.Text,
			&t.Classification,
			&t.ClassificationSource,
			&t.ClassificationModel,
			&t.ClassificationLatencyMS,
			&t.Status,
			&t.SnoozeUntil,
			&t.CreatedAt,
			&t.ClassifiedAt,
			&t.StatusChangedAt,
			&t.TextPurgedAt,
			&t.BotReplyTS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thought: %w", err)
		}
		thoughts = append(thoughts, t)
	}
	return thoughts, rows.Err()
}
