package model

import "time"

// DigestDelivery is the append-only record of one sent digest. The
// uniqueness of (slack_user_id, period_start) is the sole idempotency
// mechanism for digest sends.
type DigestDelivery struct {
	ID               string    `json:"id"`
	SlackUserID      string    `json:"slack_user_id"`
	DeliveredAt      time.Time `json:"delivered_at"`
	ItemCount        int       `json:"item_count"`
	SnoozedItemCount int       `json:"snoozed_item_count"`
	SlackMessageTS   *string   `json:"slack_message_ts"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
}
