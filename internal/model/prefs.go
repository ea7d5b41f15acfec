package model

import "time"

// UserPrefs holds one user's digest trigger point and timezone.
// Exactly one row per user; upsert-only.
type UserPrefs struct {
	SlackUserID  string    `json:"slack_user_id"`
	DigestDay    int       `json:"digest_day"`    // 0=Sunday .. 6=Saturday
	DigestHour   int       `json:"digest_hour"`   // 0..23
	DigestMinute int       `json:"digest_minute"` // 0..59
	Timezone     string    `json:"timezone"`      // IANA name
	Welcomed     bool      `json:"welcomed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
