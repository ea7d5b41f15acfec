package mq

import "time"

// Routing keys for the two background queues.
const (
	RoutingKeyClassify = "thought.classify"
	RoutingKeyDeliver  = "digest.deliver"
)

// ClassificationJob asks a worker to classify one captured thought.
type ClassificationJob struct {
	ThoughtID string `json:"thought_id"`
	UserID    string `json:"user_id"`
}

// DigestDeliveryJob asks a worker to deliver one user's digest for the
// given trailing 7-day period.
type DigestDeliveryJob struct {
	UserID      string    `json:"user_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}
