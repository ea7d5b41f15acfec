package model

import "time"

// Classification is the category axis of a thought. It moves off
// Unclassified exactly once on the automatic path; user overrides may
// rewrite it afterwards.
type Classification string

const (
	ClassificationUnclassified   Classification = "unclassified"
	ClassificationActionRequired Classification = "action_required"
	ClassificationReference      Classification = "reference"
	ClassificationNoise          Classification = "noise"
)

// IsFinal reports whether c is one of the three assignable labels.
func (c Classification) IsFinal() bool {
	switch c {
	case ClassificationActionRequired, ClassificationReference, ClassificationNoise:
		return true
	}
	return false
}

// Label returns the user-facing name of a classification.
func (c Classification) Label() string {
	switch c {
	case ClassificationActionRequired:
		return "Action Required"
	case ClassificationReference:
		return "Reference"
	case ClassificationNoise:
		return "Noise"
	default:
		return "Unclassified"
	}
}

// ParseClassification maps a classifier or override token to a label.
func ParseClassification(s string) (Classification, bool) {
	switch s {
	case "action_required":
		return ClassificationActionRequired, true
	case "reference":
		return ClassificationReference, true
	case "noise":
		return ClassificationNoise, true
	}
	return "", false
}

// ClassificationSource records which path set the classification.
type ClassificationSource string

const (
	SourcePending      ClassificationSource = "pending"
	SourceLLM          ClassificationSource = "llm"
	SourceUserOverride ClassificationSource = "user_override"
)

// Status is the workflow axis of a thought. ActedOn and Dismissed are
// terminal: every later transition attempt is a no-op.
type Status string

const (
	StatusOpen      Status = "open"
	StatusActedOn   Status = "acted_on"
	StatusSnoozed   Status = "snoozed"
	StatusDismissed Status = "dismissed"
)

func (s Status) IsTerminal() bool {
	return s == StatusActedOn || s == StatusDismissed
}

type Thought struct {
	ID                      string               `json:"id"`
	SlackUserID             string               `json:"slack_user_id"`
	SlackMessageTS          string               `json:"slack_message_ts"`
	Text                    *string              `json:"text"`
	Classification          Classification       `json:"classification"`
	ClassificationSource    ClassificationSource `json:"classification_source"`
	ClassificationModel     *string              `json:"classification_model"`
	ClassificationLatencyMS *int64               `json:"classification_latency_ms"`
	Status                  Status               `json:"status"`
	SnoozeUntil             *time.Time           `json:"snooze_until"`
	CreatedAt               time.Time            `json:"created_at"`
	ClassifiedAt            *time.Time           `json:"classified_at"`
	StatusChangedAt         *time.Time           `json:"status_changed_at"`
	TextPurgedAt            *time.Time           `json:"text_purged_at"`
	BotReplyTS              *string              `json:"bot_reply_ts"`
}
