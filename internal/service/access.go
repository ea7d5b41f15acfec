package service

import (
	"strings"

	"thoughtcapture/config"
)

const (
	msgFeatureDisabled = "Thought capture is currently switched off. Check back later."
	msgNotEnrolled     = "Thought capture isn't enabled for your account yet."
)

// AccessChecker gates every inbound surface on the global kill switch and
// the per-user allow list. An empty allow list with the feature enabled
// means everyone is in.
type AccessChecker struct {
	enabled bool
	allowed map[string]struct{}
}

func NewAccessChecker(cfg config.FeatureConfig) *AccessChecker {
	checker := &AccessChecker{enabled: cfg.Enabled}
	ids := strings.Split(cfg.EnabledUserIDs, ",")
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if checker.allowed == nil {
			checker.allowed = make(map[string]struct{})
		}
		checker.allowed[id] = struct{}{}
	}
	return checker
}

// Check returns whether the user may use the feature, and a user-facing
// message when not.
func (a *AccessChecker) Check(userID string) (bool, string) {
	if !a.enabled {
		return false, msgFeatureDisabled
	}
	if a.allowed != nil {
		if _, ok := a.allowed[userID]; !ok {
			return false, msgNotEnrolled
		}
	}
	return true, ""
}
