package service

import (
	"time"

	"thoughtcapture/internal/model"
)

const (
	minutesPerWeek   = 7 * 24 * 60
	digestWindowMins = 15
	digestPeriodSpan = 7 * 24 * time.Hour
)

// IsDigestDue reports whether now falls inside the 15-minute window that
// starts at the user's weekly trigger point, evaluated in the user's
// timezone. Invalid timezones or out-of-range trigger fields fail closed:
// a digest silently skipped is recoverable, a digest sent at the wrong
// time is not.
func IsDigestDue(prefs model.UserPrefs, now time.Time) bool {
	if prefs.DigestDay < 0 || prefs.DigestDay > 6 {
		return false
	}
	if prefs.DigestHour < 0 || prefs.DigestHour > 23 {
		return false
	}
	if prefs.DigestMinute < 0 || prefs.DigestMinute > 59 {
		return false
	}

	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		return false
	}

	local := now.In(loc)
	nowMinute := int(local.Weekday())*24*60 + local.Hour()*60 + local.Minute()
	triggerMinute := prefs.DigestDay*24*60 + prefs.DigestHour*60 + prefs.DigestMinute

	// Wrap-around distance from trigger to now, so a Sunday 23:55 trigger
	// still matches a few minutes into Monday.
	diff := (nowMinute - triggerMinute + minutesPerWeek) % minutesPerWeek
	return diff < digestWindowMins
}

// ComputeDigestPeriod returns the [start, end) capture window for a digest
// fired at now. Truncated to the minute so retries within the same firing
// window compute an identical period_start.
func ComputeDigestPeriod(now time.Time) (start, end time.Time) {
	end = now.UTC().Truncate(time.Minute)
	start = end.Add(-digestPeriodSpan)
	return start, end
}
