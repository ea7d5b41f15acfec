package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thoughtcapture/internal/model"
)

func prefsAt(day, hour, minute int, tz string) model.UserPrefs {
	return model.UserPrefs{
		SlackUserID:  "U123",
		DigestDay:    day,
		DigestHour:   hour,
		DigestMinute: minute,
		Timezone:     tz,
	}
}

func TestIsDigestDue_InsideWindow(t *testing.T) {
	// Monday 09:00 UTC trigger, checked at 09:05.
	prefs := prefsAt(1, 9, 0, "UTC")
	now := time.Date(2026, 1, 5, 9, 5, 0, 0, time.UTC)
	assert.True(t, IsDigestDue(prefs, now))
}

func TestIsDigestDue_WindowBoundaries(t *testing.T) {
	prefs := prefsAt(1, 9, 0, "UTC")

	atTrigger := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	assert.True(t, IsDigestDue(prefs, atTrigger), "window start is inclusive")

	lastMinute := time.Date(2026, 1, 5, 9, 14, 59, 0, time.UTC)
	assert.True(t, IsDigestDue(prefs, lastMinute))

	atEnd := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)
	assert.False(t, IsDigestDue(prefs, atEnd), "window end is exclusive")

	before := time.Date(2026, 1, 5, 8, 59, 0, 0, time.UTC)
	assert.False(t, IsDigestDue(prefs, before))
}

func TestIsDigestDue_WeekWraparound(t *testing.T) {
	// Sunday 23:55 trigger: the window spills into Monday.
	prefs := prefsAt(0, 23, 55, "UTC")

	sunday := time.Date(2026, 1, 4, 23, 57, 0, 0, time.UTC)
	assert.True(t, IsDigestDue(prefs, sunday))

	mondayInside := time.Date(2026, 1, 5, 0, 9, 59, 0, time.UTC)
	assert.True(t, IsDigestDue(prefs, mondayInside))

	mondayOutside := time.Date(2026, 1, 5, 0, 10, 0, 0, time.UTC)
	assert.False(t, IsDigestDue(prefs, mondayOutside))
}

func TestIsDigestDue_TimezoneAcrossDST(t *testing.T) {
	// Monday 09:00 in New York fires at 14:00 UTC in winter and 13:00
	// UTC in summer; both instants are inside the window.
	prefs := prefsAt(1, 9, 0, "America/New_York")

	winter := time.Date(2026, 1, 5, 14, 5, 0, 0, time.UTC)
	assert.True(t, IsDigestDue(prefs, winter))

	summer := time.Date(2026, 6, 1, 13, 5, 0, 0, time.UTC)
	assert.True(t, IsDigestDue(prefs, summer))

	// The summer instant read as winter offset must not fire.
	summerWrongOffset := time.Date(2026, 6, 1, 14, 20, 0, 0, time.UTC)
	assert.False(t, IsDigestDue(prefs, summerWrongOffset))
}

func TestIsDigestDue_FailsClosed(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 5, 0, 0, time.UTC)

	assert.False(t, IsDigestDue(prefsAt(1, 9, 0, "Not/AZone"), now))
	assert.False(t, IsDigestDue(prefsAt(7, 9, 0, "UTC"), now))
	assert.False(t, IsDigestDue(prefsAt(-1, 9, 0, "UTC"), now))
	assert.False(t, IsDigestDue(prefsAt(1, 24, 0, "UTC"), now))
	assert.False(t, IsDigestDue(prefsAt(1, 9, 60, "UTC"), now))
}

func TestComputeDigestPeriod(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 5, 42, 123456, time.UTC)

	start, end := ComputeDigestPeriod(now)

	require.Equal(t, time.Date(2026, 1, 5, 9, 5, 0, 0, time.UTC), end, "end truncates to the minute")
	assert.Equal(t, end.Add(-7*24*time.Hour), start)
}

func TestComputeDigestPeriod_StableWithinMinute(t *testing.T) {
	a := time.Date(2026, 1, 5, 9, 5, 1, 0, time.UTC)
	b := time.Date(2026, 1, 5, 9, 5, 59, 0, time.UTC)

	startA, endA := ComputeDigestPeriod(a)
	startB, endB := ComputeDigestPeriod(b)

	assert.Equal(t, startA, startB)
	assert.Equal(t, endA, endB)
}
