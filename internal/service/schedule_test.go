package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"thoughtcapture/internal/model"
)

func TestParseScheduleCommand(t *testing.T) {
	cases := []struct {
		text   string
		day    int
		hour   int
		minute int
		ok     bool
	}{
		{"schedule monday 09:00", 1, 9, 0, true},
		{"schedule Friday 17:30", 5, 17, 30, true},
		{"SCHEDULE sun 23:55", 0, 23, 55, true},
		{"schedule wed 7:05", 3, 7, 5, true},
		{"schedule monday 24:00", 0, 0, 0, false},
		{"schedule monday 09:60", 0, 0, 0, false},
		{"schedule funday 09:00", 0, 0, 0, false},
		{"schedule monday 0900", 0, 0, 0, false},
		{"schedule monday", 0, 0, 0, false},
		{"schedule", 0, 0, 0, false},
	}

	for _, tc := range cases {
		day, hour, minute, ok := ParseScheduleCommand(tc.text)
		assert.Equal(t, tc.ok, ok, "text: %q", tc.text)
		if tc.ok {
			assert.Equal(t, tc.day, day, "text: %q", tc.text)
			assert.Equal(t, tc.hour, hour, "text: %q", tc.text)
			assert.Equal(t, tc.minute, minute, "text: %q", tc.text)
		}
	}
}

func TestHandleScheduleCommand_UpsertsAndConfirms(t *testing.T) {
	prefs := newFakePrefsStore()
	prefs.prefs["U123"] = &model.UserPrefs{SlackUserID: "U123", Timezone: "Europe/Helsinki"}
	analytics := &fakeAnalytics{}
	sl := &fakeSlack{}

	svc := NewScheduleService(prefs, analytics, sl, zap.NewNop())

	err := svc.HandleScheduleCommand(context.Background(), "U123", "D1", "schedule friday 17:30")
	require.NoError(t, err)

	require.Len(t, prefs.upserts, 1)
	up := prefs.upserts[0]
	assert.Equal(t, 5, up.DigestDay)
	assert.Equal(t, 17, up.DigestHour)
	assert.Equal(t, 30, up.DigestMinute)
	assert.Equal(t, "Europe/Helsinki", up.Timezone, "existing timezone is preserved")

	require.Len(t, sl.posted, 1)
	assert.Contains(t, sl.posted[0].text, "Friday")
	assert.Contains(t, sl.posted[0].text, "17:30")

	require.Len(t, analytics.events, 1)
	assert.Equal(t, "schedule_changed", analytics.events[0].eventType)
}

func TestHandleScheduleCommand_DefaultTimezoneForNewUser(t *testing.T) {
	prefs := newFakePrefsStore()
	sl := &fakeSlack{}

	svc := NewScheduleService(prefs, &fakeAnalytics{}, sl, zap.NewNop())

	err := svc.HandleScheduleCommand(context.Background(), "U123", "D1", "schedule monday 09:00")
	require.NoError(t, err)

	require.Len(t, prefs.upserts, 1)
	assert.Equal(t, "America/New_York", prefs.upserts[0].Timezone)
}

func TestHandleScheduleCommand_UsageOnMalformed(t *testing.T) {
	prefs := newFakePrefsStore()
	sl := &fakeSlack{}

	svc := NewScheduleService(prefs, &fakeAnalytics{}, sl, zap.NewNop())

	err := svc.HandleScheduleCommand(context.Background(), "U123", "D1", "schedule whenever")
	require.NoError(t, err)

	assert.Empty(t, prefs.upserts)
	require.Len(t, sl.posted, 1)
	assert.Contains(t, sl.posted[0].text, "Usage")
}
