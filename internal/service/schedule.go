package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"thoughtcapture/internal/model"
	"thoughtcapture/internal/repository"
)

var schedulePattern = regexp.MustCompile(`(?i)^schedule\s+([a-zA-Z]+)\s+(\d{1,2}):(\d{2})$`)

var dayNames = map[string]int{
	"sunday": 0, "sun": 0,
	"monday": 1, "mon": 1,
	"tuesday": 2, "tue": 2,
	"wednesday": 3, "wed": 3,
	"thursday": 4, "thu": 4,
	"friday": 5, "fri": 5,
	"saturday": 6, "sat": 6,
}

var dayLabels = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

const msgScheduleUsage = "Usage: `schedule <day> <HH:MM>`, e.g. `schedule monday 09:00`. " +
	"The digest arrives in your local timezone."

type schedulePrefsStore interface {
	FindByUserID(ctx context.Context, userID string) (*model.UserPrefs, error)
	UpsertSchedule(ctx context.Context, userID string, day, hour, minute int, timezone string) error
}

// ScheduleService handles the `schedule` command that moves a user's
// weekly digest trigger.
type ScheduleService struct {
	prefs     schedulePrefsStore
	analytics analyticsLogger
	slack     slackAPI
	logger    *zap.Logger
}

func NewScheduleService(
	prefs schedulePrefsStore,
	analytics analyticsLogger,
	slackClient slackAPI,
	logger *zap.Logger,
) *ScheduleService {
	return &ScheduleService{
		prefs:     prefs,
		analytics: analytics,
		slack:     slackClient,
		logger:    logger,
	}
}

// ParseScheduleCommand parses `schedule <day> <HH:MM>`. Day names may be
// full or three-letter.
func ParseScheduleCommand(text string) (day, hour, minute int, ok bool) {
	m := schedulePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, 0, 0, false
	}

	day, ok = dayNames[strings.ToLower(m[1])]
	if !ok {
		return 0, 0, 0, false
	}

	hour, _ = strconv.Atoi(m[2])
	minute, _ = strconv.Atoi(m[3])
	if hour > 23 || minute > 59 {
		return 0, 0, 0, false
	}
	return day, hour, minute, true
}

// HandleScheduleCommand applies a schedule command, replying with usage
// help when it does not parse. The user's stored timezone is preserved;
// users without prefs get the default.
func (s *ScheduleService) HandleScheduleCommand(ctx context.Context, userID, channel, text string) error {
	day, hour, minute, ok := ParseScheduleCommand(text)
	if !ok {
		s.notify(ctx, channel, msgScheduleUsage)
		return nil
	}

	timezone := repository.DefaultTimezone
	if prefs, err := s.prefs.FindByUserID(ctx, userID); err != nil {
		return fmt.Errorf("schedule prefs lookup: %w", err)
	} else if prefs != nil {
		timezone = prefs.Timezone
	}

	if err := s.prefs.UpsertSchedule(ctx, userID, day, hour, minute, timezone); err != nil {
		return fmt.Errorf("schedule upsert: %w", err)
	}

	if err := s.analytics.LogEvent(ctx, repository.EventScheduleChanged, userID, map[string]any{
		"day": day, "hour": hour, "minute": minute,
	}); err != nil {
		s.logger.Warn("Failed to log schedule change", zap.Error(err))
	}

	s.notify(ctx, channel, fmt.Sprintf(
		"Done! Your digest now arrives on *%s* at *%02d:%02d* (%s).",
		dayLabels[day], hour, minute, timezone,
	))
	return nil
}

func (s *ScheduleService) notify(ctx context.Context, channel, text string) {
	if _, err := s.slack.PostMessage(ctx, channel, text, nil); err != nil {
		s.logger.Warn("Failed to send schedule notice", zap.Error(err))
	}
}
