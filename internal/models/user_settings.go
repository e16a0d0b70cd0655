package models

import (
	"time"

	"github.com/hray3182/DoseLine/internal/clock"
)

const DefaultGraceMinutes = 15

// UserSettings holds per-user scheduling and notification preferences
type UserSettings struct {
	UserID               int64      `json:"user_id"`
	Timezone             string     `json:"timezone"`
	GraceMinutes         int        `json:"grace_minutes"` // 0 inherits the service default
	QuietStart           string     `json:"quiet_start"` // HH:MM format, empty disables quiet hours
	QuietEnd             string     `json:"quiet_end"`   // HH:MM format
	NotificationsEnabled bool       `json:"notifications_enabled"`
	DailySummaryEnabled  bool       `json:"daily_summary_enabled"`
	DailySummaryTime     string     `json:"daily_summary_time"` // HH:MM format
	LastDailySummaryDate *time.Time `json:"last_daily_summary_date"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewDefaultUserSettings creates a new UserSettings with default values
func NewDefaultUserSettings(userID int64, timezone string) *UserSettings {
	if timezone == "" {
		timezone = "UTC"
	}
	return &UserSettings{
		UserID:               userID,
		Timezone:             timezone,
		QuietStart:           "23:00",
		QuietEnd:             "06:00",
		NotificationsEnabled: true,
		DailySummaryEnabled:  true,
		DailySummaryTime:     "21:00",
		UpdatedAt:            time.Now(),
	}
}

// ShouldSendDailySummary checks if it's time to send the daily summary
func (s *UserSettings) ShouldSendDailySummary(now time.Time) bool {
	if !s.DailySummaryEnabled {
		return false
	}

	localNow := clock.Local(now, s.Timezone)
	today, _ := clock.DayBounds(localNow)

	// Check if already sent today
	if s.LastDailySummaryDate != nil {
		lastDay, _ := clock.DayBounds(s.LastDailySummaryDate.In(localNow.Location()))
		if !lastDay.Before(today) {
			return false
		}
	}

	summaryTime, err := clock.Combine(localNow, s.DailySummaryTime)
	if err != nil {
		return false
	}
	return !localNow.Before(summaryTime)
}

// IsQuietHours checks if the given time is within quiet hours
func (s *UserSettings) IsQuietHours(t time.Time) bool {
	if s.QuietStart == "" || s.QuietEnd == "" {
		return false
	}

	startMinutes, err := clock.TimeOfDayMinutes(s.QuietStart)
	if err != nil {
		return false
	}
	endMinutes, err := clock.TimeOfDayMinutes(s.QuietEnd)
	if err != nil {
		return false
	}
	currentMinutes := clock.MinuteOfDay(clock.Local(t, s.Timezone))

	// Handle overnight quiet hours (e.g., 22:00 - 08:00)
	if startMinutes > endMinutes {
		return currentMinutes >= startMinutes || currentMinutes < endMinutes
	}

	return currentMinutes >= startMinutes && currentMinutes < endMinutes
}
