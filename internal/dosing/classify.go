package dosing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/rrule"
)

// LookaheadMinutes is how far ahead a later reminder today must be before it
// is announced as the next dose.
const LookaheadMinutes = 15

// DoseWindow is where a moment falls relative to one reminder time.
type DoseWindow struct {
	IsDue     bool // within grace before the reminder, or exactly on it
	IsOverdue bool // after the reminder, within grace
}

// Classify places nowLocal against timeOfDay at minute granularity. A moment
// that is neither due nor overdue is upcoming when earlier than the due
// window and eligible for auto-miss when later than the overdue window.
func Classify(nowLocal time.Time, timeOfDay string, graceMinutes int) (DoseWindow, error) {
	reminderMinute, err := clock.TimeOfDayMinutes(timeOfDay)
	if err != nil {
		return DoseWindow{}, err
	}
	nowMinute := clock.MinuteOfDay(nowLocal)

	return DoseWindow{
		IsDue:     nowMinute >= reminderMinute-graceMinutes && nowMinute <= reminderMinute,
		IsOverdue: nowMinute > reminderMinute && nowMinute <= reminderMinute+graceMinutes,
	}, nil
}

type DoseState string

const (
	StateDue      DoseState = "due"
	StateOverdue  DoseState = "overdue"
	StateUpcoming DoseState = "upcoming"
	StateNone     DoseState = "none"
	StateError    DoseState = "error"
)

// NextDose is the status line for one medication.
type NextDose struct {
	Status       string     `json:"status"`
	State        DoseState  `json:"state"`
	ReminderTime string     `json:"reminder_time,omitempty"` // HH:MM of the due or next reminder
	TodaysTimes  []string   `json:"todays_times"`
	NextAt       *time.Time `json:"next_at,omitempty"`
	Day          time.Time  `json:"day"` // local time the status was computed at
}

// NextDoseTime reports whether a dose of the medication is due or overdue
// right now and otherwise when the next one is. Reminders left unanswered
// past the grace window are marked missed on the way.
func (s *Service) NextDoseTime(ctx context.Context, userID, medicationID int64, now time.Time, timezone string) NextDose {
	local := clock.Local(now, timezone)

	if err := s.ReconcileDuplicates(ctx, userID, now, timezone); err != nil {
		s.logger.Warn("Reconcile before status check failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}

	all, err := s.reminders.ActiveReminders(ctx, userID)
	if err != nil {
		s.metrics.RecordStoreError("reminders")
		s.logger.Error("Failed to load reminders",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return NextDose{Status: "Error calculating next dose", State: StateError}
	}
	var medReminders []*models.Reminder
	for _, r := range all {
		if r.MedicationID == medicationID {
			medReminders = append(medReminders, r)
		}
	}

	todays := todaysTimes(remindersForDay(medReminders, local))
	result := NextDose{TodaysTimes: todays, Day: local}

	events, err := s.dayEvents(ctx, userID, medicationID, local)
	if err != nil {
		s.logger.Error("Failed to load dose events",
			zap.Int64("user_id", userID),
			zap.Int64("medication_id", medicationID),
			zap.Error(err))
		return NextDose{Status: "Error calculating next dose", State: StateError, TodaysTimes: todays}
	}
	statuses := statusByTimeOfDay(events, local.Location())

	nowMinute := clock.MinuteOfDay(local)
	lookahead := LookaheadMinutes
	if s.grace+1 < lookahead {
		// Anything closer is already inside the due window.
		lookahead = s.grace + 1
	}

	var laterToday string
	for _, tod := range todays {
		status := statuses[tod]
		if status == models.DoseStatusTaken {
			continue
		}

		reminderMinute, _ := clock.TimeOfDayMinutes(tod)
		if nowMinute-reminderMinute > s.grace {
			if status != models.DoseStatusMissed {
				if err := s.MarkMissed(ctx, userID, medicationID, tod, now, timezone); err != nil {
					s.logger.Warn("Failed to mark dose missed",
						zap.Int64("user_id", userID),
						zap.Int64("medication_id", medicationID),
						zap.String("time_of_day", tod),
						zap.Error(err))
				}
			}
			continue
		}

		window, _ := Classify(local, tod, s.grace)
		switch {
		case window.IsDue:
			result.Status = "Due at " + tod
			result.State = StateDue
			result.ReminderTime = tod
			return result
		case window.IsOverdue:
			result.Status = "Overdue: " + tod
			result.State = StateOverdue
			result.ReminderTime = tod
			return result
		}

		if laterToday == "" && reminderMinute-nowMinute >= lookahead {
			laterToday = tod
		}
	}

	if laterToday != "" {
		at, _ := clock.Combine(local, laterToday)
		result.Status = "Next: Today " + laterToday
		result.State = StateUpcoming
		result.ReminderTime = laterToday
		result.NextAt = &at
		return result
	}

	if next := s.nextAfterToday(medReminders, local); next != nil {
		tod := clock.FormatTimeOfDay(*next)
		day := next.Weekday().String()
		if clock.DaysBetween(local, *next) == 1 {
			day = "Tomorrow"
		}
		result.Status = fmt.Sprintf("Next: %s %s", day, tod)
		result.State = StateUpcoming
		result.ReminderTime = tod
		result.NextAt = next
		return result
	}

	result.Status = "No upcoming reminders"
	result.State = StateNone
	return result
}

// nextAfterToday returns the earliest occurrence from tomorrow on, within a
// week.
func (s *Service) nextAfterToday(reminders []*models.Reminder, local time.Time) *time.Time {
	_, tomorrow := clock.DayBounds(local)
	limit := tomorrow.AddDate(0, 0, 7)

	var best *time.Time
	for _, r := range reminders {
		if !r.IsActive || !r.HasWeekdays() {
			continue
		}
		next, err := rrule.NextOccurrence(r, tomorrow)
		if err != nil {
			s.logger.Warn("Skipping reminder with invalid rule",
				zap.Int64("reminder_id", r.ReminderID),
				zap.Error(err))
			continue
		}
		if next == nil || !next.Before(limit) {
			continue
		}
		if best == nil || next.Before(*best) {
			best = next
		}
	}
	return best
}

// todaysTimes returns the distinct valid HH:MM times of reminders, sorted.
func todaysTimes(reminders []*models.Reminder) []string {
	seen := make(map[string]bool)
	times := []string{}
	for _, r := range reminders {
		tod, err := clock.NormalizeTimeOfDay(r.TimeOfDay)
		if err != nil || seen[tod] {
			continue
		}
		seen[tod] = true
		times = append(times, tod)
	}
	sort.Strings(times)
	return times
}

// statusByTimeOfDay maps each local HH:MM to the most advanced status among
// the events scheduled at that minute.
func statusByTimeOfDay(events []*models.DoseEvent, loc *time.Location) map[string]models.DoseStatus {
	out := make(map[string]models.DoseStatus)
	for _, e := range events {
		tod := clock.FormatTimeOfDay(e.ScheduledTime.In(loc))
		if e.Status.Rank() > out[tod].Rank() {
			out[tod] = e.Status
		}
	}
	return out
}
