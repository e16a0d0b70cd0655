package dosing

import (
	"context"
	"fmt"
	"time"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
)

const MaxHistoryDays = 31

// AdherenceHistory returns one entry per local day for the last days days,
// oldest first and ending today. Expected doses come from the current
// reminder set. Expected doses neither taken nor missed count as pending
// today and as unrecorded on earlier days.
func (s *Service) AdherenceHistory(ctx context.Context, userID int64, days int, now time.Time, timezone string) ([]models.DayAdherence, error) {
	if days < 1 {
		days = 1
	}
	if days > MaxHistoryDays {
		days = MaxHistoryDays
	}

	local := clock.Local(now, timezone)
	today, tomorrow := clock.DayBounds(local)
	first := today.AddDate(0, 0, -(days - 1))

	reminders, err := s.reminders.ActiveReminders(ctx, userID)
	if err != nil {
		s.metrics.RecordStoreError("reminders")
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	events, err := s.events.Query(ctx, models.DoseEventQuery{
		UserID: userID,
		From:   first,
		To:     tomorrow,
	})
	if err != nil {
		s.metrics.RecordStoreError("query")
		return nil, fmt.Errorf("load dose events: %w", err)
	}

	byDay := make(map[int][]*models.DoseEvent, days)
	for _, e := range events {
		offset := clock.DaysBetween(first, e.ScheduledTime)
		if offset >= 0 && offset < days {
			byDay[offset] = append(byDay[offset], e)
		}
	}

	history := make([]models.DayAdherence, 0, days)
	for i := 0; i < days; i++ {
		day := first.AddDate(0, 0, i)
		entry := models.DayAdherence{
			Date:     day,
			Expected: len(remindersForDay(reminders, day)),
		}
		entry.Taken, entry.Missed = countStatuses(collapse(byDay[i]))

		open := entry.Expected - entry.Taken - entry.Missed
		if open < 0 {
			open = 0
		}
		if i == days-1 {
			entry.Pending = open
		} else {
			entry.Unrecorded = open
		}
		history = append(history, entry)
	}
	return history, nil
}
