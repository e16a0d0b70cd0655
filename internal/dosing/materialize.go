package dosing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
)

// eventKey identifies a dose by medication and exact scheduled instant.
type eventKey struct {
	medicationID int64
	scheduledMS  int64
}

func keyOf(medicationID int64, scheduled time.Time) eventKey {
	return eventKey{medicationID: medicationID, scheduledMS: scheduled.UnixMilli()}
}

// EnsureTodaysEvents creates a scheduled dose event for every active
// reminder firing today in timezone, unless an event with the same
// medication and exact scheduled time already exists. Repeated calls within
// a day create nothing new.
func (s *Service) EnsureTodaysEvents(ctx context.Context, userID int64, now time.Time, timezone string) error {
	local := clock.Local(now, timezone)

	reminders, err := s.reminders.ActiveReminders(ctx, userID)
	if err != nil {
		s.metrics.RecordStoreError("reminders")
		return fmt.Errorf("load reminders: %w", err)
	}
	todays := remindersForDay(reminders, local)
	if len(todays) == 0 {
		return nil
	}

	existing, err := s.dayEvents(ctx, userID, 0, local)
	if err != nil {
		return fmt.Errorf("load today's events: %w", err)
	}
	seen := make(map[eventKey]bool, len(existing))
	for _, e := range existing {
		seen[keyOf(e.MedicationID, e.ScheduledTime)] = true
	}

	created := 0
	for _, r := range todays {
		at, err := clock.Combine(local, r.TimeOfDay)
		if err != nil {
			s.logger.Warn("Skipping reminder with invalid time",
				zap.Int64("reminder_id", r.ReminderID),
				zap.String("time_of_day", r.TimeOfDay),
				zap.Error(err))
			continue
		}
		key := keyOf(r.MedicationID, at)
		if seen[key] {
			continue
		}

		reminderID := r.ReminderID
		event := &models.DoseEvent{
			UserID:        userID,
			MedicationID:  r.MedicationID,
			ReminderID:    &reminderID,
			ScheduledTime: at.UTC(),
			Status:        models.DoseStatusScheduled,
		}
		if err := s.events.Insert(ctx, event); err != nil {
			s.metrics.RecordStoreError("insert")
			s.metrics.RecordMaterialized(created)
			return fmt.Errorf("insert scheduled dose for medication %d: %w", r.MedicationID, err)
		}
		seen[key] = true
		created++
	}

	s.metrics.RecordMaterialized(created)
	if created > 0 {
		s.logger.Debug("Materialized dose events",
			zap.Int64("user_id", userID),
			zap.Int("created", created))
	}
	return nil
}
