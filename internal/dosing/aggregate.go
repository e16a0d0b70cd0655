package dosing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
)

// collapse resolves rows sharing a medication and exact scheduled instant to
// their most advanced status.
func collapse(events []*models.DoseEvent) map[eventKey]models.DoseStatus {
	out := make(map[eventKey]models.DoseStatus, len(events))
	for _, e := range events {
		key := keyOf(e.MedicationID, e.ScheduledTime)
		if e.Status.Rank() > out[key].Rank() {
			out[key] = e.Status
		}
	}
	return out
}

func countStatuses(statuses map[eventKey]models.DoseStatus) (taken, missed int) {
	for _, status := range statuses {
		switch status {
		case models.DoseStatusTaken:
			taken++
		case models.DoseStatusMissed:
			missed++
		}
	}
	return taken, missed
}

// TodaysAdherenceStatus counts today's expected, taken, missed and pending
// doses. The expected count comes from the reminders, not from the stored
// rows. On store failure it returns zero counts.
func (s *Service) TodaysAdherenceStatus(ctx context.Context, userID int64, now time.Time, timezone string) models.AdherenceStatus {
	log := s.logger.With(zap.Int64("user_id", userID))
	local := clock.Local(now, timezone)

	if err := s.ReconcileDuplicates(ctx, userID, now, timezone); err != nil {
		log.Warn("Reconcile before counting failed", zap.Error(err))
	}
	if err := s.EnsureTodaysEvents(ctx, userID, now, timezone); err != nil {
		log.Warn("Materialize before counting failed", zap.Error(err))
	}

	reminders, err := s.reminders.ActiveReminders(ctx, userID)
	if err != nil {
		s.metrics.RecordStoreError("reminders")
		log.Error("Failed to load reminders", zap.Error(err))
		return models.AdherenceStatus{}
	}
	events, err := s.dayEvents(ctx, userID, 0, local)
	if err != nil {
		log.Error("Failed to load dose events", zap.Error(err))
		return models.AdherenceStatus{}
	}

	status := models.AdherenceStatus{TotalToday: len(remindersForDay(reminders, local))}
	status.CompletedToday, status.MissedToday = countStatuses(collapse(events))
	status.PendingToday = status.TotalToday - status.CompletedToday - status.MissedToday
	if status.PendingToday < 0 {
		log.Warn("More recorded doses than expected today",
			zap.Int("total", status.TotalToday),
			zap.Int("completed", status.CompletedToday),
			zap.Int("missed", status.MissedToday))
		s.metrics.RecordInconsistent()
		status.PendingToday = 0
		status.Inconsistent = true
	}
	return status
}
