package dosing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
)

// MarkTaken records that the dose of medicationID due at timeOfDay today was
// taken at now. The target row is found by its local HH:MM, not by id, and is
// created when the materializer has not run yet. Marking an already taken
// dose succeeds without a write. It returns false only when the dose could
// not be stored.
func (s *Service) MarkTaken(ctx context.Context, userID, medicationID int64, timeOfDay, notes string, now time.Time, timezone string) bool {
	log := s.logger.With(
		zap.Int64("user_id", userID),
		zap.Int64("medication_id", medicationID),
		zap.String("time_of_day", timeOfDay))

	tod, err := clock.NormalizeTimeOfDay(timeOfDay)
	if err != nil {
		log.Warn("Invalid time of day", zap.Error(err))
		return false
	}
	local := clock.Local(now, timezone)

	if err := s.EnsureTodaysEvents(ctx, userID, now, timezone); err != nil {
		log.Warn("Materialize before take failed", zap.Error(err))
	}
	if err := s.ReconcileDuplicates(ctx, userID, now, timezone); err != nil {
		log.Warn("Reconcile before take failed", zap.Error(err))
	}

	events, err := s.dayEvents(ctx, userID, medicationID, local)
	if err != nil {
		log.Error("Failed to load dose events", zap.Error(err))
		return false
	}

	target := findByTimeOfDay(events, tod, local.Location())
	if target != nil && target.IsTaken() {
		return true
	}

	takenAt := now.UTC()
	if target != nil {
		status := models.DoseStatusTaken
		update := models.DoseEventUpdate{Status: &status, TakenTime: &takenAt}
		if notes != "" {
			update.Notes = &notes
		}
		if err := s.events.Update(ctx, target.ID, update); err != nil {
			s.metrics.RecordStoreError("update")
			log.Error("Failed to mark dose taken", zap.Error(err))
			return false
		}
		target.Status = status
		target.TakenTime = &takenAt
		if notes != "" {
			target.Notes = notes
		}
	} else {
		scheduled, _ := clock.Combine(local, tod)
		target = &models.DoseEvent{
			UserID:        userID,
			MedicationID:  medicationID,
			ScheduledTime: scheduled.UTC(),
			TakenTime:     &takenAt,
			Status:        models.DoseStatusTaken,
			Notes:         notes,
		}
		if err := s.events.Insert(ctx, target); err != nil {
			s.metrics.RecordStoreError("insert")
			log.Error("Failed to insert taken dose", zap.Error(err))
			return false
		}
	}

	s.metrics.RecordTaken()
	s.publish(ctx, target, now)
	log.Info("Dose marked taken")
	return true
}

// MarkMissed records today's dose at timeOfDay as missed unless it was
// already taken or missed. It matches the exact scheduled instant.
func (s *Service) MarkMissed(ctx context.Context, userID, medicationID int64, timeOfDay string, now time.Time, timezone string) error {
	local := clock.Local(now, timezone)
	scheduled, err := clock.Combine(local, timeOfDay)
	if err != nil {
		return err
	}

	existing, err := s.events.Query(ctx, models.DoseEventQuery{
		UserID:       userID,
		MedicationID: medicationID,
		From:         scheduled,
		To:           scheduled.Add(time.Millisecond),
	})
	if err != nil {
		s.metrics.RecordStoreError("query")
		return fmt.Errorf("load dose at %s: %w", scheduled.UTC().Format(time.RFC3339), err)
	}

	var target *models.DoseEvent
	for _, e := range existing {
		if !e.ScheduledTime.Equal(scheduled) {
			continue
		}
		if target == nil || e.Status.Rank() > target.Status.Rank() {
			target = e
		}
	}

	missed := models.DoseStatusMissed
	switch {
	case target == nil:
		target = &models.DoseEvent{
			UserID:        userID,
			MedicationID:  medicationID,
			ScheduledTime: scheduled.UTC(),
			Status:        missed,
		}
		if err := s.events.Insert(ctx, target); err != nil {
			s.metrics.RecordStoreError("insert")
			return fmt.Errorf("insert missed dose: %w", err)
		}
	case target.Status == models.DoseStatusScheduled:
		if err := s.events.Update(ctx, target.ID, models.DoseEventUpdate{Status: &missed}); err != nil {
			s.metrics.RecordStoreError("update")
			return fmt.Errorf("mark dose %s missed: %w", target.ID, err)
		}
		target.Status = missed
	default:
		return nil
	}

	s.metrics.RecordMissed("auto")
	s.publish(ctx, target, now)
	s.logger.Info("Dose marked missed",
		zap.Int64("user_id", userID),
		zap.Int64("medication_id", medicationID),
		zap.String("time_of_day", clock.FormatTimeOfDay(scheduled)))
	return nil
}

// findByTimeOfDay returns the most advanced event whose local HH:MM is tod.
func findByTimeOfDay(events []*models.DoseEvent, tod string, loc *time.Location) *models.DoseEvent {
	var best *models.DoseEvent
	for _, e := range events {
		if clock.FormatTimeOfDay(e.ScheduledTime.In(loc)) != tod {
			continue
		}
		if best == nil || preferred(e, best) {
			best = e
		}
	}
	return best
}

// FinishPreviousDay marks yesterday's still scheduled doses missed once their
// grace window has passed. Reminders in the last minutes of a day cannot be
// auto-missed by NextDoseTime, which only looks at the current day.
func (s *Service) FinishPreviousDay(ctx context.Context, userID int64, now time.Time, timezone string) (int, error) {
	today, _ := clock.DayBounds(clock.Local(now, timezone))
	yesterday := today.AddDate(0, 0, -1)

	if err := s.ReconcileDuplicates(ctx, userID, yesterday, timezone); err != nil {
		s.logger.Warn("Reconcile of previous day failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}

	events, err := s.events.Query(ctx, models.DoseEventQuery{
		UserID: userID,
		From:   yesterday,
		To:     today,
		Status: models.DoseStatusScheduled,
	})
	if err != nil {
		s.metrics.RecordStoreError("query")
		return 0, fmt.Errorf("load previous day's doses: %w", err)
	}

	grace := time.Duration(s.grace) * time.Minute
	missed := models.DoseStatusMissed
	finished := 0
	for _, e := range events {
		if e.Status != models.DoseStatusScheduled || now.Sub(e.ScheduledTime) <= grace {
			continue
		}
		if err := s.events.Update(ctx, e.ID, models.DoseEventUpdate{Status: &missed}); err != nil {
			s.metrics.RecordStoreError("update")
			return finished, fmt.Errorf("mark dose %s missed: %w", e.ID, err)
		}
		e.Status = missed
		finished++
		s.metrics.RecordMissed("auto")
		s.publish(ctx, e, now)
	}

	if finished > 0 {
		s.logger.Info("Marked previous day's doses missed",
			zap.Int64("user_id", userID),
			zap.Int("missed", finished))
	}
	return finished, nil
}
