package dosing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
)

// DuplicateWindow is how close two scheduled times of one medication must be
// for the rows to count as the same dose.
const DuplicateWindow = 60 * time.Second

// preferred reports whether a should survive over b.
func preferred(a, b *models.DoseEvent) bool {
	if ra, rb := a.Status.Rank(), b.Status.Rank(); ra != rb {
		return ra > rb
	}
	if !a.ScheduledTime.Equal(b.ScheduledTime) {
		return a.ScheduledTime.After(b.ScheduledTime)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

// cluster groups one medication's events, sorted by scheduled time, into
// runs whose members all lie within DuplicateWindow of the run's first event.
func cluster(events []*models.DoseEvent) [][]*models.DoseEvent {
	sorted := append([]*models.DoseEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ScheduledTime.Before(sorted[j].ScheduledTime)
	})

	var groups [][]*models.DoseEvent
	var current []*models.DoseEvent
	for _, e := range sorted {
		if len(current) > 0 && e.ScheduledTime.Sub(current[0].ScheduledTime) > DuplicateWindow {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, e)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

type resolution struct {
	keep      *models.DoseEvent
	drop      []uuid.UUID
	copyNotes string
}

// splitBySlot separates a cluster that spans two reminder times of the
// medication, so 08:00 and 08:01 reminders stay two doses. A cluster covers
// at most two local minutes.
func splitBySlot(group []*models.DoseEvent, slots map[string]bool, loc *time.Location) [][]*models.DoseEvent {
	byMinute := make(map[string][]*models.DoseEvent)
	var minutes []string
	for _, e := range group {
		tod := clock.FormatTimeOfDay(e.ScheduledTime.In(loc))
		if _, ok := byMinute[tod]; !ok {
			minutes = append(minutes, tod)
		}
		byMinute[tod] = append(byMinute[tod], e)
	}
	if len(minutes) < 2 {
		return [][]*models.DoseEvent{group}
	}
	for _, tod := range minutes {
		if !slots[tod] {
			return [][]*models.DoseEvent{group}
		}
	}

	sort.Strings(minutes)
	out := make([][]*models.DoseEvent, 0, len(minutes))
	for _, tod := range minutes {
		out = append(out, byMinute[tod])
	}
	return out
}

// resolveDuplicates picks a survivor for every cluster holding more than one
// event. Events are grouped by medication first. slots holds each
// medication's reminder times for the day and may be nil.
func resolveDuplicates(events []*models.DoseEvent, slots map[int64]map[string]bool, loc *time.Location) []resolution {
	byMedication := make(map[int64][]*models.DoseEvent)
	var medicationIDs []int64
	for _, e := range events {
		if _, ok := byMedication[e.MedicationID]; !ok {
			medicationIDs = append(medicationIDs, e.MedicationID)
		}
		byMedication[e.MedicationID] = append(byMedication[e.MedicationID], e)
	}
	sort.Slice(medicationIDs, func(i, j int) bool { return medicationIDs[i] < medicationIDs[j] })

	var out []resolution
	for _, medID := range medicationIDs {
		var groups [][]*models.DoseEvent
		for _, c := range cluster(byMedication[medID]) {
			groups = append(groups, splitBySlot(c, slots[medID], loc)...)
		}
		for _, group := range groups {
			if len(group) < 2 {
				continue
			}
			keep := group[0]
			for _, e := range group[1:] {
				if preferred(e, keep) {
					keep = e
				}
			}

			res := resolution{keep: keep}
			for _, e := range group {
				if e == keep {
					continue
				}
				res.drop = append(res.drop, e.ID)
				if keep.Notes == "" && res.copyNotes == "" && e.Notes != "" {
					res.copyNotes = e.Notes
				}
			}
			out = append(out, res)
		}
	}
	return out
}

// reminderSlots maps medication to the reminder times that apply on local's
// day.
func (s *Service) reminderSlots(ctx context.Context, userID int64, local time.Time) map[int64]map[string]bool {
	reminders, err := s.reminders.ActiveReminders(ctx, userID)
	if err != nil {
		s.metrics.RecordStoreError("reminders")
		s.logger.Warn("Reconciling without reminder times",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil
	}
	slots := make(map[int64]map[string]bool)
	for _, r := range remindersForDay(reminders, local) {
		tod, err := clock.NormalizeTimeOfDay(r.TimeOfDay)
		if err != nil {
			continue
		}
		if slots[r.MedicationID] == nil {
			slots[r.MedicationID] = make(map[string]bool)
		}
		slots[r.MedicationID][tod] = true
	}
	return slots
}

// ReconcileDuplicates collapses near-duplicate events of the local day
// containing now. Rows at two different reminder times of the medication are
// never duplicates of each other. Of each duplicate set the taken event survives, else the
// missed one, else the latest; the rest are deleted. Notes of a deleted row
// move onto a survivor that has none.
func (s *Service) ReconcileDuplicates(ctx context.Context, userID int64, now time.Time, timezone string) error {
	local := clock.Local(now, timezone)

	events, err := s.dayEvents(ctx, userID, 0, local)
	if err != nil {
		return fmt.Errorf("load today's events: %w", err)
	}

	if len(events) < 2 {
		return nil
	}
	resolutions := resolveDuplicates(events, s.reminderSlots(ctx, userID, local), local.Location())
	if len(resolutions) == 0 {
		return nil
	}

	var drop []uuid.UUID
	for _, res := range resolutions {
		drop = append(drop, res.drop...)
	}
	if err := s.events.Delete(ctx, drop); err != nil {
		s.metrics.RecordStoreError("delete")
		return fmt.Errorf("delete duplicate events: %w", err)
	}
	s.metrics.RecordDuplicatesRemoved(len(drop))
	s.logger.Info("Removed duplicate dose events",
		zap.Int64("user_id", userID),
		zap.Int("removed", len(drop)))

	for _, res := range resolutions {
		if res.copyNotes == "" {
			continue
		}
		notes := res.copyNotes
		if err := s.events.Update(ctx, res.keep.ID, models.DoseEventUpdate{Notes: &notes}); err != nil {
			s.metrics.RecordStoreError("update")
			s.logger.Warn("Failed to carry notes onto surviving dose event",
				zap.String("event_id", res.keep.ID.String()),
				zap.Error(err))
			continue
		}
		res.keep.Notes = notes
	}
	return nil
}
