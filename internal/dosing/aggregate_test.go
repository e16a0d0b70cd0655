package dosing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/DoseLine/internal/models"
)

func TestTodaysAdherenceStatus_Counts(t *testing.T) {
	svc, events, reminders, _ := newTestService()
	reminders.add(testUser, aspirin, "08:00")
	reminders.add(testUser, aspirin, "20:00")
	reminders.add(testUser, vitaminD, "09:00")
	reminders.add(testUser, vitaminD, "10:00", 1) // not today
	events.seed(dose(aspirin, at(8, 0), models.DoseStatusTaken))
	events.seed(dose(vitaminD, at(9, 0), models.DoseStatusMissed))

	status := svc.TodaysAdherenceStatus(context.Background(), testUser, at(12, 0), "UTC")

	assert.Equal(t, models.AdherenceStatus{TotalToday: 3, CompletedToday: 1, MissedToday: 1, PendingToday: 1}, status)
	assert.Equal(t, status.TotalToday, status.CompletedToday+status.MissedToday+status.PendingToday)
	// The evening dose was materialized.
	assert.Len(t, events.all(), 3)
}

func TestTodaysAdherenceStatus_CollapsesDuplicates(t *testing.T) {
	svc, events, reminders, _ := newTestService()
	reminders.add(testUser, aspirin, "08:00")
	events.seed(dose(aspirin, at(8, 0), models.DoseStatusScheduled))
	events.seed(dose(aspirin, at(8, 0), models.DoseStatusTaken))
	events.seed(dose(aspirin, at(8, 0), models.DoseStatusMissed))

	status := svc.TodaysAdherenceStatus(context.Background(), testUser, at(12, 0), "UTC")

	assert.Equal(t, models.AdherenceStatus{TotalToday: 1, CompletedToday: 1}, status)
	assert.Len(t, events.all(), 1)
}

func TestTodaysAdherenceStatus_ClampsPending(t *testing.T) {
	svc, events, reminders, _ := newTestService()
	reminders.add(testUser, aspirin, "08:00")
	// A dose recorded for a reminder that no longer exists.
	events.seed(dose(aspirin, at(13, 0), models.DoseStatusTaken))
	events.seed(dose(aspirin, at(8, 0), models.DoseStatusTaken))

	status := svc.TodaysAdherenceStatus(context.Background(), testUser, at(14, 0), "UTC")

	assert.Equal(t, 1, status.TotalToday)
	assert.Equal(t, 2, status.CompletedToday)
	assert.Equal(t, 0, status.PendingToday)
	assert.True(t, status.Inconsistent)
}

func TestTodaysAdherenceStatus_NoReminders(t *testing.T) {
	svc, _, _, _ := newTestService()

	status := svc.TodaysAdherenceStatus(context.Background(), testUser, at(12, 0), "UTC")
	assert.Equal(t, models.AdherenceStatus{}, status)
}

func TestTodaysAdherenceStatus_StoreError(t *testing.T) {
	svc, events, reminders, _ := newTestService()
	reminders.add(testUser, aspirin, "08:00")
	events.queryErr = errStore

	status := svc.TodaysAdherenceStatus(context.Background(), testUser, at(12, 0), "UTC")
	assert.Equal(t, models.AdherenceStatus{}, status)
}

func TestCrossDayIsolation(t *testing.T) {
	svc, events, reminders, _ := newTestService()
	reminders.add(testUser, aspirin, "08:00")
	yesterday := events.seed(dose(aspirin, at(8, 0).AddDate(0, 0, -1), models.DoseStatusScheduled))
	tomorrow := events.seed(dose(aspirin, at(8, 0).AddDate(0, 0, 1), models.DoseStatusTaken))
	ctx := context.Background()

	require.True(t, svc.MarkTaken(ctx, testUser, aspirin, "08:00", "", at(8, 5), "UTC"))
	svc.NextDoseTime(ctx, testUser, aspirin, at(8, 30), "UTC")
	status := svc.TodaysAdherenceStatus(ctx, testUser, at(9, 0), "UTC")

	assert.Equal(t, models.AdherenceStatus{TotalToday: 1, CompletedToday: 1}, status)
	assert.Equal(t, models.DoseStatusScheduled, events.events[yesterday.ID].Status)
	assert.Equal(t, models.DoseStatusTaken, events.events[tomorrow.ID].Status)
	assert.Len(t, events.all(), 3)

	next := svc.TodaysAdherenceStatus(ctx, testUser, at(9, 0).AddDate(0, 0, 1), "UTC")
	assert.Equal(t, models.AdherenceStatus{TotalToday: 1, CompletedToday: 1}, next)
}

func TestNoRegressionFromTaken(t *testing.T) {
	svc, events, reminders, _ := newTestService()
	reminders.add(testUser, aspirin, "08:00")
	ctx := context.Background()
	require.True(t, svc.MarkTaken(ctx, testUser, aspirin, "08:00", "", at(7, 50), "UTC"))
	takenAt := *events.all()[0].TakenTime

	require.NoError(t, svc.EnsureTodaysEvents(ctx, testUser, at(8, 30), "UTC"))
	require.NoError(t, svc.ReconcileDuplicates(ctx, testUser, at(8, 30), "UTC"))
	require.NoError(t, svc.MarkMissed(ctx, testUser, aspirin, "08:00", at(8, 30), "UTC"))
	svc.NextDoseTime(ctx, testUser, aspirin, at(8, 30), "UTC")

	all := events.all()
	require.Len(t, all, 1)
	assert.Equal(t, models.DoseStatusTaken, all[0].Status)
	assert.Equal(t, takenAt, *all[0].TakenTime)
}
