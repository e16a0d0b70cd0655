package dosing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/DoseLine/internal/models"
)

func TestMarkTaken_UpdatesScheduledRow(t *testing.T) {
	svc, events, reminders, pub := newTestService()
	reminders.add(testUser, aspirin, "08:00")
	reminders.add(testUser, aspirin, "20:00")

	ok := svc.MarkTaken(context.Background(), testUser, aspirin, "08:00:00", "with water", at(8, 3), "UTC")
	require.True(t, ok)

	all := events.all()
	require.Len(t, all, 2)
	assert.Equal(t, models.DoseStatusTaken, all[0].Status)
	assert.Equal(t, "with water", all[0].Notes)
	require.NotNil(t, all[0].TakenTime)
	assert.Equal(t, at(8, 3), *all[0].TakenTime)
	assert.Equal(t, models.DoseStatusScheduled, all[1].Status)

	require.Len(t, pub.published, 1)
	assert.Equal(t, all[0].ID.String(), pub.published[0].EventID)
	assert.Equal(t, models.DoseStatusTaken, pub.published[0].Status)
}

func TestMarkTaken_Idempotent(t *testing.T) {
	svc, events, reminders, pub := newTestService()
	reminders.add(testUser, aspirin, "08:00")
	ctx := context.Background()

	require.True(t, svc.MarkTaken(ctx, testUser, aspirin, "08:00", "", at(8, 3), "UTC"))
	require.True(t, svc.MarkTaken(ctx, testUser, aspirin, "08:00", "", at(8, 9), "UTC"))

	all := events.all()
	require.Len(t, all, 1)
	assert.Equal(t, 1, events.updates)
	assert.Equal(t, at(8, 3), *all[0].TakenTime)
	assert.Len(t, pub.published, 1)
}

func TestMarkTaken_CreatesMissingRow(t *testing.T) {
	svc, events, _, _ := newTestService()

	// No reminder: the materializer has nothing to create.
	require.True(t, svc.MarkTaken(context.Background(), testUser, aspirin, "13:30", "", at(13, 40), "UTC"))

	all := events.all()
	require.Len(t, all, 1)
	assert.Equal(t, at(13, 30), all[0].ScheduledTime)
	assert.Equal(t, models.DoseStatusTaken, all[0].Status)
	assert.Nil(t, all[0].ReminderID)
}

func TestMarkTaken_UpgradesMissed(t *testing.T) {
	svc, events, reminders, _ := newTestService()
	reminders.add(testUser, aspirin, "08:00")
	events.seed(dose(aspirin, at(8, 0), models.DoseStatusMissed))

	require.True(t, svc.MarkTaken(context.Background(), testUser, aspirin, "08:00", "", at(9, 0), "UTC"))

	all := events.all()
	require.Len(t, all, 1)
	assert.Equal(t, models.DoseStatusTaken, all[0].Status)
}

func TestMarkTaken_MatchesLocalTime(t *testing.T) {
	svc, events, reminders, _ := newTestService()
	reminders.add(testUser, aspirin, "08:00")

	// 23:50 UTC on the 17th is 07:50 on the 18th in Taipei.
	now := at(23, 50).AddDate(0, 0, -1)
	require.True(t, svc.MarkTaken(context.Background(), testUser, aspirin, "08:00", "", now, "Asia/Taipei"))

	all := events.all()
	require.Len(t, all, 1)
	assert.Equal(t, at(0, 0), all[0].ScheduledTime)
	assert.Equal(t, models.DoseStatusTaken, all[0].Status)
}

func TestMarkTaken_Failures(t *testing.T) {
	svc, events, reminders, _ := newTestService()
	reminders.add(testUser, aspirin, "08:00")
	ctx := context.Background()

	assert.False(t, svc.MarkTaken(ctx, testUser, aspirin, "8", "", at(8, 0), "UTC"))

	require.NoError(t, svc.EnsureTodaysEvents(ctx, testUser, at(6, 0), "UTC"))
	events.updateErr = errStore
	assert.False(t, svc.MarkTaken(ctx, testUser, aspirin, "08:00", "", at(8, 0), "UTC"))
	assert.Equal(t, models.DoseStatusScheduled, events.all()[0].Status)

	events.updateErr = nil
	events.queryErr = errStore
	assert.False(t, svc.MarkTaken(ctx, testUser, aspirin, "08:00", "", at(8, 0), "UTC"))
}

func TestMarkTaken_PublisherFailureIsNotFatal(t *testing.T) {
	svc, _, reminders, pub := newTestService()
	reminders.add(testUser, aspirin, "08:00")
	pub.err = errStore

	assert.True(t, svc.MarkTaken(context.Background(), testUser, aspirin, "08:00", "", at(8, 0), "UTC"))
}

func TestMarkMissed(t *testing.T) {
	tests := []struct {
		name       string
		existing   models.DoseStatus
		wantStatus models.DoseStatus
		wantWrites int
	}{
		{"no row", "", models.DoseStatusMissed, 1},
		{"scheduled", models.DoseStatusScheduled, models.DoseStatusMissed, 1},
		{"already missed", models.DoseStatusMissed, models.DoseStatusMissed, 0},
		{"taken is kept", models.DoseStatusTaken, models.DoseStatusTaken, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, events, _, pub := newTestService()
			if tt.existing != "" {
				events.seed(dose(aspirin, at(8, 0), tt.existing))
			}

			require.NoError(t, svc.MarkMissed(context.Background(), testUser, aspirin, "08:00", at(8, 20), "UTC"))

			all := events.all()
			require.Len(t, all, 1)
			assert.Equal(t, tt.wantStatus, all[0].Status)
			assert.Equal(t, tt.wantWrites, events.inserts+events.updates)
			assert.Len(t, pub.published, tt.wantWrites)
		})
	}
}

func TestMarkMissed_ExactTimestampOnly(t *testing.T) {
	svc, events, _, _ := newTestService()
	events.seed(dose(aspirin, at(8, 0).Add(30*time.Second), models.DoseStatusTaken))

	require.NoError(t, svc.MarkMissed(context.Background(), testUser, aspirin, "08:00", at(8, 20), "UTC"))
	assert.Len(t, events.all(), 2)

	// The next read heals the pair in favor of the taken row.
	require.NoError(t, svc.ReconcileDuplicates(context.Background(), testUser, at(8, 21), "UTC"))
	all := events.all()
	require.Len(t, all, 1)
	assert.Equal(t, models.DoseStatusTaken, all[0].Status)
}

func TestMarkMissed_InvalidTime(t *testing.T) {
	svc, _, _, _ := newTestService()
	assert.Error(t, svc.MarkMissed(context.Background(), testUser, aspirin, "xx", at(8, 20), "UTC"))
}

func TestMarkTaken_PublishHasDeadline(t *testing.T) {
	svc, _, reminders, pub := newTestService()
	reminders.add(testUser, aspirin, "08:00")
	pub.err = errStore

	before := time.Now()
	require.True(t, svc.MarkTaken(context.Background(), testUser, aspirin, "08:00", "", at(8, 3), "UTC"))

	require.Len(t, pub.deadlines, 1)
	assert.False(t, pub.deadlines[0].IsZero())
	assert.True(t, pub.deadlines[0].Before(before.Add(PublishTimeout+time.Second)))
}

func TestFinishPreviousDay(t *testing.T) {
	svc, events, _, pub := newTestService()
	ctx := context.Background()
	lateDose := events.seed(dose(aspirin, at(23, 50), models.DoseStatusScheduled))
	taken := events.seed(dose(aspirin, at(8, 0), models.DoseStatusTaken))
	tomorrow := events.seed(dose(aspirin, at(8, 0).AddDate(0, 0, 1), models.DoseStatusScheduled))

	// Still inside the 23:50 dose's grace window.
	n, err := svc.FinishPreviousDay(ctx, testUser, at(0, 3).AddDate(0, 0, 1), "UTC")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, models.DoseStatusScheduled, events.events[lateDose.ID].Status)

	n, err = svc.FinishPreviousDay(ctx, testUser, at(0, 6).AddDate(0, 0, 1), "UTC")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.DoseStatusMissed, events.events[lateDose.ID].Status)
	assert.Equal(t, models.DoseStatusTaken, events.events[taken.ID].Status)
	assert.Equal(t, models.DoseStatusScheduled, events.events[tomorrow.ID].Status)
	require.Len(t, pub.published, 1)
	assert.Equal(t, models.DoseStatusMissed, pub.published[0].Status)

	n, err = svc.FinishPreviousDay(ctx, testUser, at(0, 7).AddDate(0, 0, 1), "UTC")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFinishPreviousDay_QueryError(t *testing.T) {
	svc, events, _, _ := newTestService()
	events.queryErr = errStore

	_, err := svc.FinishPreviousDay(context.Background(), testUser, at(0, 30), "UTC")
	assert.ErrorIs(t, err, errStore)
}
