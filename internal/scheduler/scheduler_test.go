package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/DoseLine/internal/cache"
	"github.com/hray3182/DoseLine/internal/dosing"
	"github.com/hray3182/DoseLine/internal/models"
)

// -- Fakes --

type fakeEvents struct {
	events map[uuid.UUID]*models.DoseEvent
}

func (f *fakeEvents) Insert(_ context.Context, e *models.DoseEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	c := *e
	f.events[e.ID] = &c
	return nil
}

func (f *fakeEvents) Update(_ context.Context, id uuid.UUID, u models.DoseEventUpdate) error {
	e, ok := f.events[id]
	if !ok {
		return errors.New("not found")
	}
	if u.Status != nil {
		e.Status = *u.Status
	}
	if u.TakenTime != nil {
		e.TakenTime = u.TakenTime
	}
	if u.Notes != nil {
		e.Notes = *u.Notes
	}
	return nil
}

func (f *fakeEvents) Delete(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(f.events, id)
	}
	return nil
}

func (f *fakeEvents) Query(_ context.Context, q models.DoseEventQuery) ([]*models.DoseEvent, error) {
	var out []*models.DoseEvent
	for _, e := range f.events {
		if e.UserID != q.UserID || (q.MedicationID != 0 && e.MedicationID != q.MedicationID) {
			continue
		}
		if e.ScheduledTime.Before(q.From) || !e.ScheduledTime.Before(q.To) {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (f *fakeEvents) statuses() []models.DoseStatus {
	var out []models.DoseStatus
	for _, e := range f.events {
		out = append(out, e.Status)
	}
	return out
}

type fakeReminders struct {
	reminders []*models.Reminder
}

func (f *fakeReminders) ActiveReminders(_ context.Context, userID int64) ([]*models.Reminder, error) {
	var out []*models.Reminder
	for _, r := range f.reminders {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReminders) UsersWithActiveReminders(_ context.Context) ([]int64, error) {
	seen := map[int64]bool{}
	var out []int64
	for _, r := range f.reminders {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			out = append(out, r.UserID)
		}
	}
	return out, nil
}

type fakeSettings struct {
	settings map[int64]*models.UserSettings
	failFor  int64
}

func (f *fakeSettings) GetOrCreate(_ context.Context, userID int64, tz string) (*models.UserSettings, error) {
	if userID == f.failFor {
		return nil, errors.New("db down")
	}
	if s, ok := f.settings[userID]; ok {
		c := *s
		return &c, nil
	}
	s := models.NewDefaultUserSettings(userID, tz)
	f.settings[userID] = s
	c := *s
	return &c, nil
}

func (f *fakeSettings) SetLastDailySummaryDate(_ context.Context, userID int64, date time.Time) error {
	f.settings[userID].LastDailySummaryDate = &date
	return nil
}

type fakeMeds struct{}

func (fakeMeds) ListActive(_ context.Context, userID int64) ([]*models.Medication, error) {
	return []*models.Medication{{MedicationID: 1, UserID: userID, Name: "Aspirin", Dosage: "100mg", Active: true}}, nil
}

type sentDose struct {
	userID int64
	status string
}

type fakeNotifier struct {
	doses     []sentDose
	summaries []models.AdherenceStatus
	failures  int // sends to fail before succeeding
}

func (f *fakeNotifier) NotifyDose(_ context.Context, userID int64, _ *models.Medication, next dosing.NextDose) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("telegram: bad gateway")
	}
	f.doses = append(f.doses, sentDose{userID: userID, status: next.Status})
	return nil
}

func (f *fakeNotifier) SendDailySummary(_ context.Context, _ int64, status models.AdherenceStatus, _ string) error {
	f.summaries = append(f.summaries, status)
	return nil
}

type fixture struct {
	sched    *Scheduler
	events   *fakeEvents
	settings *fakeSettings
	notifier *fakeNotifier
	now      time.Time
}

func newFixture(userIDs ...int64) *fixture {
	events := &fakeEvents{events: map[uuid.UUID]*models.DoseEvent{}}
	reminders := &fakeReminders{}
	for i, userID := range userIDs {
		reminders.reminders = append(reminders.reminders, &models.Reminder{
			ReminderID:     int64(i + 1),
			UserID:         userID,
			MedicationID:   1,
			TimeOfDay:      "08:00",
			ActiveWeekdays: []int{1, 2, 3, 4, 5, 6, 7},
			IsActive:       true,
		})
	}
	f := &fixture{
		events:   events,
		settings: &fakeSettings{settings: map[int64]*models.UserSettings{}},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC),
	}
	svc := dosing.NewService(events, reminders, nil)
	f.sched = New(svc, reminders, f.settings, fakeMeds{}, f.notifier, cache.NewMemoryGuard(), nil, nil,
		Config{DefaultTimezone: "UTC"})
	f.sched.now = func() time.Time { return f.now }
	return f
}

// -- Tests --

func TestCheck_NotifiesDueDoseOnce(t *testing.T) {
	f := newFixture(42)
	ctx := context.Background()

	f.sched.check(ctx)
	f.now = f.now.Add(5 * time.Minute)
	f.sched.check(ctx)

	require.Len(t, f.notifier.doses, 1)
	assert.Equal(t, sentDose{userID: 42, status: "Due at 08:00"}, f.notifier.doses[0])
	assert.Equal(t, []models.DoseStatus{models.DoseStatusScheduled}, f.events.statuses())
}

func TestCheck_RetriesAfterFailedSend(t *testing.T) {
	f := newFixture(42)
	f.notifier.failures = 1
	ctx := context.Background()

	f.sched.check(ctx)
	assert.Empty(t, f.notifier.doses)

	for i := 0; i < 3; i++ {
		f.now = f.now.Add(time.Minute)
		f.sched.check(ctx)
	}

	require.Len(t, f.notifier.doses, 1)
	assert.Equal(t, "Overdue: 08:00", f.notifier.doses[0].status)
}

func TestCheck_FinishesLateDoseAfterMidnight(t *testing.T) {
	f := newFixture(42)
	late := &models.DoseEvent{
		UserID:        42,
		MedicationID:  1,
		ScheduledTime: time.Date(2026, 10, 18, 23, 50, 0, 0, time.UTC),
		Status:        models.DoseStatusScheduled,
	}
	require.NoError(t, f.events.Insert(context.Background(), late))
	f.now = time.Date(2026, 10, 19, 0, 10, 0, 0, time.UTC)

	f.sched.check(context.Background())

	assert.Equal(t, models.DoseStatusMissed, f.events.events[late.ID].Status)
}

func TestCheck_QuietHoursStillAutoMiss(t *testing.T) {
	f := newFixture(42)
	f.settings.settings[42] = models.NewDefaultUserSettings(42, "UTC")
	f.settings.settings[42].QuietStart = "07:00"
	f.settings.settings[42].QuietEnd = "09:00"
	ctx := context.Background()

	f.sched.check(ctx)
	assert.Empty(t, f.notifier.doses)

	f.now = f.now.Add(20 * time.Minute)
	f.sched.check(ctx)
	assert.Empty(t, f.notifier.doses)
	assert.Equal(t, []models.DoseStatus{models.DoseStatusMissed}, f.events.statuses())
}

func TestCheck_NotificationsDisabled(t *testing.T) {
	f := newFixture(42)
	f.settings.settings[42] = models.NewDefaultUserSettings(42, "UTC")
	f.settings.settings[42].NotificationsEnabled = false

	f.sched.check(context.Background())
	assert.Empty(t, f.notifier.doses)
}

func TestCheck_UserTimezone(t *testing.T) {
	f := newFixture(42)
	f.settings.settings[42] = models.NewDefaultUserSettings(42, "Asia/Taipei")
	// 08:00 UTC is 16:00 in Taipei: long past the 08:00 dose.
	f.sched.check(context.Background())

	assert.Empty(t, f.notifier.doses)
	assert.Equal(t, []models.DoseStatus{models.DoseStatusMissed}, f.events.statuses())
}

func TestCheck_DailySummaryOnce(t *testing.T) {
	f := newFixture(42)
	f.now = time.Date(2026, 10, 18, 21, 5, 0, 0, time.UTC)
	ctx := context.Background()

	f.sched.check(ctx)
	f.sched.check(ctx)

	require.Len(t, f.notifier.summaries, 1)
	assert.Equal(t, models.AdherenceStatus{TotalToday: 1, MissedToday: 1}, f.notifier.summaries[0])
	require.NotNil(t, f.settings.settings[42].LastDailySummaryDate)
}

func TestCheck_SettingsFailureSkipsOnlyThatUser(t *testing.T) {
	f := newFixture(7, 42)
	f.settings.failFor = 7

	f.sched.check(context.Background())

	require.Len(t, f.notifier.doses, 1)
	assert.Equal(t, int64(42), f.notifier.doses[0].userID)
}

func TestNotify_NonBlocking(t *testing.T) {
	f := newFixture(42)
	f.sched.Notify()
	f.sched.Notify()
	assert.Len(t, f.sched.notifyCh, 1)
}

func TestStart_StopsOnCancel(t *testing.T) {
	f := newFixture(42)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.sched.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
