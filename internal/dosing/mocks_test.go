package dosing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/DoseLine/internal/models"
)

var errStore = errors.New("store unavailable")

// -- Mock Event Store --

type mockEventStore struct {
	events  map[uuid.UUID]*models.DoseEvent
	created time.Time

	inserts int
	updates int
	deletes int

	queryErr  error
	insertErr error
	updateErr error
	deleteErr error
}

func newMockEventStore() *mockEventStore {
	return &mockEventStore{
		events:  make(map[uuid.UUID]*models.DoseEvent),
		created: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// nextCreated hands out strictly increasing creation times.
func (m *mockEventStore) nextCreated() time.Time {
	m.created = m.created.Add(time.Second)
	return m.created
}

func (m *mockEventStore) seed(e models.DoseEvent) *models.DoseEvent {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.nextCreated()
	}
	e.ScheduledTime = e.ScheduledTime.UTC()
	m.events[e.ID] = &e
	return &e
}

func (m *mockEventStore) Insert(_ context.Context, e *models.DoseEvent) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = m.nextCreated()
	stored := *e
	m.events[e.ID] = &stored
	m.inserts++
	return nil
}

func (m *mockEventStore) Update(_ context.Context, id uuid.UUID, u models.DoseEventUpdate) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	e, ok := m.events[id]
	if !ok {
		return fmt.Errorf("dose event %s not found", id)
	}
	if u.Status != nil {
		e.Status = *u.Status
	}
	if u.TakenTime != nil {
		t := *u.TakenTime
		e.TakenTime = &t
	}
	if u.Notes != nil {
		e.Notes = *u.Notes
	}
	m.updates++
	return nil
}

func (m *mockEventStore) Delete(_ context.Context, ids []uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for _, id := range ids {
		delete(m.events, id)
	}
	m.deletes++
	return nil
}

func (m *mockEventStore) Query(_ context.Context, q models.DoseEventQuery) ([]*models.DoseEvent, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []*models.DoseEvent
	for _, e := range m.events {
		if e.UserID != q.UserID {
			continue
		}
		if q.MedicationID != 0 && e.MedicationID != q.MedicationID {
			continue
		}
		if !q.From.IsZero() && e.ScheduledTime.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !e.ScheduledTime.Before(q.To) {
			continue
		}
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (m *mockEventStore) all() []*models.DoseEvent {
	var out []*models.DoseEvent
	for _, e := range m.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out
}

// -- Mock Reminder Store --

type mockReminderStore struct {
	reminders []*models.Reminder
	err       error
}

func (m *mockReminderStore) add(userID, medicationID int64, tod string, weekdays ...int) *models.Reminder {
	if len(weekdays) == 0 {
		weekdays = []int{1, 2, 3, 4, 5, 6, 7}
	}
	r := &models.Reminder{
		ReminderID:     int64(len(m.reminders) + 1),
		UserID:         userID,
		MedicationID:   medicationID,
		TimeOfDay:      tod,
		ActiveWeekdays: weekdays,
		IsActive:       true,
	}
	m.reminders = append(m.reminders, r)
	return r
}

func (m *mockReminderStore) ActiveReminders(_ context.Context, userID int64) ([]*models.Reminder, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Reminder
	for _, r := range m.reminders {
		if r.UserID == userID && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

// -- Mock Publisher --

type mockPublisher struct {
	published []models.DoseStatusEvent
	deadlines []time.Time
	err       error
}

func (m *mockPublisher) PublishDoseStatus(ctx context.Context, e models.DoseStatusEvent) error {
	m.published = append(m.published, e)
	deadline, _ := ctx.Deadline()
	m.deadlines = append(m.deadlines, deadline)
	return m.err
}

// -- Helpers --

const (
	testUser = int64(42)
	aspirin  = int64(1)
	vitaminD = int64(2)
)

// 2026-10-18 is a Sunday.
func at(hour, minute int) time.Time {
	return time.Date(2026, 10, 18, hour, minute, 0, 0, time.UTC)
}

func newTestService() (*Service, *mockEventStore, *mockReminderStore, *mockPublisher) {
	events := newMockEventStore()
	reminders := &mockReminderStore{}
	pub := &mockPublisher{}
	return NewService(events, reminders, nil, WithPublisher(pub)), events, reminders, pub
}
