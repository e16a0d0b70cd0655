// Package dosing is the dose scheduling and adherence reconciliation engine.
//
// It turns weekly reminder rules into concrete dose events, classifies them
// against a grace window, merges near-duplicate rows written by racing
// callers, and derives the counts shown to users. There are no locks: every
// write is idempotent and every read that informs a decision reconciles
// duplicates first, so transient races heal on the next call.
package dosing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/metrics"
	"github.com/hray3182/DoseLine/internal/models"
)

// EventStore persists dose events.
type EventStore interface {
	Insert(ctx context.Context, event *models.DoseEvent) error
	Update(ctx context.Context, id uuid.UUID, update models.DoseEventUpdate) error
	Delete(ctx context.Context, ids []uuid.UUID) error
	Query(ctx context.Context, q models.DoseEventQuery) ([]*models.DoseEvent, error)
}

// ReminderStore is the read-only view of reminder definitions.
type ReminderStore interface {
	ActiveReminders(ctx context.Context, userID int64) ([]*models.Reminder, error)
}

// StatusPublisher is notified after a dose is marked taken or missed.
type StatusPublisher interface {
	PublishDoseStatus(ctx context.Context, event models.DoseStatusEvent) error
}

type Service struct {
	events    EventStore
	reminders ReminderStore
	publisher StatusPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	grace     int
}

type Option func(*Service)

func WithPublisher(p StatusPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithGraceMinutes sets the default grace window.
func WithGraceMinutes(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.grace = minutes
		}
	}
}

func NewService(events EventStore, reminders ReminderStore, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		events:    events,
		reminders: reminders,
		logger:    logger,
		grace:     models.DefaultGraceMinutes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithGrace returns a copy of the service using a per-user grace window.
func (s *Service) WithGrace(minutes int) *Service {
	if minutes <= 0 || minutes == s.grace {
		return s
	}
	c := *s
	c.grace = minutes
	return &c
}

// GraceMinutes reports the grace window in use.
func (s *Service) GraceMinutes() int {
	return s.grace
}

// remindersForDay keeps the active reminders that fire on local's weekday.
func remindersForDay(reminders []*models.Reminder, local time.Time) []*models.Reminder {
	weekday := clock.ISOWeekday(local)
	var out []*models.Reminder
	for _, r := range reminders {
		if r.AppliesOn(weekday) {
			out = append(out, r)
		}
	}
	return out
}

// dayEvents loads the events of local's calendar day. medicationID 0 loads
// every medication.
func (s *Service) dayEvents(ctx context.Context, userID, medicationID int64, local time.Time) ([]*models.DoseEvent, error) {
	start, end := clock.DayBounds(local)
	events, err := s.events.Query(ctx, models.DoseEventQuery{
		UserID:       userID,
		MedicationID: medicationID,
		From:         start,
		To:           end,
	})
	if err != nil {
		s.metrics.RecordStoreError("query")
		return nil, err
	}
	return events, nil
}

// PublishTimeout bounds one status publish.
const PublishTimeout = 5 * time.Second

func (s *Service) publish(ctx context.Context, event *models.DoseEvent, now time.Time) {
	if s.publisher == nil {
		return
	}
	msg := models.DoseStatusEvent{
		EventID:       event.ID.String(),
		UserID:        event.UserID,
		MedicationID:  event.MedicationID,
		Status:        event.Status,
		ScheduledTime: event.ScheduledTime,
		TakenTime:     event.TakenTime,
		OccurredAt:    now.UTC(),
	}
	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()
	if err := s.publisher.PublishDoseStatus(ctx, msg); err != nil {
		s.logger.Warn("Failed to publish dose status",
			zap.String("event_id", msg.EventID),
			zap.String("status", string(msg.Status)),
			zap.Error(err))
	}
}
