package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/cache"
	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/dosing"
	"github.com/hray3182/DoseLine/internal/metrics"
	"github.com/hray3182/DoseLine/internal/models"
)

type ReminderSource interface {
	dosing.ReminderStore
	UsersWithActiveReminders(ctx context.Context) ([]int64, error)
}

type SettingsStore interface {
	GetOrCreate(ctx context.Context, userID int64, defaultTimezone string) (*models.UserSettings, error)
	SetLastDailySummaryDate(ctx context.Context, userID int64, date time.Time) error
}

type MedicationStore interface {
	ListActive(ctx context.Context, userID int64) ([]*models.Medication, error)
}

// Notifier delivers messages to a user.
type Notifier interface {
	NotifyDose(ctx context.Context, userID int64, med *models.Medication, next dosing.NextDose) error
	SendDailySummary(ctx context.Context, userID int64, status models.AdherenceStatus, timezone string) error
}

type Scheduler struct {
	dosing          *dosing.Service
	reminders       ReminderSource
	settings        SettingsStore
	medications     MedicationStore
	notifier        Notifier
	guard           cache.NotificationGuard
	metrics         *metrics.Metrics
	logger          *zap.Logger
	defaultTimezone string
	checkInterval   time.Duration
	notifyCh        chan struct{}
	now             func() time.Time
}

type Config struct {
	DefaultTimezone string
	CheckInterval   time.Duration
}

func New(
	svc *dosing.Service,
	reminders ReminderSource,
	settings SettingsStore,
	medications MedicationStore,
	notifier Notifier,
	guard cache.NotificationGuard,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg Config,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = cache.NewMemoryGuard()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	return &Scheduler{
		dosing:          svc,
		reminders:       reminders,
		settings:        settings,
		medications:     medications,
		notifier:        notifier,
		guard:           guard,
		metrics:         m,
		logger:          logger,
		defaultTimezone: cfg.DefaultTimezone,
		checkInterval:   cfg.CheckInterval,
		notifyCh:        make(chan struct{}, 1),
		now:             time.Now,
	}
}

// Notify triggers an immediate check. Non-blocking if a check is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Scheduler started", zap.Duration("interval", s.checkInterval))
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.check(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.check(ctx)
		case <-s.notifyCh:
			s.logger.Debug("Scheduler triggered by notification")
			s.check(ctx)
		}
	}
}

func (s *Scheduler) check(ctx context.Context) {
	userIDs, err := s.reminders.UsersWithActiveReminders(ctx)
	if err != nil {
		s.logger.Error("Failed to list users with reminders", zap.Error(err))
		return
	}

	now := s.now()
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return
		}
		s.checkUser(ctx, userID, now)
	}
}

func (s *Scheduler) checkUser(ctx context.Context, userID int64, now time.Time) {
	log := s.logger.With(zap.Int64("user_id", userID))

	settings, err := s.settings.GetOrCreate(ctx, userID, s.defaultTimezone)
	if err != nil {
		log.Error("Failed to load user settings", zap.Error(err))
		return
	}
	if err := clock.Validate(settings.Timezone); err != nil {
		log.Warn("Invalid timezone, using UTC", zap.String("timezone", settings.Timezone))
	}
	svc := s.dosing.WithGrace(settings.GraceMinutes)
	tz := settings.Timezone

	if _, err := svc.FinishPreviousDay(ctx, userID, now, tz); err != nil {
		log.Warn("Failed to finish previous day's doses", zap.Error(err))
	}
	if err := svc.EnsureTodaysEvents(ctx, userID, now, tz); err != nil {
		log.Warn("Failed to materialize today's doses", zap.Error(err))
	}

	s.checkDoses(ctx, svc, settings, now)
	s.sendDailySummaryIfNeeded(ctx, svc, settings, now)
}

// checkDoses runs the status check for every medication with a reminder
// today. The check itself marks overdue doses missed, so it runs even when
// notifications are off.
func (s *Scheduler) checkDoses(ctx context.Context, svc *dosing.Service, settings *models.UserSettings, now time.Time) {
	userID := settings.UserID
	log := s.logger.With(zap.Int64("user_id", userID))
	local := clock.Local(now, settings.Timezone)

	reminders, err := s.reminders.ActiveReminders(ctx, userID)
	if err != nil {
		log.Error("Failed to load reminders", zap.Error(err))
		return
	}
	weekday := clock.ISOWeekday(local)
	dueToday := make(map[int64]bool)
	for _, r := range reminders {
		if r.AppliesOn(weekday) {
			dueToday[r.MedicationID] = true
		}
	}
	if len(dueToday) == 0 {
		return
	}

	meds, err := s.medications.ListActive(ctx, userID)
	if err != nil {
		log.Error("Failed to load medications", zap.Error(err))
		return
	}

	quiet := settings.IsQuietHours(now)
	for _, med := range meds {
		if !dueToday[med.MedicationID] {
			continue
		}

		next := svc.NextDoseTime(ctx, userID, med.MedicationID, now, settings.Timezone)
		if next.State != dosing.StateDue && next.State != dosing.StateOverdue {
			continue
		}
		if !settings.NotificationsEnabled || quiet {
			continue
		}

		key := cache.NotificationKey(userID, med.MedicationID, local, next.ReminderTime)
		ok, err := s.guard.Acquire(ctx, key, cache.NotificationTTL)
		if err != nil {
			log.Warn("Notification guard unavailable", zap.String("key", key), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		if err := s.notifier.NotifyDose(ctx, userID, med, next); err != nil {
			log.Error("Failed to send dose reminder",
				zap.Int64("medication_id", med.MedicationID),
				zap.Error(err))
			// Let the next tick retry.
			if err := s.guard.Release(ctx, key); err != nil {
				log.Warn("Failed to release notification key", zap.String("key", key), zap.Error(err))
			}
			continue
		}
		s.metrics.RecordNotification()
		log.Info("Sent dose reminder",
			zap.Int64("medication_id", med.MedicationID),
			zap.String("status", next.Status))
	}
}

func (s *Scheduler) sendDailySummaryIfNeeded(ctx context.Context, svc *dosing.Service, settings *models.UserSettings, now time.Time) {
	if !settings.ShouldSendDailySummary(now) {
		return
	}
	userID := settings.UserID

	status := svc.TodaysAdherenceStatus(ctx, userID, now, settings.Timezone)
	if err := s.notifier.SendDailySummary(ctx, userID, status, settings.Timezone); err != nil {
		s.logger.Error("Failed to send daily summary", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	if err := s.settings.SetLastDailySummaryDate(ctx, userID, now); err != nil {
		s.logger.Error("Failed to update last daily summary date", zap.Int64("user_id", userID), zap.Error(err))
	}
	s.logger.Info("Sent daily summary", zap.Int64("user_id", userID))
}
