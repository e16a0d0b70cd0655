package repository

import (
	"context"

	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/models"
)

type ReminderRepository struct {
	db *database.DB
}

func NewReminderRepository(db *database.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

const reminderCols = `reminder_id, user_id, medication_id, time_of_day, active_weekdays, is_active, created_at`

func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO medication_reminders (user_id, medication_id, time_of_day, active_weekdays, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING reminder_id, created_at`,
		reminder.UserID, reminder.MedicationID, reminder.TimeOfDay, toSmallInts(reminder.ActiveWeekdays), reminder.IsActive,
	).Scan(&reminder.ReminderID, &reminder.CreatedAt)
}

// ActiveReminders returns the user's active reminders. Reminders of
// deactivated medications are excluded.
func (r *ReminderRepository) ActiveReminders(ctx context.Context, userID int64) ([]*models.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT r.reminder_id, r.user_id, r.medication_id, r.time_of_day, r.active_weekdays, r.is_active, r.created_at
		 FROM medication_reminders r
		 JOIN medications m ON m.medication_id = r.medication_id
		 WHERE r.user_id = $1 AND r.is_active AND m.active
		 ORDER BY r.time_of_day ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanReminders(rows)
}

func (r *ReminderRepository) GetByMedication(ctx context.Context, medicationID, userID int64) ([]*models.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderCols+`
		 FROM medication_reminders WHERE medication_id = $1 AND user_id = $2
		 ORDER BY time_of_day ASC`,
		medicationID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanReminders(rows)
}

// UsersWithActiveReminders lists users the scheduler has to look at.
func (r *ReminderRepository) UsersWithActiveReminders(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT DISTINCT user_id FROM medication_reminders WHERE is_active ORDER BY user_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}

func (r *ReminderRepository) scanReminders(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*models.Reminder, error) {
	var reminders []*models.Reminder
	for rows.Next() {
		reminder := &models.Reminder{}
		var weekdays []int16
		if err := rows.Scan(&reminder.ReminderID, &reminder.UserID, &reminder.MedicationID, &reminder.TimeOfDay,
			&weekdays, &reminder.IsActive, &reminder.CreatedAt); err != nil {
			return nil, err
		}
		reminder.ActiveWeekdays = fromSmallInts(weekdays)
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

func toSmallInts(days []int) []int16 {
	out := make([]int16, len(days))
	for i, d := range days {
		out[i] = int16(d)
	}
	return out
}

func fromSmallInts(days []int16) []int {
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}
