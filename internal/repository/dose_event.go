package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/models"
)

type DoseEventRepository struct {
	db *database.DB
}

func NewDoseEventRepository(db *database.DB) *DoseEventRepository {
	return &DoseEventRepository{db: db}
}

const doseEventCols = `id, user_id, medication_id, reminder_id, scheduled_time, taken_time, status, notes, created_at`

// Insert assigns an id when the event has none.
func (r *DoseEventRepository) Insert(ctx context.Context, event *models.DoseEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO dose_events (id, user_id, medication_id, reminder_id, scheduled_time, taken_time, status, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		event.ID, event.UserID, event.MedicationID, event.ReminderID,
		event.ScheduledTime.UTC(), event.TakenTime, string(event.Status), event.Notes,
	).Scan(&event.CreatedAt)
}

func (r *DoseEventRepository) Update(ctx context.Context, id uuid.UUID, update models.DoseEventUpdate) error {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.TakenTime != nil {
		add("taken_time", update.TakenTime.UTC())
	}
	if update.Notes != nil {
		add("notes", *update.Notes)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	tag, err := r.db.Pool.Exec(ctx,
		fmt.Sprintf(`UPDATE dose_events SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dose event %s not found", id)
	}
	return nil
}

func (r *DoseEventRepository) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM dose_events WHERE id = ANY($1)`, ids)
	return err
}

func (r *DoseEventRepository) Query(ctx context.Context, q models.DoseEventQuery) ([]*models.DoseEvent, error) {
	conds := []string{"user_id = $1"}
	args := []any{q.UserID}
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.MedicationID != 0 {
		add("medication_id = $%d", q.MedicationID)
	}
	if !q.From.IsZero() {
		add("scheduled_time >= $%d", q.From.UTC())
	}
	if !q.To.IsZero() {
		add("scheduled_time < $%d", q.To.UTC())
	}
	if q.Status != "" {
		add("status = $%d", string(q.Status))
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+doseEventCols+` FROM dose_events WHERE `+strings.Join(conds, " AND ")+` ORDER BY scheduled_time ASC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.DoseEvent
	for rows.Next() {
		event := &models.DoseEvent{}
		var status string
		if err := rows.Scan(&event.ID, &event.UserID, &event.MedicationID, &event.ReminderID,
			&event.ScheduledTime, &event.TakenTime, &status, &event.Notes, &event.CreatedAt); err != nil {
			return nil, err
		}
		if event.Status, err = models.ParseDoseStatus(status); err != nil {
			return nil, fmt.Errorf("dose event %s: %w", event.ID, err)
		}
		event.ScheduledTime = event.ScheduledTime.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}
