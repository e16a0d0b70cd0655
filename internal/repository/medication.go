package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/models"
)

type MedicationRepository struct {
	db *database.DB
}

func NewMedicationRepository(db *database.DB) *MedicationRepository {
	return &MedicationRepository{db: db}
}

func (r *MedicationRepository) Create(ctx context.Context, med *models.Medication) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO medications (user_id, name, dosage, active)
		 VALUES ($1, $2, $3, $4)
		 RETURNING medication_id, created_at`,
		med.UserID, med.Name, med.Dosage, med.Active,
	).Scan(&med.MedicationID, &med.CreatedAt)
}

// GetByID returns nil, nil when the medication does not belong to the user.
func (r *MedicationRepository) GetByID(ctx context.Context, medicationID, userID int64) (*models.Medication, error) {
	med := &models.Medication{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT medication_id, user_id, name, dosage, active, created_at
		 FROM medications WHERE medication_id = $1 AND user_id = $2`,
		medicationID, userID,
	).Scan(&med.MedicationID, &med.UserID, &med.Name, &med.Dosage, &med.Active, &med.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return med, nil
}

func (r *MedicationRepository) ListActive(ctx context.Context, userID int64) ([]*models.Medication, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT medication_id, user_id, name, dosage, active, created_at
		 FROM medications WHERE user_id = $1 AND active
		 ORDER BY name ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []*models.Medication
	for rows.Next() {
		med := &models.Medication{}
		if err := rows.Scan(&med.MedicationID, &med.UserID, &med.Name, &med.Dosage, &med.Active, &med.CreatedAt); err != nil {
			return nil, err
		}
		meds = append(meds, med)
	}
	return meds, rows.Err()
}

func (r *MedicationRepository) SetActive(ctx context.Context, medicationID, userID int64, active bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE medications SET active = $1 WHERE medication_id = $2 AND user_id = $3`,
		active, medicationID, userID,
	)
	return err
}
