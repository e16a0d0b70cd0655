package repository

import (
	"context"
	"time"

	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/models"
)

type UserSettingsRepository struct {
	db *database.DB
}

func NewUserSettingsRepository(db *database.DB) *UserSettingsRepository {
	return &UserSettingsRepository{db: db}
}

const userSettingsCols = `user_id, timezone, grace_minutes, quiet_start, quiet_end,
	notifications_enabled, daily_summary_enabled, daily_summary_time,
	last_daily_summary_date, updated_at`

func scanUserSettings(row interface{ Scan(dest ...any) error }) (*models.UserSettings, error) {
	settings := &models.UserSettings{}
	err := row.Scan(
		&settings.UserID,
		&settings.Timezone,
		&settings.GraceMinutes,
		&settings.QuietStart,
		&settings.QuietEnd,
		&settings.NotificationsEnabled,
		&settings.DailySummaryEnabled,
		&settings.DailySummaryTime,
		&settings.LastDailySummaryDate,
		&settings.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// GetOrCreate retrieves user settings, creating default settings if none
// exist. defaultTimezone only applies to newly created rows.
func (r *UserSettingsRepository) GetOrCreate(ctx context.Context, userID int64, defaultTimezone string) (*models.UserSettings, error) {
	defaults := models.NewDefaultUserSettings(userID, defaultTimezone)
	return scanUserSettings(r.db.Pool.QueryRow(ctx,
		`INSERT INTO user_settings (user_id, timezone, grace_minutes) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING `+userSettingsCols,
		userID, defaults.Timezone, defaults.GraceMinutes,
	))
}

// Update updates user settings
func (r *UserSettingsRepository) Update(ctx context.Context, settings *models.UserSettings) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE user_settings SET
		    timezone = $1,
		    grace_minutes = $2,
		    quiet_start = $3,
		    quiet_end = $4,
		    notifications_enabled = $5,
		    daily_summary_enabled = $6,
		    daily_summary_time = $7,
		    updated_at = $8
		 WHERE user_id = $9`,
		settings.Timezone,
		settings.GraceMinutes,
		settings.QuietStart,
		settings.QuietEnd,
		settings.NotificationsEnabled,
		settings.DailySummaryEnabled,
		settings.DailySummaryTime,
		time.Now(),
		settings.UserID,
	)
	return err
}

// SetTimezone stores an already validated IANA timezone name
func (r *UserSettingsRepository) SetTimezone(ctx context.Context, userID int64, timezone string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE user_settings SET timezone = $1, updated_at = $2 WHERE user_id = $3`,
		timezone, time.Now(), userID,
	)
	return err
}

// SetLastDailySummaryDate updates the last daily summary date
func (r *UserSettingsRepository) SetLastDailySummaryDate(ctx context.Context, userID int64, date time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE user_settings SET last_daily_summary_date = $1 WHERE user_id = $2`,
		date, userID,
	)
	return err
}
