package models

import "time"

// Reminder is a recurring weekly dose reminder for one medication.
type Reminder struct {
	ReminderID     int64     `json:"reminder_id"`
	UserID         int64     `json:"user_id"`
	MedicationID   int64     `json:"medication_id"`
	TimeOfDay      string    `json:"time_of_day"`     // HH:MM, user's timezone
	ActiveWeekdays []int     `json:"active_weekdays"` // 1=Monday .. 7=Sunday
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// AppliesOn reports whether the reminder fires on the given ISO weekday.
func (r *Reminder) AppliesOn(isoWeekday int) bool {
	if !r.IsActive {
		return false
	}
	for _, d := range r.ActiveWeekdays {
		if d == isoWeekday {
			return true
		}
	}
	return false
}

// HasWeekdays reports whether at least one valid weekday is set.
func (r *Reminder) HasWeekdays() bool {
	for _, d := range r.ActiveWeekdays {
		if d >= 1 && d <= 7 {
			return true
		}
	}
	return false
}
