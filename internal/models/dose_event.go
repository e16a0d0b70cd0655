package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DoseStatus string

const (
	DoseStatusScheduled DoseStatus = "scheduled"
	DoseStatusTaken     DoseStatus = "taken"
	DoseStatusMissed    DoseStatus = "missed"
)

// Rank orders statuses by how much they tell us: taken > missed > scheduled.
func (s DoseStatus) Rank() int {
	switch s {
	case DoseStatusTaken:
		return 3
	case DoseStatusMissed:
		return 2
	case DoseStatusScheduled:
		return 1
	default:
		return 0
	}
}

func (s DoseStatus) Valid() bool {
	return s.Rank() > 0
}

// ParseDoseStatus converts a stored status, rejecting unknown values.
func ParseDoseStatus(s string) (DoseStatus, error) {
	status := DoseStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown dose status %q", s)
	}
	return status, nil
}

// DoseEvent is one expected (or recorded) dose of a medication.
type DoseEvent struct {
	ID            uuid.UUID  `json:"id"`
	UserID        int64      `json:"user_id"`
	MedicationID  int64      `json:"medication_id"`
	ReminderID    *int64     `json:"reminder_id,omitempty"`
	ScheduledTime time.Time  `json:"scheduled_time"` // UTC
	TakenTime     *time.Time `json:"taken_time,omitempty"`
	Status        DoseStatus `json:"status"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (e *DoseEvent) IsTaken() bool {
	return e.Status == DoseStatusTaken
}

// DoseEventUpdate carries the fields a status transition may change. Nil
// fields are left untouched.
type DoseEventUpdate struct {
	Status    *DoseStatus
	TakenTime *time.Time
	Notes     *string
}

// DoseEventQuery selects a user's events whose scheduled time lies in
// [From, To). Zero MedicationID and empty Status match everything.
type DoseEventQuery struct {
	UserID       int64
	MedicationID int64
	From         time.Time
	To           time.Time
	Status       DoseStatus
}
