package models

import "time"

type Medication struct {
	MedicationID int64     `json:"medication_id"`
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Label is the name followed by the dosage when one is recorded.
func (m *Medication) Label() string {
	if m.Dosage == "" {
		return m.Name
	}
	return m.Name + " " + m.Dosage
}
