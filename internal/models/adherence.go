package models

import "time"

// AdherenceStatus is today's dose count summary for one user.
type AdherenceStatus struct {
	TotalToday     int  `json:"total_today"`
	CompletedToday int  `json:"completed_today"`
	MissedToday    int  `json:"missed_today"`
	PendingToday   int  `json:"pending_today"`
	Inconsistent   bool `json:"inconsistent,omitempty"` // pending was clamped at zero
}

// DayAdherence summarizes one local calendar day.
type DayAdherence struct {
	Date       time.Time `json:"date"`
	Expected   int       `json:"expected"`
	Taken      int       `json:"taken"`
	Missed     int       `json:"missed"`
	Pending    int       `json:"pending"`    // today only
	Unrecorded int       `json:"unrecorded"` // past days with no event row
}

// Rate is the fraction of expected doses that were taken.
func (d DayAdherence) Rate() float64 {
	if d.Expected == 0 {
		return 0
	}
	return float64(d.Taken) / float64(d.Expected)
}

// DoseStatusEvent is published when a dose changes status.
type DoseStatusEvent struct {
	EventID       string     `json:"event_id"`
	UserID        int64      `json:"user_id"`
	MedicationID  int64      `json:"medication_id"`
	Status        DoseStatus `json:"status"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	TakenTime     *time.Time `json:"taken_time,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
