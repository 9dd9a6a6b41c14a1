package models

import "time"

const (
	SlotStatusActive    = "ACTIVE"
	SlotStatusDelayed   = "DELAYED"
	SlotStatusCompleted = "COMPLETED"
	SlotStatusCancelled = "CANCELLED"
)

type Slot struct {
	SlotID        string    `json:"slot_id"`
	DoctorID      string    `json:"doctor_id"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	MaxCapacity   int       `json:"max_capacity"`
	AdmittedCount int       `json:"admitted_count"`
	IsDelayed     bool      `json:"is_delayed"`
	DelayMinutes  int       `json:"delay_minutes"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s Slot) AvailableCapacity() int {
	return s.MaxCapacity - s.AdmittedCount
}

func (s Slot) IsFull() bool {
	return s.AdmittedCount >= s.MaxCapacity
}
