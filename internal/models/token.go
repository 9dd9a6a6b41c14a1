package models

import "time"

const (
	StatusPending    = "PENDING"
	StatusCheckedIn  = "CHECKED_IN"
	StatusConsulting = "CONSULTING"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
	StatusNoShow     = "NO_SHOW"
)

const (
	TypeOnline    = "ONLINE"
	TypeWalkIn    = "WALKIN"
	TypePriority  = "PRIORITY"
	TypeFollowUp  = "FOLLOWUP"
	TypeEmergency = "EMERGENCY"
)

type Token struct {
	TokenID       string     `json:"token_id"`
	TokenNumber   string     `json:"token_number"`
	SlotID        string     `json:"slot_id"`
	PatientID     string     `json:"patient_id"`
	PatientName   string     `json:"patient_name"`
	PhoneNumber   string     `json:"phone_number,omitempty"`
	Type          string     `json:"type"`
	PriorityScore int64      `json:"priority_score"`
	ArrivalSeq    int64      `json:"arrival_seq"`
	QueuePosition int        `json:"queue_position"`
	Status        string     `json:"status"`
	EstimatedTime time.Time  `json:"estimated_time"`
	CheckInTime   *time.Time `json:"check_in_time,omitempty"`
	CompletedTime *time.Time `json:"completed_time,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
