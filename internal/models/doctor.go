package models

import "time"

type Doctor struct {
	DoctorID       string    `json:"doctor_id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	OPDDays        []string  `json:"opd_days,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
