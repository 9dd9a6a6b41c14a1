package store

import "errors"

var (
	ErrDoctorNotFound       = errors.New("doctor not found")
	ErrSlotNotFound         = errors.New("slot not found")
	ErrTokenNotFound        = errors.New("token not found")
	ErrDuplicateSlot        = errors.New("slot already exists for this doctor, date and start time")
	ErrSlotFull             = errors.New("slot is at capacity")
	ErrInvalidTransition    = errors.New("status transition not allowed")
	ErrTokenFinal           = errors.New("token is already in a final state")
	ErrInsufficientCapacity = errors.New("target slot has insufficient capacity")
	ErrInvalidTokenType     = errors.New("unknown token type")
	ErrMissingPatient       = errors.New("patient id is required for this token type")
)
