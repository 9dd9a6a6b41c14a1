package store

import (
	"context"
	"time"

	"opd/token-service/internal/models"
)

type CreateDoctorInput struct {
	Name           string
	Specialization string
	OPDDays        []string
	CreatedAt      time.Time
}

type CreateSlotInput struct {
	DoctorID    string
	Date        string
	StartTime   string
	EndTime     string
	MaxCapacity int
	CreatedAt   time.Time
}

// TokenUpdate carries the token fields a single update may rewrite.
// Nil fields are left untouched.
type TokenUpdate struct {
	Status        *string
	QueuePosition *int
	TokenNumber   *string
	EstimatedTime *time.Time
	CheckInTime   *time.Time
	CompletedTime *time.Time
	CancelReason  *string
}

type DoctorStore interface {
	CreateDoctor(ctx context.Context, input CreateDoctorInput) (models.Doctor, error)
	GetDoctor(ctx context.Context, doctorID string) (models.Doctor, error)
	ListDoctors(ctx context.Context, specialization string) ([]models.Doctor, error)
}

type SlotStore interface {
	CreateSlot(ctx context.Context, input CreateSlotInput) (models.Slot, error)
	GetSlot(ctx context.Context, slotID string) (models.Slot, error)
	ListSlots(ctx context.Context, doctorID, date string) ([]models.Slot, error)

	// ReserveAdmitted admits one token if the slot is below capacity.
	// The check and the increment are a single atomic step; a full slot
	// returns ErrSlotFull.
	ReserveAdmitted(ctx context.Context, slotID string) (models.Slot, error)

	// IncrementAdmitted adjusts admitted_count by delta, clamping at zero.
	IncrementAdmitted(ctx context.Context, slotID string, delta int) (models.Slot, error)

	// IncrementCapacity grows max_capacity by delta.
	IncrementCapacity(ctx context.Context, slotID string, delta int) (models.Slot, error)

	SetDelay(ctx context.Context, slotID string, minutes int) (models.Slot, error)
	SetSlotStatus(ctx context.Context, slotID, status string) (models.Slot, error)
}

type TokenStore interface {
	InsertToken(ctx context.Context, token models.Token) error
	GetToken(ctx context.Context, tokenID string) (models.Token, error)

	// ListBySlot returns the slot's tokens, optionally filtered to the
	// given statuses, in arrival order.
	ListBySlot(ctx context.Context, slotID string, statuses ...string) ([]models.Token, error)

	ListByPatient(ctx context.Context, patientID string) ([]models.Token, error)
	UpdateToken(ctx context.Context, tokenID string, update TokenUpdate) (models.Token, error)

	// MoveTokens reassigns the given tokens to another slot in one step.
	MoveTokens(ctx context.Context, tokenIDs []string, targetSlotID string) error

	CountByStatus(ctx context.Context, slotID string) (map[string]int, error)

	// NextArrivalSeq hands out the next value of a monotonically
	// increasing sequence shared by all slots.
	NextArrivalSeq(ctx context.Context) (int64, error)
}

// Store is everything the token service needs from persistence.
type Store interface {
	DoctorStore
	SlotStore
	TokenStore

	Ping(ctx context.Context) error
}
