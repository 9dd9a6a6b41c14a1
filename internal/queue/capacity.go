package queue

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"opd/token-service/internal/models"
	"opd/token-service/internal/store"
)

// Capacity tracks slot occupancy. The admitted count only ever goes up
// on allocation and down on cancellation, so completed and no-show
// tokens keep their seat for reporting purposes.
type Capacity struct {
	slots  store.SlotStore
	tokens store.TokenStore
	logger *zap.Logger
}

func NewCapacity(slots store.SlotStore, tokens store.TokenStore, logger *zap.Logger) *Capacity {
	return &Capacity{slots: slots, tokens: tokens, logger: logger}
}

// Reserve admits one token into the slot. An emergency arriving at a
// full slot permanently grows max capacity by one and is admitted into
// the new seat; everyone else gets ErrSlotFull.
func (c *Capacity) Reserve(ctx context.Context, slotID string, emergency bool) (models.Slot, error) {
	slot, err := c.slots.ReserveAdmitted(ctx, slotID)
	if err == nil {
		return slot, nil
	}
	if !emergency || !errors.Is(err, store.ErrSlotFull) {
		return models.Slot{}, err
	}
	if _, err := c.slots.IncrementCapacity(ctx, slotID, 1); err != nil {
		return models.Slot{}, err
	}
	slot, err = c.slots.IncrementAdmitted(ctx, slotID, 1)
	if err != nil {
		return models.Slot{}, err
	}
	c.logger.Info("extended slot capacity for emergency",
		zap.String("slot_id", slotID),
		zap.Int("max_capacity", slot.MaxCapacity))
	return slot, nil
}

// Release returns one admission after a cancellation. Releasing an
// already-empty slot clamps at zero instead of going negative.
func (c *Capacity) Release(ctx context.Context, slotID string) error {
	_, err := c.slots.IncrementAdmitted(ctx, slotID, -1)
	return err
}

func (c *Capacity) MarkDelayed(ctx context.Context, slotID string, minutes int) (models.Slot, error) {
	slot, err := c.slots.SetDelay(ctx, slotID, minutes)
	if err != nil {
		return models.Slot{}, err
	}
	c.logger.Info("slot delayed",
		zap.String("slot_id", slotID),
		zap.Int("delay_minutes", minutes))
	return slot, nil
}

type SlotStats struct {
	SlotID            string         `json:"slot_id"`
	MaxCapacity       int            `json:"max_capacity"`
	AdmittedCount     int            `json:"admitted_count"`
	AvailableCapacity int            `json:"available_capacity"`
	IsFull            bool           `json:"is_full"`
	IsDelayed         bool           `json:"is_delayed"`
	DelayMinutes      int            `json:"delay_minutes"`
	Status            string         `json:"status"`
	TokenCounts       map[string]int `json:"token_counts"`
}

func (c *Capacity) Stats(ctx context.Context, slotID string) (SlotStats, error) {
	slot, err := c.slots.GetSlot(ctx, slotID)
	if err != nil {
		return SlotStats{}, err
	}
	counts, err := c.tokens.CountByStatus(ctx, slotID)
	if err != nil {
		return SlotStats{}, err
	}
	return SlotStats{
		SlotID:            slot.SlotID,
		MaxCapacity:       slot.MaxCapacity,
		AdmittedCount:     slot.AdmittedCount,
		AvailableCapacity: slot.AvailableCapacity(),
		IsFull:            slot.IsFull(),
		IsDelayed:         slot.IsDelayed,
		DelayMinutes:      slot.DelayMinutes,
		Status:            slot.Status,
		TokenCounts:       counts,
	}, nil
}
