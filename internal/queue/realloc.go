package queue

import (
	"context"

	"go.uber.org/zap"

	"opd/token-service/internal/models"
	"opd/token-service/internal/store"
)

// Reallocator moves every PENDING token of one slot into another, for
// when a doctor cancels a session and the waiting patients should not
// be sent home.
type Reallocator struct {
	slots  store.SlotStore
	tokens store.TokenStore
	engine *Engine
	locks  *slotLocks
	logger *zap.Logger
}

type ReallocateResult struct {
	SourceSlotID string `json:"source_slot_id"`
	TargetSlotID string `json:"target_slot_id"`
	MovedCount   int    `json:"moved_count"`
}

// Reallocate moves all pending tokens from source to target. Either
// every pending token moves or none does: the target must have room for
// the whole batch before anything is touched. Checked-in and consulting
// tokens stay where they are.
func (r *Reallocator) Reallocate(ctx context.Context, sourceSlotID, targetSlotID string) (ReallocateResult, error) {
	unlock := r.locks.lockPair(sourceSlotID, targetSlotID)
	defer unlock()

	if _, err := r.slots.GetSlot(ctx, sourceSlotID); err != nil {
		return ReallocateResult{}, err
	}
	target, err := r.slots.GetSlot(ctx, targetSlotID)
	if err != nil {
		return ReallocateResult{}, err
	}

	pending, err := r.tokens.ListBySlot(ctx, sourceSlotID, models.StatusPending)
	if err != nil {
		return ReallocateResult{}, err
	}
	result := ReallocateResult{SourceSlotID: sourceSlotID, TargetSlotID: targetSlotID}
	if len(pending) == 0 {
		return result, nil
	}
	if target.AvailableCapacity() < len(pending) {
		return ReallocateResult{}, store.ErrInsufficientCapacity
	}

	ids := make([]string, len(pending))
	for i, token := range pending {
		ids[i] = token.TokenID
	}
	if err := r.tokens.MoveTokens(ctx, ids, targetSlotID); err != nil {
		return ReallocateResult{}, err
	}
	if _, err := r.slots.IncrementAdmitted(ctx, sourceSlotID, -len(pending)); err != nil {
		return ReallocateResult{}, err
	}
	if _, err := r.slots.IncrementAdmitted(ctx, targetSlotID, len(pending)); err != nil {
		return ReallocateResult{}, err
	}

	// Moved tokens keep their scores, so they slot into the target's
	// order by priority and original arrival.
	if err := r.engine.renumberLocked(ctx, targetSlotID); err != nil {
		return ReallocateResult{}, err
	}

	result.MovedCount = len(pending)
	r.logger.Info("reallocated pending tokens",
		zap.String("source_slot_id", sourceSlotID),
		zap.String("target_slot_id", targetSlotID),
		zap.Int("moved", result.MovedCount))
	return result, nil
}
