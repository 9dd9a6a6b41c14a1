package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"opd/token-service/internal/models"
	"opd/token-service/internal/store"
)

// transitions maps a target status to the statuses it may be reached
// from. PENDING is absent on purpose: nothing ever goes back to it.
var transitions = map[string][]string{
	models.StatusCheckedIn:  {models.StatusPending},
	models.StatusConsulting: {models.StatusCheckedIn},
	models.StatusCompleted:  {models.StatusConsulting},
	models.StatusCancelled:  {models.StatusPending, models.StatusCheckedIn, models.StatusConsulting, models.StatusNoShow},
	models.StatusNoShow:     {models.StatusCheckedIn},
}

func ValidTransition(from, to string) bool {
	allowed, ok := transitions[to]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}

// Lifecycle moves tokens through their states and keeps the queue and
// the capacity counters consistent while doing so.
type Lifecycle struct {
	tokens   store.TokenStore
	capacity *Capacity
	engine   *Engine
	locks    *slotLocks
	now      func() time.Time
	logger   *zap.Logger
}

type CancelResult struct {
	TokenID string `json:"token_id"`
	Status  string `json:"status"`
}

// lockTokenSlot locks the slot a token belongs to, re-reading the token
// until its slot assignment is stable under the lock. A reallocation
// may move the token between the read and the lock, so chase it.
func (l *Lifecycle) lockTokenSlot(ctx context.Context, tokenID string) (models.Token, *sync.Mutex, error) {
	for {
		token, err := l.tokens.GetToken(ctx, tokenID)
		if err != nil {
			return models.Token{}, nil, err
		}
		lock := l.locks.get(token.SlotID)
		lock.Lock()
		fresh, err := l.tokens.GetToken(ctx, tokenID)
		if err != nil {
			lock.Unlock()
			return models.Token{}, nil, err
		}
		if fresh.SlotID == token.SlotID {
			return fresh, lock, nil
		}
		lock.Unlock()
	}
}

// UpdateStatus applies one lifecycle transition. Moving to CANCELLED is
// delegated to Cancel so capacity release and renumbering happen there.
func (l *Lifecycle) UpdateStatus(ctx context.Context, tokenID, status string) (models.Token, error) {
	if status == models.StatusCancelled {
		if _, err := l.Cancel(ctx, tokenID, ""); err != nil {
			return models.Token{}, err
		}
		return l.tokens.GetToken(ctx, tokenID)
	}

	token, lock, err := l.lockTokenSlot(ctx, tokenID)
	if err != nil {
		return models.Token{}, err
	}
	defer lock.Unlock()

	if !ValidTransition(token.Status, status) {
		return models.Token{}, store.ErrInvalidTransition
	}

	update := store.TokenUpdate{Status: &status}
	now := l.now().UTC()
	switch status {
	case models.StatusCheckedIn:
		update.CheckInTime = &now
	case models.StatusCompleted:
		update.CompletedTime = &now
	}

	updated, err := l.tokens.UpdateToken(ctx, tokenID, update)
	if err != nil {
		return models.Token{}, err
	}

	// A no-show leaves the active ranking but keeps its seat in the
	// admitted count. Close the position gap it left behind.
	if status == models.StatusNoShow {
		if err := l.engine.renumberLocked(ctx, token.SlotID); err != nil {
			return models.Token{}, err
		}
	}

	l.logger.Info("token status updated",
		zap.String("token_id", tokenID),
		zap.String("from", token.Status),
		zap.String("to", status))
	return updated, nil
}

// Cancel marks a token CANCELLED, releases its admission and renumbers
// the remaining queue. Tokens already cancelled or completed are
// rejected.
func (l *Lifecycle) Cancel(ctx context.Context, tokenID, reason string) (CancelResult, error) {
	token, lock, err := l.lockTokenSlot(ctx, tokenID)
	if err != nil {
		return CancelResult{}, err
	}
	defer lock.Unlock()

	if token.Status == models.StatusCancelled || token.Status == models.StatusCompleted {
		return CancelResult{}, store.ErrTokenFinal
	}

	status := models.StatusCancelled
	if _, err := l.tokens.UpdateToken(ctx, tokenID, store.TokenUpdate{
		Status:       &status,
		CancelReason: &reason,
	}); err != nil {
		return CancelResult{}, err
	}
	if err := l.capacity.Release(ctx, token.SlotID); err != nil {
		return CancelResult{}, err
	}
	if err := l.engine.renumberLocked(ctx, token.SlotID); err != nil {
		return CancelResult{}, err
	}

	l.logger.Info("token cancelled",
		zap.String("token_id", tokenID),
		zap.String("slot_id", token.SlotID),
		zap.String("reason", reason))
	return CancelResult{TokenID: tokenID, Status: status}, nil
}
