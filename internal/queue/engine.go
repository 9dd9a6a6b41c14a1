package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"opd/token-service/internal/models"
	"opd/token-service/internal/store"
)

// activeStatuses hold a queue position. Cancelled and no-show tokens
// are out of the queue entirely.
var activeStatuses = []string{
	models.StatusPending,
	models.StatusCheckedIn,
	models.StatusConsulting,
	models.StatusCompleted,
}

// rankableStatuses further drop COMPLETED when a removal reorders the
// queue; finished consultations keep their historical position.
var rankableStatuses = []string{
	models.StatusPending,
	models.StatusCheckedIn,
	models.StatusConsulting,
}

// BoardPublisher receives the refreshed queue order after a ranking
// pass. Publishing is best-effort; failures are logged, never returned.
type BoardPublisher interface {
	Publish(ctx context.Context, slotID string, tokens []models.Token) error
}

// Engine owns allocation and queue ordering for a slot. All ranking
// rewrites run under the slot's lock so positions stay contiguous.
type Engine struct {
	slots     store.SlotStore
	tokens    store.TokenStore
	weights   Weights
	capacity  *Capacity
	estimator *Estimator
	locks     *slotLocks
	board     BoardPublisher
	now       func() time.Time
	logger    *zap.Logger
}

type AllocateInput struct {
	SlotID      string
	Type        string
	PatientID   string
	PatientName string
	PhoneNumber string
}

// resolvePatientID applies the per-type identity rules: walk-ins and
// emergencies may arrive unregistered and get a synthetic id, everyone
// else must already be known.
func resolvePatientID(input AllocateInput, now func() time.Time) (string, error) {
	if input.PatientID != "" {
		return input.PatientID, nil
	}
	switch input.Type {
	case models.TypeWalkIn:
		return fmt.Sprintf("WALKIN-%d", now().UnixMilli()), nil
	case models.TypeEmergency:
		return fmt.Sprintf("EMERGENCY-%d", now().UnixMilli()), nil
	default:
		return "", store.ErrMissingPatient
	}
}

// Allocate admits a new token into a slot and re-ranks the whole queue
// around it. Nothing is persisted if any step fails; a reserved seat is
// released again on the way out.
func (e *Engine) Allocate(ctx context.Context, input AllocateInput) (models.Token, error) {
	weight, ok := e.weights.For(input.Type)
	if !ok {
		return models.Token{}, store.ErrInvalidTokenType
	}
	patientID, err := resolvePatientID(input, e.now)
	if err != nil {
		return models.Token{}, err
	}

	lock := e.locks.get(input.SlotID)
	lock.Lock()
	defer lock.Unlock()

	slot, err := e.capacity.Reserve(ctx, input.SlotID, input.Type == models.TypeEmergency)
	if err != nil {
		return models.Token{}, err
	}
	reserved := true
	defer func() {
		if !reserved {
			return
		}
		if rerr := e.capacity.Release(ctx, slot.SlotID); rerr != nil {
			e.logger.Warn("release after failed allocation",
				zap.String("slot_id", slot.SlotID), zap.Error(rerr))
		}
	}()

	seq, err := e.tokens.NextArrivalSeq(ctx)
	if err != nil {
		return models.Token{}, err
	}

	token := models.Token{
		TokenID:       uuid.NewString(),
		SlotID:        slot.SlotID,
		PatientID:     patientID,
		PatientName:   input.PatientName,
		PhoneNumber:   input.PhoneNumber,
		Type:          input.Type,
		PriorityScore: Score(weight, seq),
		ArrivalSeq:    seq,
		Status:        models.StatusPending,
		CreatedAt:     e.now().UTC(),
	}

	active, err := e.tokens.ListBySlot(ctx, slot.SlotID, activeStatuses...)
	if err != nil {
		return models.Token{}, err
	}

	ranked, err := e.rankSlot(ctx, slot, append(active, token), token.TokenID)
	if err != nil {
		return models.Token{}, err
	}
	for _, t := range ranked {
		if t.TokenID == token.TokenID {
			token = t
			break
		}
	}

	if err := e.tokens.InsertToken(ctx, token); err != nil {
		return models.Token{}, err
	}
	reserved = false

	e.publishBoard(ctx, slot.SlotID, ranked)
	e.logger.Info("token allocated",
		zap.String("token_id", token.TokenID),
		zap.String("slot_id", slot.SlotID),
		zap.String("type", token.Type),
		zap.Int("position", token.QueuePosition))
	return token, nil
}

// rankSlot sorts tokens by priority score and rewrites position, token
// number and estimate on every one whose values changed. skipPersist
// names a token not yet inserted; its fields are computed but not
// written. Returns the tokens in final queue order.
func (e *Engine) rankSlot(ctx context.Context, slot models.Slot, tokens []models.Token, skipPersist string) ([]models.Token, error) {
	// Ties are impossible: scores embed the arrival sequence.
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].PriorityScore > tokens[j].PriorityScore
	})
	for i := range tokens {
		position := i + 1
		number := FormatTokenNumber(position)
		estimated := e.estimator.Estimate(slot, position)
		changed := tokens[i].QueuePosition != position || tokens[i].TokenNumber != number
		tokens[i].QueuePosition = position
		tokens[i].TokenNumber = number
		tokens[i].EstimatedTime = estimated
		if !changed || tokens[i].TokenID == skipPersist {
			continue
		}
		if _, err := e.tokens.UpdateToken(ctx, tokens[i].TokenID, store.TokenUpdate{
			QueuePosition: &position,
			TokenNumber:   &number,
			EstimatedTime: &estimated,
		}); err != nil {
			return nil, err
		}
	}
	return tokens, nil
}

// renumberLocked re-ranks a slot after a token left its active set.
// Callers must hold the slot's lock.
func (e *Engine) renumberLocked(ctx context.Context, slotID string) error {
	slot, err := e.slots.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	remaining, err := e.tokens.ListBySlot(ctx, slotID, rankableStatuses...)
	if err != nil {
		return err
	}
	ranked, err := e.rankSlot(ctx, slot, remaining, "")
	if err != nil {
		return err
	}
	e.publishBoard(ctx, slotID, ranked)
	return nil
}

// ReorderAfterRemoval is the externally callable form of renumberLocked.
func (e *Engine) ReorderAfterRemoval(ctx context.Context, slotID string) error {
	lock := e.locks.get(slotID)
	lock.Lock()
	defer lock.Unlock()
	return e.renumberLocked(ctx, slotID)
}

// Queue returns a slot's active tokens in queue order.
func (e *Engine) Queue(ctx context.Context, slotID string) ([]models.Token, error) {
	if _, err := e.slots.GetSlot(ctx, slotID); err != nil {
		return nil, err
	}
	tokens, err := e.tokens.ListBySlot(ctx, slotID, activeStatuses...)
	if err != nil {
		return nil, err
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].QueuePosition < tokens[j].QueuePosition
	})
	return tokens, nil
}

func (e *Engine) publishBoard(ctx context.Context, slotID string, tokens []models.Token) {
	if e.board == nil {
		return
	}
	if err := e.board.Publish(ctx, slotID, tokens); err != nil {
		e.logger.Warn("queue board publish failed",
			zap.String("slot_id", slotID), zap.Error(err))
	}
}
