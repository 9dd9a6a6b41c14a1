package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"opd/token-service/internal/models"
	"opd/token-service/internal/store"
)

const (
	defaultAvgConsultationMinutes = 10
	defaultMaxCapacity            = 6
)

type Options struct {
	Weights                Weights
	AvgConsultationMinutes int
	DefaultMaxCapacity     int
	Board                  BoardPublisher
	Now                    func() time.Time
	Logger                 *zap.Logger
}

// Service bundles the queue engine with the slot and doctor
// administration the HTTP layer exposes.
type Service struct {
	store       store.Store
	engine      *Engine
	lifecycle   *Lifecycle
	reallocator *Reallocator
	capacity    *Capacity
	maxCapacity int
	logger      *zap.Logger
}

func NewService(st store.Store, options Options) *Service {
	if options.Weights == (Weights{}) {
		options.Weights = DefaultWeights()
	}
	if options.AvgConsultationMinutes <= 0 {
		options.AvgConsultationMinutes = defaultAvgConsultationMinutes
	}
	if options.DefaultMaxCapacity <= 0 {
		options.DefaultMaxCapacity = defaultMaxCapacity
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}

	locks := newSlotLocks()
	capacity := NewCapacity(st, st, options.Logger)
	engine := &Engine{
		slots:     st,
		tokens:    st,
		weights:   options.Weights,
		capacity:  capacity,
		estimator: NewEstimator(options.AvgConsultationMinutes, options.Now),
		locks:     locks,
		board:     options.Board,
		now:       options.Now,
		logger:    options.Logger,
	}
	lifecycle := &Lifecycle{
		tokens:   st,
		capacity: capacity,
		engine:   engine,
		locks:    locks,
		now:      options.Now,
		logger:   options.Logger,
	}
	reallocator := &Reallocator{
		slots:  st,
		tokens: st,
		engine: engine,
		locks:  locks,
		logger: options.Logger,
	}
	return &Service{
		store:       st,
		engine:      engine,
		lifecycle:   lifecycle,
		reallocator: reallocator,
		capacity:    capacity,
		maxCapacity: options.DefaultMaxCapacity,
		logger:      options.Logger,
	}
}

func (s *Service) Allocate(ctx context.Context, input AllocateInput) (models.Token, error) {
	return s.engine.Allocate(ctx, input)
}

func (s *Service) GetToken(ctx context.Context, tokenID string) (models.Token, error) {
	return s.store.GetToken(ctx, tokenID)
}

func (s *Service) TokensByPatient(ctx context.Context, patientID string) ([]models.Token, error) {
	return s.store.ListByPatient(ctx, patientID)
}

func (s *Service) UpdateStatus(ctx context.Context, tokenID, status string) (models.Token, error) {
	return s.lifecycle.UpdateStatus(ctx, tokenID, status)
}

func (s *Service) Cancel(ctx context.Context, tokenID, reason string) (CancelResult, error) {
	return s.lifecycle.Cancel(ctx, tokenID, reason)
}

func (s *Service) Queue(ctx context.Context, slotID string) ([]models.Token, error) {
	return s.engine.Queue(ctx, slotID)
}

func (s *Service) Reallocate(ctx context.Context, sourceSlotID, targetSlotID string) (ReallocateResult, error) {
	return s.reallocator.Reallocate(ctx, sourceSlotID, targetSlotID)
}

func (s *Service) CreateSlot(ctx context.Context, input store.CreateSlotInput) (models.Slot, error) {
	if _, err := s.store.GetDoctor(ctx, input.DoctorID); err != nil {
		return models.Slot{}, err
	}
	if input.MaxCapacity == 0 {
		input.MaxCapacity = s.maxCapacity
	}
	if input.CreatedAt.IsZero() {
		input.CreatedAt = time.Now().UTC()
	}
	return s.store.CreateSlot(ctx, input)
}

func (s *Service) GetSlot(ctx context.Context, slotID string) (models.Slot, error) {
	return s.store.GetSlot(ctx, slotID)
}

// ListSlots filters by doctor and date at the store, then by
// availability here. availability is "", "available" or "filled".
func (s *Service) ListSlots(ctx context.Context, doctorID, date, availability string) ([]models.Slot, error) {
	slots, err := s.store.ListSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if availability == "" {
		return slots, nil
	}
	filtered := make([]models.Slot, 0, len(slots))
	for _, slot := range slots {
		switch availability {
		case "available":
			if !slot.IsFull() {
				filtered = append(filtered, slot)
			}
		case "filled":
			if slot.IsFull() {
				filtered = append(filtered, slot)
			}
		}
	}
	return filtered, nil
}

func (s *Service) MarkSlotDelayed(ctx context.Context, slotID string, minutes int) (models.Slot, error) {
	return s.capacity.MarkDelayed(ctx, slotID, minutes)
}

func (s *Service) SlotStats(ctx context.Context, slotID string) (SlotStats, error) {
	return s.capacity.Stats(ctx, slotID)
}

func (s *Service) CreateDoctor(ctx context.Context, input store.CreateDoctorInput) (models.Doctor, error) {
	if input.CreatedAt.IsZero() {
		input.CreatedAt = time.Now().UTC()
	}
	return s.store.CreateDoctor(ctx, input)
}

func (s *Service) GetDoctor(ctx context.Context, doctorID string) (models.Doctor, error) {
	return s.store.GetDoctor(ctx, doctorID)
}

func (s *Service) ListDoctors(ctx context.Context, specialization string) ([]models.Doctor, error) {
	return s.store.ListDoctors(ctx, specialization)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
