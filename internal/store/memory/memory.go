package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"opd/token-service/internal/models"
	"opd/token-service/internal/store"
)

// Store keeps everything in maps behind one mutex. It backs demo mode
// when no database is configured, and the engine tests.
type Store struct {
	mu      sync.Mutex
	doctors map[string]models.Doctor
	slots   map[string]models.Slot
	tokens  map[string]models.Token
	seq     int64
}

func NewStore() *Store {
	return &Store{
		doctors: make(map[string]models.Doctor),
		slots:   make(map[string]models.Slot),
		tokens:  make(map[string]models.Token),
	}
}

func (s *Store) CreateDoctor(_ context.Context, input store.CreateDoctorInput) (models.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doctor := models.Doctor{
		DoctorID:       uuid.NewString(),
		Name:           input.Name,
		Specialization: input.Specialization,
		OPDDays:        append([]string(nil), input.OPDDays...),
		CreatedAt:      input.CreatedAt,
	}
	s.doctors[doctor.DoctorID] = doctor
	return doctor, nil
}

func (s *Store) GetDoctor(_ context.Context, doctorID string) (models.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doctor, ok := s.doctors[doctorID]
	if !ok {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	return doctor, nil
}

func (s *Store) ListDoctors(_ context.Context, specialization string) ([]models.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doctors := make([]models.Doctor, 0, len(s.doctors))
	for _, doctor := range s.doctors {
		if specialization != "" && !strings.EqualFold(doctor.Specialization, specialization) {
			continue
		}
		doctors = append(doctors, doctor)
	}
	sort.Slice(doctors, func(i, j int) bool { return doctors[i].Name < doctors[j].Name })
	return doctors, nil
}

func (s *Store) CreateSlot(_ context.Context, input store.CreateSlotInput) (models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.slots {
		if existing.DoctorID == input.DoctorID && existing.Date == input.Date && existing.StartTime == input.StartTime {
			return models.Slot{}, store.ErrDuplicateSlot
		}
	}
	slot := models.Slot{
		SlotID:      uuid.NewString(),
		DoctorID:    input.DoctorID,
		Date:        input.Date,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		MaxCapacity: input.MaxCapacity,
		Status:      models.SlotStatusActive,
		CreatedAt:   input.CreatedAt,
	}
	s.slots[slot.SlotID] = slot
	return slot, nil
}

func (s *Store) GetSlot(_ context.Context, slotID string) (models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSlotLocked(slotID)
}

func (s *Store) getSlotLocked(slotID string) (models.Slot, error) {
	slot, ok := s.slots[slotID]
	if !ok {
		return models.Slot{}, store.ErrSlotNotFound
	}
	return slot, nil
}

func (s *Store) ListSlots(_ context.Context, doctorID, date string) ([]models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := make([]models.Slot, 0, len(s.slots))
	for _, slot := range s.slots {
		if doctorID != "" && slot.DoctorID != doctorID {
			continue
		}
		if date != "" && slot.Date != date {
			continue
		}
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Date != slots[j].Date {
			return slots[i].Date < slots[j].Date
		}
		return slots[i].StartTime < slots[j].StartTime
	})
	return slots, nil
}

func (s *Store) ReserveAdmitted(_ context.Context, slotID string) (models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.getSlotLocked(slotID)
	if err != nil {
		return models.Slot{}, err
	}
	if slot.AdmittedCount >= slot.MaxCapacity {
		return models.Slot{}, store.ErrSlotFull
	}
	slot.AdmittedCount++
	s.slots[slotID] = slot
	return slot, nil
}

func (s *Store) IncrementAdmitted(_ context.Context, slotID string, delta int) (models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.getSlotLocked(slotID)
	if err != nil {
		return models.Slot{}, err
	}
	slot.AdmittedCount += delta
	if slot.AdmittedCount < 0 {
		slot.AdmittedCount = 0
	}
	s.slots[slotID] = slot
	return slot, nil
}

func (s *Store) IncrementCapacity(_ context.Context, slotID string, delta int) (models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.getSlotLocked(slotID)
	if err != nil {
		return models.Slot{}, err
	}
	slot.MaxCapacity += delta
	s.slots[slotID] = slot
	return slot, nil
}

func (s *Store) SetDelay(_ context.Context, slotID string, minutes int) (models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.getSlotLocked(slotID)
	if err != nil {
		return models.Slot{}, err
	}
	slot.IsDelayed = true
	slot.DelayMinutes = minutes
	slot.Status = models.SlotStatusDelayed
	s.slots[slotID] = slot
	return slot, nil
}

func (s *Store) SetSlotStatus(_ context.Context, slotID, status string) (models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.getSlotLocked(slotID)
	if err != nil {
		return models.Slot{}, err
	}
	slot.Status = status
	s.slots[slotID] = slot
	return slot, nil
}

func (s *Store) InsertToken(_ context.Context, token models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.TokenID] = token
	return nil
}

func (s *Store) GetToken(_ context.Context, tokenID string) (models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return models.Token{}, store.ErrTokenNotFound
	}
	return token, nil
}

func (s *Store) ListBySlot(_ context.Context, slotID string, statuses ...string) ([]models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := make([]models.Token, 0)
	for _, token := range s.tokens {
		if token.SlotID != slotID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, token.Status) {
			continue
		}
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ArrivalSeq < tokens[j].ArrivalSeq })
	return tokens, nil
}

func (s *Store) ListByPatient(_ context.Context, patientID string) ([]models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := make([]models.Token, 0)
	for _, token := range s.tokens {
		if token.PatientID == patientID {
			tokens = append(tokens, token)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].CreatedAt.After(tokens[j].CreatedAt) })
	return tokens, nil
}

func (s *Store) UpdateToken(_ context.Context, tokenID string, update store.TokenUpdate) (models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return models.Token{}, store.ErrTokenNotFound
	}
	if update.Status != nil {
		token.Status = *update.Status
	}
	if update.QueuePosition != nil {
		token.QueuePosition = *update.QueuePosition
	}
	if update.TokenNumber != nil {
		token.TokenNumber = *update.TokenNumber
	}
	if update.EstimatedTime != nil {
		token.EstimatedTime = *update.EstimatedTime
	}
	if update.CheckInTime != nil {
		token.CheckInTime = update.CheckInTime
	}
	if update.CompletedTime != nil {
		token.CompletedTime = update.CompletedTime
	}
	if update.CancelReason != nil {
		token.CancelReason = *update.CancelReason
	}
	s.tokens[tokenID] = token
	return token, nil
}

func (s *Store) MoveTokens(_ context.Context, tokenIDs []string, targetSlotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range tokenIDs {
		if _, ok := s.tokens[id]; !ok {
			return store.ErrTokenNotFound
		}
	}
	for _, id := range tokenIDs {
		token := s.tokens[id]
		token.SlotID = targetSlotID
		s.tokens[id] = token
	}
	return nil
}

func (s *Store) CountByStatus(_ context.Context, slotID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, token := range s.tokens {
		if token.SlotID == slotID {
			counts[token.Status]++
		}
	}
	return counts, nil
}

func (s *Store) NextArrivalSeq(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func containsStatus(statuses []string, status string) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}
