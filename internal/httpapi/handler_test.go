package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"opd/token-service/internal/cache"
	"opd/token-service/internal/models"
	"opd/token-service/internal/queue"
	"opd/token-service/internal/store"
)

const (
	slotID   = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	tokenID  = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	doctorID = "cccccccc-cccc-cccc-cccc-cccccccccccc"
	otherID  = "dddddddd-dddd-dddd-dddd-dddddddddddd"
)

type fakeService struct {
	allocateFn     func(ctx context.Context, input queue.AllocateInput) (models.Token, error)
	getTokenFn     func(ctx context.Context, tokenID string) (models.Token, error)
	byPatientFn    func(ctx context.Context, patientID string) ([]models.Token, error)
	updateStatusFn func(ctx context.Context, tokenID, status string) (models.Token, error)
	cancelFn       func(ctx context.Context, tokenID, reason string) (queue.CancelResult, error)
	queueFn        func(ctx context.Context, slotID string) ([]models.Token, error)
	reallocateFn   func(ctx context.Context, sourceSlotID, targetSlotID string) (queue.ReallocateResult, error)
	createSlotFn   func(ctx context.Context, input store.CreateSlotInput) (models.Slot, error)
	getSlotFn      func(ctx context.Context, slotID string) (models.Slot, error)
	listSlotsFn    func(ctx context.Context, doctorID, date, availability string) ([]models.Slot, error)
	delayFn        func(ctx context.Context, slotID string, minutes int) (models.Slot, error)
	statsFn        func(ctx context.Context, slotID string) (queue.SlotStats, error)
	createDoctorFn func(ctx context.Context, input store.CreateDoctorInput) (models.Doctor, error)
	getDoctorFn    func(ctx context.Context, doctorID string) (models.Doctor, error)
	listDoctorsFn  func(ctx context.Context, specialization string) ([]models.Doctor, error)
	pingFn         func(ctx context.Context) error
}

func (f fakeService) Allocate(ctx context.Context, input queue.AllocateInput) (models.Token, error) {
	if f.allocateFn == nil {
		return models.Token{}, nil
	}
	return f.allocateFn(ctx, input)
}

func (f fakeService) GetToken(ctx context.Context, tokenID string) (models.Token, error) {
	if f.getTokenFn == nil {
		return models.Token{}, nil
	}
	return f.getTokenFn(ctx, tokenID)
}

func (f fakeService) TokensByPatient(ctx context.Context, patientID string) ([]models.Token, error) {
	if f.byPatientFn == nil {
		return nil, nil
	}
	return f.byPatientFn(ctx, patientID)
}

func (f fakeService) UpdateStatus(ctx context.Context, tokenID, status string) (models.Token, error) {
	if f.updateStatusFn == nil {
		return models.Token{}, nil
	}
	return f.updateStatusFn(ctx, tokenID, status)
}

func (f fakeService) Cancel(ctx context.Context, tokenID, reason string) (queue.CancelResult, error) {
	if f.cancelFn == nil {
		return queue.CancelResult{}, nil
	}
	return f.cancelFn(ctx, tokenID, reason)
}

func (f fakeService) Queue(ctx context.Context, slotID string) ([]models.Token, error) {
	if f.queueFn == nil {
		return nil, nil
	}
	return f.queueFn(ctx, slotID)
}

func (f fakeService) Reallocate(ctx context.Context, sourceSlotID, targetSlotID string) (queue.ReallocateResult, error) {
	if f.reallocateFn == nil {
		return queue.ReallocateResult{}, nil
	}
	return f.reallocateFn(ctx, sourceSlotID, targetSlotID)
}

func (f fakeService) CreateSlot(ctx context.Context, input store.CreateSlotInput) (models.Slot, error) {
	if f.createSlotFn == nil {
		return models.Slot{}, nil
	}
	return f.createSlotFn(ctx, input)
}

func (f fakeService) GetSlot(ctx context.Context, slotID string) (models.Slot, error) {
	if f.getSlotFn == nil {
		return models.Slot{}, nil
	}
	return f.getSlotFn(ctx, slotID)
}

func (f fakeService) ListSlots(ctx context.Context, doctorID, date, availability string) ([]models.Slot, error) {
	if f.listSlotsFn == nil {
		return nil, nil
	}
	return f.listSlotsFn(ctx, doctorID, date, availability)
}

func (f fakeService) MarkSlotDelayed(ctx context.Context, slotID string, minutes int) (models.Slot, error) {
	if f.delayFn == nil {
		return models.Slot{}, nil
	}
	return f.delayFn(ctx, slotID, minutes)
}

func (f fakeService) SlotStats(ctx context.Context, slotID string) (queue.SlotStats, error) {
	if f.statsFn == nil {
		return queue.SlotStats{}, nil
	}
	return f.statsFn(ctx, slotID)
}

func (f fakeService) CreateDoctor(ctx context.Context, input store.CreateDoctorInput) (models.Doctor, error) {
	if f.createDoctorFn == nil {
		return models.Doctor{}, nil
	}
	return f.createDoctorFn(ctx, input)
}

func (f fakeService) GetDoctor(ctx context.Context, doctorID string) (models.Doctor, error) {
	if f.getDoctorFn == nil {
		return models.Doctor{}, nil
	}
	return f.getDoctorFn(ctx, doctorID)
}

func (f fakeService) ListDoctors(ctx context.Context, specialization string) ([]models.Doctor, error) {
	if f.listDoctorsFn == nil {
		return nil, nil
	}
	return f.listDoctorsFn(ctx, specialization)
}

func (f fakeService) Ping(ctx context.Context) error {
	if f.pingFn == nil {
		return nil
	}
	return f.pingFn(ctx)
}

type fakeBoards struct {
	snapshotFn func(ctx context.Context, slotID string) ([]cache.BoardEntry, bool, error)
}

func (f fakeBoards) Snapshot(ctx context.Context, slotID string) ([]cache.BoardEntry, bool, error) {
	if f.snapshotFn == nil {
		return nil, false, nil
	}
	return f.snapshotFn(ctx, slotID)
}

func TestAllocateTokenSuccess(t *testing.T) {
	svc := fakeService{
		allocateFn: func(ctx context.Context, input queue.AllocateInput) (models.Token, error) {
			return models.Token{
				TokenID:       tokenID,
				TokenNumber:   "T001",
				SlotID:        input.SlotID,
				PatientName:   input.PatientName,
				Type:          input.Type,
				QueuePosition: 1,
				Status:        models.StatusPending,
				CreatedAt:     time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	h := NewHandler(svc, Options{})

	payload := map[string]string{
		"slot_id":      slotID,
		"type":         "WALKIN",
		"patient_name": "Asha",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
	var token models.Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if token.TokenNumber != "T001" || token.QueuePosition != 1 || token.Status != models.StatusPending {
		t.Fatalf("unexpected token response: %+v", token)
	}
}

func TestAllocateTokenMissingName(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	payload := map[string]string{"slot_id": slotID, "type": "WALKIN"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestAllocateTokenBadType(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	payload := map[string]string{"slot_id": slotID, "type": "VIP", "patient_name": "Asha"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestAllocateTokenSlotFull(t *testing.T) {
	svc := fakeService{
		allocateFn: func(ctx context.Context, input queue.AllocateInput) (models.Token, error) {
			return models.Token{}, store.ErrSlotFull
		},
	}
	h := NewHandler(svc, Options{})

	payload := map[string]string{"slot_id": slotID, "type": "WALKIN", "patient_name": "Asha"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if errResp.Error.Code != "capacity_exceeded" {
		t.Fatalf("expected capacity_exceeded, got %q", errResp.Error.Code)
	}
}

func TestGetTokenNotFound(t *testing.T) {
	svc := fakeService{
		getTokenFn: func(ctx context.Context, tokenID string) (models.Token, error) {
			return models.Token{}, store.ErrTokenNotFound
		},
	}
	h := NewHandler(svc, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/tokens/"+tokenID, nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestListTokensRequiresPatientID(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/tokens", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	svc := fakeService{
		updateStatusFn: func(ctx context.Context, tokenID, status string) (models.Token, error) {
			return models.Token{}, store.ErrInvalidTransition
		},
	}
	h := NewHandler(svc, Options{})

	body, _ := json.Marshal(map[string]string{"status": "CONSULTING"})
	req := httptest.NewRequest(http.MethodPatch, "/api/tokens/"+tokenID+"/status", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	body, _ := json.Marshal(map[string]string{"status": "SLEEPING"})
	req := httptest.NewRequest(http.MethodPatch, "/api/tokens/"+tokenID+"/status", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCancelTokenWithoutBody(t *testing.T) {
	svc := fakeService{
		cancelFn: func(ctx context.Context, tokenID, reason string) (queue.CancelResult, error) {
			if reason != "" {
				t.Fatalf("expected empty reason, got %q", reason)
			}
			return queue.CancelResult{TokenID: tokenID, Status: models.StatusCancelled}, nil
		},
	}
	h := NewHandler(svc, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/tokens/"+tokenID+"/cancel", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var result queue.CancelResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Status != models.StatusCancelled {
		t.Fatalf("unexpected cancel result: %+v", result)
	}
}

func TestCancelTokenAlreadyFinal(t *testing.T) {
	svc := fakeService{
		cancelFn: func(ctx context.Context, tokenID, reason string) (queue.CancelResult, error) {
			return queue.CancelResult{}, store.ErrTokenFinal
		},
	}
	h := NewHandler(svc, Options{})

	body, _ := json.Marshal(map[string]string{"reason": "duplicate booking"})
	req := httptest.NewRequest(http.MethodPost, "/api/tokens/"+tokenID+"/cancel", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if errResp.Error.Code != "token_final" {
		t.Fatalf("expected token_final, got %q", errResp.Error.Code)
	}
}

func TestQueueListSuccess(t *testing.T) {
	svc := fakeService{
		queueFn: func(ctx context.Context, slotID string) ([]models.Token, error) {
			return []models.Token{
				{TokenID: tokenID, QueuePosition: 1, TokenNumber: "T001"},
				{TokenID: otherID, QueuePosition: 2, TokenNumber: "T002"},
			}, nil
		},
	}
	h := NewHandler(svc, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/queues/"+slotID, nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var tokens []models.Token
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(tokens) != 2 || tokens[0].TokenNumber != "T001" {
		t.Fatalf("unexpected queue response: %+v", tokens)
	}
}

func TestBoardServedFromCache(t *testing.T) {
	boards := fakeBoards{
		snapshotFn: func(ctx context.Context, slotID string) ([]cache.BoardEntry, bool, error) {
			return []cache.BoardEntry{{Position: 1, TokenNumber: "T001", PatientName: "Asha"}}, true, nil
		},
	}
	svc := fakeService{
		queueFn: func(ctx context.Context, slotID string) ([]models.Token, error) {
			t.Fatal("live queue should not be read on a cache hit")
			return nil, nil
		},
	}
	h := NewHandler(svc, Options{Boards: boards})

	req := httptest.NewRequest(http.MethodGet, "/api/queues/"+slotID+"/board", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var entries []cache.BoardEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(entries) != 1 || entries[0].TokenNumber != "T001" {
		t.Fatalf("unexpected board response: %+v", entries)
	}
}

func TestBoardFallsBackToLiveQueue(t *testing.T) {
	svc := fakeService{
		queueFn: func(ctx context.Context, slotID string) ([]models.Token, error) {
			return []models.Token{{TokenID: tokenID, QueuePosition: 1, TokenNumber: "T001", PatientName: "Asha"}}, nil
		},
	}
	h := NewHandler(svc, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/queues/"+slotID+"/board", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var entries []cache.BoardEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(entries) != 1 || entries[0].Position != 1 {
		t.Fatalf("unexpected board response: %+v", entries)
	}
}

func TestCreateSlotBadTimeRange(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	payload := map[string]interface{}{
		"doctor_id":    doctorID,
		"date":         "2026-03-02",
		"start_time":   "12:00",
		"end_time":     "09:00",
		"max_capacity": 5,
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/slots", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCreateSlotDuplicate(t *testing.T) {
	svc := fakeService{
		createSlotFn: func(ctx context.Context, input store.CreateSlotInput) (models.Slot, error) {
			return models.Slot{}, store.ErrDuplicateSlot
		},
	}
	h := NewHandler(svc, Options{})

	payload := map[string]interface{}{
		"doctor_id":    doctorID,
		"date":         "2026-03-02",
		"start_time":   "09:00",
		"end_time":     "12:00",
		"max_capacity": 5,
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/slots", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestListSlotsBadAvailability(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/slots?availability=busy", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestDelaySlotRequiresPositiveMinutes(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	body, _ := json.Marshal(map[string]int{"delay_minutes": 0})
	req := httptest.NewRequest(http.MethodPatch, "/api/slots/"+slotID+"/delay", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestSlotStatsSuccess(t *testing.T) {
	svc := fakeService{
		statsFn: func(ctx context.Context, slotID string) (queue.SlotStats, error) {
			return queue.SlotStats{
				SlotID:            slotID,
				MaxCapacity:       10,
				AdmittedCount:     4,
				AvailableCapacity: 6,
				TokenCounts:       map[string]int{models.StatusPending: 4},
			}, nil
		},
	}
	h := NewHandler(svc, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/slots/"+slotID+"/stats", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var stats queue.SlotStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.AvailableCapacity != 6 || stats.TokenCounts[models.StatusPending] != 4 {
		t.Fatalf("unexpected stats response: %+v", stats)
	}
}

func TestReallocateToSameSlot(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	body, _ := json.Marshal(map[string]string{"target_slot_id": slotID})
	req := httptest.NewRequest(http.MethodPost, "/api/slots/"+slotID+"/reallocate", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestReallocateInsufficientCapacity(t *testing.T) {
	svc := fakeService{
		reallocateFn: func(ctx context.Context, sourceSlotID, targetSlotID string) (queue.ReallocateResult, error) {
			return queue.ReallocateResult{}, store.ErrInsufficientCapacity
		},
	}
	h := NewHandler(svc, Options{})

	body, _ := json.Marshal(map[string]string{"target_slot_id": otherID})
	req := httptest.NewRequest(http.MethodPost, "/api/slots/"+slotID+"/reallocate", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestCreateDoctorSuccess(t *testing.T) {
	svc := fakeService{
		createDoctorFn: func(ctx context.Context, input store.CreateDoctorInput) (models.Doctor, error) {
			return models.Doctor{DoctorID: doctorID, Name: input.Name, Specialization: input.Specialization}, nil
		},
	}
	h := NewHandler(svc, Options{})

	payload := map[string]interface{}{
		"name":           "Dr. Rao",
		"specialization": "Cardiology",
		"opd_days":       []string{"MON", "WED"},
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/doctors", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
	var doctor models.Doctor
	if err := json.NewDecoder(resp.Body).Decode(&doctor); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doctor.DoctorID != doctorID || doctor.Name != "Dr. Rao" {
		t.Fatalf("unexpected doctor response: %+v", doctor)
	}
}

func TestDoctorsMethodNotAllowed(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	req := httptest.NewRequest(http.MethodDelete, "/api/doctors", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", resp.Code)
	}
}

func TestHealthDegradedWhenStoreDown(t *testing.T) {
	h := NewHandler(fakeService{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	down := fakeService{pingFn: func(ctx context.Context) error { return context.DeadlineExceeded }}
	h = NewHandler(down, Options{})

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp = httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}
}
