package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"opd/token-service/internal/cache"
	"opd/token-service/internal/models"
	"opd/token-service/internal/queue"
	"opd/token-service/internal/store"
)

type Service interface {
	Allocate(ctx context.Context, input queue.AllocateInput) (models.Token, error)
	GetToken(ctx context.Context, tokenID string) (models.Token, error)
	TokensByPatient(ctx context.Context, patientID string) ([]models.Token, error)
	UpdateStatus(ctx context.Context, tokenID, status string) (models.Token, error)
	Cancel(ctx context.Context, tokenID, reason string) (queue.CancelResult, error)
	Queue(ctx context.Context, slotID string) ([]models.Token, error)
	Reallocate(ctx context.Context, sourceSlotID, targetSlotID string) (queue.ReallocateResult, error)
	CreateSlot(ctx context.Context, input store.CreateSlotInput) (models.Slot, error)
	GetSlot(ctx context.Context, slotID string) (models.Slot, error)
	ListSlots(ctx context.Context, doctorID, date, availability string) ([]models.Slot, error)
	MarkSlotDelayed(ctx context.Context, slotID string, minutes int) (models.Slot, error)
	SlotStats(ctx context.Context, slotID string) (queue.SlotStats, error)
	CreateDoctor(ctx context.Context, input store.CreateDoctorInput) (models.Doctor, error)
	GetDoctor(ctx context.Context, doctorID string) (models.Doctor, error)
	ListDoctors(ctx context.Context, specialization string) ([]models.Doctor, error)
	Ping(ctx context.Context) error
}

type BoardReader interface {
	Snapshot(ctx context.Context, slotID string) ([]cache.BoardEntry, bool, error)
}

type Options struct {
	Boards BoardReader
	Logger *zap.Logger
}

type Handler struct {
	svc    Service
	boards BoardReader
	logger *zap.Logger
}

func NewHandler(svc Service, options Options) *Handler {
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	return &Handler{svc: svc, boards: options.Boards, logger: options.Logger}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/tokens", h.handleTokens)
	mux.HandleFunc("/api/tokens/", h.handleTokenActions)
	mux.HandleFunc("/api/queues/", h.handleQueues)
	mux.HandleFunc("/api/slots", h.handleSlots)
	mux.HandleFunc("/api/slots/", h.handleSlotActions)
	mux.HandleFunc("/api/doctors", h.handleDoctors)
	mux.HandleFunc("/api/doctors/", h.handleDoctorByID)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	if err := h.svc.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type allocateTokenRequest struct {
	SlotID      string `json:"slot_id"`
	Type        string `json:"type"`
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	PhoneNumber string `json:"phone_number"`
}

func (h *Handler) handleTokens(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.allocateToken(w, r)
	case http.MethodGet:
		h.listTokensByPatient(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST or GET")
	}
}

func (h *Handler) allocateToken(w http.ResponseWriter, r *http.Request) {
	var req allocateTokenRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.SlotID = strings.TrimSpace(req.SlotID)
	req.Type = strings.ToUpper(strings.TrimSpace(req.Type))
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)

	if !isValidUUID(req.SlotID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "slot_id must be a valid UUID")
		return
	}
	if !isValidTokenType(req.Type) {
		writeError(w, http.StatusBadRequest, "invalid_request", "type must be one of ONLINE, WALKIN, PRIORITY, FOLLOWUP, EMERGENCY")
		return
	}
	if req.PatientName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_name is required")
		return
	}
	if req.PhoneNumber != "" && !isValidPhone(req.PhoneNumber) {
		writeError(w, http.StatusBadRequest, "invalid_request", "phone_number is not a valid phone number")
		return
	}

	token, err := h.svc.Allocate(r.Context(), queue.AllocateInput{
		SlotID:      req.SlotID,
		Type:        req.Type,
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

func (h *Handler) listTokensByPatient(w http.ResponseWriter, r *http.Request) {
	patientID := strings.TrimSpace(r.URL.Query().Get("patient_id"))
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_id query parameter is required")
		return
	}
	tokens, err := h.svc.TokensByPatient(r.Context(), patientID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type cancelTokenRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleTokenActions(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/tokens/"), "/"), "/")
	tokenID := parts[0]
	if !isValidUUID(tokenID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "token id must be a valid UUID")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
			return
		}
		token, err := h.svc.GetToken(r.Context(), tokenID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, token)

	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPatch {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use PATCH")
			return
		}
		var req updateStatusRequest
		if err := decodeRequest(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
		if !isValidStatus(req.Status) {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown status")
			return
		}
		token, err := h.svc.UpdateStatus(r.Context(), tokenID, req.Status)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, token)

	case len(parts) == 2 && parts[1] == "cancel":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
			return
		}
		var req cancelTokenRequest
		if r.ContentLength != 0 {
			if err := decodeRequest(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
				return
			}
		}
		result, err := h.svc.Cancel(r.Context(), tokenID, strings.TrimSpace(req.Reason))
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleQueues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/queues/"), "/"), "/")
	slotID := parts[0]
	if !isValidUUID(slotID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "slot id must be a valid UUID")
		return
	}

	switch {
	case len(parts) == 1:
		tokens, err := h.svc.Queue(r.Context(), slotID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tokens)

	case len(parts) == 2 && parts[1] == "board":
		h.serveBoard(w, r, slotID)

	default:
		http.NotFound(w, r)
	}
}

// serveBoard prefers the cached snapshot and falls back to a live read
// when the cache is cold or unreachable.
func (h *Handler) serveBoard(w http.ResponseWriter, r *http.Request, slotID string) {
	if h.boards != nil {
		entries, ok, err := h.boards.Snapshot(r.Context(), slotID)
		if err != nil {
			h.logger.Warn("board cache read failed", zap.String("slot_id", slotID), zap.Error(err))
		} else if ok {
			writeJSON(w, http.StatusOK, entries)
			return
		}
	}
	tokens, err := h.svc.Queue(r.Context(), slotID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	entries := make([]cache.BoardEntry, 0, len(tokens))
	for _, token := range tokens {
		entries = append(entries, cache.BoardEntry{
			Position:      token.QueuePosition,
			TokenNumber:   token.TokenNumber,
			PatientName:   token.PatientName,
			Status:        token.Status,
			EstimatedTime: token.EstimatedTime,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

type createSlotRequest struct {
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	MaxCapacity int    `json:"max_capacity"`
}

func (h *Handler) handleSlots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createSlot(w, r)
	case http.MethodGet:
		h.listSlots(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST or GET")
	}
}

func (h *Handler) createSlot(w http.ResponseWriter, r *http.Request) {
	var req createSlotRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.Date = strings.TrimSpace(req.Date)
	req.StartTime = strings.TrimSpace(req.StartTime)
	req.EndTime = strings.TrimSpace(req.EndTime)

	if !isValidUUID(req.DoctorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "doctor_id must be a valid UUID")
		return
	}
	if !isValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	if !isValidClock(req.StartTime) || !isValidClock(req.EndTime) {
		writeError(w, http.StatusBadRequest, "invalid_request", "start_time and end_time must be HH:MM")
		return
	}
	if req.StartTime >= req.EndTime {
		writeError(w, http.StatusBadRequest, "invalid_request", "start_time must be before end_time")
		return
	}
	if req.MaxCapacity < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "max_capacity must not be negative")
		return
	}

	slot, err := h.svc.CreateSlot(r.Context(), store.CreateSlotInput{
		DoctorID:    req.DoctorID,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MaxCapacity: req.MaxCapacity,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (h *Handler) listSlots(w http.ResponseWriter, r *http.Request) {
	doctorID := strings.TrimSpace(r.URL.Query().Get("doctor_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	availability := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("availability")))

	if doctorID != "" && !isValidUUID(doctorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "doctor_id must be a valid UUID")
		return
	}
	if date != "" && !isValidDate(date) {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	if availability != "" && availability != "available" && availability != "filled" {
		writeError(w, http.StatusBadRequest, "invalid_request", "availability must be available or filled")
		return
	}

	slots, err := h.svc.ListSlots(r.Context(), doctorID, date, availability)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

type delaySlotRequest struct {
	DelayMinutes int `json:"delay_minutes"`
}

type reallocateRequest struct {
	TargetSlotID string `json:"target_slot_id"`
}

func (h *Handler) handleSlotActions(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/slots/"), "/"), "/")
	slotID := parts[0]
	if !isValidUUID(slotID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "slot id must be a valid UUID")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
			return
		}
		slot, err := h.svc.GetSlot(r.Context(), slotID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, slot)

	case len(parts) == 2 && parts[1] == "delay":
		if r.Method != http.MethodPatch {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use PATCH")
			return
		}
		var req delaySlotRequest
		if err := decodeRequest(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		if req.DelayMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "delay_minutes must be positive")
			return
		}
		slot, err := h.svc.MarkSlotDelayed(r.Context(), slotID, req.DelayMinutes)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, slot)

	case len(parts) == 2 && parts[1] == "stats":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
			return
		}
		stats, err := h.svc.SlotStats(r.Context(), slotID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)

	case len(parts) == 2 && parts[1] == "reallocate":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
			return
		}
		var req reallocateRequest
		if err := decodeRequest(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		req.TargetSlotID = strings.TrimSpace(req.TargetSlotID)
		if !isValidUUID(req.TargetSlotID) {
			writeError(w, http.StatusBadRequest, "invalid_request", "target_slot_id must be a valid UUID")
			return
		}
		if req.TargetSlotID == slotID {
			writeError(w, http.StatusBadRequest, "invalid_request", "target slot must differ from source slot")
			return
		}
		result, err := h.svc.Reallocate(r.Context(), slotID, req.TargetSlotID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		http.NotFound(w, r)
	}
}

type createDoctorRequest struct {
	Name           string   `json:"name"`
	Specialization string   `json:"specialization"`
	OPDDays        []string `json:"opd_days"`
}

func (h *Handler) handleDoctors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createDoctor(w, r)
	case http.MethodGet:
		h.listDoctors(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST or GET")
	}
}

func (h *Handler) createDoctor(w http.ResponseWriter, r *http.Request) {
	var req createDoctorRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Specialization = strings.TrimSpace(req.Specialization)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if req.Specialization == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "specialization is required")
		return
	}

	doctor, err := h.svc.CreateDoctor(r.Context(), store.CreateDoctorInput{
		Name:           req.Name,
		Specialization: req.Specialization,
		OPDDays:        req.OPDDays,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doctor)
}

func (h *Handler) listDoctors(w http.ResponseWriter, r *http.Request) {
	specialization := strings.TrimSpace(r.URL.Query().Get("specialization"))
	doctors, err := h.svc.ListDoctors(r.Context(), specialization)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doctors)
}

func (h *Handler) handleDoctorByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	doctorID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/doctors/"), "/")
	if !isValidUUID(doctorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "doctor id must be a valid UUID")
		return
	}
	doctor, err := h.svc.GetDoctor(r.Context(), doctorID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doctor)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, code, message)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrDoctorNotFound):
		return http.StatusNotFound, "doctor_not_found", "doctor not found"
	case errors.Is(err, store.ErrSlotNotFound):
		return http.StatusNotFound, "slot_not_found", "slot not found"
	case errors.Is(err, store.ErrTokenNotFound):
		return http.StatusNotFound, "token_not_found", "token not found"
	case errors.Is(err, store.ErrDuplicateSlot):
		return http.StatusConflict, "duplicate_slot", "a slot already exists for this doctor, date and start time"
	case errors.Is(err, store.ErrSlotFull):
		return http.StatusConflict, "capacity_exceeded", "slot is at capacity"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "status transition not allowed"
	case errors.Is(err, store.ErrTokenFinal):
		return http.StatusConflict, "token_final", "token is already cancelled or completed"
	case errors.Is(err, store.ErrInsufficientCapacity):
		return http.StatusConflict, "insufficient_capacity", "target slot cannot take all pending tokens"
	case errors.Is(err, store.ErrMissingPatient):
		return http.StatusBadRequest, "invalid_request", "patient_id is required for this token type"
	case errors.Is(err, store.ErrInvalidTokenType):
		return http.StatusBadRequest, "invalid_request", "unknown token type"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func decodeRequest(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidDate(value string) bool {
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

func isValidClock(value string) bool {
	_, err := time.Parse("15:04", value)
	return err == nil
}

func isValidPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 8 && digits <= 15
}

func isValidTokenType(value string) bool {
	switch value {
	case models.TypeOnline, models.TypeWalkIn, models.TypePriority, models.TypeFollowUp, models.TypeEmergency:
		return true
	default:
		return false
	}
}

func isValidStatus(value string) bool {
	switch value {
	case models.StatusPending, models.StatusCheckedIn, models.StatusConsulting,
		models.StatusCompleted, models.StatusCancelled, models.StatusNoShow:
		return true
	default:
		return false
	}
}
