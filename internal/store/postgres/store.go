package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"opd/token-service/internal/models"
	"opd/token-service/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const doctorColumns = `doctor_id, name, specialization, opd_days, created_at`

const slotColumns = `slot_id, doctor_id, date, start_time, end_time, max_capacity, admitted_count, is_delayed, delay_minutes, status, created_at`

const tokenColumns = `token_id, token_number, slot_id, patient_id, patient_name, phone_number, type, priority_score, arrival_seq, queue_position, status, estimated_time, check_in_time, completed_time, cancel_reason, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDoctor(row rowScanner) (models.Doctor, error) {
	var doctor models.Doctor
	if err := row.Scan(
		&doctor.DoctorID,
		&doctor.Name,
		&doctor.Specialization,
		&doctor.OPDDays,
		&doctor.CreatedAt,
	); err != nil {
		return models.Doctor{}, err
	}
	return doctor, nil
}

func scanSlot(row rowScanner) (models.Slot, error) {
	var slot models.Slot
	if err := row.Scan(
		&slot.SlotID,
		&slot.DoctorID,
		&slot.Date,
		&slot.StartTime,
		&slot.EndTime,
		&slot.MaxCapacity,
		&slot.AdmittedCount,
		&slot.IsDelayed,
		&slot.DelayMinutes,
		&slot.Status,
		&slot.CreatedAt,
	); err != nil {
		return models.Slot{}, err
	}
	return slot, nil
}

func scanToken(row rowScanner) (models.Token, error) {
	var token models.Token
	var phone, reason sql.NullString
	var checkIn, completed sql.NullTime
	if err := row.Scan(
		&token.TokenID,
		&token.TokenNumber,
		&token.SlotID,
		&token.PatientID,
		&token.PatientName,
		&phone,
		&token.Type,
		&token.PriorityScore,
		&token.ArrivalSeq,
		&token.QueuePosition,
		&token.Status,
		&token.EstimatedTime,
		&checkIn,
		&completed,
		&reason,
		&token.CreatedAt,
	); err != nil {
		return models.Token{}, err
	}
	token.PhoneNumber = phone.String
	token.CancelReason = reason.String
	token.CheckInTime = nullTimePtr(checkIn)
	token.CompletedTime = nullTimePtr(completed)
	return token, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *Store) CreateDoctor(ctx context.Context, input store.CreateDoctorInput) (models.Doctor, error) {
	const query = `
		INSERT INTO doctors (doctor_id, name, specialization, opd_days, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + doctorColumns

	row := s.pool.QueryRow(ctx, query,
		uuid.NewString(), input.Name, input.Specialization, input.OPDDays, input.CreatedAt)
	return scanDoctor(row)
}

func (s *Store) GetDoctor(ctx context.Context, doctorID string) (models.Doctor, error) {
	const query = `SELECT ` + doctorColumns + ` FROM doctors WHERE doctor_id = $1`

	doctor, err := scanDoctor(s.pool.QueryRow(ctx, query, doctorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	return doctor, err
}

func (s *Store) ListDoctors(ctx context.Context, specialization string) ([]models.Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors`
	args := []interface{}{}
	if specialization != "" {
		args = append(args, specialization)
		query += ` WHERE specialization ILIKE $1`
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	doctors := make([]models.Doctor, 0)
	for rows.Next() {
		doctor, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, doctor)
	}
	return doctors, rows.Err()
}

func (s *Store) CreateSlot(ctx context.Context, input store.CreateSlotInput) (models.Slot, error) {
	const query = `
		INSERT INTO slots (slot_id, doctor_id, date, start_time, end_time, max_capacity, admitted_count, is_delayed, delay_minutes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, FALSE, 0, $7, $8)
		ON CONFLICT (doctor_id, date, start_time) DO NOTHING
		RETURNING ` + slotColumns

	row := s.pool.QueryRow(ctx, query,
		uuid.NewString(), input.DoctorID, input.Date, input.StartTime, input.EndTime,
		input.MaxCapacity, models.SlotStatusActive, input.CreatedAt)
	slot, err := scanSlot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Slot{}, store.ErrDuplicateSlot
	}
	return slot, err
}

func (s *Store) GetSlot(ctx context.Context, slotID string) (models.Slot, error) {
	const query = `SELECT ` + slotColumns + ` FROM slots WHERE slot_id = $1`

	slot, err := scanSlot(s.pool.QueryRow(ctx, query, slotID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Slot{}, store.ErrSlotNotFound
	}
	return slot, err
}

func (s *Store) ListSlots(ctx context.Context, doctorID, date string) ([]models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots`
	conditions := []string{}
	args := []interface{}{}
	if doctorID != "" {
		args = append(args, doctorID)
		conditions = append(conditions, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if date != "" {
		args = append(args, date)
		conditions = append(conditions, fmt.Sprintf("date = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY date, start_time`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := make([]models.Slot, 0)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// ReserveAdmitted increments the admitted count only while it is still
// below capacity; the WHERE clause makes the check-and-claim a single
// atomic statement under concurrent allocations.
func (s *Store) ReserveAdmitted(ctx context.Context, slotID string) (models.Slot, error) {
	const query = `
		UPDATE slots
		SET admitted_count = admitted_count + 1
		WHERE slot_id = $1 AND admitted_count < max_capacity
		RETURNING ` + slotColumns

	slot, err := scanSlot(s.pool.QueryRow(ctx, query, slotID))
	if errors.Is(err, pgx.ErrNoRows) {
		// No row matched: the slot is either full or missing.
		if _, getErr := s.GetSlot(ctx, slotID); getErr != nil {
			return models.Slot{}, getErr
		}
		return models.Slot{}, store.ErrSlotFull
	}
	return slot, err
}

func (s *Store) IncrementAdmitted(ctx context.Context, slotID string, delta int) (models.Slot, error) {
	const query = `
		UPDATE slots
		SET admitted_count = GREATEST(admitted_count + $2, 0)
		WHERE slot_id = $1
		RETURNING ` + slotColumns

	slot, err := scanSlot(s.pool.QueryRow(ctx, query, slotID, delta))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Slot{}, store.ErrSlotNotFound
	}
	return slot, err
}

func (s *Store) IncrementCapacity(ctx context.Context, slotID string, delta int) (models.Slot, error) {
	const query = `
		UPDATE slots
		SET max_capacity = max_capacity + $2
		WHERE slot_id = $1
		RETURNING ` + slotColumns

	slot, err := scanSlot(s.pool.QueryRow(ctx, query, slotID, delta))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Slot{}, store.ErrSlotNotFound
	}
	return slot, err
}

func (s *Store) SetDelay(ctx context.Context, slotID string, minutes int) (models.Slot, error) {
	const query = `
		UPDATE slots
		SET is_delayed = TRUE, delay_minutes = $2, status = $3
		WHERE slot_id = $1
		RETURNING ` + slotColumns

	slot, err := scanSlot(s.pool.QueryRow(ctx, query, slotID, minutes, models.SlotStatusDelayed))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Slot{}, store.ErrSlotNotFound
	}
	return slot, err
}

func (s *Store) SetSlotStatus(ctx context.Context, slotID, status string) (models.Slot, error) {
	const query = `
		UPDATE slots
		SET status = $2
		WHERE slot_id = $1
		RETURNING ` + slotColumns

	slot, err := scanSlot(s.pool.QueryRow(ctx, query, slotID, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Slot{}, store.ErrSlotNotFound
	}
	return slot, err
}

func (s *Store) InsertToken(ctx context.Context, token models.Token) error {
	const query = `
		INSERT INTO tokens (token_id, token_number, slot_id, patient_id, patient_name, phone_number, type, priority_score, arrival_seq, queue_position, status, estimated_time, check_in_time, completed_time, cancel_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := s.pool.Exec(ctx, query,
		token.TokenID, token.TokenNumber, token.SlotID, token.PatientID, token.PatientName,
		nullString(token.PhoneNumber), token.Type, token.PriorityScore, token.ArrivalSeq,
		token.QueuePosition, token.Status, token.EstimatedTime,
		nullTime(token.CheckInTime), nullTime(token.CompletedTime),
		nullString(token.CancelReason), token.CreatedAt)
	return err
}

func (s *Store) GetToken(ctx context.Context, tokenID string) (models.Token, error) {
	const query = `SELECT ` + tokenColumns + ` FROM tokens WHERE token_id = $1`

	token, err := scanToken(s.pool.QueryRow(ctx, query, tokenID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Token{}, store.ErrTokenNotFound
	}
	return token, err
}

func (s *Store) ListBySlot(ctx context.Context, slotID string, statuses ...string) ([]models.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE slot_id = $1`
	args := []interface{}{slotID}
	if len(statuses) > 0 {
		args = append(args, statuses)
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	query += ` ORDER BY arrival_seq`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := make([]models.Token, 0)
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (s *Store) ListByPatient(ctx context.Context, patientID string) ([]models.Token, error) {
	const query = `SELECT ` + tokenColumns + ` FROM tokens WHERE patient_id = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := make([]models.Token, 0)
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (s *Store) UpdateToken(ctx context.Context, tokenID string, update store.TokenUpdate) (models.Token, error) {
	sets := []string{}
	args := []interface{}{tokenID}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.QueuePosition != nil {
		add("queue_position", *update.QueuePosition)
	}
	if update.TokenNumber != nil {
		add("token_number", *update.TokenNumber)
	}
	if update.EstimatedTime != nil {
		add("estimated_time", *update.EstimatedTime)
	}
	if update.CheckInTime != nil {
		add("check_in_time", *update.CheckInTime)
	}
	if update.CompletedTime != nil {
		add("completed_time", *update.CompletedTime)
	}
	if update.CancelReason != nil {
		add("cancel_reason", nullString(*update.CancelReason))
	}
	if len(sets) == 0 {
		return s.GetToken(ctx, tokenID)
	}

	query := `UPDATE tokens SET ` + strings.Join(sets, ", ") + ` WHERE token_id = $1 RETURNING ` + tokenColumns
	token, err := scanToken(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Token{}, store.ErrTokenNotFound
	}
	return token, err
}

func (s *Store) MoveTokens(ctx context.Context, tokenIDs []string, targetSlotID string) error {
	const query = `UPDATE tokens SET slot_id = $1 WHERE token_id = ANY($2)`

	_, err := s.pool.Exec(ctx, query, targetSlotID, tokenIDs)
	return err
}

func (s *Store) CountByStatus(ctx context.Context, slotID string) (map[string]int, error) {
	const query = `SELECT status, COUNT(*) FROM tokens WHERE slot_id = $1 GROUP BY status`

	rows, err := s.pool.Query(ctx, query, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (s *Store) NextArrivalSeq(ctx context.Context) (int64, error) {
	const query = `SELECT nextval('token_arrival_seq')`

	var seq int64
	if err := s.pool.QueryRow(ctx, query).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
