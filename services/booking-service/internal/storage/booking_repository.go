package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/model"
)

type BookingRepository struct{}

type IdempotencyRecord struct {
	TenantID        string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{}
}

// LockIdempotencyKey claims key for this tenant. exists is true when a
// previous request already holds the key; the row stays locked until tx ends
// so a concurrent retry waits for the first attempt to finish.
func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, tenantID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, tenantID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (user_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (user_id, idempotency_key) DO NOTHING
	`, tenantID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, tenantID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, tenantID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE user_id = $1 AND idempotency_key = $2
	`, tenantID, key, appointmentID, statusCode, response)
	return err
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, tenantID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT user_id::text,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE user_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, tenantID, key).Scan(
		&rec.TenantID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}

const appointmentColumns = `id::text, user_id::text, service_id::text, COALESCE(staff_id::text, ''), COALESCE(client_id::text, ''),
	client_name, COALESCE(client_email, ''), COALESCE(client_phone, ''), start_time, end_time, status,
	subtotal_cents, discount_cents, total_cents, deposit_cents, deposit_paid_at, COALESCE(coupon_code, ''),
	COALESCE(notes, ''), cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.TenantID, &a.ServiceID, &a.StaffID, &a.ClientID,
		&a.ClientName, &a.ClientEmail, &a.ClientPhone, &a.StartTime, &a.EndTime, &a.Status,
		&a.SubtotalCents, &a.DiscountCents, &a.TotalCents, &a.DepositCents, &a.DepositPaidAt, &a.CouponCode,
		&a.Notes, &a.CancelledAt, &a.CancelReason, &a.CreatedAt)
	return a, err
}

// Create inserts appt in a savepoint, so an overlap rejected by the
// appointments_no_overlap constraint leaves tx usable. Use IsConflict on the
// error.
func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	return savepoint(ctx, tx, func(sp pgx.Tx) error {
		return sp.QueryRow(ctx, `
			INSERT INTO appointments
				(user_id, service_id, staff_id, client_name, client_email, client_phone, start_time, end_time, status,
				 subtotal_cents, discount_cents, total_cents, deposit_cents, coupon_code, notes)
			VALUES ($1, $2, NULLIF($3, '')::uuid, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9,
				$10, $11, $12, $13, NULLIF($14, ''), NULLIF($15, ''))
			RETURNING id::text, created_at
		`, appt.TenantID, appt.ServiceID, appt.StaffID, appt.ClientName, appt.ClientEmail, appt.ClientPhone,
			appt.StartTime, appt.EndTime, appt.Status,
			appt.SubtotalCents, appt.DiscountCents, appt.TotalCents, appt.DepositCents, appt.CouponCode, appt.Notes,
		).Scan(&appt.ID, &appt.CreatedAt)
	})
}

// IsConflict reports an insert or move that overlaps another active
// appointment of the same staff member.
func IsConflict(err error) bool {
	return apperr.PgCode(err) == apperr.PgExclusionViolation
}

func savepoint(ctx context.Context, tx pgx.Tx, fn func(pgx.Tx) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, tenantID, appointmentID string) (model.Appointment, error) {
	a, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, appointmentID, tenantID))
	return a, apperr.FromDB(err, "appointment")
}

func (r *BookingRepository) Cancel(ctx context.Context, tx pgx.Tx, tenantID, appointmentID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = NULLIF($3, '')
		WHERE id = $1 AND user_id = $2
		RETURNING cancelled_at
	`, appointmentID, tenantID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *BookingRepository) Reschedule(ctx context.Context, tx pgx.Tx, tenantID, appointmentID, staffID string, start, end time.Time) error {
	return savepoint(ctx, tx, func(sp pgx.Tx) error {
		_, err := sp.Exec(ctx, `
			UPDATE appointments
			SET start_time = $3, end_time = $4, staff_id = NULLIF($5, '')::uuid
			WHERE id = $1 AND user_id = $2
		`, appointmentID, tenantID, start, end, staffID)
		return err
	})
}

// ConfirmDeposit flips a pending appointment to confirmed. It reports false
// when the appointment was not waiting for a deposit.
func (r *BookingRepository) ConfirmDeposit(ctx context.Context, tx pgx.Tx, tenantID, appointmentID string, paidAt time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'confirmed', deposit_paid_at = $3
		WHERE id = $1 AND user_id = $2 AND status = 'pending_deposit'
	`, appointmentID, tenantID, paidAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListBusy returns, per staff member, the intervals already taken by active
// appointments and time off within [start, end). excludeID leaves one
// appointment out (rescheduling).
func (r *BookingRepository) ListBusy(ctx context.Context, tx pgx.Tx, tenantID string, staffIDs []string, start, end time.Time, excludeID string) (map[string][]availability.Interval, error) {
	busy := make(map[string][]availability.Interval, len(staffIDs))
	if len(staffIDs) == 0 {
		return busy, nil
	}
	rows, err := tx.Query(ctx, `
		SELECT staff_id::text, start_time, end_time
		FROM appointments
		WHERE user_id = $1
			AND staff_id = ANY($2::uuid[])
			AND status IN ('pending_deposit', 'confirmed')
			AND start_time < $4
			AND end_time > $3
			AND ($5 = '' OR id <> NULLIF($5, '')::uuid)
		UNION ALL
		SELECT staff_id::text, start_time, end_time
		FROM staff_time_off
		WHERE user_id = $1
			AND staff_id = ANY($2::uuid[])
			AND start_time < $4
			AND end_time > $3
	`, tenantID, staffIDs, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var staffID string
		var iv availability.Interval
		if err := rows.Scan(&staffID, &iv.Start, &iv.End); err != nil {
			return nil, err
		}
		busy[staffID] = append(busy[staffID], iv)
	}
	return busy, rows.Err()
}

// ListBusyUnassigned covers tenants without staff: every active appointment
// blocks the calendar.
func (r *BookingRepository) ListBusyUnassigned(ctx context.Context, tx pgx.Tx, tenantID string, start, end time.Time, excludeID string) ([]availability.Interval, error) {
	rows, err := tx.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE user_id = $1
			AND status IN ('pending_deposit', 'confirmed')
			AND start_time < $3
			AND end_time > $2
			AND ($4 = '' OR id <> NULLIF($4, '')::uuid)
	`, tenantID, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (availability.Interval, error) {
		var iv availability.Interval
		err := row.Scan(&iv.Start, &iv.End)
		return iv, err
	})
}

type ListFilter struct {
	From    *time.Time
	To      *time.Time
	Status  string
	StaffID string
	Limit   int
}

func (r *BookingRepository) List(ctx context.Context, tx pgx.Tx, tenantID string, f ListFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	where := []string{"user_id = $1"}
	args := []any{tenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.From != nil {
		add("end_time > ?", *f.From)
	}
	if f.To != nil {
		add("start_time < ?", *f.To)
	}
	if f.Status != "" {
		add("status = ?", f.Status)
	}
	if f.StaffID != "" {
		add("staff_id = ?::uuid", f.StaffID)
	}
	args = append(args, f.Limit)

	rows, err := tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY start_time DESC
		LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}
