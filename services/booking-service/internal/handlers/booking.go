package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/events"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	otelx "github.com/md-rashed-zaman/bizdash/libs/otel"
	"github.com/md-rashed-zaman/bizdash/libs/outbox"
	"github.com/md-rashed-zaman/bizdash/libs/runtime"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/assignment"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/coupons"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/pricing"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/storage"
)

// Cursor stores the round robin position outside the database.
type Cursor interface {
	Load(ctx context.Context, tenantID string) (int, bool, error)
	Store(ctx context.Context, tenantID string, next int) error
}

type BookingHandler struct {
	pool    *db.Pool
	repo    *storage.BookingRepository
	catalog *storage.CatalogRepository
	coupons *coupons.Repository
	outbox  *outbox.Repository
	cursor  Cursor
	logger  *slog.Logger
	now     func() time.Time
}

func NewBookingHandler(pool *db.Pool, repo *storage.BookingRepository, catalog *storage.CatalogRepository, couponRepo *coupons.Repository, outboxRepo *outbox.Repository, cursor Cursor, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		pool:    pool,
		repo:    repo,
		catalog: catalog,
		coupons: couponRepo,
		outbox:  outboxRepo,
		cursor:  cursor,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/public/slots", httpx.Handle(h.logger, h.Slots))
	mux.Handle("POST /api/v1/public/book", httpx.Handle(h.logger, h.Book))
	mux.Handle("GET /api/v1/booking/appointments", httpx.Handle(h.logger, h.List))
	mux.Handle("POST /api/v1/booking/appointments/{id}/cancel", httpx.Handle(h.logger, h.Cancel))
	mux.Handle("POST /api/v1/booking/appointments/{id}/reschedule", httpx.Handle(h.logger, h.Reschedule))
	mux.Handle("GET /api/v1/booking/settings", httpx.Handle(h.logger, h.GetSettings))
	mux.Handle("PUT /api/v1/booking/settings", httpx.Handle(h.logger, h.PutSettings))
}

type bookRequest struct {
	TenantID    string `json:"tenant_id"`
	ServiceID   string `json:"service_id"`
	StaffID     string `json:"staff_id"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	StartTime   string `json:"start_time"`
	CouponCode  string `json:"coupon_code"`
	Notes       string `json:"notes"`
}

type bookResponse struct {
	Appointment     model.Appointment `json:"appointment"`
	RequiresPayment bool              `json:"requires_payment"`
}

func (req *bookRequest) normalize() (time.Time, error) {
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.ToLower(strings.TrimSpace(req.ClientEmail))
	req.ClientPhone = strings.TrimSpace(req.ClientPhone)
	req.CouponCode = coupons.NormalizeCode(req.CouponCode)
	req.Notes = strings.TrimSpace(req.Notes)

	var err error
	if req.TenantID, err = httpx.ParseUUID(req.TenantID, "tenant_id"); err != nil {
		return time.Time{}, err
	}
	if _, err := httpx.ParseUUID(req.ServiceID, "service_id"); err != nil {
		return time.Time{}, err
	}
	if req.StaffID != "" {
		if _, err := httpx.ParseUUID(req.StaffID, "staff_id"); err != nil {
			return time.Time{}, err
		}
	}
	if req.ClientName == "" {
		return time.Time{}, apperr.BadRequest("client_name is required")
	}
	if req.ClientEmail == "" && req.ClientPhone == "" {
		return time.Time{}, apperr.BadRequest("client_email or client_phone is required")
	}
	if req.ClientEmail != "" && !strings.Contains(req.ClientEmail, "@") {
		return time.Time{}, apperr.BadRequest("invalid client_email")
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return time.Time{}, apperr.BadRequest("invalid start_time")
	}
	return start.UTC(), nil
}

// Book creates an appointment from the public booking page.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) error {
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	start, err := req.normalize()
	if err != nil {
		return err
	}

	ctx := r.Context()
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(idempotencyKey) > 200 {
		return apperr.BadRequest("Idempotency-Key too long")
	}

	var (
		status   int
		body     []byte
		nextRR   = -1
		replayed bool
	)
	err = h.pool.WithTenant(ctx, req.TenantID, func(tx pgx.Tx) error {
		if idempotencyKey != "" {
			rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, req.TenantID, idempotencyKey)
			if err != nil {
				return err
			}
			if exists && rec.StatusCode > 0 {
				status, body, replayed = rec.StatusCode, rec.ResponsePayload, true
				return nil
			}
		}

		appt, next, err := h.book(ctx, tx, &req, start)
		if err != nil {
			e := apperr.As(err)
			if idempotencyKey == "" || e.Status >= 500 {
				return err
			}
			// Remember the rejection so a retry with the same key gets the same answer.
			status = e.Status
			body, _ = json.Marshal(map[string]any{"success": false, "error": e.Message, "code": e.Code})
			return h.repo.FinalizeIdempotency(ctx, tx, req.TenantID, idempotencyKey, "", status, body)
		}

		nextRR = next
		status = http.StatusCreated
		body, err = json.Marshal(map[string]any{
			"success": true,
			"data":    bookResponse{Appointment: appt, RequiresPayment: appt.DepositCents > 0},
		})
		if err != nil {
			return err
		}
		if idempotencyKey != "" {
			return h.repo.FinalizeIdempotency(ctx, tx, req.TenantID, idempotencyKey, appt.ID, status, body)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if nextRR >= 0 && h.cursor != nil && !replayed {
		tenantID := req.TenantID
		runtime.Go(h.logger, "round_robin_cursor", func() {
			ctx, cancel := otelx.Detach(r.Context(), 2*time.Second)
			defer cancel()
			if err := h.cursor.Store(ctx, tenantID, nextRR); err != nil {
				h.logger.Warn("round robin cursor store failed", "err", err, "tenant_id", tenantID)
			}
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
	return nil
}

// book runs inside the tenant transaction. next is the round robin cursor to
// persist, or -1 when round robin did not pick the staff member.
func (h *BookingHandler) book(ctx context.Context, tx pgx.Tx, req *bookRequest, start time.Time) (model.Appointment, int, error) {
	settings, err := h.catalog.GetSettings(ctx, tx, req.TenantID, true)
	if err != nil {
		return model.Appointment{}, -1, err
	}
	svc, err := h.catalog.GetService(ctx, tx, req.TenantID, req.ServiceID)
	if err != nil {
		return model.Appointment{}, -1, err
	}
	want := availability.Interval{Start: start, End: start.Add(time.Duration(svc.DurationMinutes) * time.Minute)}

	now := h.now().UTC()
	if want.Start.Before(now.Add(time.Duration(settings.MinNoticeMins) * time.Minute)) {
		return model.Appointment{}, -1, apperr.BadRequest("start_time is too soon")
	}
	if !h.withinOpeningHours(settings, want) {
		return model.Appointment{}, -1, apperr.Unprocessable("outside_hours", "requested time is outside business hours")
	}

	staffID, next, err := h.pickStaff(ctx, tx, req.TenantID, req.StaffID, settings, want, "")
	if err != nil {
		return model.Appointment{}, -1, err
	}

	appt := model.Appointment{
		TenantID:      req.TenantID,
		ServiceID:     svc.ID,
		StaffID:       staffID,
		ClientName:    req.ClientName,
		ClientEmail:   req.ClientEmail,
		ClientPhone:   req.ClientPhone,
		StartTime:     want.Start,
		EndTime:       want.End,
		SubtotalCents: svc.PriceCents,
		Notes:         req.Notes,
	}

	if req.CouponCode != "" {
		c, err := h.coupons.GetByCode(ctx, tx, req.TenantID, req.CouponCode, true)
		if err != nil {
			return model.Appointment{}, -1, err
		}
		items := []coupons.LineItem{{ItemID: svc.ID, UnitCents: svc.PriceCents, Qty: 1}}
		appt.DiscountCents, err = coupons.Apply(c, appt.SubtotalCents, items, now)
		if err != nil {
			return model.Appointment{}, -1, err
		}
		if err := h.coupons.Redeem(ctx, tx, req.TenantID, c.ID); err != nil {
			return model.Appointment{}, -1, err
		}
		appt.CouponCode = c.Code
	}
	appt.TotalCents = appt.SubtotalCents - appt.DiscountCents
	appt.DepositCents = pricing.Deposit(settings.DepositType, settings.DepositValue, appt.TotalCents)
	appt.Status = model.StatusConfirmed
	if appt.DepositCents > 0 {
		appt.Status = model.StatusPendingDeposit
	}

	if err := h.repo.Create(ctx, tx, &appt); err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, -1, apperr.Conflict("time slot already booked")
		}
		return model.Appointment{}, -1, apperr.FromDB(err, "appointment")
	}

	if err := h.outbox.Emit(ctx, tx, "appointment", appt.ID, events.AppointmentBooked, events.AppointmentBookedPayload{
		AppointmentID: appt.ID,
		TenantID:      appt.TenantID,
		ServiceID:     appt.ServiceID,
		StaffID:       appt.StaffID,
		ClientName:    appt.ClientName,
		ClientEmail:   appt.ClientEmail,
		ClientPhone:   appt.ClientPhone,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		Timezone:      settings.Timezone,
		Status:        appt.Status,
		TotalCents:    appt.TotalCents,
		DepositCents:  appt.DepositCents,
		ReminderHours: settings.ReminderHours,
	}); err != nil {
		return model.Appointment{}, -1, err
	}

	if next >= 0 {
		if err := h.catalog.SetRoundRobinIndex(ctx, tx, req.TenantID, next); err != nil {
			return model.Appointment{}, -1, err
		}
	}
	return appt, next, nil
}

func (h *BookingHandler) withinOpeningHours(s model.BookingSettings, want availability.Interval) bool {
	loc := s.Location()
	win, ok := availability.DayWindow(want.Start.In(loc), loc, s.OpenMinute, s.CloseMinute, s.IsOpen)
	return ok && availability.Contains(win, want)
}

// pickStaff resolves who serves the booking. An explicit staff member must be
// free; otherwise round robin (or first free) chooses. Tenants without staff
// book against a single shared calendar.
func (h *BookingHandler) pickStaff(ctx context.Context, tx pgx.Tx, tenantID, requested string, s model.BookingSettings, want availability.Interval, excludeID string) (string, int, error) {
	staff, err := h.catalog.ListBookableStaff(ctx, tx, tenantID)
	if err != nil {
		return "", -1, err
	}

	if len(staff) == 0 {
		if requested != "" {
			return "", -1, apperr.NotFound("staff member not found")
		}
		busy, err := h.repo.ListBusyUnassigned(ctx, tx, tenantID, want.Start, want.End, excludeID)
		if err != nil {
			return "", -1, err
		}
		if availability.OverlapsAny(want, busy) {
			return "", -1, apperr.Conflict("time slot already booked")
		}
		return "", -1, nil
	}

	ids := make([]string, 0, len(staff))
	for _, m := range staff {
		ids = append(ids, m.ID)
	}
	if requested != "" {
		found := false
		for _, id := range ids {
			if id == requested {
				found = true
				break
			}
		}
		if !found {
			return "", -1, apperr.NotFound("staff member not found")
		}
		ids = []string{requested}
	}

	busy, err := h.repo.ListBusy(ctx, tx, tenantID, ids, want.Start, want.End, excludeID)
	if err != nil {
		return "", -1, err
	}

	if requested != "" {
		if availability.OverlapsAny(want, busy[requested]) {
			return "", -1, apperr.Conflict("staff member is already booked at that time")
		}
		return requested, -1, nil
	}

	candidates := make([]assignment.Candidate, 0, len(ids))
	for _, id := range ids {
		candidates = append(candidates, assignment.Candidate{ID: id, Busy: busy[id]})
	}

	if !s.RoundRobin {
		id, err := assignment.FirstFree(candidates, want)
		if errors.Is(err, assignment.ErrNoStaffAvailable) {
			return "", -1, apperr.Conflict(err.Error())
		}
		return id, -1, err
	}

	cursor := s.RoundRobinIndex
	if h.cursor != nil {
		if v, ok, err := h.cursor.Load(ctx, tenantID); err != nil {
			h.logger.Warn("round robin cursor unavailable, using stored index", "err", err)
		} else if ok {
			cursor = v
		}
	}
	id, next, err := assignment.RoundRobin(candidates, cursor, want)
	if errors.Is(err, assignment.ErrNoStaffAvailable) {
		return "", -1, apperr.Conflict(err.Error())
	}
	return id, next, err
}

type slotItem struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Slots lists bookable start times for one local day. Without staff_id a
// slot is offered when any bookable staff member is free.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	tenantID, err := httpx.ParseUUID(q.Get("tenant_id"), "tenant_id")
	if err != nil {
		return err
	}
	serviceID, err := httpx.ParseUUID(q.Get("service_id"), "service_id")
	if err != nil {
		return err
	}
	staffID := strings.TrimSpace(q.Get("staff_id"))
	if staffID != "" {
		if staffID, err = httpx.ParseUUID(staffID, "staff_id"); err != nil {
			return err
		}
	}
	day, err := time.Parse("2006-01-02", strings.TrimSpace(q.Get("date")))
	if err != nil {
		return apperr.BadRequest("date must be YYYY-MM-DD")
	}

	ctx := r.Context()
	resp := []slotItem{}
	err = h.pool.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		settings, err := h.catalog.GetSettings(ctx, tx, tenantID, false)
		if err != nil {
			return err
		}
		svc, err := h.catalog.GetService(ctx, tx, tenantID, serviceID)
		if err != nil {
			return err
		}
		loc := settings.Location()
		win, ok := availability.DayWindow(day, loc, settings.OpenMinute, settings.CloseMinute, settings.IsOpen)
		if !ok {
			return nil
		}

		duration := time.Duration(svc.DurationMinutes) * time.Minute
		step := time.Duration(settings.SlotStepMinutes) * time.Minute
		if step <= 0 {
			step = 15 * time.Minute
		}
		earliest := h.now().UTC().Add(time.Duration(settings.MinNoticeMins) * time.Minute)

		calendars, err := h.busyCalendars(ctx, tx, tenantID, staffID, win)
		if err != nil {
			return err
		}
		seen := map[int64]bool{}
		var starts []time.Time
		for _, busy := range calendars {
			for _, s := range availability.AvailableSlots(win.Start, win.End, duration, step, busy, earliest) {
				if !seen[s.Unix()] {
					seen[s.Unix()] = true
					starts = append(starts, s)
				}
			}
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
		for _, s := range starts {
			resp = append(resp, slotItem{StartTime: s.UTC(), EndTime: s.Add(duration).UTC()})
		}
		return nil
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, resp)
	return nil
}

// busyCalendars returns one busy list per calendar that could take a booking.
func (h *BookingHandler) busyCalendars(ctx context.Context, tx pgx.Tx, tenantID, staffID string, win availability.Interval) ([][]availability.Interval, error) {
	staff, err := h.catalog.ListBookableStaff(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(staff) == 0 {
		if staffID != "" {
			return nil, apperr.NotFound("staff member not found")
		}
		busy, err := h.repo.ListBusyUnassigned(ctx, tx, tenantID, win.Start, win.End, "")
		if err != nil {
			return nil, err
		}
		return [][]availability.Interval{busy}, nil
	}

	var ids []string
	for _, m := range staff {
		if staffID == "" || m.ID == staffID {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil, apperr.NotFound("staff member not found")
	}
	busy, err := h.repo.ListBusy(ctx, tx, tenantID, ids, win.Start, win.End, "")
	if err != nil {
		return nil, err
	}
	out := make([][]availability.Interval, 0, len(ids))
	for _, id := range ids {
		out = append(out, busy[id])
	}
	return out, nil
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	q := r.URL.Query()
	f := storage.ListFilter{Status: strings.TrimSpace(q.Get("status")), Limit: 50}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			f.Limit = n
		}
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if raw := strings.TrimSpace(q.Get(name)); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return apperr.Badf("invalid %s", name)
			}
			*dst = &t
		}
	}
	if raw := strings.TrimSpace(q.Get("staff_id")); raw != "" {
		if f.StaffID, err = httpx.ParseUUID(raw, "staff_id"); err != nil {
			return err
		}
	}

	var appts []model.Appointment
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		appts, err = h.repo.List(r.Context(), tx, tenantID, f)
		return err
	})
	if err != nil {
		return err
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteData(w, http.StatusOK, appts)
	return nil
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel is idempotent: cancelling a cancelled appointment returns it as is.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		return err
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			return err
		}
	}
	req.Reason = strings.TrimSpace(req.Reason)

	ctx := r.Context()
	var appt model.Appointment
	err = h.pool.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		appt, err = h.repo.GetForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if appt.Status == model.StatusCancelled {
			return nil
		}
		if !model.IsActiveStatus(appt.Status) {
			return apperr.Conflict("appointment cannot be cancelled")
		}
		cancelledAt, err := h.repo.Cancel(ctx, tx, tenantID, appt.ID, req.Reason)
		if err != nil {
			return err
		}
		appt.Status = model.StatusCancelled
		appt.CancelledAt = &cancelledAt
		appt.CancelReason = req.Reason

		return h.outbox.Emit(ctx, tx, "appointment", appt.ID, events.AppointmentCancelled, events.AppointmentCancelledPayload{
			AppointmentID: appt.ID,
			TenantID:      tenantID,
			ClientName:    appt.ClientName,
			ClientEmail:   appt.ClientEmail,
			ClientPhone:   appt.ClientPhone,
			StartTime:     appt.StartTime,
			Reason:        req.Reason,
			CancelledAt:   cancelledAt,
		})
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, appt)
	return nil
}

type rescheduleRequest struct {
	StartTime string `json:"start_time"`
	StaffID   string `json:"staff_id"`
}

// Reschedule moves an appointment, keeping its duration. The conflict check
// ignores the appointment being moved.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		return apperr.BadRequest("invalid start_time")
	}
	start = start.UTC()
	if req.StaffID = strings.TrimSpace(req.StaffID); req.StaffID != "" {
		if _, err := httpx.ParseUUID(req.StaffID, "staff_id"); err != nil {
			return err
		}
	}

	ctx := r.Context()
	var appt model.Appointment
	err = h.pool.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		appt, err = h.repo.GetForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if !model.IsActiveStatus(appt.Status) {
			return apperr.Conflict("only active appointments can be rescheduled")
		}
		if !start.After(h.now()) {
			return apperr.BadRequest("start_time must be in the future")
		}
		settings, err := h.catalog.GetSettings(ctx, tx, tenantID, false)
		if err != nil {
			return err
		}
		previous := appt.StartTime
		want := availability.Interval{Start: start, End: start.Add(appt.EndTime.Sub(appt.StartTime))}
		if !h.withinOpeningHours(settings, want) {
			return apperr.Unprocessable("outside_hours", "requested time is outside business hours")
		}

		staffID := req.StaffID
		if staffID == "" {
			staffID = appt.StaffID
		}
		// Keep the same staff member: round robin only applies to new bookings.
		settings.RoundRobin = false
		chosen, _, err := h.pickStaff(ctx, tx, tenantID, staffID, settings, want, appt.ID)
		if err != nil {
			return err
		}
		if err := h.repo.Reschedule(ctx, tx, tenantID, appt.ID, chosen, want.Start, want.End); err != nil {
			if storage.IsConflict(err) {
				return apperr.Conflict("time slot already booked")
			}
			return err
		}
		appt.StartTime, appt.EndTime, appt.StaffID = want.Start, want.End, chosen

		return h.outbox.Emit(ctx, tx, "appointment", appt.ID, events.AppointmentMoved, events.AppointmentMovedPayload{
			AppointmentBookedPayload: events.AppointmentBookedPayload{
				AppointmentID: appt.ID,
				TenantID:      tenantID,
				ServiceID:     appt.ServiceID,
				StaffID:       appt.StaffID,
				ClientName:    appt.ClientName,
				ClientEmail:   appt.ClientEmail,
				ClientPhone:   appt.ClientPhone,
				StartTime:     appt.StartTime,
				EndTime:       appt.EndTime,
				Timezone:      settings.Timezone,
				Status:        appt.Status,
				TotalCents:    appt.TotalCents,
				DepositCents:  appt.DepositCents,
				ReminderHours: settings.ReminderHours,
			},
			PreviousStart: previous,
		})
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, appt)
	return nil
}

func (h *BookingHandler) GetSettings(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	var s model.BookingSettings
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		s, err = h.catalog.GetSettings(r.Context(), tx, tenantID, false)
		return err
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, s)
	return nil
}

func (h *BookingHandler) PutSettings(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	s := model.DefaultSettings()
	if err := httpx.DecodeJSON(r, &s); err != nil {
		return err
	}
	if err := ValidateSettings(&s); err != nil {
		return err
	}
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		current, err := h.catalog.GetSettings(r.Context(), tx, tenantID, true)
		if err != nil {
			return err
		}
		s.RoundRobinIndex = current.RoundRobinIndex
		return h.catalog.SaveSettings(r.Context(), tx, tenantID, s)
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, s)
	return nil
}

// ValidateSettings rejects settings the booking flow cannot honour.
func ValidateSettings(s *model.BookingSettings) error {
	if _, err := time.LoadLocation(s.Timezone); err != nil || s.Timezone == "" {
		return apperr.BadRequest("invalid timezone")
	}
	if s.OpenMinute < 0 || s.CloseMinute > 24*60 || s.CloseMinute <= s.OpenMinute {
		return apperr.BadRequest("opening hours must satisfy 0 <= open < close <= 1440")
	}
	for _, d := range s.OpenWeekdays {
		if d < 0 || d > 6 {
			return apperr.BadRequest("open_weekdays must be 0 (Sunday) to 6")
		}
	}
	if s.SlotStepMinutes < 5 || s.SlotStepMinutes > 240 {
		return apperr.BadRequest("slot_step_minutes must be between 5 and 240")
	}
	switch s.DepositType {
	case "", model.DepositNone:
		s.DepositType = model.DepositNone
		s.DepositValue = 0
	case model.DepositPercent:
		if s.DepositValue <= 0 || s.DepositValue > 100 {
			return apperr.BadRequest("percent deposit must be between 1 and 100")
		}
	case model.DepositFixed:
		if s.DepositValue <= 0 {
			return apperr.BadRequest("fixed deposit must be positive cents")
		}
	default:
		return apperr.BadRequest("deposit_type must be none, percent or fixed")
	}
	for _, hrs := range s.ReminderHours {
		if hrs <= 0 || hrs > 24*14 {
			return apperr.BadRequest("reminder_hours must be between 1 and 336")
		}
	}
	if s.TaxRateBps < 0 || s.TaxRateBps > 5000 {
		return apperr.BadRequest("tax_rate_bps must be between 0 and 5000")
	}
	if s.MinNoticeMins < 0 {
		return apperr.BadRequest("min_notice_minutes must not be negative")
	}
	s.Currency = strings.ToLower(strings.TrimSpace(s.Currency))
	if len(s.Currency) != 3 {
		return apperr.BadRequest("currency must be a 3 letter ISO code")
	}
	return nil
}
