package orders

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/events"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	"github.com/md-rashed-zaman/bizdash/libs/outbox"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/coupons"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/storage"
)

type Handler struct {
	pool    *db.Pool
	repo    *Repository
	catalog *storage.CatalogRepository
	coupons *coupons.Repository
	outbox  *outbox.Repository
	logger  *slog.Logger
	now     func() time.Time
}

func NewHandler(pool *db.Pool, repo *Repository, catalog *storage.CatalogRepository, couponRepo *coupons.Repository, outboxRepo *outbox.Repository, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, repo: repo, catalog: catalog, coupons: couponRepo, outbox: outboxRepo, logger: logger, now: time.Now}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/v1/public/orders", httpx.Handle(h.logger, h.place))
	mux.Handle("GET /api/v1/booking/orders", httpx.Handle(h.logger, h.list))
	mux.Handle("GET /api/v1/booking/orders/{id}", httpx.Handle(h.logger, h.get))
	mux.Handle("POST /api/v1/booking/orders/{id}/status", httpx.Handle(h.logger, h.updateStatus))
}

type placeRequest struct {
	TenantID        string        `json:"tenant_id"`
	CustomerName    string        `json:"customer_name"`
	CustomerEmail   string        `json:"customer_email"`
	CustomerPhone   string        `json:"customer_phone"`
	Fulfillment     string        `json:"fulfillment"`
	DeliveryAddress string        `json:"delivery_address"`
	Items           []ItemRequest `json:"items"`
	CouponCode      string        `json:"coupon_code"`
	Notes           string        `json:"notes"`
}

func (req *placeRequest) validate() error {
	var err error
	if req.TenantID, err = httpx.ParseUUID(req.TenantID, "tenant_id"); err != nil {
		return err
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.DeliveryAddress = strings.TrimSpace(req.DeliveryAddress)
	req.CouponCode = coupons.NormalizeCode(req.CouponCode)
	if req.CustomerName == "" {
		return apperr.BadRequest("customer_name is required")
	}
	if req.CustomerEmail == "" && req.CustomerPhone == "" {
		return apperr.BadRequest("customer_email or customer_phone is required")
	}
	switch req.Fulfillment = strings.ToLower(strings.TrimSpace(req.Fulfillment)); req.Fulfillment {
	case "":
		req.Fulfillment = FulfillmentPickup
	case FulfillmentPickup:
	case FulfillmentDelivery:
		if req.DeliveryAddress == "" {
			return apperr.BadRequest("delivery_address is required for delivery")
		}
	default:
		return apperr.BadRequest("fulfillment must be pickup or delivery")
	}
	req.Items, err = NormalizeItems(req.Items)
	if err != nil {
		return err
	}
	for _, it := range req.Items {
		if _, err := httpx.ParseUUID(it.ItemID, "item_id"); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request) error {
	var req placeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}

	ctx := r.Context()
	o := Order{
		TenantID:        req.TenantID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		Fulfillment:     req.Fulfillment,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           strings.TrimSpace(req.Notes),
		Status:          StatusPendingPayment,
	}
	err := h.pool.WithTenant(ctx, req.TenantID, func(tx pgx.Tx) error {
		ids := make([]string, 0, len(req.Items))
		for _, it := range req.Items {
			ids = append(ids, it.ItemID)
		}
		menu, err := h.catalog.MenuItems(ctx, tx, req.TenantID, ids)
		if err != nil {
			return err
		}
		if o.Items, o.SubtotalCents, err = PriceLines(req.Items, menu); err != nil {
			return err
		}
		settings, err := h.catalog.GetSettings(ctx, tx, req.TenantID, false)
		if err != nil {
			return err
		}

		var coupon *coupons.Coupon
		if req.CouponCode != "" {
			c, err := h.coupons.GetByCode(ctx, tx, req.TenantID, req.CouponCode, true)
			if err != nil {
				return err
			}
			coupon = &c
		}
		if err := Totals(&o, coupon, settings.TaxRateBps, h.now()); err != nil {
			return err
		}
		if coupon != nil {
			if err := h.coupons.Redeem(ctx, tx, req.TenantID, coupon.ID); err != nil {
				return err
			}
		}

		if err := h.repo.Create(ctx, tx, &o); err != nil {
			return apperr.FromDB(err, "order")
		}
		return h.outbox.Emit(ctx, tx, "order", o.ID, events.OrderPlaced, events.OrderPlacedPayload{
			OrderID:       o.ID,
			TenantID:      o.TenantID,
			CustomerName:  o.CustomerName,
			CustomerEmail: o.CustomerEmail,
			CustomerPhone: o.CustomerPhone,
			Fulfillment:   o.Fulfillment,
			TotalCents:    o.TotalCents,
			ItemCount:     len(o.Items),
		})
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusCreated, o)
	return nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !IsKnownStatus(status) {
		return apperr.BadRequest("unknown status")
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var out []Order
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		out, err = h.repo.List(r.Context(), tx, tenantID, status, limit)
		return err
	})
	if err != nil {
		return err
	}
	if out == nil {
		out = []Order{}
	}
	httpx.WriteData(w, http.StatusOK, out)
	return nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		return err
	}
	var o Order
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		o, err = h.repo.Get(r.Context(), tx, tenantID, id, false)
		return err
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, o)
	return nil
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	req.Status = strings.TrimSpace(req.Status)
	if !IsKnownStatus(req.Status) {
		return apperr.BadRequest("unknown status")
	}

	var o Order
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		o, err = h.repo.Get(r.Context(), tx, tenantID, id, true)
		if err != nil {
			return err
		}
		if o.Status == req.Status {
			return nil
		}
		if !CanTransition(o.Status, req.Status) {
			return apperr.Conflict("cannot move order from " + o.Status + " to " + req.Status)
		}
		var paidAt *time.Time
		if req.Status == StatusPaid {
			now := h.now().UTC()
			paidAt, o.PaidAt = &now, &now
		}
		o.UpdatedAt, err = h.repo.SetStatus(r.Context(), tx, tenantID, id, req.Status, paidAt)
		o.Status = req.Status
		return err
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, o)
	return nil
}
