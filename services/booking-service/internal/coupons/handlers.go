package coupons

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
)

type Handler struct {
	pool   *db.Pool
	repo   *Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(pool *db.Pool, repo *Repository, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, repo: repo, logger: logger, now: time.Now}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/booking/coupons", httpx.Handle(h.logger, h.list))
	mux.Handle("POST /api/v1/booking/coupons", httpx.Handle(h.logger, h.create))
	mux.Handle("PATCH /api/v1/booking/coupons/{id}", httpx.Handle(h.logger, h.update))
	mux.Handle("DELETE /api/v1/booking/coupons/{id}", httpx.Handle(h.logger, h.delete))
	mux.Handle("POST /api/v1/public/coupons/validate", httpx.Handle(h.logger, h.validate))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	var out []Coupon
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		out, err = h.repo.List(r.Context(), tx, tenantID)
		return err
	})
	if err != nil {
		return err
	}
	if out == nil {
		out = []Coupon{}
	}
	httpx.WriteData(w, http.StatusOK, out)
	return nil
}

type createRequest struct {
	Code             string     `json:"code"`
	Type             string     `json:"type"`
	Value            int64      `json:"value"`
	FreeItemID       string     `json:"free_item_id"`
	MinSubtotalCents int64      `json:"min_subtotal_cents"`
	ExpiresAt        *time.Time `json:"expires_at"`
	MaxUses          int        `json:"max_uses"`
	Active           *bool      `json:"active"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	c := Coupon{
		Code:             req.Code,
		Type:             strings.TrimSpace(req.Type),
		Value:            req.Value,
		FreeItemID:       strings.TrimSpace(req.FreeItemID),
		MinSubtotalCents: req.MinSubtotalCents,
		ExpiresAt:        req.ExpiresAt,
		MaxUses:          req.MaxUses,
		Active:           req.Active == nil || *req.Active,
	}
	if err := c.Validate(); err != nil {
		return err
	}
	var out Coupon
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		out, err = h.repo.Create(r.Context(), tx, tenantID, c)
		return err
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusCreated, out)
	return nil
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		return err
	}
	var p Patch
	if err := httpx.DecodeJSON(r, &p); err != nil {
		return err
	}
	if p.MaxUses != nil && *p.MaxUses < 0 {
		return apperr.BadRequest("max_uses must not be negative")
	}
	var out Coupon
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		out, err = h.repo.Update(r.Context(), tx, tenantID, id, p)
		return err
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, out)
	return nil
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		return err
	}
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		return h.repo.Delete(r.Context(), tx, tenantID, id)
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, map[string]string{"id": id})
	return nil
}

type validateRequest struct {
	TenantID      string `json:"tenant_id"`
	Code          string `json:"code"`
	SubtotalCents int64  `json:"subtotal_cents"`
	Items         []struct {
		ItemID    string `json:"item_id"`
		UnitCents int64  `json:"unit_cents"`
		Qty       int    `json:"qty"`
	} `json:"items"`
}

// validate previews the discount without redeeming the coupon.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request) error {
	var req validateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	tenantID, err := httpx.ParseUUID(req.TenantID, "tenant_id")
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.Code) == "" {
		return apperr.BadRequest("code is required")
	}
	if req.SubtotalCents < 0 {
		return apperr.BadRequest("subtotal_cents must not be negative")
	}
	items := make([]LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, LineItem{ItemID: it.ItemID, UnitCents: it.UnitCents, Qty: it.Qty})
	}

	var discount int64
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		c, err := h.repo.GetByCode(r.Context(), tx, tenantID, req.Code, false)
		if err != nil {
			return err
		}
		discount, err = Apply(c, req.SubtotalCents, items, h.now())
		return err
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{
		"code":           NormalizeCode(req.Code),
		"discount_cents": discount,
		"total_cents":    req.SubtotalCents - discount,
	})
	return nil
}
