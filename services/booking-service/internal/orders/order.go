package orders

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/coupons"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/pricing"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/storage"
)

const (
	StatusPendingPayment = "pending_payment"
	StatusPaid           = "paid"
	StatusPreparing      = "preparing"
	StatusReady          = "ready"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"

	FulfillmentPickup   = "pickup"
	FulfillmentDelivery = "delivery"

	maxLines = 50
	maxQty   = 99
)

var forward = map[string]string{
	StatusPendingPayment: StatusPaid,
	StatusPaid:           StatusPreparing,
	StatusPreparing:      StatusReady,
	StatusReady:          StatusCompleted,
}

// CanTransition reports whether an order may move from one status to the
// next. Orders only move forward one step, or to cancelled while not done.
func CanTransition(from, to string) bool {
	if to == StatusCancelled {
		return from != StatusCompleted && from != StatusCancelled
	}
	return forward[from] == to
}

func IsKnownStatus(s string) bool {
	switch s {
	case StatusPendingPayment, StatusPaid, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Line struct {
	ItemID    string `json:"item_id"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	UnitCents int64  `json:"unit_cents"`
	LineCents int64  `json:"line_cents"`
}

type Order struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"user_id"`
	CustomerName    string     `json:"customer_name"`
	CustomerEmail   string     `json:"customer_email,omitempty"`
	CustomerPhone   string     `json:"customer_phone,omitempty"`
	Fulfillment     string     `json:"fulfillment"`
	DeliveryAddress string     `json:"delivery_address,omitempty"`
	Items           []Line     `json:"items"`
	SubtotalCents   int64      `json:"subtotal_cents"`
	DiscountCents   int64      `json:"discount_cents"`
	TaxCents        int64      `json:"tax_cents"`
	TotalCents      int64      `json:"total_cents"`
	CouponCode      string     `json:"coupon_code,omitempty"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ItemRequest is one requested line before prices are known.
type ItemRequest struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

// NormalizeItems merges duplicate item ids and rejects bad quantities.
func NormalizeItems(in []ItemRequest) ([]ItemRequest, error) {
	if len(in) == 0 {
		return nil, apperr.BadRequest("items are required")
	}
	if len(in) > maxLines {
		return nil, apperr.Badf("at most %d items per order", maxLines)
	}
	idx := map[string]int{}
	var out []ItemRequest
	for _, it := range in {
		id := strings.TrimSpace(it.ItemID)
		if id == "" {
			return nil, apperr.BadRequest("item_id is required")
		}
		if it.Qty <= 0 {
			return nil, apperr.Badf("qty for %s must be positive", id)
		}
		if i, ok := idx[id]; ok {
			out[i].Qty += it.Qty
		} else {
			idx[id] = len(out)
			out = append(out, ItemRequest{ItemID: id, Qty: it.Qty})
		}
	}
	for _, it := range out {
		if it.Qty > maxQty {
			return nil, apperr.Badf("qty for %s exceeds %d", it.ItemID, maxQty)
		}
	}
	return out, nil
}

// PriceLines resolves menu prices. Items missing from menu are rejected.
func PriceLines(items []ItemRequest, menu map[string]storage.MenuItem) ([]Line, int64, error) {
	lines := make([]Line, 0, len(items))
	var subtotal int64
	for _, it := range items {
		m, ok := menu[it.ItemID]
		if !ok {
			return nil, 0, apperr.Badf("unknown menu item %s", it.ItemID)
		}
		l := Line{ItemID: m.ID, Name: m.Name, Qty: it.Qty, UnitCents: m.PriceCents, LineCents: m.PriceCents * int64(it.Qty)}
		subtotal += l.LineCents
		lines = append(lines, l)
	}
	return lines, subtotal, nil
}

// Totals applies the optional coupon, then tax on the discounted amount.
func Totals(o *Order, c *coupons.Coupon, taxRateBps int64, now time.Time) error {
	o.DiscountCents = 0
	if c != nil {
		items := make([]coupons.LineItem, 0, len(o.Items))
		for _, l := range o.Items {
			items = append(items, coupons.LineItem{ItemID: l.ItemID, UnitCents: l.UnitCents, Qty: l.Qty})
		}
		d, err := coupons.Apply(*c, o.SubtotalCents, items, now)
		if err != nil {
			return err
		}
		o.DiscountCents = d
		o.CouponCode = c.Code
	}
	taxable := o.SubtotalCents - o.DiscountCents
	o.TaxCents = pricing.BasisPoints(taxable, taxRateBps)
	o.TotalCents = taxable + o.TaxCents
	return nil
}
