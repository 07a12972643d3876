package coupons

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/pricing"
)

const (
	TypePercent  = "percent"
	TypeFixed    = "fixed"
	TypeFreeItem = "free_item"
)

type Coupon struct {
	ID               string     `json:"id"`
	Code             string     `json:"code"`
	Type             string     `json:"type"`
	Value            int64      `json:"value"`
	FreeItemID       string     `json:"free_item_id,omitempty"`
	MinSubtotalCents int64      `json:"min_subtotal_cents"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	MaxUses          int        `json:"max_uses"`
	UsedCount        int        `json:"used_count"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
}

// LineItem is one priced line of a booking or order.
type LineItem struct {
	ItemID    string
	UnitCents int64
	Qty       int
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckUsable runs the sequential checks that do not depend on the cart:
// active, not expired, under the usage cap. MaxUses 0 means unlimited.
func (c Coupon) CheckUsable(now time.Time) error {
	if !c.Active {
		return apperr.BadRequest("coupon is not active")
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return apperr.BadRequest("coupon has expired")
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return apperr.Conflict("coupon usage limit reached")
	}
	return nil
}

// Apply returns the discount for a cart. The discount never exceeds subtotal.
func Apply(c Coupon, subtotal int64, items []LineItem, now time.Time) (int64, error) {
	if err := c.CheckUsable(now); err != nil {
		return 0, err
	}
	if subtotal < c.MinSubtotalCents {
		return 0, apperr.Badf("coupon requires a minimum subtotal of %d cents", c.MinSubtotalCents)
	}

	var discount int64
	switch c.Type {
	case TypePercent:
		discount = pricing.PercentOf(subtotal, c.Value)
	case TypeFixed:
		discount = c.Value
	case TypeFreeItem:
		discount = cheapestMatching(items, c.FreeItemID)
		if discount == 0 {
			return 0, apperr.BadRequest("coupon item is not in the cart")
		}
	default:
		return 0, apperr.BadRequest("unsupported coupon type")
	}
	return pricing.Clamp(discount, subtotal), nil
}

func cheapestMatching(items []LineItem, itemID string) int64 {
	var best int64
	for _, it := range items {
		if it.Qty <= 0 || it.UnitCents <= 0 {
			continue
		}
		if itemID != "" && it.ItemID != itemID {
			continue
		}
		if best == 0 || it.UnitCents < best {
			best = it.UnitCents
		}
	}
	return best
}

// Validate checks an owner-supplied coupon definition.
func (c *Coupon) Validate() error {
	c.Code = NormalizeCode(c.Code)
	if c.Code == "" || len(c.Code) > 40 {
		return apperr.BadRequest("code must be 1-40 characters")
	}
	switch c.Type {
	case TypePercent:
		if c.Value <= 0 || c.Value > 100 {
			return apperr.BadRequest("percent value must be between 1 and 100")
		}
	case TypeFixed:
		if c.Value <= 0 {
			return apperr.BadRequest("fixed value must be positive cents")
		}
	case TypeFreeItem:
		c.Value = 0
	default:
		return apperr.BadRequest("type must be percent, fixed or free_item")
	}
	if c.MaxUses < 0 || c.MinSubtotalCents < 0 {
		return apperr.BadRequest("limits must not be negative")
	}
	return nil
}
