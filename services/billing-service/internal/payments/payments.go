// Package payments decides what a checkout may charge and applies the
// outcome of a Stripe checkout session.
package payments

import (
	"strings"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/events"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/storage"
)

// MinChargeCents is Stripe's smallest card charge for USD.
const MinChargeCents = 50

// ValidKind reports whether kind names something billing can collect.
func ValidKind(kind string) bool {
	switch kind {
	case events.KindDeposit, events.KindInvoice, events.KindOrder:
		return true
	}
	return false
}

// Owed returns the amount to collect for ref, or an error explaining why
// nothing can be collected right now.
func Owed(ref storage.Reference) (int64, error) {
	switch ref.Kind {
	case events.KindDeposit:
		if ref.Status != "pending_deposit" {
			return 0, apperr.Conflict("appointment is not awaiting a deposit")
		}
	case events.KindInvoice:
		switch ref.Status {
		case "paid":
			return 0, apperr.Conflict("invoice already paid")
		case "void", "draft":
			return 0, apperr.Conflict("invoice is not payable")
		}
	case events.KindOrder:
		if ref.Status != "pending_payment" {
			return 0, apperr.Conflict("order is not awaiting payment")
		}
	default:
		return 0, apperr.Badf("unsupported kind %q", ref.Kind)
	}
	if ref.AmountCents <= 0 {
		return 0, apperr.Unprocessable("nothing_owed", "nothing to pay")
	}
	if ref.AmountCents < MinChargeCents {
		return 0, apperr.Unprocessable("amount_too_small", "amount is below the minimum charge")
	}
	return ref.AmountCents, nil
}

// Currency picks the reference currency, else fallback, lowercased as
// Stripe expects.
func Currency(ref storage.Reference, fallback string) string {
	c := strings.ToLower(strings.TrimSpace(ref.Currency))
	if len(c) != 3 {
		c = strings.ToLower(strings.TrimSpace(fallback))
	}
	if c == "" {
		c = "usd"
	}
	return c
}
