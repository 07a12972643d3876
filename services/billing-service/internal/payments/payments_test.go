package payments

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/events"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/storage"
)

func TestOwed(t *testing.T) {
	cases := []struct {
		name   string
		ref    storage.Reference
		want   int64
		status int
	}{
		{"deposit due", storage.Reference{Kind: events.KindDeposit, Status: "pending_deposit", AmountCents: 2500}, 2500, 0},
		{"deposit already confirmed", storage.Reference{Kind: events.KindDeposit, Status: "confirmed", AmountCents: 2500}, 0, http.StatusConflict},
		{"invoice sent", storage.Reference{Kind: events.KindInvoice, Status: "sent", AmountCents: 12000}, 12000, 0},
		{"invoice paid", storage.Reference{Kind: events.KindInvoice, Status: "paid", AmountCents: 12000}, 0, http.StatusConflict},
		{"invoice draft", storage.Reference{Kind: events.KindInvoice, Status: "draft", AmountCents: 12000}, 0, http.StatusConflict},
		{"order pending", storage.Reference{Kind: events.KindOrder, Status: "pending_payment", AmountCents: 1899}, 1899, 0},
		{"order preparing", storage.Reference{Kind: events.KindOrder, Status: "preparing", AmountCents: 1899}, 0, http.StatusConflict},
		{"zero amount", storage.Reference{Kind: events.KindOrder, Status: "pending_payment"}, 0, http.StatusUnprocessableEntity},
		{"below minimum", storage.Reference{Kind: events.KindInvoice, Status: "sent", AmountCents: 49}, 0, http.StatusUnprocessableEntity},
		{"unknown kind", storage.Reference{Kind: "tip", AmountCents: 500}, 0, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Owed(tc.ref)
			if tc.status != 0 {
				require.Error(t, err)
				require.Equal(t, tc.status, apperr.StatusOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCurrency(t *testing.T) {
	require.Equal(t, "eur", Currency(storage.Reference{Currency: "EUR"}, "usd"))
	require.Equal(t, "gbp", Currency(storage.Reference{Currency: "x"}, "GBP"))
	require.Equal(t, "usd", Currency(storage.Reference{}, ""))
}

func TestValidKind(t *testing.T) {
	for _, k := range []string{events.KindDeposit, events.KindInvoice, events.KindOrder} {
		require.True(t, ValidKind(k), k)
	}
	require.False(t, ValidKind("subscription"))
}

func TestIsPaid(t *testing.T) {
	require.False(t, IsPaid(nil))
	require.True(t, IsPaid(&stripe.CheckoutSession{PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid}))
	require.True(t, IsPaid(&stripe.CheckoutSession{PaymentStatus: stripe.CheckoutSessionPaymentStatusNoPaymentRequired}))
	require.False(t, IsPaid(&stripe.CheckoutSession{PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid}))
}
