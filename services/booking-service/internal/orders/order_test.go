package orders

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/coupons"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/storage"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{StatusPendingPayment, StatusPaid, true},
		{StatusPaid, StatusPreparing, true},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusCompleted, true},
		{StatusPendingPayment, StatusPreparing, false},
		{StatusReady, StatusPaid, false},
		{StatusPendingPayment, StatusCancelled, true},
		{StatusReady, StatusCancelled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusCancelled, false},
		{StatusCancelled, StatusPaid, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestNormalizeItemsMergesDuplicates(t *testing.T) {
	out, err := NormalizeItems([]ItemRequest{{ItemID: "a", Qty: 1}, {ItemID: "b", Qty: 2}, {ItemID: " a ", Qty: 3}})
	require.NoError(t, err)
	require.Equal(t, []ItemRequest{{ItemID: "a", Qty: 4}, {ItemID: "b", Qty: 2}}, out)
}

func TestNormalizeItemsRejects(t *testing.T) {
	for name, in := range map[string][]ItemRequest{
		"empty":    nil,
		"zero qty": {{ItemID: "a", Qty: 0}},
		"no id":    {{ItemID: " ", Qty: 1}},
		"too many": {{ItemID: "a", Qty: 60}, {ItemID: "a", Qty: 60}},
	} {
		_, err := NormalizeItems(in)
		require.Error(t, err, name)
		require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err), name)
	}
}

func TestPriceLinesUnknownItem(t *testing.T) {
	menu := map[string]storage.MenuItem{"a": {ID: "a", Name: "Latte", PriceCents: 450}}
	_, _, err := PriceLines([]ItemRequest{{ItemID: "a", Qty: 1}, {ItemID: "x", Qty: 1}}, menu)
	require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
}

func TestTotalsWithCouponAndTax(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	menu := map[string]storage.MenuItem{
		"a": {ID: "a", Name: "Latte", PriceCents: 450},
		"b": {ID: "b", Name: "Bagel", PriceCents: 300},
	}
	o := Order{}
	var err error
	o.Items, o.SubtotalCents, err = PriceLines([]ItemRequest{{ItemID: "a", Qty: 2}, {ItemID: "b", Qty: 1}}, menu)
	require.NoError(t, err)
	require.Equal(t, int64(1200), o.SubtotalCents)

	c := &coupons.Coupon{Code: "BAGEL", Type: coupons.TypeFreeItem, FreeItemID: "b", Active: true}
	require.NoError(t, Totals(&o, c, 825, now))
	require.Equal(t, int64(300), o.DiscountCents)
	// 8.25% of 900 = 74.25
	require.Equal(t, int64(74), o.TaxCents)
	require.Equal(t, int64(974), o.TotalCents)
	require.Equal(t, "BAGEL", o.CouponCode)
}

func TestTotalsWithoutCoupon(t *testing.T) {
	o := Order{SubtotalCents: 1000}
	require.NoError(t, Totals(&o, nil, 0, time.Now()))
	require.Equal(t, int64(1000), o.TotalCents)
	require.Zero(t, o.TaxCents)
}

func TestTotalsExpiredCoupon(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	o := Order{SubtotalCents: 1000}
	err := Totals(&o, &coupons.Coupon{Type: coupons.TypeFixed, Value: 100, Active: true, ExpiresAt: &past}, 0, now)
	require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
}
