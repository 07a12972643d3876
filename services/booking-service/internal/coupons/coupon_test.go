package coupons

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestApply(t *testing.T) {
	items := []LineItem{
		{ItemID: "latte", UnitCents: 450, Qty: 2},
		{ItemID: "bagel", UnitCents: 300, Qty: 1},
	}
	cases := []struct {
		name     string
		coupon   Coupon
		subtotal int64
		want     int64
		status   int
	}{
		{"percent", Coupon{Type: TypePercent, Value: 10, Active: true}, 1200, 120, 0},
		{"fixed", Coupon{Type: TypeFixed, Value: 500, Active: true}, 1200, 500, 0},
		{"fixed clamped", Coupon{Type: TypeFixed, Value: 5000, Active: true}, 1200, 1200, 0},
		{"free specific item", Coupon{Type: TypeFreeItem, FreeItemID: "latte", Active: true}, 1200, 450, 0},
		{"free cheapest", Coupon{Type: TypeFreeItem, Active: true}, 1200, 300, 0},
		{"free item missing", Coupon{Type: TypeFreeItem, FreeItemID: "muffin", Active: true}, 1200, 0, http.StatusBadRequest},
		{"inactive", Coupon{Type: TypeFixed, Value: 1, Active: false}, 1200, 0, http.StatusBadRequest},
		{"expired", Coupon{Type: TypeFixed, Value: 1, Active: true, ExpiresAt: ptr(now)}, 1200, 0, http.StatusBadRequest},
		{"cap reached", Coupon{Type: TypeFixed, Value: 1, Active: true, MaxUses: 3, UsedCount: 3}, 1200, 0, http.StatusConflict},
		{"unlimited uses", Coupon{Type: TypeFixed, Value: 1, Active: true, MaxUses: 0, UsedCount: 999}, 1200, 1, 0},
		{"below minimum", Coupon{Type: TypeFixed, Value: 100, Active: true, MinSubtotalCents: 2000}, 1200, 0, http.StatusBadRequest},
		{"unknown type", Coupon{Type: "bogo", Active: true}, 1200, 0, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Apply(tc.coupon, tc.subtotal, items, now)
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

func TestExpiryIsChecked(t *testing.T) {
	c := Coupon{Type: TypePercent, Value: 10, Active: true, ExpiresAt: ptr(now.Add(time.Minute))}
	_, err := Apply(c, 1000, nil, now)
	require.NoError(t, err)
	_, err = Apply(c, 1000, nil, now.Add(time.Minute))
	require.Error(t, err)
}

func TestValidateNormalizesCode(t *testing.T) {
	c := Coupon{Code: "  spring10 ", Type: TypePercent, Value: 10}
	require.NoError(t, c.Validate())
	require.Equal(t, "SPRING10", c.Code)

	bad := Coupon{Code: "X", Type: TypePercent, Value: 101}
	require.Error(t, bad.Validate())

	free := Coupon{Code: "FREE", Type: TypeFreeItem, Value: 99}
	require.NoError(t, free.Validate())
	require.Zero(t, free.Value)
}
