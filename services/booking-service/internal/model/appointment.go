package model

import "time"

const (
	StatusPendingDeposit = "pending_deposit"
	StatusConfirmed      = "confirmed"
	StatusCancelled      = "cancelled"
	StatusCompleted      = "completed"
	StatusNoShow         = "no_show"
)

// Active statuses hold their slot; everything else frees it.
func IsActiveStatus(s string) bool {
	return s == StatusPendingDeposit || s == StatusConfirmed
}

type Appointment struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"user_id"`
	ServiceID     string     `json:"service_id"`
	StaffID       string     `json:"staff_id,omitempty"`
	ClientID      string     `json:"client_id,omitempty"`
	ClientName    string     `json:"client_name"`
	ClientEmail   string     `json:"client_email,omitempty"`
	ClientPhone   string     `json:"client_phone,omitempty"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Status        string     `json:"status"`
	SubtotalCents int64      `json:"subtotal_cents"`
	DiscountCents int64      `json:"discount_cents"`
	TotalCents    int64      `json:"total_cents"`
	DepositCents  int64      `json:"deposit_cents"`
	DepositPaidAt *time.Time `json:"deposit_paid_at,omitempty"`
	CouponCode    string     `json:"coupon_code,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CancelReason  string     `json:"cancellation_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Service struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	Active          bool   `json:"active"`
}

type StaffMember struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Active bool   `json:"active"`
}
