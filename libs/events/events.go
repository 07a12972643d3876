// Package events holds the Kafka topics and payloads exchanged between
// services. Payload changes are additive; breaking changes get a new version
// suffix.
package events

import "time"

const (
	AppointmentBooked    = "booking.appointment.booked.v1"
	AppointmentCancelled = "booking.appointment.cancelled.v1"
	AppointmentMoved     = "booking.appointment.rescheduled.v1"
	OrderPlaced          = "booking.order.placed.v1"
	PaymentSucceeded     = "billing.payment.succeeded.v1"
	NotificationSent     = "notification.sent.v1"
	NotificationFailed   = "notification.failed.v1"
)

type AppointmentBookedPayload struct {
	AppointmentID string    `json:"appointment_id"`
	TenantID      string    `json:"tenant_id"`
	ServiceID     string    `json:"service_id"`
	StaffID       string    `json:"staff_id,omitempty"`
	ClientName    string    `json:"client_name"`
	ClientEmail   string    `json:"client_email,omitempty"`
	ClientPhone   string    `json:"client_phone,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Timezone      string    `json:"timezone,omitempty"`
	Status        string    `json:"status"`
	TotalCents    int64     `json:"total_cents"`
	DepositCents  int64     `json:"deposit_cents"`
	ReminderHours []int     `json:"reminder_hours,omitempty"`
}

type AppointmentCancelledPayload struct {
	AppointmentID string    `json:"appointment_id"`
	TenantID      string    `json:"tenant_id"`
	ClientName    string    `json:"client_name"`
	ClientEmail   string    `json:"client_email,omitempty"`
	ClientPhone   string    `json:"client_phone,omitempty"`
	StartTime     time.Time `json:"start_time"`
	Reason        string    `json:"reason,omitempty"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

type AppointmentMovedPayload struct {
	AppointmentBookedPayload
	PreviousStart time.Time `json:"previous_start"`
}

type OrderPlacedPayload struct {
	OrderID       string `json:"order_id"`
	TenantID      string `json:"tenant_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	Fulfillment   string `json:"fulfillment"`
	TotalCents    int64  `json:"total_cents"`
	ItemCount     int    `json:"item_count"`
}

// Payment kinds name what a checkout session pays for.
const (
	KindDeposit = "deposit"
	KindInvoice = "invoice"
	KindOrder   = "order"
)

type PaymentSucceededPayload struct {
	TenantID    string    `json:"tenant_id"`
	Kind        string    `json:"kind"`
	ReferenceID string    `json:"reference_id"`
	SessionID   string    `json:"session_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	PaidAt      time.Time `json:"paid_at"`
}

type NotificationPayload struct {
	JobID       string `json:"job_id"`
	TenantID    string `json:"tenant_id"`
	Channel     string `json:"channel"`
	Recipient   string `json:"recipient"`
	Template    string `json:"template"`
	ReferenceID string `json:"reference_id"`
	Error       string `json:"error,omitempty"`
}
