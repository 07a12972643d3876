// Package metrics keeps per-tenant daily counters fed by booking, billing
// and notification events.
package metrics

import (
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/bizdash/libs/events"
)

// Topics the metrics consumer subscribes to.
var Topics = []string{
	events.AppointmentBooked,
	events.AppointmentCancelled,
	events.OrderPlaced,
	events.PaymentSucceeded,
	events.NotificationSent,
	events.NotificationFailed,
}

// Delta is an increment to one tenant's counters for one day.
type Delta struct {
	Booked              int
	Cancelled           int
	Orders              int
	OrderRevenueCents   int64
	PaidCents           int64
	NotificationsSent   int
	NotificationsFailed int
}

// Day is the stored counters for one tenant and day.
type Day struct {
	Day                 string `json:"day"`
	Booked              int    `json:"booked"`
	Cancelled           int    `json:"cancelled"`
	Orders              int    `json:"orders"`
	OrderRevenueCents   int64  `json:"order_revenue_cents"`
	PaidCents           int64  `json:"paid_cents"`
	NotificationsSent   int    `json:"notifications_sent"`
	NotificationsFailed int    `json:"notifications_failed"`
}

// Bump is what one event adds.
type Bump struct {
	TenantID string
	Day      time.Time
	Delta    Delta
}

// FromMessage maps an event to its bump. Appointments count on the day they
// start; everything else on the day it happened. ok is false for events that
// carry no tenant or belong to another topic.
func FromMessage(msg kafka.Message, now time.Time) (Bump, bool, error) {
	at := msg.Time
	if at.IsZero() {
		at = now
	}
	var b Bump
	switch msg.Topic {
	case events.AppointmentBooked:
		var p events.AppointmentBookedPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return Bump{}, false, err
		}
		b = Bump{TenantID: p.TenantID, Day: p.StartTime, Delta: Delta{Booked: 1}}
	case events.AppointmentCancelled:
		var p events.AppointmentCancelledPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return Bump{}, false, err
		}
		b = Bump{TenantID: p.TenantID, Day: p.StartTime, Delta: Delta{Cancelled: 1}}
	case events.OrderPlaced:
		var p events.OrderPlacedPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return Bump{}, false, err
		}
		b = Bump{TenantID: p.TenantID, Day: at, Delta: Delta{Orders: 1, OrderRevenueCents: p.TotalCents}}
	case events.PaymentSucceeded:
		var p events.PaymentSucceededPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return Bump{}, false, err
		}
		day := p.PaidAt
		if day.IsZero() {
			day = at
		}
		b = Bump{TenantID: p.TenantID, Day: day, Delta: Delta{PaidCents: p.AmountCents}}
	case events.NotificationSent, events.NotificationFailed:
		var p events.NotificationPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return Bump{}, false, err
		}
		b = Bump{TenantID: p.TenantID, Day: at}
		if msg.Topic == events.NotificationSent {
			b.Delta.NotificationsSent = 1
		} else {
			b.Delta.NotificationsFailed = 1
		}
	default:
		return Bump{}, false, nil
	}
	if b.TenantID == "" {
		return Bump{}, false, nil
	}
	if b.Day.IsZero() {
		b.Day = at
	}
	b.Day = b.Day.UTC().Truncate(24 * time.Hour)
	return b, true, nil
}
