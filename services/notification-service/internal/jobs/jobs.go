// Package jobs holds the notification job queue: what to send, to whom and
// when, with retry bookkeeping.
package jobs

import (
	"time"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

const (
	StatusPending   = "pending"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDead      = "dead"
	StatusCancelled = "cancelled"
)

// Templates name the message a job renders.
const (
	TemplateConfirmation = "appointment_confirmation"
	TemplateReminder     = "appointment_reminder"
	TemplateCancelled    = "appointment_cancelled"
	TemplateRescheduled  = "appointment_rescheduled"
	TemplateOrder        = "order_received"
)

type Job struct {
	ID             int64
	IdempotencyKey string
	TenantID       string
	ReferenceID    string
	Template       string
	Channel        string
	Recipient      string
	Data           map[string]any
	RunAt          time.Time
	Attempts       int
	MaxAttempts    int
	Traceparent    string
	Tracestate     string
}

// Backoff is the delay before retry number attempt (1-based): base doubled
// per attempt, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
