package jobs

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bizdash/libs/events"
)

// DefaultReminderHours applies when a booking carries no reminder settings.
var DefaultReminderHours = []int{24, 1}

type contact struct {
	channel   string
	recipient string
}

func contacts(email, phone string) []contact {
	var out []contact
	if e := strings.TrimSpace(email); e != "" {
		out = append(out, contact{ChannelEmail, e})
	}
	if p := strings.TrimSpace(phone); p != "" {
		out = append(out, contact{ChannelSMS, p})
	}
	return out
}

func appointmentData(p events.AppointmentBookedPayload) map[string]any {
	return map[string]any{
		"client_name":   p.ClientName,
		"start_time":    p.StartTime.UTC().Format(time.RFC3339),
		"timezone":      p.Timezone,
		"status":        p.Status,
		"total_cents":   p.TotalCents,
		"deposit_cents": p.DepositCents,
	}
}

func reminderHours(hours []int) []int {
	if len(hours) == 0 {
		hours = DefaultReminderHours
	}
	seen := make(map[int]bool, len(hours))
	out := make([]int, 0, len(hours))
	for _, h := range hours {
		if h > 0 && !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// reminders plans one job per contact and offset. Offsets already in the
// past are skipped. Keys include the start time so a reschedule plans a
// fresh set.
func reminders(p events.AppointmentBookedPayload, now time.Time) []Job {
	var out []Job
	for _, h := range reminderHours(p.ReminderHours) {
		runAt := p.StartTime.Add(-time.Duration(h) * time.Hour)
		if !runAt.After(now) {
			continue
		}
		for _, c := range contacts(p.ClientEmail, p.ClientPhone) {
			data := appointmentData(p)
			data["hours_before"] = h
			out = append(out, Job{
				IdempotencyKey: fmt.Sprintf("appt:%s:reminder:%d:%dh:%s", p.AppointmentID, p.StartTime.Unix(), h, c.channel),
				TenantID:       p.TenantID,
				ReferenceID:    p.AppointmentID,
				Template:       TemplateReminder,
				Channel:        c.channel,
				Recipient:      c.recipient,
				Data:           data,
				RunAt:          runAt,
			})
		}
	}
	return out
}

func immediate(key, tenantID, referenceID, template string, cs []contact, data map[string]any, now time.Time) []Job {
	out := make([]Job, 0, len(cs))
	for _, c := range cs {
		out = append(out, Job{
			IdempotencyKey: key + ":" + c.channel,
			TenantID:       tenantID,
			ReferenceID:    referenceID,
			Template:       template,
			Channel:        c.channel,
			Recipient:      c.recipient,
			Data:           data,
			RunAt:          now,
		})
	}
	return out
}

// PlanBooked returns the confirmation and reminder jobs for a new booking.
func PlanBooked(p events.AppointmentBookedPayload, now time.Time) []Job {
	if p.Status == "cancelled" {
		return nil
	}
	out := immediate("appt:"+p.AppointmentID+":confirmation", p.TenantID, p.AppointmentID, TemplateConfirmation,
		contacts(p.ClientEmail, p.ClientPhone), appointmentData(p), now)
	return append(out, reminders(p, now)...)
}

// PlanMoved returns the notice and the new reminders for a rescheduled
// booking. Pending reminders for the old time must be cancelled first.
func PlanMoved(p events.AppointmentMovedPayload, now time.Time) []Job {
	data := appointmentData(p.AppointmentBookedPayload)
	data["previous_start"] = p.PreviousStart.UTC().Format(time.RFC3339)
	key := fmt.Sprintf("appt:%s:rescheduled:%d", p.AppointmentID, p.StartTime.Unix())
	out := immediate(key, p.TenantID, p.AppointmentID, TemplateRescheduled,
		contacts(p.ClientEmail, p.ClientPhone), data, now)
	return append(out, reminders(p.AppointmentBookedPayload, now)...)
}

// PlanCancelled returns the cancellation notice.
func PlanCancelled(p events.AppointmentCancelledPayload, now time.Time) []Job {
	data := map[string]any{
		"client_name": p.ClientName,
		"start_time":  p.StartTime.UTC().Format(time.RFC3339),
		"reason":      p.Reason,
	}
	return immediate("appt:"+p.AppointmentID+":cancelled", p.TenantID, p.AppointmentID, TemplateCancelled,
		contacts(p.ClientEmail, p.ClientPhone), data, now)
}

// PlanOrder returns the order confirmation.
func PlanOrder(p events.OrderPlacedPayload, now time.Time) []Job {
	data := map[string]any{
		"customer_name": p.CustomerName,
		"fulfillment":   p.Fulfillment,
		"total_cents":   p.TotalCents,
		"item_count":    p.ItemCount,
	}
	return immediate("order:"+p.OrderID+":received", p.TenantID, p.OrderID, TemplateOrder,
		contacts(p.CustomerEmail, p.CustomerPhone), data, now)
}
