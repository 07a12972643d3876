package consumer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/libs/events"
	"github.com/md-rashed-zaman/bizdash/services/notification-service/internal/jobs"
)

func message(t *testing.T, topic string, payload any) kafka.Message {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Value: b}
}

var now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func bookedPayload() events.AppointmentBookedPayload {
	return events.AppointmentBookedPayload{
		AppointmentID: "a1",
		TenantID:      "t1",
		ClientName:    "Ada",
		ClientEmail:   "ada@example.com",
		StartTime:     now.Add(48 * time.Hour),
		Status:        "confirmed",
	}
}

func TestDecodeBooked(t *testing.T) {
	pl, ok, err := decode(message(t, events.AppointmentBooked, bookedPayload()), now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "t1", pl.tenantID)
	require.Equal(t, "a1", pl.referenceID)
	require.False(t, pl.cancel)
	require.Len(t, pl.add, 3)
}

func TestDecodeMovedCancelsOnlyReminders(t *testing.T) {
	p := events.AppointmentMovedPayload{AppointmentBookedPayload: bookedPayload(), PreviousStart: now.Add(24 * time.Hour)}
	pl, ok, err := decode(message(t, events.AppointmentMoved, p), now)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, pl.cancel)
	require.Equal(t, []string{jobs.TemplateReminder}, pl.templates)
	require.Equal(t, jobs.TemplateRescheduled, pl.add[0].Template)
}

func TestDecodeCancelledCancelsEverything(t *testing.T) {
	pl, ok, err := decode(message(t, events.AppointmentCancelled, events.AppointmentCancelledPayload{
		AppointmentID: "a1",
		TenantID:      "t1",
		ClientEmail:   "ada@example.com",
		StartTime:     now.Add(48 * time.Hour),
	}), now)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, pl.cancel)
	require.Empty(t, pl.templates)
	require.Len(t, pl.add, 1)
}

func TestDecodeOrder(t *testing.T) {
	pl, ok, err := decode(message(t, events.OrderPlaced, events.OrderPlacedPayload{
		OrderID:       "o1",
		TenantID:      "t1",
		CustomerEmail: "bo@example.com",
	}), now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "o1", pl.referenceID)
	require.Len(t, pl.add, 1)
}

func TestDecodeRejects(t *testing.T) {
	_, _, err := decode(kafka.Message{Topic: events.AppointmentBooked, Value: []byte("{")}, now)
	require.Error(t, err)

	p := bookedPayload()
	p.TenantID = ""
	_, ok, err := decode(message(t, events.AppointmentBooked, p), now)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = decode(kafka.Message{Topic: "other.topic", Value: []byte("{}")}, now)
	require.NoError(t, err)
	require.False(t, ok)
}
