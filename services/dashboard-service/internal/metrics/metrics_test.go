package metrics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/libs/events"
)

var now = time.Date(2026, 4, 10, 15, 4, 5, 0, time.UTC)

func msg(t *testing.T, topic string, payload any, at time.Time) kafka.Message {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Value: b, Time: at}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFromMessage(t *testing.T) {
	start := time.Date(2026, 4, 12, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	sentAt := time.Date(2026, 4, 9, 8, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		msg  kafka.Message
		want Bump
	}{
		{
			"booked counts on start day in UTC",
			msg(t, events.AppointmentBooked, events.AppointmentBookedPayload{TenantID: "t1", StartTime: start}, sentAt),
			Bump{TenantID: "t1", Day: day(2026, 4, 13), Delta: Delta{Booked: 1}},
		},
		{
			"cancelled",
			msg(t, events.AppointmentCancelled, events.AppointmentCancelledPayload{TenantID: "t1", StartTime: start}, sentAt),
			Bump{TenantID: "t1", Day: day(2026, 4, 13), Delta: Delta{Cancelled: 1}},
		},
		{
			"order counts revenue on message day",
			msg(t, events.OrderPlaced, events.OrderPlacedPayload{TenantID: "t1", TotalCents: 4200}, sentAt),
			Bump{TenantID: "t1", Day: day(2026, 4, 9), Delta: Delta{Orders: 1, OrderRevenueCents: 4200}},
		},
		{
			"payment uses paid_at",
			msg(t, events.PaymentSucceeded, events.PaymentSucceededPayload{TenantID: "t1", AmountCents: 2500, PaidAt: day(2026, 4, 7)}, sentAt),
			Bump{TenantID: "t1", Day: day(2026, 4, 7), Delta: Delta{PaidCents: 2500}},
		},
		{
			"notification failed without message time uses now",
			msg(t, events.NotificationFailed, events.NotificationPayload{TenantID: "t1"}, time.Time{}),
			Bump{TenantID: "t1", Day: day(2026, 4, 10), Delta: Delta{NotificationsFailed: 1}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := FromMessage(tc.msg, now)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, tc.want.TenantID, got.TenantID)
			require.True(t, tc.want.Day.Equal(got.Day), "day %s", got.Day)
			require.Equal(t, tc.want.Delta, got.Delta)
		})
	}
}

func TestFromMessageSkips(t *testing.T) {
	_, ok, err := FromMessage(msg(t, events.NotificationSent, events.NotificationPayload{}, now), now)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = FromMessage(kafka.Message{Topic: "other"}, now)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = FromMessage(kafka.Message{Topic: events.OrderPlaced, Value: []byte("nope")}, now)
	require.Error(t, err)
}

func TestParseRange(t *testing.T) {
	from, to, err := parseRange("", "", now)
	require.NoError(t, err)
	require.Equal(t, "2026-03-12", from.Format(time.DateOnly))
	require.Equal(t, "2026-04-10", to.Format(time.DateOnly))

	from, to, err = parseRange("2026-01-01", "2026-01-31", now)
	require.NoError(t, err)
	require.Equal(t, day(2026, 1, 1), from)
	require.Equal(t, day(2026, 1, 31), to)

	for _, tc := range [][2]string{
		{"2026-02-01", "2026-01-01"},
		{"2025-01-01", "2026-01-02"},
		{"01/02/2026", ""},
		{"", "tomorrow"},
	} {
		_, _, err := parseRange(tc[0], tc[1], now)
		require.Error(t, err, "from=%q to=%q", tc[0], tc[1])
	}
}

func TestSum(t *testing.T) {
	got := sum([]Day{
		{Day: "2026-04-01", Booked: 2, PaidCents: 100},
		{Day: "2026-04-02", Booked: 1, Cancelled: 1, PaidCents: 50, NotificationsSent: 3},
	})
	require.Equal(t, Day{Booked: 3, Cancelled: 1, PaidCents: 150, NotificationsSent: 3}, got)
}
