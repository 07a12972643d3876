package consumer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/libs/events"
)

func TestContactUsable(t *testing.T) {
	require.True(t, Contact{Name: "Ada", Email: " ADA@example.com "}.Usable())
	require.True(t, Contact{Name: "Ada", Phone: "555"}.Usable())
	require.False(t, Contact{Name: "Ada"}.Usable())
	require.False(t, Contact{Name: "  ", Email: "a@b.co"}.Usable())

	n := Contact{Name: " Ada ", Email: " ADA@Example.com", Phone: " 555 "}.normalized()
	require.Equal(t, Contact{Name: "Ada", Email: "ada@example.com", Phone: "555"}, n)
}

// Events that cannot produce a client are acknowledged without touching
// the database, so a nil pool is never reached.
func TestHandleDropsUnusableEvents(t *testing.T) {
	b := NewBookings(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	for _, msg := range []kafka.Message{
		{Topic: events.AppointmentBooked, Value: []byte("{not json")},
		{Topic: events.AppointmentBooked, Value: []byte(`{"tenant_id":"t","client_name":"Ada"}`)},
		{Topic: events.OrderPlaced, Value: []byte(`{"customer_name":"Ada","customer_email":"a@b.co"}`)},
		{Topic: events.AppointmentCancelled, Value: []byte(`{}`)},
	} {
		require.NoError(t, b.Handle(ctx, msg), msg.Topic)
	}
}
