package outbox

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/md-rashed-zaman/bizdash/libs/kafkax"
)

func TestToMessageCarriesMetaAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	rec := Record{
		ID:            7,
		EventID:       "evt-1",
		AggregateType: "appointment",
		AggregateID:   "appt-1",
		EventType:     "booking.appointment.booked.v1",
		Payload:       []byte(`{"ok":true}`),
		Traceparent:   "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		CreatedAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	msg := ToMessage(context.Background(), rec)
	if msg.Topic != rec.EventType || string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected topic/key %q %q", msg.Topic, msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != rec.EventType || meta.AggregateType != "appointment" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if !meta.OccurredAt.Equal(rec.CreatedAt) {
		t.Fatalf("message time %v, want %v", meta.OccurredAt, rec.CreatedAt)
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != rec.Traceparent {
		t.Fatalf("traceparent not propagated: %q", got)
	}
}

func TestNewEventMarshalsPayload(t *testing.T) {
	evt, err := NewEvent("order", "o-1", "booking.order.placed.v1", map[string]int{"total_cents": 1200})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if string(evt.Payload) != `{"total_cents":1200}` {
		t.Fatalf("unexpected payload %s", evt.Payload)
	}
}
