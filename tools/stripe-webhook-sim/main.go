// Command stripe-webhook-sim signs a checkout session event with the local
// webhook secret and posts it through the gateway, so payment flows can be
// exercised without the Stripe CLI.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/md-rashed-zaman/bizdash/libs/config"
)

func main() {
	_ = config.LoadDotEnv()
	var (
		baseURL   = flag.String("base-url", config.String("BASE_URL", "http://localhost:8080"), "gateway base url")
		evtType   = flag.String("type", config.String("STRIPE_EVENT_TYPE", string(stripe.EventTypeCheckoutSessionCompleted)), "checkout.session.* event type")
		sessionID = flag.String("session-id", config.String("SESSION_ID", ""), "checkout session id (cs_...)")
		tenant    = flag.String("tenant-id", config.String("TENANT_ID", ""), "tenant_id metadata")
		kind      = flag.String("kind", config.String("KIND", "deposit"), "deposit, invoice or order")
		refID     = flag.String("id", config.String("REFERENCE_ID", ""), "id of the appointment, invoice or order")
		unpaid    = flag.Bool("unpaid", false, "send payment_status=unpaid (delayed payment methods)")
		secret    = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*sessionID) == "" {
		fatal("SESSION_ID is required")
	}

	now := time.Now().UTC()
	paymentStatus := stripe.CheckoutSessionPaymentStatusPaid
	if *unpaid {
		paymentStatus = stripe.CheckoutSessionPaymentStatusUnpaid
	}
	payload, err := buildEventJSON(fmt.Sprintf("evt_sim_%d", now.UnixNano()), *evtType, now, checkoutSession{
		ID:            *sessionID,
		Object:        "checkout.session",
		PaymentStatus: string(paymentStatus),
		Metadata:      map[string]string{"tenant_id": *tenant, "kind": *kind, "id": *refID},
	})
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/billing/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

type checkoutSession struct {
	ID            string            `json:"id"`
	Object        string            `json:"object"`
	PaymentStatus string            `json:"payment_status"`
	Status        string            `json:"status,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

func buildEventJSON(eventID, eventType string, t time.Time, cs checkoutSession) ([]byte, error) {
	switch stripe.EventType(eventType) {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		cs.Status = "complete"
	case stripe.EventTypeCheckoutSessionExpired:
		cs.Status = "expired"
		cs.PaymentStatus = string(stripe.CheckoutSessionPaymentStatusUnpaid)
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": cs},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
