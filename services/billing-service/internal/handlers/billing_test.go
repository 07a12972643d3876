package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/events"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/storage"
)

const (
	tenant = "8d7e2f0a-5b1c-4c1e-9a35-0c6f4b7d2e11"
	secret = "whsec_test_secret"
)

func newTestHandler(cfg Config) *http.ServeMux {
	h := New(nil, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func serve(mux *http.ServeMux, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.False(t, body.Success)
	return body.Error
}

func TestCheckoutRejectsBeforeTouchingStorage(t *testing.T) {
	mux := newTestHandler(Config{SuccessURL: "https://shop.test/ok", CancelURL: "https://shop.test/cancel"})
	owner := map[string]string{httpx.TenantHeader: tenant}

	cases := []struct {
		name    string
		path    string
		body    string
		headers map[string]string
		status  int
	}{
		{"owner without tenant", "/api/v1/billing/checkout", `{"kind":"invoice","id":"` + tenant + `"}`, nil, http.StatusUnauthorized},
		{"unknown kind", "/api/v1/billing/checkout", `{"kind":"tip","id":"` + tenant + `"}`, owner, http.StatusBadRequest},
		{"bad id", "/api/v1/billing/checkout", `{"kind":"invoice","id":"nope"}`, owner, http.StatusBadRequest},
		{"stripe not configured", "/api/v1/billing/checkout", `{"kind":"invoice","id":"` + tenant + `"}`, owner, http.StatusServiceUnavailable},
		{"public invoice", "/api/v1/public/checkout", `{"tenant_id":"` + tenant + `","kind":"invoice","id":"` + tenant + `"}`, nil, http.StatusBadRequest},
		{"public missing tenant", "/api/v1/public/checkout", `{"kind":"order","id":"` + tenant + `"}`, nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(mux, http.MethodPost, tc.path, tc.body, tc.headers)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			errorCode(t, rr)
		})
	}
}

func TestCheckoutNeedsReturnURLs(t *testing.T) {
	mux := newTestHandler(Config{})
	rr := serve(mux, http.MethodPost, "/api/v1/billing/checkout",
		`{"kind":"deposit","id":"`+tenant+`"}`, map[string]string{httpx.TenantHeader: tenant})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, errorCode(t, rr), "success_url")
}

func TestSessionStatusRequiresID(t *testing.T) {
	rr := serve(newTestHandler(Config{}), http.MethodGet, "/api/v1/billing/checkout/session", "", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAckReturnValidates(t *testing.T) {
	mux := newTestHandler(Config{})
	rr := serve(mux, http.MethodPost, "/api/v1/billing/checkout/session/ack", `{"session_id":"cs_1","state":"s","result":"maybe"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = serve(mux, http.MethodPost, "/api/v1/billing/checkout/session/ack", `{"session_id":"cs_1","result":"cancel"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckoutParams(t *testing.T) {
	ref := storage.Reference{
		Kind:          events.KindDeposit,
		ID:            "a1",
		TenantID:      tenant,
		Label:         "Ada Lovelace",
		CustomerEmail: "ada@example.com",
	}
	p := checkoutParams(context.Background(), ref, 2500, "usd", "https://shop.test/done?x=1", "https://shop.test/cancel", "tok")

	require.Equal(t, string(stripe.CheckoutSessionModePayment), *p.Mode)
	require.Equal(t, "https://shop.test/done?x=1&state=tok&session_id={CHECKOUT_SESSION_ID}", *p.SuccessURL)
	require.Equal(t, "https://shop.test/cancel?state=tok&session_id={CHECKOUT_SESSION_ID}", *p.CancelURL)
	require.Len(t, p.LineItems, 1)
	require.Equal(t, int64(2500), *p.LineItems[0].PriceData.UnitAmount)
	require.Equal(t, "usd", *p.LineItems[0].PriceData.Currency)
	require.Equal(t, "Deposit: Ada Lovelace", *p.LineItems[0].PriceData.ProductData.Name)
	require.Equal(t, map[string]string{"tenant_id": tenant, "kind": "deposit", "id": "a1"}, p.Metadata)
	require.Equal(t, p.Metadata, p.PaymentIntentData.Metadata)
	require.Equal(t, "ada@example.com", *p.CustomerEmail)
}

func TestCheckoutParamsFallsBackToKindName(t *testing.T) {
	p := checkoutParams(context.Background(), storage.Reference{Kind: events.KindOrder, ID: "o1"}, 900, "eur", "https://a", "https://b", "t")
	require.Equal(t, "Order", *p.LineItems[0].PriceData.ProductData.Name)
	require.Nil(t, p.CustomerEmail)
}

func signedEvent(t *testing.T, payload []byte, at time.Time) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
		Scheme:    "v1",
	})
	return signed.Header
}

func TestVerify(t *testing.T) {
	h := New(nil, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{WebhookSecret: secret})
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","created":1700000000,"api_version":"2020-08-27","data":{"object":{"id":"cs_1","object":"checkout.session"}}}`)

	evt, err := h.verify(payload, signedEvent(t, payload, time.Now()))
	require.NoError(t, err)
	require.Equal(t, "evt_1", evt.ID)
	require.Equal(t, stripe.EventTypeCheckoutSessionCompleted, evt.Type)

	_, err = h.verify(payload, "")
	require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	_, err = h.verify(payload, signedEvent(t, payload, time.Now().Add(-time.Hour)))
	require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	tampered := append([]byte{}, payload...)
	tampered[10] = 'X'
	_, err = h.verify(tampered, signedEvent(t, payload, time.Now()))
	require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
}

func TestWebhookNotConfigured(t *testing.T) {
	rr := serve(newTestHandler(Config{}), http.MethodPost, "/api/v1/billing/webhooks/stripe", `{}`,
		map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestWebhookBadSignature(t *testing.T) {
	rr := serve(newTestHandler(Config{WebhookSecret: secret}), http.MethodPost, "/api/v1/billing/webhooks/stripe", `{}`,
		map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
