package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/payments"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/storage"
)

const maxWebhookBytes = 1 << 20

// verify checks the Stripe-Signature header and parses the event. API
// version mismatches are tolerated; only the session object is read.
func (h *Handler) verify(body []byte, sigHeader string) (stripe.Event, error) {
	if h.cfg.WebhookSecret == "" {
		return stripe.Event{}, apperr.Unavailable("stripe webhook not configured")
	}
	if strings.TrimSpace(sigHeader) == "" {
		return stripe.Event{}, apperr.BadRequest("missing Stripe-Signature header")
	}
	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                h.cfg.WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, apperr.BadRequest("invalid signature")
	}
	return evt, nil
}

// StripeWebhook has no JWT; the signature is the authentication. Any error
// response makes Stripe retry, so events that cannot be applied are logged
// and acknowledged.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		return apperr.BadRequest("failed to read request body")
	}
	evt, err := h.verify(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		return err
	}

	occurredAt := time.Unix(evt.Created, 0).UTC()
	evtType := string(evt.Type)
	log := h.logger.With("provider_event_id", evt.ID, "event_type", evtType)
	log.Info("billing provider event received", "occurred_at", occurredAt.Format(time.RFC3339))

	status := "ok"
	err = h.pool.WithTx(r.Context(), func(tx pgx.Tx) error {
		err := h.repo.InsertProviderEvent(r.Context(), tx, storage.ProviderEvent{
			Provider:        "stripe",
			ProviderEventID: evt.ID,
			EventType:       evtType,
			Payload:         body,
		})
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			status = "duplicate"
			return nil
		}
		if err != nil {
			return err
		}

		var cs stripe.CheckoutSession
		switch evt.Type {
		case stripe.EventTypeCheckoutSessionCompleted,
			stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
			stripe.EventTypeCheckoutSessionExpired,
			stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
			if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
				log.Error("invalid checkout session payload", "err", err)
				status = "ignored"
				return nil
			}
		default:
			status = "ignored"
			return nil
		}

		switch evt.Type {
		case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
			if !payments.IsPaid(&cs) {
				log.Info("checkout completed, payment pending", "session_id", cs.ID)
				status = "pending"
				return nil
			}
			applied, err := h.settle.Paid(r.Context(), tx, cs.ID, occurredAt, "stripe")
			if err != nil {
				return err
			}
			if !applied {
				status = "ignored"
			}
		case stripe.EventTypeCheckoutSessionExpired:
			if _, err := h.settle.Expired(r.Context(), tx, cs.ID, occurredAt); err != nil {
				return err
			}
		case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
			log.Warn("delayed payment failed", "session_id", cs.ID, "kind", cs.Metadata["kind"])
		}
		return h.repo.InsertAuditEvent(r.Context(), tx, storage.AuditEvent{
			EventType: "billing.provider.stripe.webhook",
			ActorType: "provider",
			TenantID:  cs.Metadata["tenant_id"],
			Metadata: map[string]any{
				"provider_event_id": evt.ID,
				"event_type":        evtType,
				"session_id":        cs.ID,
				"occurred_at":       occurredAt.Format(time.RFC3339),
			},
		})
	})
	if err != nil {
		return err
	}
	if status == "duplicate" {
		log.Info("billing provider event duplicate ignored")
	}
	httpx.WriteData(w, http.StatusOK, map[string]string{"status": status})
	return nil
}
