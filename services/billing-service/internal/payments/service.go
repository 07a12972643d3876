package payments

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/events"
	"github.com/md-rashed-zaman/bizdash/libs/outbox"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/storage"
)

// Sessions is the part of the Stripe checkout session client billing uses.
// *session.Client from stripe-go satisfies it.
type Sessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Settlement applies session outcomes. The webhook and the reconciler share
// it so both paths produce the same rows and events.
type Settlement struct {
	repo   *storage.Repository
	outbox *outbox.Repository
	logger *slog.Logger
}

func NewSettlement(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger) *Settlement {
	return &Settlement{repo: repo, outbox: outboxRepo, logger: logger}
}

// Paid marks the session paid, settles invoices in place and announces the
// payment. It reports false when there was nothing to do (unknown or
// already paid session).
func (s *Settlement) Paid(ctx context.Context, tx pgx.Tx, sessionID string, paidAt time.Time, source string) (bool, error) {
	sess, err := s.repo.GetSession(ctx, tx, sessionID, true)
	if err != nil {
		if apperr.StatusOf(err) == http.StatusNotFound {
			s.logger.Warn("payment for unknown checkout session", "session_id", sessionID, "source", source)
			return false, nil
		}
		return false, err
	}
	if sess.Status == storage.SessionPaid {
		return false, nil
	}
	if err := db.BindTenant(ctx, tx, sess.TenantID); err != nil {
		return false, err
	}
	if err := s.repo.MarkSessionPaid(ctx, tx, sess.StripeSessionID, paidAt); err != nil {
		return false, err
	}
	if sess.Kind == events.KindInvoice {
		ok, err := s.repo.MarkInvoicePaid(ctx, tx, sess.TenantID, sess.ReferenceID, paidAt)
		if err != nil {
			return false, err
		}
		if !ok {
			s.logger.Warn("invoice was not payable when payment arrived", "invoice_id", sess.ReferenceID)
		}
	}
	if err := s.repo.InsertAuditEvent(ctx, tx, storage.AuditEvent{
		EventType: "billing.payment.succeeded",
		ActorType: source,
		TenantID:  sess.TenantID,
		Metadata: map[string]any{
			"session_id":   sess.StripeSessionID,
			"kind":         sess.Kind,
			"reference_id": sess.ReferenceID,
			"amount_cents": sess.AmountCents,
		},
	}); err != nil {
		return false, err
	}
	err = s.outbox.Emit(ctx, tx, "payment", sess.ReferenceID, events.PaymentSucceeded, events.PaymentSucceededPayload{
		TenantID:    sess.TenantID,
		Kind:        sess.Kind,
		ReferenceID: sess.ReferenceID,
		SessionID:   sess.StripeSessionID,
		AmountCents: sess.AmountCents,
		Currency:    sess.Currency,
		PaidAt:      paidAt.UTC(),
	})
	return err == nil, err
}

// Expired closes an unpaid session.
func (s *Settlement) Expired(ctx context.Context, tx pgx.Tx, sessionID string, at time.Time) (bool, error) {
	return s.repo.MarkSessionExpired(ctx, tx, sessionID, at)
}

// IsPaid reports whether Stripe considers the session settled. Completed
// sessions paid by delayed methods stay unpaid until a later event.
func IsPaid(cs *stripe.CheckoutSession) bool {
	if cs == nil {
		return false
	}
	return cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}
