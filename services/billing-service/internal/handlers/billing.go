package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/events"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/payments"
	"github.com/md-rashed-zaman/bizdash/services/billing-service/internal/storage"
)

type Config struct {
	WebhookSecret    string
	WebhookTolerance time.Duration
	SuccessURL       string
	CancelURL        string
	Currency         string
	// SessionReuse is how long an open session is handed out again for the
	// same reference. Stripe expires checkout sessions after 24h.
	SessionReuse time.Duration
}

type Handler struct {
	pool     *db.Pool
	repo     *storage.Repository
	settle   *payments.Settlement
	sessions payments.Sessions
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// New builds the billing handler. sessions may be nil when Stripe is not
// configured; checkout then answers 503.
func New(pool *db.Pool, repo *storage.Repository, settle *payments.Settlement, sessions payments.Sessions, logger *slog.Logger, cfg Config) *Handler {
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = 5 * time.Minute
	}
	if cfg.SessionReuse <= 0 {
		cfg.SessionReuse = 23 * time.Hour
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	cfg.WebhookSecret = strings.TrimSpace(cfg.WebhookSecret)
	return &Handler{pool: pool, repo: repo, settle: settle, sessions: sessions, logger: logger, cfg: cfg, now: time.Now}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/v1/billing/checkout", httpx.Handle(h.logger, h.OwnerCheckout))
	mux.Handle("POST /api/v1/public/checkout", httpx.Handle(h.logger, h.PublicCheckout))
	mux.Handle("GET /api/v1/billing/checkout/session", httpx.Handle(h.logger, h.SessionStatus))
	mux.Handle("POST /api/v1/billing/checkout/session/ack", httpx.Handle(h.logger, h.AckReturn))
	mux.Handle("POST /api/v1/billing/webhooks/stripe", httpx.Handle(h.logger, h.StripeWebhook))
}

type checkoutRequest struct {
	TenantID   string `json:"tenant_id,omitempty"`
	Kind       string `json:"kind"`
	ID         string `json:"id"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

type checkoutResponse struct {
	SessionID   string `json:"session_id"`
	URL         string `json:"url"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Reused      bool   `json:"reused"`
}

// OwnerCheckout creates a payment link for any kind on behalf of the tenant.
func (h *Handler) OwnerCheckout(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	return h.checkout(w, r, tenantID, req)
}

// PublicCheckout lets a customer pay the deposit for their booking or their
// order. Invoices are paid through links the owner sends.
func (h *Handler) PublicCheckout(w http.ResponseWriter, r *http.Request) error {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	tenantID, err := httpx.ParseUUID(req.TenantID, "tenant_id")
	if err != nil {
		return err
	}
	if req.Kind != events.KindDeposit && req.Kind != events.KindOrder {
		return apperr.BadRequest("kind must be deposit or order")
	}
	return h.checkout(w, r, tenantID, req)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request, tenantID string, req checkoutRequest) error {
	req.Kind = strings.ToLower(strings.TrimSpace(req.Kind))
	if !payments.ValidKind(req.Kind) {
		return apperr.BadRequest("kind must be deposit, invoice or order")
	}
	refID, err := httpx.ParseUUID(req.ID, "id")
	if err != nil {
		return err
	}
	successURL := firstNonEmpty(req.SuccessURL, h.cfg.SuccessURL)
	cancelURL := firstNonEmpty(req.CancelURL, h.cfg.CancelURL)
	if successURL == "" || cancelURL == "" {
		return apperr.BadRequest("success_url and cancel_url are required")
	}
	if h.sessions == nil {
		return apperr.Unavailable("payments are not configured")
	}

	var ref storage.Reference
	var amount int64
	var existing storage.Session
	var reuse bool
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		var err error
		ref, err = h.repo.LoadReference(r.Context(), tx, tenantID, req.Kind, refID)
		if err != nil {
			return err
		}
		if amount, err = payments.Owed(ref); err != nil {
			return err
		}
		existing, reuse, err = h.repo.OpenSessionFor(r.Context(), tx, tenantID, ref.Kind, ref.ID, amount, h.now().Add(-h.cfg.SessionReuse))
		return err
	})
	if err != nil {
		return err
	}
	if reuse && existing.URL != "" {
		httpx.WriteData(w, http.StatusOK, checkoutResponse{
			SessionID: existing.StripeSessionID, URL: existing.URL,
			AmountCents: existing.AmountCents, Currency: existing.Currency, Reused: true,
		})
		return nil
	}

	currency := payments.Currency(ref, h.cfg.Currency)
	token := newReturnToken()
	params := checkoutParams(r.Context(), ref, amount, currency, successURL, cancelURL, token)
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		params.IdempotencyKey = stripe.String(key)
	}
	cs, err := h.sessions.New(params)
	if err != nil {
		h.logger.Error("stripe checkout session create failed", "err", err, "kind", ref.Kind, "reference_id", ref.ID)
		return apperr.New(http.StatusBadGateway, "provider_error", "failed to create checkout session")
	}

	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		if err := h.repo.InsertSession(r.Context(), tx, storage.Session{
			StripeSessionID: cs.ID,
			TenantID:        tenantID,
			Kind:            ref.Kind,
			ReferenceID:     ref.ID,
			AmountCents:     amount,
			Currency:        currency,
			Status:          storage.SessionOpen,
			URL:             cs.URL,
			ReturnToken:     token,
		}); err != nil {
			return err
		}
		return h.repo.InsertAuditEvent(r.Context(), tx, storage.AuditEvent{
			EventType: "billing.checkout.created",
			ActorType: actorType(r),
			ActorID:   r.Header.Get(httpx.UserHeader),
			TenantID:  tenantID,
			Metadata: map[string]any{
				"session_id":   cs.ID,
				"kind":         ref.Kind,
				"reference_id": ref.ID,
				"amount_cents": amount,
				"request_id":   httpx.RequestIDFromContext(r.Context()),
			},
		})
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusCreated, checkoutResponse{
		SessionID: cs.ID, URL: cs.URL, AmountCents: amount, Currency: currency,
	})
	return nil
}

// checkoutParams builds a one-line payment-mode session. Metadata is copied
// to the payment intent so it shows on the charge as well.
func checkoutParams(ctx context.Context, ref storage.Reference, amount int64, currency, successURL, cancelURL, token string) *stripe.CheckoutSessionParams {
	meta := map[string]string{
		"tenant_id": ref.TenantID,
		"kind":      ref.Kind,
		"id":        ref.ID,
	}
	name := strings.TrimSpace(ref.Label)
	if name == "" {
		name = strings.ToUpper(ref.Kind[:1]) + ref.Kind[1:]
	}
	if ref.Kind == events.KindDeposit {
		name = "Deposit: " + name
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withReturnParams(successURL, token)),
		CancelURL:         stripe.String(withReturnParams(cancelURL, token)),
		ClientReferenceID: stripe.String(ref.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: meta,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: meta,
		},
	}
	if ref.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(ref.CustomerEmail)
	}
	params.Context = ctx
	return params
}

type sessionStatus struct {
	SessionID   string     `json:"session_id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`
}

// SessionStatus is public: Stripe sends the customer back without a token.
// Only non-sensitive fields are returned.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) error {
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if id == "" {
		return apperr.BadRequest("session_id is required")
	}
	var s storage.Session
	err := h.pool.WithTx(r.Context(), func(tx pgx.Tx) error {
		var err error
		s, err = h.repo.GetSession(r.Context(), tx, id, false)
		return err
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, sessionStatus{
		SessionID: s.StripeSessionID, Kind: s.Kind, Status: s.Status,
		AmountCents: s.AmountCents, Currency: s.Currency, UpdatedAt: s.UpdatedAt,
		PaidAt: s.PaidAt, ExpiredAt: s.ExpiredAt, CanceledAt: s.CanceledAt,
	})
	return nil
}

type ackRequest struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Result    string `json:"result"`
}

// AckReturn is public but needs the per-session state token from the
// return URL.
func (h *Handler) AckReturn(w http.ResponseWriter, r *http.Request) error {
	var req ackRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.State = strings.TrimSpace(req.State)
	req.Result = strings.ToLower(strings.TrimSpace(req.Result))
	if req.SessionID == "" || req.State == "" {
		return apperr.BadRequest("session_id and state are required")
	}
	if req.Result != "success" && req.Result != "cancel" {
		return apperr.BadRequest("result must be success or cancel")
	}
	var ok bool
	err := h.pool.WithTx(r.Context(), func(tx pgx.Tx) error {
		var err error
		ok, err = h.repo.AckReturn(r.Context(), tx, req.SessionID, req.State, req.Result, h.now().UTC())
		return err
	})
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("checkout session not found")
	}
	httpx.WriteData(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func newReturnToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// withReturnParams appends the state token and Stripe's session id
// placeholder, which must stay unescaped for Stripe to fill it in.
func withReturnParams(rawURL, token string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "state=" + url.QueryEscape(token) + "&session_id={CHECKOUT_SESSION_ID}"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func actorType(r *http.Request) string {
	if role := strings.TrimSpace(r.Header.Get(httpx.RoleHeader)); role != "" {
		return role
	}
	return "customer"
}
