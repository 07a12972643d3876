package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/events"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Reference is the thing a checkout pays for, as billing sees it.
type Reference struct {
	Kind          string
	ID            string
	TenantID      string
	Label         string
	CustomerEmail string
	Status        string
	AmountCents   int64
	Currency      string
}

var referenceQueries = map[string]string{
	events.KindDeposit: `
		SELECT id::text, user_id::text, client_name, COALESCE(client_email, ''), status, deposit_cents, ''
		FROM appointments
		WHERE id = $1 AND user_id = $2`,
	events.KindInvoice: `
		SELECT i.id::text, i.user_id::text, 'Invoice ' || i.number, COALESCE(c.email, ''), i.status, i.total_cents, COALESCE(i.currency, '')
		FROM invoices i
		LEFT JOIN clients c ON c.id = i.client_id AND c.user_id = i.user_id
		WHERE i.id = $1 AND i.user_id = $2 AND i.deleted_at IS NULL`,
	events.KindOrder: `
		SELECT id::text, user_id::text, 'Order for ' || customer_name, COALESCE(customer_email, ''), status, total_cents, ''
		FROM orders
		WHERE id = $1 AND user_id = $2`,
}

// LoadReference locks the referenced row so two checkouts for it serialize.
func (r *Repository) LoadReference(ctx context.Context, q db.Querier, tenantID, kind, id string) (Reference, error) {
	query, ok := referenceQueries[kind]
	if !ok {
		return Reference{}, apperr.Badf("unsupported kind %q", kind)
	}
	ref := Reference{Kind: kind}
	err := q.QueryRow(ctx, query+" FOR UPDATE", id, tenantID).Scan(
		&ref.ID, &ref.TenantID, &ref.Label, &ref.CustomerEmail, &ref.Status, &ref.AmountCents, &ref.Currency)
	if err != nil {
		return Reference{}, apperr.FromDB(err, kind)
	}
	return ref, nil
}

const (
	SessionOpen     = "open"
	SessionPaid     = "paid"
	SessionExpired  = "expired"
	SessionCanceled = "canceled"
)

type Session struct {
	StripeSessionID string
	TenantID        string
	Kind            string
	ReferenceID     string
	AmountCents     int64
	Currency        string
	Status          string
	URL             string
	ReturnToken     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
	ExpiredAt       *time.Time
	CanceledAt      *time.Time
}

const sessionColumns = `stripe_session_id, user_id::text, kind, reference_id::text, amount_cents, currency, status,
	COALESCE(url, ''), COALESCE(return_token, ''), created_at, updated_at, paid_at, expired_at, canceled_at`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.StripeSessionID, &s.TenantID, &s.Kind, &s.ReferenceID, &s.AmountCents, &s.Currency, &s.Status,
		&s.URL, &s.ReturnToken, &s.CreatedAt, &s.UpdatedAt, &s.PaidAt, &s.ExpiredAt, &s.CanceledAt)
	return s, err
}

func (r *Repository) InsertSession(ctx context.Context, q db.Querier, s Session) error {
	_, err := q.Exec(ctx, `
		INSERT INTO payment_sessions
			(stripe_session_id, user_id, kind, reference_id, amount_cents, currency, status, url, return_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''))
	`, s.StripeSessionID, s.TenantID, s.Kind, s.ReferenceID, s.AmountCents, s.Currency, s.Status, s.URL, s.ReturnToken)
	return apperr.FromDB(err, "payment session")
}

// OpenSessionFor returns a still-open session for the same reference and
// amount created after since, so repeated clicks reuse one Stripe session.
func (r *Repository) OpenSessionFor(ctx context.Context, q db.Querier, tenantID, kind, referenceID string, amount int64, since time.Time) (Session, bool, error) {
	s, err := scanSession(q.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM payment_sessions
		WHERE user_id = $1 AND kind = $2 AND reference_id = $3 AND amount_cents = $4
			AND status = 'open' AND created_at > $5
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID, kind, referenceID, amount, since))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *Repository) GetSession(ctx context.Context, q db.Querier, stripeSessionID string, forUpdate bool) (Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE stripe_session_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	s, err := scanSession(q.QueryRow(ctx, query, stripeSessionID))
	return s, apperr.FromDB(err, "checkout session")
}

func (r *Repository) MarkSessionPaid(ctx context.Context, q db.Querier, stripeSessionID string, paidAt time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE payment_sessions
		SET status = 'paid', paid_at = $2, updated_at = now()
		WHERE stripe_session_id = $1
	`, stripeSessionID, paidAt)
	return err
}

// MarkSessionExpired never downgrades a paid session.
func (r *Repository) MarkSessionExpired(ctx context.Context, q db.Querier, stripeSessionID string, expiredAt time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE payment_sessions
		SET status = 'expired', expired_at = $2, updated_at = now()
		WHERE stripe_session_id = $1 AND status IN ('open', 'canceled')
	`, stripeSessionID, expiredAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AckReturn records that the customer came back from Stripe. A cancel only
// sticks while the session is still open; the webhook decides payment.
func (r *Repository) AckReturn(ctx context.Context, q db.Querier, stripeSessionID, token, result string, seenAt time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE payment_sessions
		SET return_seen_at = $4,
			status = CASE WHEN $3 = 'cancel' AND status = 'open' THEN 'canceled' ELSE status END,
			canceled_at = CASE WHEN $3 = 'cancel' AND status = 'open' THEN COALESCE(canceled_at, $4) ELSE canceled_at END,
			updated_at = now()
		WHERE stripe_session_id = $1 AND return_token = $2
	`, stripeSessionID, token, result, seenAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// StaleOpenSessions lists sessions still open after olderThan. The
// reconciler asks Stripe about them in case a webhook was lost.
func (r *Repository) StaleOpenSessions(ctx context.Context, q db.Querier, olderThan time.Time, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM payment_sessions
		WHERE status IN ('open', 'canceled') AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Session, error) {
		return scanSession(row)
	})
}

// MarkInvoicePaid settles an invoice. Billing owns this transition; deposits
// and orders are settled by booking from the payment event.
func (r *Repository) MarkInvoicePaid(ctx context.Context, q db.Querier, tenantID, invoiceID string, paidAt time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE invoices
		SET status = 'paid', paid_at = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status NOT IN ('paid', 'void')
	`, invoiceID, tenantID, paidAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

// InsertProviderEvent returns ErrDuplicateProviderEvent for a replayed event.
func (r *Repository) InsertProviderEvent(ctx context.Context, q db.Querier, evt ProviderEvent) error {
	tag, err := q.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, string(evt.Payload))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

type AuditEvent struct {
	EventType string
	ActorType string
	ActorID   string
	TenantID  string
	Metadata  map[string]any
}

func (r *Repository) InsertAuditEvent(ctx context.Context, q db.Querier, evt AuditEvent) error {
	if evt.Metadata == nil {
		evt.Metadata = map[string]any{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO audit_events (event_type, actor_type, actor_id, user_id, metadata)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, '')::uuid, $5)
	`, evt.EventType, evt.ActorType, evt.ActorID, evt.TenantID, evt.Metadata)
	return err
}
