package portal

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
)

type Client struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Notes          string `json:"notes"`
	accessCodeHash string
}

type SessionRow struct {
	ID        string     `json:"id"`
	ClientID  string     `json:"client_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	tokenHash string
}

type Appointment struct {
	ID        string    `json:"id"`
	ServiceID string    `json:"service_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	Total     int64     `json:"total_cents"`
}

type Invoice struct {
	ID         string     `json:"id"`
	Number     string     `json:"number"`
	Status     string     `json:"status"`
	TotalCents int64      `json:"total_cents"`
	Currency   string     `json:"currency"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

const clientColumns = `id::text, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(notes, ''), COALESCE(access_code_hash, '')`

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Notes, &c.accessCodeHash)
	return c, err
}

func (r *Repository) ClientByEmail(ctx context.Context, q db.Querier, tenantID, email string) (Client, error) {
	c, err := scanClient(q.QueryRow(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE user_id = $1 AND lower(email) = lower($2) AND deleted_at IS NULL
		ORDER BY created_at
		LIMIT 1
	`, tenantID, strings.TrimSpace(email)))
	return c, apperr.FromDB(err, "client")
}

func (r *Repository) Client(ctx context.Context, q db.Querier, tenantID, clientID string) (Client, error) {
	c, err := scanClient(q.QueryRow(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL
	`, tenantID, clientID))
	return c, apperr.FromDB(err, "client")
}

func (r *Repository) SetAccessCode(ctx context.Context, q db.Querier, tenantID, clientID, hash string) error {
	tag, err := q.Exec(ctx, `
		UPDATE clients SET access_code_hash = $3, updated_at = now()
		WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL
	`, tenantID, clientID, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("client not found")
	}
	return nil
}

type ProfileUpdate struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=200"`
	Phone *string `json:"phone" validate:"omitempty,max=40"`
	Notes *string `json:"notes" validate:"omitempty,max=5000"`
}

func (r *Repository) UpdateProfile(ctx context.Context, q db.Querier, tenantID, clientID string, u ProfileUpdate) (Client, error) {
	c, err := scanClient(q.QueryRow(ctx, `
		UPDATE clients
		SET name = COALESCE($3, name),
			phone = COALESCE($4, phone),
			notes = COALESCE($5, notes),
			updated_at = now()
		WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING `+clientColumns,
		tenantID, clientID, u.Name, u.Phone, u.Notes))
	return c, apperr.FromDB(err, "client")
}

func (r *Repository) CreateSession(ctx context.Context, q db.Querier, tenantID, clientID, tokenHash string, expiresAt time.Time) (string, error) {
	var id string
	err := q.QueryRow(ctx, `
		INSERT INTO portal_sessions (user_id, client_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text
	`, tenantID, clientID, tokenHash, expiresAt).Scan(&id)
	return id, err
}

func (r *Repository) Sessions(ctx context.Context, q db.Querier, tenantID, clientID string) ([]SessionRow, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, client_id::text, created_at, expires_at, revoked_at, token_hash
		FROM portal_sessions
		WHERE user_id = $1 AND client_id = $2
		ORDER BY created_at DESC
		LIMIT 100
	`, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SessionRow, error) {
		var s SessionRow
		err := row.Scan(&s.ID, &s.ClientID, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt, &s.tokenHash)
		return s, err
	})
}

// Revoke marks live sessions revoked and returns their token hashes so the
// caller can drop them from Redis. An empty sessionID revokes every session
// of the client.
func (r *Repository) Revoke(ctx context.Context, q db.Querier, tenantID, clientID, sessionID string) ([]string, error) {
	rows, err := q.Query(ctx, `
		UPDATE portal_sessions
		SET revoked_at = now()
		WHERE user_id = $1 AND client_id = $2
			AND ($3 = '' OR id = NULLIF($3, '')::uuid)
			AND revoked_at IS NULL
		RETURNING token_hash
	`, tenantID, clientID, sessionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *Repository) RevokeByHash(ctx context.Context, q db.Querier, tenantID, tokenHash string) error {
	_, err := q.Exec(ctx, `
		UPDATE portal_sessions SET revoked_at = now()
		WHERE user_id = $1 AND token_hash = $2 AND revoked_at IS NULL
	`, tenantID, tokenHash)
	return err
}

// Appointments matches on client_id, and on email for bookings made before
// the client row existed.
func (r *Repository) Appointments(ctx context.Context, q db.Querier, tenantID string, c Client) ([]Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, service_id::text, start_time, end_time, status, total_cents
		FROM appointments
		WHERE user_id = $1
			AND (client_id = $2 OR ($3 <> '' AND lower(client_email) = lower($3)))
		ORDER BY start_time DESC
		LIMIT 200
	`, tenantID, c.ID, c.Email)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Appointment, error) {
		var a Appointment
		err := row.Scan(&a.ID, &a.ServiceID, &a.StartTime, &a.EndTime, &a.Status, &a.Total)
		return a, err
	})
}

// Invoices leaves drafts out; the client only sees what was sent.
func (r *Repository) Invoices(ctx context.Context, q db.Querier, tenantID, clientID string) ([]Invoice, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, number, status, total_cents, COALESCE(currency, 'usd'), due_date, created_at
		FROM invoices
		WHERE user_id = $1 AND client_id = $2 AND status <> 'draft' AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 200
	`, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Invoice, error) {
		var inv Invoice
		err := row.Scan(&inv.ID, &inv.Number, &inv.Status, &inv.TotalCents, &inv.Currency, &inv.DueDate, &inv.CreatedAt)
		return inv, err
	})
}
