// Package consumer keeps the dashboard's client list in step with
// bookings made elsewhere.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/events"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/crud"
)

// Contact is the customer identity carried by a booking event.
type Contact struct {
	Name  string
	Email string
	Phone string
}

func (c Contact) normalized() Contact {
	return Contact{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
}

// Usable reports whether c can identify a client: a name plus an email or
// phone.
func (c Contact) Usable() bool {
	c = c.normalized()
	return c.Name != "" && (c.Email != "" || c.Phone != "")
}

// UpsertClient finds the client by email, or by phone when there is no
// email, and creates one when none matches. Blank email, phone and name on
// an existing client are filled in; set values are never overwritten.
func UpsertClient(ctx context.Context, tx pgx.Tx, tenantID string, c Contact) (crud.Row, bool, error) {
	c = c.normalized()
	var raw []byte
	err := tx.QueryRow(ctx, `
		UPDATE clients AS t
		SET email = COALESCE(NULLIF(t.email, ''), NULLIF($2, '')),
			phone = COALESCE(NULLIF(t.phone, ''), NULLIF($3, '')),
			name = COALESCE(NULLIF(t.name, ''), $4),
			updated_at = now()
		WHERE t.id = (
			SELECT id FROM clients
			WHERE user_id = $1 AND deleted_at IS NULL
				AND (($2 <> '' AND lower(email) = $2) OR ($2 = '' AND $3 <> '' AND phone = $3))
			ORDER BY created_at
			LIMIT 1
		)
		RETURNING to_jsonb(t) - 'access_code_hash'
	`, tenantID, c.Email, c.Phone, c.Name).Scan(&raw)
	created := false
	if errors.Is(err, pgx.ErrNoRows) {
		created = true
		err = tx.QueryRow(ctx, `
			INSERT INTO clients AS t (user_id, name, email, phone)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
			RETURNING to_jsonb(t) - 'access_code_hash'
		`, tenantID, c.Name, c.Email, c.Phone).Scan(&raw)
	}
	if err != nil {
		return nil, false, err
	}
	var row crud.Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, false, err
	}
	return row, created, nil
}

// LinkAppointment points an unlinked appointment at the client.
func LinkAppointment(ctx context.Context, tx pgx.Tx, tenantID, appointmentID, clientID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments SET client_id = $3
		WHERE user_id = $1 AND id = $2 AND client_id IS NULL
	`, tenantID, appointmentID, clientID)
	return err
}

// Bookings upserts clients from booked appointments and placed orders.
type Bookings struct {
	pool    *db.Pool
	indexer crud.Indexer
	logger  *slog.Logger
}

func NewBookings(pool *db.Pool, indexer crud.Indexer, logger *slog.Logger) *Bookings {
	return &Bookings{pool: pool, indexer: indexer, logger: logger}
}

// Handle is a kafkax.Handler.
func (b *Bookings) Handle(ctx context.Context, msg kafka.Message) error {
	var tenantID, appointmentID string
	var contact Contact
	switch msg.Topic {
	case events.AppointmentBooked:
		var p events.AppointmentBookedPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			b.logger.Error("invalid booked event", "err", err)
			return nil
		}
		tenantID, appointmentID = p.TenantID, p.AppointmentID
		contact = Contact{Name: p.ClientName, Email: p.ClientEmail, Phone: p.ClientPhone}
	case events.OrderPlaced:
		var p events.OrderPlacedPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			b.logger.Error("invalid order event", "err", err)
			return nil
		}
		tenantID = p.TenantID
		contact = Contact{Name: p.CustomerName, Email: p.CustomerEmail, Phone: p.CustomerPhone}
	default:
		return nil
	}
	if tenantID == "" || !contact.Usable() {
		return nil
	}

	var row crud.Row
	var created bool
	err := b.pool.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		row, created, err = UpsertClient(ctx, tx, tenantID, contact)
		if err != nil {
			return err
		}
		if appointmentID == "" {
			return nil
		}
		id, _ := row["id"].(string)
		return LinkAppointment(ctx, tx, tenantID, appointmentID, id)
	})
	if err != nil {
		return err
	}
	if created {
		b.logger.Info("client created from booking", "tenant_id", tenantID, "client_id", row["id"])
	}
	if b.indexer != nil {
		if err := b.indexer.Index(ctx, tenantID, "clients", row); err != nil {
			b.logger.Warn("client index failed", "err", err)
		}
	}
	return nil
}
