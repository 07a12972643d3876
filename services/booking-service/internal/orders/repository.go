package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
)

type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

const orderColumns = `id::text, user_id::text, customer_name, COALESCE(customer_email, ''), COALESCE(customer_phone, ''),
	fulfillment, COALESCE(delivery_address, ''), items, subtotal_cents, discount_cents, tax_cents, total_cents,
	COALESCE(coupon_code, ''), status, COALESCE(notes, ''), paid_at, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var items []byte
	err := row.Scan(&o.ID, &o.TenantID, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.Fulfillment, &o.DeliveryAddress, &items, &o.SubtotalCents, &o.DiscountCents, &o.TaxCents, &o.TotalCents,
		&o.CouponCode, &o.Status, &o.Notes, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return Order{}, err
		}
	}
	return o, nil
}

func (r *Repository) Create(ctx context.Context, tx pgx.Tx, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	return tx.QueryRow(ctx, `
		INSERT INTO orders
			(user_id, customer_name, customer_email, customer_phone, fulfillment, delivery_address, items,
			 subtotal_cents, discount_cents, tax_cents, total_cents, coupon_code, status, notes)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), $7,
			$8, $9, $10, $11, NULLIF($12, ''), $13, NULLIF($14, ''))
		RETURNING id::text, created_at, updated_at
	`, o.TenantID, o.CustomerName, o.CustomerEmail, o.CustomerPhone, o.Fulfillment, o.DeliveryAddress, items,
		o.SubtotalCents, o.DiscountCents, o.TaxCents, o.TotalCents, o.CouponCode, o.Status, o.Notes,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

func (r *Repository) Get(ctx context.Context, q db.Querier, tenantID, id string, forUpdate bool) (Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, id, tenantID))
	return o, apperr.FromDB(err, "order")
}

func (r *Repository) List(ctx context.Context, q db.Querier, tenantID, status string, limit int) ([]Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := q.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, status, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) {
		return scanOrder(row)
	})
}

// SetStatus writes the new status. paidAt is only stored when non-nil.
func (r *Repository) SetStatus(ctx context.Context, q db.Querier, tenantID, id, status string, paidAt *time.Time) (time.Time, error) {
	var updated time.Time
	err := q.QueryRow(ctx, `
		UPDATE orders
		SET status = $3, paid_at = COALESCE($4, paid_at), updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`, id, tenantID, status, paidAt).Scan(&updated)
	return updated, apperr.FromDB(err, "order")
}
