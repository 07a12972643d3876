package coupons

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
)

type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

const couponColumns = `id::text, code, type, value, COALESCE(free_item_id, ''), min_subtotal_cents,
	expires_at, max_uses, used_count, active, created_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var c Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.FreeItemID, &c.MinSubtotalCents,
		&c.ExpiresAt, &c.MaxUses, &c.UsedCount, &c.Active, &c.CreatedAt)
	return c, err
}

func (r *Repository) Create(ctx context.Context, q db.Querier, tenantID string, c Coupon) (Coupon, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO coupons (user_id, code, type, value, free_item_id, min_subtotal_cents, expires_at, max_uses, active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
		RETURNING `+couponColumns,
		tenantID, c.Code, c.Type, c.Value, c.FreeItemID, c.MinSubtotalCents, c.ExpiresAt, c.MaxUses, c.Active)
	out, err := scanCoupon(row)
	return out, apperr.FromDB(err, "coupon")
}

func (r *Repository) List(ctx context.Context, q db.Querier, tenantID string) ([]Coupon, error) {
	rows, err := q.Query(ctx, `SELECT `+couponColumns+` FROM coupons WHERE user_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Coupon, error) { return scanCoupon(row) })
}

// GetByCode locks the coupon row so concurrent redemptions serialise.
func (r *Repository) GetByCode(ctx context.Context, q db.Querier, tenantID, code string, forUpdate bool) (Coupon, error) {
	sql := `SELECT ` + couponColumns + ` FROM coupons WHERE user_id = $1 AND code = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	c, err := scanCoupon(q.QueryRow(ctx, sql, tenantID, NormalizeCode(code)))
	return c, apperr.FromDB(err, "coupon")
}

type Patch struct {
	Active    *bool      `json:"active"`
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   *int       `json:"max_uses"`
}

func (r *Repository) Update(ctx context.Context, q db.Querier, tenantID, id string, p Patch) (Coupon, error) {
	row := q.QueryRow(ctx, `
		UPDATE coupons
		SET active = COALESCE($3, active),
			expires_at = COALESCE($4, expires_at),
			max_uses = COALESCE($5, max_uses)
		WHERE user_id = $1 AND id = $2
		RETURNING `+couponColumns, tenantID, id, p.Active, p.ExpiresAt, p.MaxUses)
	c, err := scanCoupon(row)
	return c, apperr.FromDB(err, "coupon")
}

func (r *Repository) Delete(ctx context.Context, q db.Querier, tenantID, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM coupons WHERE user_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return apperr.FromDB(err, "coupon")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("coupon not found")
	}
	return nil
}

// Redeem counts one use. It fails with 409 when the cap was hit by a
// concurrent redemption.
func (r *Repository) Redeem(ctx context.Context, q db.Querier, tenantID, id string) error {
	tag, err := q.Exec(ctx, `
		UPDATE coupons
		SET used_count = used_count + 1
		WHERE user_id = $1 AND id = $2 AND (max_uses = 0 OR used_count < max_uses)
	`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("coupon usage limit reached")
	}
	return nil
}
