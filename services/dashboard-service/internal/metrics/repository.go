package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Bump(ctx context.Context, tx pgx.Tx, b Bump) error {
	d := b.Delta
	_, err := tx.Exec(ctx, `
		INSERT INTO daily_metrics
			(user_id, day, booked_count, cancelled_count, order_count, order_revenue_cents, paid_cents,
			 notifications_sent, notifications_failed)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, day) DO UPDATE SET
			booked_count = daily_metrics.booked_count + EXCLUDED.booked_count,
			cancelled_count = daily_metrics.cancelled_count + EXCLUDED.cancelled_count,
			order_count = daily_metrics.order_count + EXCLUDED.order_count,
			order_revenue_cents = daily_metrics.order_revenue_cents + EXCLUDED.order_revenue_cents,
			paid_cents = daily_metrics.paid_cents + EXCLUDED.paid_cents,
			notifications_sent = daily_metrics.notifications_sent + EXCLUDED.notifications_sent,
			notifications_failed = daily_metrics.notifications_failed + EXCLUDED.notifications_failed,
			updated_at = now()
	`, b.TenantID, b.Day, d.Booked, d.Cancelled, d.Orders, d.OrderRevenueCents, d.PaidCents,
		d.NotificationsSent, d.NotificationsFailed)
	return err
}

// Range returns the stored days in [from, to], oldest first. Days without
// events are absent.
func (r *Repository) Range(ctx context.Context, tx pgx.Tx, tenantID string, from, to time.Time) ([]Day, error) {
	rows, err := tx.Query(ctx, `
		SELECT to_char(day, 'YYYY-MM-DD'), booked_count, cancelled_count, order_count, order_revenue_cents,
			paid_cents, notifications_sent, notifications_failed
		FROM daily_metrics
		WHERE user_id = $1 AND day BETWEEN $2::date AND $3::date
		ORDER BY day
	`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Day, error) {
		var d Day
		err := row.Scan(&d.Day, &d.Booked, &d.Cancelled, &d.Orders, &d.OrderRevenueCents,
			&d.PaidCents, &d.NotificationsSent, &d.NotificationsFailed)
		return d, err
	})
}
