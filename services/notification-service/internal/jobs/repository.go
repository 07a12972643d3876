package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	otelx "github.com/md-rashed-zaman/bizdash/libs/otel"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert enqueues job unless its idempotency key was seen before. It reports
// whether a row was added.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, job Job) (bool, error) {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	if job.Data == nil {
		job.Data = map[string]any{}
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO notification_jobs
			(idempotency_key, user_id, reference_id, template, channel, recipient, data, run_at, max_attempts, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''))
		ON CONFLICT (idempotency_key) DO NOTHING
	`, job.IdempotencyKey, job.TenantID, job.ReferenceID, job.Template, job.Channel, job.Recipient, job.Data, job.RunAt,
		maxAttempts, traceparent, tracestate)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CancelPending stops every job for referenceID that has not been sent.
// templates limits which ones; empty means all.
func (r *Repository) CancelPending(ctx context.Context, tx pgx.Tx, tenantID, referenceID string, templates ...string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE notification_jobs
		SET status = 'cancelled', updated_at = now()
		WHERE user_id = $1 AND reference_id = $2 AND status = 'pending'
			AND (cardinality($3::text[]) = 0 OR template = ANY($3::text[]))
	`, tenantID, referenceID, templates)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ClaimDue marks up to limit due jobs as sending and returns them. Jobs a
// crashed worker left in sending are picked up again after lease.
func (r *Repository) ClaimDue(ctx context.Context, tx pgx.Tx, limit int, lease time.Duration) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		UPDATE notification_jobs
		SET status = 'sending', attempts = attempts + 1, locked_until = now() + $2::interval, updated_at = now()
		WHERE id IN (
			SELECT id FROM notification_jobs
			WHERE (status = 'pending' AND run_at <= now())
				OR (status = 'sending' AND locked_until < now())
			ORDER BY run_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, idempotency_key, user_id::text, reference_id::text, template, channel, recipient, data, run_at,
			attempts, max_attempts, COALESCE(traceparent, ''), COALESCE(tracestate, '')
	`, limit, lease)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Job, error) {
		var j Job
		err := row.Scan(&j.ID, &j.IdempotencyKey, &j.TenantID, &j.ReferenceID, &j.Template, &j.Channel, &j.Recipient,
			&j.Data, &j.RunAt, &j.Attempts, &j.MaxAttempts, &j.Traceparent, &j.Tracestate)
		return j, err
	})
}

func (r *Repository) MarkSent(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE notification_jobs
		SET status = 'sent', locked_until = NULL, last_error = NULL, updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

// MarkFailed schedules a retry at nextRunAt, or dead-letters the job when
// dead is true.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, dead bool, nextRunAt time.Time, lastError string) error {
	status := StatusPending
	if dead {
		status = StatusDead
	}
	_, err := tx.Exec(ctx, `
		UPDATE notification_jobs
		SET status = $2, run_at = $3, last_error = $4, locked_until = NULL, updated_at = now()
		WHERE id = $1
	`, id, status, nextRunAt, lastError)
	return err
}
