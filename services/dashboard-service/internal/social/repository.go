package social

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
)

const (
	StatusDraft      = "draft"
	StatusScheduled  = "scheduled"
	StatusPublishing = "publishing"
	StatusPublished  = "published"
	StatusFailed     = "failed"
)

type Post struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"user_id"`
	Content     string     `json:"content"`
	MediaURL    string     `json:"media_url,omitempty"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	ExternalID  string     `json:"external_id,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type Account struct {
	PageID string
	Token  string
}

type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

const postColumns = `id::text, user_id::text, content, COALESCE(media_url, ''), status, scheduled_at, published_at,
	COALESCE(external_id, ''), COALESCE(error, '')`

func scanPost(row pgx.Row) (Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.TenantID, &p.Content, &p.MediaURL, &p.Status, &p.ScheduledAt, &p.PublishedAt, &p.ExternalID, &p.Error)
	return p, err
}

func (r *Repository) Get(ctx context.Context, q db.Querier, tenantID, id string, forUpdate bool) (Post, error) {
	sql := `SELECT ` + postColumns + ` FROM social_posts WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	p, err := scanPost(q.QueryRow(ctx, sql, tenantID, id))
	return p, apperr.FromDB(err, "social post")
}

func (r *Repository) SetStatus(ctx context.Context, q db.Querier, tenantID, id, status string) error {
	_, err := q.Exec(ctx, `
		UPDATE social_posts SET status = $3, updated_at = now()
		WHERE user_id = $1 AND id = $2
	`, tenantID, id, status)
	return err
}

func (r *Repository) MarkPublished(ctx context.Context, q db.Querier, tenantID, id, externalID string) (Post, error) {
	p, err := scanPost(q.QueryRow(ctx, `
		UPDATE social_posts
		SET status = 'published', external_id = $3, error = NULL, published_at = now(), updated_at = now()
		WHERE user_id = $1 AND id = $2
		RETURNING `+postColumns, tenantID, id, externalID))
	return p, apperr.FromDB(err, "social post")
}

func (r *Repository) MarkFailed(ctx context.Context, q db.Querier, tenantID, id, reason string) (Post, error) {
	p, err := scanPost(q.QueryRow(ctx, `
		UPDATE social_posts
		SET status = 'failed', error = left($3, 1000), updated_at = now()
		WHERE user_id = $1 AND id = $2
		RETURNING `+postColumns, tenantID, id, reason))
	return p, apperr.FromDB(err, "social post")
}

func (r *Repository) Account(ctx context.Context, q db.Querier, tenantID string) (Account, error) {
	var a Account
	err := q.QueryRow(ctx, `
		SELECT page_id, access_token
		FROM social_accounts
		WHERE user_id = $1 AND platform = 'facebook'
		ORDER BY updated_at DESC
		LIMIT 1
	`, tenantID).Scan(&a.PageID, &a.Token)
	return a, apperr.FromDB(err, "facebook account")
}

// ClaimDue moves due scheduled posts to publishing and returns them. Posts
// stuck in publishing longer than stale are claimed again. Rows locked by
// another worker are skipped.
func (r *Repository) ClaimDue(ctx context.Context, tx pgx.Tx, limit int, stale time.Duration) ([]Post, error) {
	rows, err := tx.Query(ctx, `
		UPDATE social_posts
		SET status = 'publishing', updated_at = now()
		WHERE id IN (
			SELECT id FROM social_posts
			WHERE deleted_at IS NULL
				AND (
					(status = 'scheduled' AND scheduled_at <= now())
					OR (status = 'publishing' AND updated_at < now() - make_interval(secs => $2))
				)
			ORDER BY scheduled_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+postColumns, limit, stale.Seconds())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Post, error) {
		return scanPost(row)
	})
}
