package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Notification is the delivery record of one job attempt that finished,
// either sent or given up on.
type Notification struct {
	JobID       int64
	TenantID    string
	ReferenceID string
	Template    string
	Channel     string
	Recipient   string
	ProviderID  string
	ProviderRef string
	Status      string
	Error       string
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, n Notification) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications
			(job_id, user_id, reference_id, template, channel, recipient, provider, provider_ref, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, NULLIF($10, ''))
	`, n.JobID, n.TenantID, n.ReferenceID, n.Template, n.Channel, n.Recipient, n.ProviderID, n.ProviderRef, n.Status, n.Error)
	return err
}
