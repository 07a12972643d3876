// Package inbox records consumed event ids so redelivered Kafka messages are
// handled once per consumer group.
package inbox

import (
	"context"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
)

type Repository struct {
	pool     *db.Pool
	consumer string
}

func NewRepository(pool *db.Pool, consumer string) *Repository {
	return &Repository{pool: pool, consumer: consumer}
}

// Record returns false when the event was already seen by this consumer.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (consumer, event_id, event_type)
		VALUES ($1, $2, $3)
	`, r.consumer, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if apperr.PgCode(err) == apperr.PgUniqueViolation {
		return false, nil
	}
	return false, err
}

// Forget removes a record so a failed handler can see the event again.
func (r *Repository) Forget(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE consumer = $1 AND event_id = $2`, r.consumer, eventID)
	return err
}
