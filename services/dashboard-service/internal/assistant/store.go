package assistant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/db"
)

type Turn struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Patch     json.RawMessage `json:"patch,omitempty"`
	Applied   bool            `json:"applied"`
	CreatedAt time.Time       `json:"created_at"`
}

type Store struct{}

func NewStore() *Store { return &Store{} }

func (s *Store) Append(ctx context.Context, q db.Querier, userID string, t Turn) error {
	var patch any
	if len(t.Patch) > 0 {
		patch = string(t.Patch)
	}
	_, err := q.Exec(ctx, `
		INSERT INTO assistant_messages (user_id, role, content, patch, applied)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, userID, t.Role, t.Content, patch, t.Applied)
	return err
}

func (s *Store) Recent(ctx context.Context, q db.Querier, userID string, limit int) ([]Turn, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, role, content, COALESCE(patch::text, ''), applied, created_at
		FROM assistant_messages
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
		var t Turn
		var patch string
		err := row.Scan(&t.ID, &t.Role, &t.Content, &patch, &t.Applied, &t.CreatedAt)
		if patch != "" {
			t.Patch = json.RawMessage(patch)
		}
		return t, err
	})
	if err != nil {
		return nil, err
	}
	// oldest first, the order they are replayed to the model
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
