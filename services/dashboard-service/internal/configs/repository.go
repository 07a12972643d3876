package configs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/pipeline"
)

type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

// Get returns the stored config. found is false when the tenant has none.
func (r *Repository) Get(ctx context.Context, q db.Querier, userID string, forUpdate bool) (cfg BusinessConfig, found bool, err error) {
	sql := `SELECT config, updated_at FROM business_configs WHERE user_id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var raw []byte
	var updated time.Time
	err = q.QueryRow(ctx, sql, userID).Scan(&raw, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return BusinessConfig{}, false, nil
	}
	if err != nil {
		return BusinessConfig{}, false, err
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return BusinessConfig{}, false, err
	}
	// rows written before stages were kept in order
	cfg.PipelineStages = pipeline.Sorted(cfg.PipelineStages)
	cfg.UserID = userID
	cfg.UpdatedAt = updated
	return cfg, true, nil
}

// GetOrDefault loads the config, creating the default one on first access.
func (r *Repository) GetOrDefault(ctx context.Context, tx pgx.Tx, userID string, forUpdate bool) (BusinessConfig, error) {
	cfg, found, err := r.Get(ctx, tx, userID, forUpdate)
	if err != nil || found {
		return cfg, err
	}
	cfg = Default(userID)
	if err := r.Save(ctx, tx, &cfg); err != nil {
		return BusinessConfig{}, err
	}
	return cfg, nil
}

// Save writes the whole blob. Booking preferences are mirrored into
// booking_settings, which the booking service reads.
func (r *Repository) Save(ctx context.Context, tx pgx.Tx, cfg *BusinessConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO business_configs (user_id, config, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET config = EXCLUDED.config, updated_at = now()
		RETURNING updated_at
	`, cfg.UserID, raw).Scan(&cfg.UpdatedAt)
	if err != nil {
		return err
	}
	if len(cfg.BookingSettings) == 0 {
		return nil
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO booking_settings (user_id, settings)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET settings = booking_settings.settings || EXCLUDED.settings, updated_at = now()
	`, cfg.UserID, []byte(cfg.BookingSettings))
	return err
}

// ReassignStage moves records from one pipeline stage to another. An empty
// target clears the stage.
func (r *Repository) ReassignStage(ctx context.Context, tx pgx.Tx, userID, from, to string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE records
		SET stage_id = NULLIF($3, ''), updated_at = now()
		WHERE user_id = $1 AND stage_id = $2
	`, userID, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RemovedStages lists the stage ids in prev that next no longer has.
func RemovedStages(prev, next []pipeline.Stage) []string {
	keep := make(map[string]bool, len(next))
	for _, s := range next {
		keep[s.ID] = true
	}
	var gone []string
	for _, s := range prev {
		if !keep[s.ID] {
			gone = append(gone, s.ID)
		}
	}
	return gone
}

// ReassignRemoved moves records off every stage that a write dropped onto
// the default stage of next, or clears them when next has no stages.
func (r *Repository) ReassignRemoved(ctx context.Context, tx pgx.Tx, userID string, prev, next []pipeline.Stage) (int64, error) {
	var target string
	if def, ok := pipeline.Default(next); ok {
		target = def.ID
	}
	var moved int64
	for _, id := range RemovedStages(prev, next) {
		n, err := r.ReassignStage(ctx, tx, userID, id, target)
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}
