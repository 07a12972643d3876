package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/model"
)

// CatalogRepository reads the tenant's services, bookable staff and booking
// settings.
type CatalogRepository struct{}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{}
}

func (r *CatalogRepository) GetService(ctx context.Context, q db.Querier, tenantID, serviceID string) (model.Service, error) {
	var s model.Service
	err := q.QueryRow(ctx, `
		SELECT id::text, name, duration_minutes, price_cents, active
		FROM services
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`, serviceID, tenantID).Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.Active)
	if err != nil {
		return model.Service{}, apperr.FromDB(err, "service")
	}
	if !s.Active {
		return model.Service{}, apperr.NotFound("service not found")
	}
	return s, nil
}

// ListBookableStaff returns active, bookable team members in a stable order;
// round robin indexes into this list.
func (r *CatalogRepository) ListBookableStaff(ctx context.Context, q db.Querier, tenantID string) ([]model.StaffMember, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, name, COALESCE(email, ''), active
		FROM team_members
		WHERE user_id = $1 AND active AND bookable AND deleted_at IS NULL
		ORDER BY created_at, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.StaffMember, error) {
		var m model.StaffMember
		err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Active)
		return m, err
	})
}

// GetSettings returns stored settings over the defaults. forUpdate locks the
// row so round robin advances one booking at a time.
func (r *CatalogRepository) GetSettings(ctx context.Context, q db.Querier, tenantID string, forUpdate bool) (model.BookingSettings, error) {
	settings := model.DefaultSettings()
	sql := `SELECT settings, round_robin_index FROM booking_settings WHERE user_id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var raw []byte
	var idx int
	err := q.QueryRow(ctx, sql, tenantID).Scan(&raw, &idx)
	if errors.Is(err, pgx.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return settings, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &settings); err != nil {
			return settings, err
		}
	}
	settings.RoundRobinIndex = idx
	return settings, nil
}

func (r *CatalogRepository) SaveSettings(ctx context.Context, q db.Querier, tenantID string, s model.BookingSettings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO booking_settings (user_id, settings, round_robin_index)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = now()
	`, tenantID, raw, s.RoundRobinIndex)
	return err
}

func (r *CatalogRepository) SetRoundRobinIndex(ctx context.Context, q db.Querier, tenantID string, idx int) error {
	_, err := q.Exec(ctx, `
		INSERT INTO booking_settings (user_id, settings, round_robin_index)
		VALUES ($1, '{}'::jsonb, $2)
		ON CONFLICT (user_id) DO UPDATE SET round_robin_index = EXCLUDED.round_robin_index, updated_at = now()
	`, tenantID, idx)
	return err
}

type MenuItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// MenuItems loads active items by id. Unknown or inactive ids are absent
// from the result.
func (r *CatalogRepository) MenuItems(ctx context.Context, q db.Querier, tenantID string, ids []string) (map[string]MenuItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, name, price_cents
		FROM menu_items
		WHERE user_id = $1 AND id = ANY($2::uuid[]) AND active AND deleted_at IS NULL
	`, tenantID, ids)
	if err != nil {
		return nil, apperr.FromDB(err, "menu item")
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (MenuItem, error) {
		var m MenuItem
		err := row.Scan(&m.ID, &m.Name, &m.PriceCents)
		return m, err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]MenuItem, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}
