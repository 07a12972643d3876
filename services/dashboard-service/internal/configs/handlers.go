package configs

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
)

type Handler struct {
	pool   *db.Pool
	repo   *Repository
	logger *slog.Logger
}

func NewHandler(pool *db.Pool, repo *Repository, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, repo: repo, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/dashboard/config", httpx.Handle(h.logger, h.get))
	mux.Handle("PUT /api/v1/dashboard/config", httpx.Handle(h.logger, h.put))
	mux.Handle("PATCH /api/v1/dashboard/config", httpx.Handle(h.logger, h.patch))
	mux.Handle("POST /api/v1/dashboard/onboarding", httpx.Handle(h.logger, h.onboard))

	mux.Handle("GET /api/v1/dashboard/pipeline/stages", httpx.Handle(h.logger, h.listStages))
	mux.Handle("POST /api/v1/dashboard/pipeline/stages", httpx.Handle(h.logger, h.addStage))
	mux.Handle("PATCH /api/v1/dashboard/pipeline/stages/{id}", httpx.Handle(h.logger, h.updateStage))
	mux.Handle("DELETE /api/v1/dashboard/pipeline/stages/{id}", httpx.Handle(h.logger, h.deleteStage))
	mux.Handle("POST /api/v1/dashboard/pipeline/stages/{id}/move", httpx.Handle(h.logger, h.moveStage))
}

// mutate runs fn on the locked config and saves what it returns. Records on
// stages the new config dropped move to its default stage.
func (h *Handler) mutate(r *http.Request, fn func(tx pgx.Tx, cfg BusinessConfig) (BusinessConfig, error)) (BusinessConfig, error) {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return BusinessConfig{}, err
	}
	var out BusinessConfig
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		cfg, err := h.repo.GetOrDefault(r.Context(), tx, tenantID, true)
		if err != nil {
			return err
		}
		next, err := fn(tx, cfg)
		if err != nil {
			return err
		}
		next.UserID = tenantID
		if err := next.Validate(); err != nil {
			return err
		}
		if _, err := h.repo.ReassignRemoved(r.Context(), tx, tenantID, cfg.PipelineStages, next.PipelineStages); err != nil {
			return err
		}
		if err := h.repo.Save(r.Context(), tx, &next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	var cfg BusinessConfig
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		cfg, err = h.repo.GetOrDefault(r.Context(), tx, tenantID, false)
		return err
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, cfg)
	return nil
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) error {
	var body BusinessConfig
	if err := httpx.DecodeJSON(r, &body); err != nil {
		return err
	}
	cfg, err := h.mutate(r, func(_ pgx.Tx, _ BusinessConfig) (BusinessConfig, error) {
		return body, nil
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, cfg)
	return nil
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) error {
	var body map[string]json.RawMessage
	if err := httpx.DecodeJSON(r, &body); err != nil {
		return err
	}
	cfg, err := h.mutate(r, func(_ pgx.Tx, cur BusinessConfig) (BusinessConfig, error) {
		return Merge(cur, body)
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, cfg)
	return nil
}

type onboardRequest struct {
	BusinessName string            `json:"business_name"`
	Industry     string            `json:"industry"`
	Colors       map[string]string `json:"colors"`
}

func (h *Handler) onboard(w http.ResponseWriter, r *http.Request) error {
	var body onboardRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		return err
	}
	body.BusinessName = strings.TrimSpace(body.BusinessName)
	if body.BusinessName == "" {
		return apperr.BadRequest("business_name is required")
	}
	cfg, err := h.mutate(r, func(_ pgx.Tx, cur BusinessConfig) (BusinessConfig, error) {
		next := Onboard(cur.UserID, body.BusinessName, body.Industry, body.Colors)
		next.BookingSettings = cur.BookingSettings
		return next, nil
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusCreated, cfg)
	return nil
}
