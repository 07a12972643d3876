package configs

import (
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/pipeline"
)

func stageID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}

func (h *Handler) listStages(w http.ResponseWriter, r *http.Request) error {
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
	httpx.WriteData(w, http.StatusOK, pipeline.Normalize(cfg.PipelineStages))
	return nil
}

type addStageRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (h *Handler) addStage(w http.ResponseWriter, r *http.Request) error {
	var body addStageRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		return err
	}
	var added pipeline.Stage
	_, err := h.mutate(r, func(_ pgx.Tx, cfg BusinessConfig) (BusinessConfig, error) {
		stages, s, err := pipeline.Add(cfg.PipelineStages, body.Name, body.Color)
		if err != nil {
			return cfg, err
		}
		cfg.PipelineStages, added = stages, s
		return cfg, nil
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusCreated, added)
	return nil
}

func (h *Handler) updateStage(w http.ResponseWriter, r *http.Request) error {
	var body pipeline.Update
	if err := httpx.DecodeJSON(r, &body); err != nil {
		return err
	}
	var updated pipeline.Stage
	_, err := h.mutate(r, func(_ pgx.Tx, cfg BusinessConfig) (BusinessConfig, error) {
		stages, s, err := pipeline.Apply(cfg.PipelineStages, stageID(r), body)
		if err != nil {
			return cfg, err
		}
		cfg.PipelineStages, updated = stages, s
		return cfg, nil
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, updated)
	return nil
}

type moveStageRequest struct {
	ToIndex int `json:"to_index"`
}

func (h *Handler) moveStage(w http.ResponseWriter, r *http.Request) error {
	var body moveStageRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		return err
	}
	cfg, err := h.mutate(r, func(_ pgx.Tx, cfg BusinessConfig) (BusinessConfig, error) {
		stages, err := pipeline.Move(cfg.PipelineStages, stageID(r), body.ToIndex)
		if err != nil {
			return cfg, err
		}
		cfg.PipelineStages = stages
		return cfg, nil
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, cfg.PipelineStages)
	return nil
}

func (h *Handler) deleteStage(w http.ResponseWriter, r *http.Request) error {
	reassignTo := strings.TrimSpace(r.URL.Query().Get("reassign_to"))
	var moved int64
	cfg, err := h.mutate(r, func(tx pgx.Tx, cfg BusinessConfig) (BusinessConfig, error) {
		id := stageID(r)
		stages, target, err := pipeline.Delete(cfg.PipelineStages, id, reassignTo)
		if err != nil {
			return cfg, err
		}
		if moved, err = h.repo.ReassignStage(r.Context(), tx, cfg.UserID, id, target); err != nil {
			return cfg, err
		}
		cfg.PipelineStages = stages
		return cfg, nil
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{
		"stages":        cfg.PipelineStages,
		"records_moved": moved,
	})
	return nil
}
