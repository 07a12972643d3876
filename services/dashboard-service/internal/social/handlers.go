package social

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
)

type Handler struct {
	pool      *db.Pool
	repo      *Repository
	publisher *Publisher
	logger    *slog.Logger
}

func NewHandler(pool *db.Pool, repo *Repository, publisher *Publisher, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, repo: repo, publisher: publisher, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/v1/dashboard/social_posts/{id}/publish", httpx.Handle(h.logger, h.publish))
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		return err
	}
	var post Post
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		post, err = h.repo.Get(r.Context(), tx, tenantID, id, true)
		if err != nil {
			return err
		}
		switch post.Status {
		case StatusPublished:
			return apperr.Conflict("post is already published")
		case StatusPublishing:
			return apperr.Conflict("post is being published")
		}
		post.Status = StatusPublishing
		return h.repo.SetStatus(r.Context(), tx, tenantID, id, StatusPublishing)
	})
	if err != nil {
		return err
	}

	out, err := h.publisher.Publish(r.Context(), post)
	if err != nil {
		if out.Status == StatusFailed {
			return apperr.Wrap(err, http.StatusBadGateway, "publish_failed", "publishing failed: "+out.Error)
		}
		return err
	}
	httpx.WriteData(w, http.StatusOK, out)
	return nil
}
