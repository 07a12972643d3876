package crud

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	otelx "github.com/md-rashed-zaman/bizdash/libs/otel"
	"github.com/md-rashed-zaman/bizdash/libs/runtime"
)

// Indexer mirrors rows into a search index.
type Indexer interface {
	Index(ctx context.Context, tenantID, resource string, row Row) error
	Remove(ctx context.Context, tenantID, resource, id string) error
}

type Handler struct {
	pool      *db.Pool
	store     *Store
	resources []*Resource
	indexer   Indexer
	logger    *slog.Logger
}

func NewHandler(pool *db.Pool, store *Store, resources []*Resource, indexer Indexer, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, store: store, resources: resources, indexer: indexer, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	for _, res := range h.resources {
		base := "/api/v1/dashboard/" + res.Name
		mux.Handle("GET "+base, httpx.Handle(h.logger, h.list(res)))
		mux.Handle("GET "+base+"/{id}", httpx.Handle(h.logger, h.get(res)))
		if res.ReadOnly {
			continue
		}
		mux.Handle("POST "+base, httpx.Handle(h.logger, h.create(res)))
		mux.Handle("PATCH "+base+"/{id}", httpx.Handle(h.logger, h.update(res)))
		mux.Handle("DELETE "+base+"/{id}", httpx.Handle(h.logger, h.delete(res)))
	}
}

func (h *Handler) list(res *Resource) httpx.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		tenantID, err := httpx.TenantID(r)
		if err != nil {
			return err
		}
		q, err := ParseListQuery(res, r.URL.Query())
		if err != nil {
			return err
		}
		var rows []Row
		var total int64
		err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
			rows, total, err = h.store.List(r.Context(), tx, res, tenantID, q)
			return err
		})
		if err != nil {
			return err
		}
		httpx.WriteData(w, http.StatusOK, httpx.Page[Row]{Items: rows, Total: total, Page: q.Page, PerPage: q.PerPage})
		return nil
	}
}

func (h *Handler) get(res *Resource) httpx.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		tenantID, err := httpx.TenantID(r)
		if err != nil {
			return err
		}
		id, err := httpx.PathUUID(r, "id")
		if err != nil {
			return err
		}
		var row Row
		err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
			row, err = h.store.Get(r.Context(), tx, res, tenantID, id)
			return err
		})
		if err != nil {
			return err
		}
		httpx.WriteData(w, http.StatusOK, row)
		return nil
	}
}

func (h *Handler) create(res *Resource) httpx.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		tenantID, err := httpx.TenantID(r)
		if err != nil {
			return err
		}
		var body map[string]any
		if err := httpx.DecodeJSON(r, &body); err != nil {
			return err
		}
		in, err := res.Decode(body, false)
		if err != nil {
			return err
		}
		var row Row
		err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
			row, err = h.store.Create(r.Context(), tx, res, tenantID, in)
			return err
		})
		if err != nil {
			return err
		}
		h.reindex(r.Context(), res, tenantID, row)
		httpx.WriteData(w, http.StatusCreated, row)
		return nil
	}
}

func (h *Handler) update(res *Resource) httpx.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		tenantID, err := httpx.TenantID(r)
		if err != nil {
			return err
		}
		id, err := httpx.PathUUID(r, "id")
		if err != nil {
			return err
		}
		var body map[string]any
		if err := httpx.DecodeJSON(r, &body); err != nil {
			return err
		}
		in, err := res.Decode(body, true)
		if err != nil {
			return err
		}
		var row Row
		err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
			row, err = h.store.Update(r.Context(), tx, res, tenantID, id, in)
			return err
		})
		if err != nil {
			return err
		}
		h.reindex(r.Context(), res, tenantID, row)
		httpx.WriteData(w, http.StatusOK, row)
		return nil
	}
}

func (h *Handler) delete(res *Resource) httpx.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		tenantID, err := httpx.TenantID(r)
		if err != nil {
			return err
		}
		id, err := httpx.PathUUID(r, "id")
		if err != nil {
			return err
		}
		hard := r.URL.Query().Get("hard") == "true"
		err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
			return h.store.Delete(r.Context(), tx, res, tenantID, id, hard)
		})
		if err != nil {
			return err
		}
		if res.Indexed && h.indexer != nil {
			runtime.Go(h.logger, "search_remove", func() {
				ctx, cancel := otelx.Detach(r.Context(), 5*time.Second)
				defer cancel()
				if err := h.indexer.Remove(ctx, tenantID, res.Name, id); err != nil {
					h.logger.Warn("search remove failed", "err", err, "resource", res.Name, "id", id)
				}
			})
		}
		httpx.WriteData(w, http.StatusOK, map[string]any{"id": id, "deleted": true, "hard": hard || !res.SoftDelete})
		return nil
	}
}

// reindex is fire-and-forget; a failed index write never fails the request.
func (h *Handler) reindex(parent context.Context, res *Resource, tenantID string, row Row) {
	if !res.Indexed || h.indexer == nil || row == nil {
		return
	}
	runtime.Go(h.logger, "search_index", func() {
		ctx, cancel := otelx.Detach(parent, 5*time.Second)
		defer cancel()
		if err := h.indexer.Index(ctx, tenantID, res.Name, row); err != nil {
			h.logger.Warn("search index failed", "err", err, "resource", res.Name)
		}
	})
}

// Lookup finds a registered resource by name.
func Lookup(resources []*Resource, name string) (*Resource, error) {
	for _, res := range resources {
		if res.Name == name {
			return res, nil
		}
	}
	return nil, apperr.NotFound("unknown resource " + name)
}
