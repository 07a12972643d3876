package search

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/crud"
)

type engine interface {
	Searcher
	Healthy() bool
}

// Service tries Meilisearch first and falls back to Postgres.
type Service struct {
	primary  engine
	fallback Searcher
	loader   *Postgres
	logger   *slog.Logger
}

// NewService accepts a nil primary when Meilisearch is not configured.
func NewService(primary *Meili, fallback *Postgres, logger *slog.Logger) *Service {
	s := &Service{fallback: fallback, loader: fallback, logger: logger}
	if primary != nil {
		s.primary = primary
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	if q.Limit <= 0 || q.Limit > 50 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}, nil
		}
		s.logger.Warn("meilisearch failed, using postgres", "err", err)
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "postgres"}, nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

type Handler struct {
	svc    *Service
	meili  *Meili
	logger *slog.Logger
}

func NewHandler(svc *Service, meili *Meili, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, meili: meili, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/dashboard/search", httpx.Handle(h.logger, h.search("")))
	mux.Handle("GET /api/v1/dashboard/records/search", httpx.Handle(h.logger, h.search("records")))
	mux.Handle("POST /api/v1/dashboard/search/reindex", httpx.Handle(h.logger, h.reindex))
}

func (h *Handler) search(resource string) httpx.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		tenantID, err := httpx.TenantID(r)
		if err != nil {
			return err
		}
		v := r.URL.Query()
		q := Query{
			TenantID:   tenantID,
			Text:       strings.TrimSpace(v.Get("q")),
			Resource:   resource,
			EntityType: strings.TrimSpace(v.Get("entity_type")),
		}
		if q.Resource == "" {
			q.Resource = strings.TrimSpace(v.Get("resource"))
		}
		if q.Resource != "" && q.Resource != "records" && q.Resource != "clients" {
			return apperr.BadRequest("resource must be records or clients")
		}
		if q.Text == "" {
			return apperr.BadRequest("q is required")
		}
		if len(q.Text) > 200 {
			return apperr.BadRequest("q is too long")
		}
		q.Limit, _ = strconv.Atoi(v.Get("limit"))
		q.Offset, _ = strconv.Atoi(v.Get("offset"))

		resp, err := h.svc.Search(r.Context(), q)
		if err != nil {
			return err
		}
		httpx.WriteData(w, http.StatusOK, resp)
		return nil
	}
}

func (h *Handler) reindex(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	if h.meili == nil || !h.meili.Healthy() {
		return apperr.Unavailable("search index unavailable")
	}
	docs, err := h.svc.loader.LoadDocuments(r.Context(), tenantID)
	if err != nil {
		return err
	}
	if err := h.meili.IndexDocuments(docs); err != nil {
		return apperr.Wrap(err, http.StatusBadGateway, "search_failed", "search index rejected documents")
	}
	httpx.WriteData(w, http.StatusAccepted, map[string]int{"queued": len(docs)})
	return nil
}

func decodeRow(raw []byte) (crud.Row, error) {
	var row crud.Row
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	err := dec.Decode(&row)
	return row, err
}
