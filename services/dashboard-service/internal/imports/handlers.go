package imports

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	otelx "github.com/md-rashed-zaman/bizdash/libs/otel"
	"github.com/md-rashed-zaman/bizdash/libs/runtime"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/crud"
)

type Handler struct {
	pool    *db.Pool
	records *crud.Resource
	indexer crud.Indexer
	logger  *slog.Logger
}

func NewHandler(pool *db.Pool, records *crud.Resource, indexer crud.Indexer, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, records: records, indexer: indexer, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/v1/dashboard/imports/preview", httpx.Handle(h.logger, h.preview))
	mux.Handle("POST /api/v1/dashboard/imports/commit", httpx.Handle(h.logger, h.commit))
	mux.Handle("GET /api/v1/dashboard/records/export", httpx.Handle(h.logger, h.export))
}

type previewResponse struct {
	Filename         string              `json:"filename"`
	Format           Format              `json:"format"`
	Headers          []string            `json:"headers"`
	Sample           []map[string]string `json:"sample"`
	TotalRows        int                 `json:"total_rows"`
	SuggestedMapping map[string]string   `json:"suggested_mapping"`
	Targets          []string            `json:"targets"`
}

// readUpload parses the multipart "file" field.
func readUpload(w http.ResponseWriter, r *http.Request) (Table, string, Format, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUpload+1<<20)
	if err := r.ParseMultipartForm(MaxUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return Table{}, "", "", apperr.New(http.StatusRequestEntityTooLarge, "too_large", "upload too large")
		}
		return Table{}, "", "", apperr.BadRequest("expected a multipart upload")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return Table{}, "", "", apperr.BadRequest("file is required")
	}
	defer file.Close()

	format, err := DetectFormat(header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		return Table{}, "", "", err
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxUpload+1))
	if err != nil {
		return Table{}, "", "", apperr.BadRequest("cannot read upload")
	}
	if len(data) > MaxUpload {
		return Table{}, "", "", apperr.New(http.StatusRequestEntityTooLarge, "too_large", "upload too large")
	}
	t, err := Parse(format, data)
	return t, header.Filename, format, err
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) error {
	if _, err := httpx.TenantID(r); err != nil {
		return err
	}
	t, name, format, err := readUpload(w, r)
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, previewResponse{
		Filename:         name,
		Format:           format,
		Headers:          t.Headers,
		Sample:           t.Sample(SampleRows),
		TotalRows:        len(t.Rows),
		SuggestedMapping: Suggest(t.Headers),
		Targets:          Targets,
	})
	return nil
}

func parseOptions(r *http.Request, headers []string) (Options, error) {
	o := Options{
		EntityType:   strings.TrimSpace(r.FormValue("entity_type")),
		KeepUnmapped: r.FormValue("keep_unmapped") == "true",
		Mapping:      map[string]string{},
	}
	if raw := strings.TrimSpace(r.FormValue("mapping")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &o.Mapping); err != nil {
			return Options{}, apperr.BadRequest("mapping must be a json object of column to field")
		}
	} else {
		o.Mapping = Suggest(headers)
	}
	return o, o.Validate(headers)
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	t, _, _, err := readUpload(w, r)
	if err != nil {
		return err
	}
	opts, err := parseOptions(r, t.Headers)
	if err != nil {
		return err
	}
	inputs, rep := Build(h.records, t, opts)

	var created []crud.Row
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		created, err = Insert(r.Context(), tx, tenantID, inputs)
		return err
	})
	if err != nil {
		return err
	}
	rep.Inserted = len(created)
	h.index(r.Context(), tenantID, created)

	h.logger.Info("import committed", "tenant_id", tenantID, "entity_type", opts.EntityType,
		"inserted", rep.Inserted, "skipped", rep.Skipped, "errors", len(rep.Errors))
	httpx.WriteData(w, http.StatusOK, rep)
	return nil
}

func (h *Handler) index(parent context.Context, tenantID string, rows []crud.Row) {
	if h.indexer == nil || len(rows) == 0 {
		return
	}
	runtime.Go(h.logger, "import_index", func() {
		ctx, cancel := otelx.Detach(parent, 30*time.Second)
		defer cancel()
		for _, row := range rows {
			if err := h.indexer.Index(ctx, tenantID, "records", row); err != nil {
				h.logger.Warn("import index failed", "err", err)
				return
			}
		}
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	entityType := strings.TrimSpace(r.URL.Query().Get("entity_type"))
	if entityType != "" && !dataKey.MatchString(entityType) {
		return apperr.BadRequest("invalid entity_type")
	}
	var rows []crud.Row
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		rows, err = LoadRecords(r.Context(), tx, tenantID, entityType)
		return err
	})
	if err != nil {
		return err
	}
	body, err := WriteXLSX(rows)
	if err != nil {
		return apperr.Internal(err)
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportName(entityType)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return nil
}
