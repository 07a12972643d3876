package assistant

import (
	"context"
	"encoding/json"
	"errors"
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
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/configs"
)

const (
	maxMessage  = 4000
	historySize = 6
)

const systemPrompt = `You edit the configuration of a small-business dashboard.
The current configuration is the JSON document below. Answer ONLY with a JSON
object {"reply": string, "patch": array}. "reply" is a short message for the
owner. "patch" is an RFC 6902 JSON Patch against the configuration, or [] when
nothing should change. You may only touch these paths and their children:
/business_name, /tabs, /colors, /fonts, /pipeline_stages, /booking_settings.
Colors are #rrggbb hex strings. Every tab and component needs a unique id.

Current configuration:
`

type Handler struct {
	pool    *db.Pool
	configs *configs.Repository
	store   *Store
	llm     Completer
	enabled bool
	logger  *slog.Logger
}

// NewHandler builds the chat handler. When enabled is false every chat
// request gets 503.
func NewHandler(pool *db.Pool, cfgRepo *configs.Repository, store *Store, llm Completer, enabled bool, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, configs: cfgRepo, store: store, llm: llm, enabled: enabled, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/v1/dashboard/assistant/chat", httpx.Handle(h.logger, h.chat))
	mux.Handle("GET /api/v1/dashboard/assistant/messages", httpx.Handle(h.logger, h.history))
}

type chatRequest struct {
	Message string `json:"message"`
	DryRun  bool   `json:"dry_run"`
}

type chatResponse struct {
	Reply   string                 `json:"reply"`
	Patch   json.RawMessage        `json:"patch"`
	Applied bool                   `json:"applied"`
	DryRun  bool                   `json:"dry_run"`
	Config  configs.BusinessConfig `json:"config"`
}

// BuildMessages assembles the prompt: system instructions with the config,
// recent history, then the new message.
func BuildMessages(cfg configs.BusinessConfig, history []Turn, message string) ([]Message, error) {
	doc, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	msgs := []Message{{Role: "system", Content: systemPrompt + string(doc)}}
	for _, t := range history {
		if t.Role == "user" || t.Role == "assistant" {
			msgs = append(msgs, Message{Role: t.Role, Content: t.Content})
		}
	}
	return append(msgs, Message{Role: "user", Content: message}), nil
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	if !h.enabled {
		return apperr.Unavailable("assistant is not configured")
	}
	var req chatRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return apperr.BadRequest("message is required")
	}
	if len(req.Message) > maxMessage {
		return apperr.BadRequest("message is too long")
	}
	if r.URL.Query().Get("dry_run") == "true" {
		req.DryRun = true
	}

	var cfg configs.BusinessConfig
	var history []Turn
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		if cfg, err = h.configs.GetOrDefault(r.Context(), tx, tenantID, false); err != nil {
			return err
		}
		history, err = h.store.Recent(r.Context(), tx, tenantID, historySize)
		return err
	})
	if err != nil {
		return err
	}
	msgs, err := BuildMessages(cfg, history, req.Message)
	if err != nil {
		return err
	}

	answer, err := h.llm.Complete(r.Context(), msgs)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return apperr.Unavailable("assistant is not configured")
		}
		return apperr.Wrap(err, http.StatusBadGateway, "assistant_failed", "assistant did not answer")
	}
	patch, err := Guard(answer.Patch)
	if err != nil {
		h.record(r.Context(), tenantID, req.Message, answer, false)
		return err
	}

	resp := chatResponse{Reply: answer.Reply, Patch: answer.Patch, DryRun: req.DryRun}
	switch {
	case len(patch) == 0:
		resp.Config = cfg
	case req.DryRun:
		if resp.Config, err = Apply(cfg, patch); err != nil {
			return err
		}
	default:
		// the patch is applied to the locked row, which may have moved on
		// since the prompt was built
		err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
			cur, err := h.configs.GetOrDefault(r.Context(), tx, tenantID, true)
			if err != nil {
				return err
			}
			next, err := Apply(cur, patch)
			if err != nil {
				return err
			}
			if _, err := h.configs.ReassignRemoved(r.Context(), tx, tenantID, cur.PipelineStages, next.PipelineStages); err != nil {
				return err
			}
			if err := h.configs.Save(r.Context(), tx, &next); err != nil {
				return err
			}
			resp.Config = next
			return nil
		})
		if err != nil {
			h.record(r.Context(), tenantID, req.Message, answer, false)
			return err
		}
		resp.Applied = true
	}
	h.record(r.Context(), tenantID, req.Message, answer, resp.Applied)
	httpx.WriteData(w, http.StatusOK, resp)
	return nil
}

// record stores both sides of a turn without holding up the response.
func (h *Handler) record(parent context.Context, tenantID, message string, answer Answer, applied bool) {
	runtime.Go(h.logger, "assistant_record", func() {
		ctx, cancel := otelx.Detach(parent, 5*time.Second)
		defer cancel()
		err := h.pool.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
			if err := h.store.Append(ctx, tx, tenantID, Turn{Role: "user", Content: message}); err != nil {
				return err
			}
			return h.store.Append(ctx, tx, tenantID, Turn{Role: "assistant", Content: answer.Reply, Patch: answer.Patch, Applied: applied})
		})
		if err != nil {
			h.logger.Warn("assistant message not stored", "err", err, "tenant_id", tenantID)
		}
	})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			return apperr.BadRequest("limit must be between 1 and 200")
		}
		limit = n
	}
	var turns []Turn
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		turns, err = h.store.Recent(r.Context(), tx, tenantID, limit)
		return err
	})
	if err != nil {
		return err
	}
	if turns == nil {
		turns = []Turn{}
	}
	httpx.WriteData(w, http.StatusOK, turns)
	return nil
}
