package portal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/db"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/validation"
)

type ctxKey struct{}

func withSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// SessionFrom returns the portal session Authenticate attached to ctx.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}

type Handler struct {
	pool     *db.Pool
	repo     *Repository
	sessions *SessionStore
	attempts httpx.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler wires the portal. attempts limits login tries per tenant and
// email.
func NewHandler(pool *db.Pool, repo *Repository, sessions *SessionStore, attempts httpx.Limiter, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, repo: repo, sessions: sessions, attempts: attempts, logger: logger, now: time.Now}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/v1/dashboard/portal/clients/{id}/access", httpx.Handle(h.logger, h.issueAccess))
	mux.Handle("GET /api/v1/dashboard/portal/clients/{id}/sessions", httpx.Handle(h.logger, h.listSessions))
	mux.Handle("DELETE /api/v1/dashboard/portal/clients/{id}/sessions", httpx.Handle(h.logger, h.revokeSessions))
	mux.Handle("DELETE /api/v1/dashboard/portal/clients/{id}/sessions/{sid}", httpx.Handle(h.logger, h.revokeSessions))

	mux.Handle("POST /api/v1/portal/login", httpx.Handle(h.logger, h.login))
	mux.Handle("POST /api/v1/portal/logout", h.Authenticate(httpx.Handle(h.logger, h.logout)))
	mux.Handle("GET /api/v1/portal/me", h.Authenticate(httpx.Handle(h.logger, h.me)))
	mux.Handle("PATCH /api/v1/portal/me", h.Authenticate(httpx.Handle(h.logger, h.updateMe)))
	mux.Handle("GET /api/v1/portal/appointments", h.Authenticate(httpx.Handle(h.logger, h.appointments)))
	mux.Handle("GET /api/v1/portal/invoices", h.Authenticate(httpx.Handle(h.logger, h.invoices)))
}

func bearer(r *http.Request) string {
	v := r.Header.Get("Authorization")
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}

// Authenticate resolves a portal bearer token to its session.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" {
			httpx.WriteError(w, r, h.logger, apperr.Unauthorized("missing portal token"))
			return
		}
		sess, err := h.sessions.Get(r.Context(), HashToken(token))
		if errors.Is(err, ErrNoSession) {
			httpx.WriteError(w, r, h.logger, apperr.Unauthorized("portal session expired or revoked"))
			return
		}
		if err != nil {
			httpx.WriteError(w, r, h.logger, apperr.Wrap(err, http.StatusServiceUnavailable, "unavailable", "session store unavailable"))
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

func (h *Handler) issueAccess(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	clientID, err := httpx.PathUUID(r, "id")
	if err != nil {
		return err
	}
	code, err := NewAccessCode()
	if err != nil {
		return err
	}
	hash, err := HashCode(code)
	if err != nil {
		return err
	}
	var client Client
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		if client, err = h.repo.Client(r.Context(), tx, tenantID, clientID); err != nil {
			return err
		}
		if client.Email == "" {
			return apperr.Unprocessable("no_email", "client has no email to log in with")
		}
		return h.repo.SetAccessCode(r.Context(), tx, tenantID, clientID, hash)
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusCreated, map[string]string{
		"client_id": clientID,
		"email":     client.Email,
		"code":      code,
	})
	return nil
}

type loginRequest struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Code     string `json:"code"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Client    Client    `json:"client"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	tenantID, err := httpx.ParseUUID(req.TenantID, "tenant_id")
	if err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	code := strings.TrimSpace(req.Code)
	if email == "" || code == "" {
		return apperr.BadRequest("email and code are required")
	}

	ok, err := h.attempts.Allow(r.Context(), "portal_login:"+tenantID+":"+email)
	if err != nil {
		h.logger.Warn("portal login limiter failed", "err", err)
	} else if !ok {
		return apperr.TooManyRequests("too many login attempts, try again later")
	}

	token, err := NewToken()
	if err != nil {
		return err
	}
	hash := HashToken(token)
	expiresAt := h.now().Add(h.sessions.TTL()).UTC()

	var sess Session
	var client Client
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		client, err = h.repo.ClientByEmail(r.Context(), tx, tenantID, email)
		if apperr.StatusOf(err) == http.StatusNotFound {
			return apperr.Unauthorized("invalid email or code")
		}
		if err != nil {
			return err
		}
		if !VerifyCode(client.accessCodeHash, code) {
			return apperr.Unauthorized("invalid email or code")
		}
		id, err := h.repo.CreateSession(r.Context(), tx, tenantID, client.ID, hash, expiresAt)
		if err != nil {
			return err
		}
		sess = Session{ID: id, TenantID: tenantID, ClientID: client.ID, ExpiresAt: expiresAt}
		// the Redis write happens inside the tx so a failure leaves no
		// orphan audit row
		return h.sessions.Put(r.Context(), hash, sess)
	})
	if err != nil {
		return err
	}
	h.logger.Info("portal login", "tenant_id", tenantID, "client_id", client.ID, "session_id", sess.ID)
	httpx.WriteData(w, http.StatusOK, loginResponse{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt, Client: client})
	return nil
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := SessionFrom(r.Context())
	hash := HashToken(bearer(r))
	if err := h.sessions.Delete(r.Context(), hash); err != nil {
		return err
	}
	err := h.pool.WithTenant(r.Context(), sess.TenantID, func(tx pgx.Tx) error {
		return h.repo.RevokeByHash(r.Context(), tx, sess.TenantID, hash)
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, map[string]bool{"logged_out": true})
	return nil
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) error {
	sess, _ := SessionFrom(r.Context())
	var c Client
	err := h.pool.WithTenant(r.Context(), sess.TenantID, func(tx pgx.Tx) error {
		var err error
		c, err = h.repo.Client(r.Context(), tx, sess.TenantID, sess.ClientID)
		return err
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, c)
	return nil
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) error {
	sess, _ := SessionFrom(r.Context())
	var u ProfileUpdate
	if err := httpx.DecodeJSON(r, &u); err != nil {
		return err
	}
	for _, p := range []*string{u.Name, u.Phone, u.Notes} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	if u.Name != nil && *u.Name == "" {
		return apperr.BadRequest("name cannot be empty")
	}
	if u.Name == nil && u.Phone == nil && u.Notes == nil {
		return apperr.BadRequest("nothing to update")
	}
	if err := validation.Struct(u); err != nil {
		return err
	}
	var c Client
	err := h.pool.WithTenant(r.Context(), sess.TenantID, func(tx pgx.Tx) error {
		var err error
		c, err = h.repo.UpdateProfile(r.Context(), tx, sess.TenantID, sess.ClientID, u)
		return err
	})
	if err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, c)
	return nil
}

func (h *Handler) appointments(w http.ResponseWriter, r *http.Request) error {
	sess, _ := SessionFrom(r.Context())
	var out []Appointment
	err := h.pool.WithTenant(r.Context(), sess.TenantID, func(tx pgx.Tx) error {
		c, err := h.repo.Client(r.Context(), tx, sess.TenantID, sess.ClientID)
		if err != nil {
			return err
		}
		out, err = h.repo.Appointments(r.Context(), tx, sess.TenantID, c)
		return err
	})
	if err != nil {
		return err
	}
	if out == nil {
		out = []Appointment{}
	}
	httpx.WriteData(w, http.StatusOK, out)
	return nil
}

func (h *Handler) invoices(w http.ResponseWriter, r *http.Request) error {
	sess, _ := SessionFrom(r.Context())
	var out []Invoice
	err := h.pool.WithTenant(r.Context(), sess.TenantID, func(tx pgx.Tx) error {
		var err error
		out, err = h.repo.Invoices(r.Context(), tx, sess.TenantID, sess.ClientID)
		return err
	})
	if err != nil {
		return err
	}
	if out == nil {
		out = []Invoice{}
	}
	httpx.WriteData(w, http.StatusOK, out)
	return nil
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	clientID, err := httpx.PathUUID(r, "id")
	if err != nil {
		return err
	}
	var out []SessionRow
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		out, err = h.repo.Sessions(r.Context(), tx, tenantID, clientID)
		return err
	})
	if err != nil {
		return err
	}
	if out == nil {
		out = []SessionRow{}
	}
	httpx.WriteData(w, http.StatusOK, out)
	return nil
}

// revokeSessions revokes one session when {sid} is present, otherwise all
// of the client's sessions.
func (h *Handler) revokeSessions(w http.ResponseWriter, r *http.Request) error {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		return err
	}
	clientID, err := httpx.PathUUID(r, "id")
	if err != nil {
		return err
	}
	sessionID := ""
	if r.PathValue("sid") != "" {
		if sessionID, err = httpx.PathUUID(r, "sid"); err != nil {
			return err
		}
	}
	var hashes []string
	err = h.pool.WithTenant(r.Context(), tenantID, func(tx pgx.Tx) error {
		hashes, err = h.repo.Revoke(r.Context(), tx, tenantID, clientID, sessionID)
		return err
	})
	if err != nil {
		return err
	}
	if sessionID != "" && len(hashes) == 0 {
		return apperr.NotFound("session not found or already revoked")
	}
	if err := h.sessions.Delete(r.Context(), hashes...); err != nil {
		return err
	}
	httpx.WriteData(w, http.StatusOK, map[string]int{"revoked": len(hashes)})
	return nil
}
