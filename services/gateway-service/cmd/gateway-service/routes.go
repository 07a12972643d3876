package main

import (
	"html/template"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/libs/auth"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
)

type upstreams struct {
	Dashboard *url.URL
	Booking   *url.URL
	Billing   *url.URL
}

// staffRoles may use the owner dashboard and billing. Clients use the
// portal.
var staffRoles = []string{auth.RoleOwner, auth.RoleAdmin, auth.RoleStaff}

func newProxy(target *url.URL) *httputil.ReverseProxy {
	p := httputil.NewSingleHostReverseProxy(target)
	p.Transport = otelhttp.NewTransport(http.DefaultTransport)
	return p
}

func registerRoutes(mux *http.ServeMux, up upstreams, verifier *auth.Verifier) {
	dashboard := newProxy(up.Dashboard)
	booking := newProxy(up.Booking)
	billing := newProxy(up.Billing)

	private := func(next http.Handler) http.Handler {
		return requireAuth(requireRole(next, staffRoles...), verifier)
	}

	registerProxy(mux, "/api/v1/dashboard", private(dashboard))
	registerProxy(mux, "/api/v1/booking", private(booking))
	// The portal authenticates its own session tokens.
	registerProxy(mux, "/api/v1/portal", anonymous(dashboard))

	registerProxy(mux, "/api/v1/public/checkout", anonymous(billing))
	registerProxy(mux, "/api/v1/public", anonymous(booking))

	// Stripe signs webhooks instead of sending a JWT, and the return page
	// polls session status before the customer has any token.
	registerProxy(mux, "/api/v1/billing/webhooks/stripe", anonymous(billing))
	registerProxy(mux, "/api/v1/billing/checkout/session", anonymous(billing))
	registerProxy(mux, "/api/v1/billing", private(billing))

	mux.HandleFunc("GET /billing/success", func(w http.ResponseWriter, r *http.Request) {
		renderCheckoutReturnPage(w, r, "Payment received", "success")
	})
	mux.HandleFunc("GET /billing/cancel", func(w http.ResponseWriter, r *http.Request) {
		renderCheckoutReturnPage(w, r, "Payment canceled", "cancel")
	})
}

// registerProxy mounts handler on the prefix and everything below it.
func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	prefix = strings.TrimSuffix(prefix, "/")
	mux.Handle(prefix, handler)
	mux.Handle(prefix+"/", handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func stripIdentity(r *http.Request) {
	r.Header.Del(httpx.UserHeader)
	r.Header.Del(httpx.TenantHeader)
	r.Header.Del(httpx.RoleHeader)
}

// anonymous forwards without identity so callers cannot forge one.
func anonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stripIdentity(r)
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[len("Bearer "):])
}

func requireAuth(next http.Handler, verifier *auth.Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stripIdentity(r)
		token := bearerToken(r)
		if token == "" {
			httpx.WriteError(w, r, nil, apperr.Unauthorized("missing or invalid Authorization header"))
			return
		}
		claims, err := verifier.Verify(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, r, nil, apperr.Unauthorized("invalid token"))
			return
		}
		r.Header.Set(httpx.UserHeader, claims.Subject)
		r.Header.Set(httpx.TenantHeader, claims.Tenant())
		r.Header.Set(httpx.RoleHeader, claims.EffectiveRole())
		next.ServeHTTP(w, r)
	})
}

func requireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := allowed[r.Header.Get(httpx.RoleHeader)]; !ok {
			httpx.WriteError(w, r, nil, apperr.Forbidden("forbidden"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

var returnPage = template.Must(template.New("return").Parse(`<!doctype html>
<html><head><meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>body{font-family:system-ui,sans-serif;margin:40px;max-width:720px;line-height:1.4}code{background:#f4f4f4;padding:2px 4px}</style>
</head><body>
<h1>{{.Title}}</h1>
{{if not .SessionID}}<p>Missing <code>session_id</code> query parameter.</p>{{else}}
<p>Session: <code>{{.SessionID}}</code></p>
<p>Status: <span id="status">checking...</span></p>
<script>
const sessionId = {{.SessionID}};
const state = {{.State}};
const mode = {{.Mode}};
async function ack() {
  if (!state) return;
  try {
    await fetch('/api/v1/billing/checkout/session/ack', {
      method: 'POST',
      headers: {'Content-Type': 'application/json'},
      body: JSON.stringify({session_id: sessionId, state: state, result: mode}),
    });
  } catch (e) {}
}
async function poll() {
  try {
    const resp = await fetch('/api/v1/billing/checkout/session?session_id=' + encodeURIComponent(sessionId), {cache: 'no-store'});
    const body = await resp.json();
    const s = resp.ok && body.data ? body.data.status : 'error';
    document.getElementById('status').textContent = s;
    if (mode === 'success' && s === 'open') setTimeout(poll, 1500);
  } catch (e) {
    document.getElementById('status').textContent = 'error';
  }
}
ack().then(poll);
</script>{{end}}
</body></html>
`))

// renderCheckoutReturnPage is where Stripe sends the customer back. It acks
// the return with the state token and polls until the webhook settles.
func renderCheckoutReturnPage(w http.ResponseWriter, r *http.Request, title, mode string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = returnPage.Execute(w, map[string]string{
		"Title":     title,
		"Mode":      mode,
		"SessionID": r.URL.Query().Get("session_id"),
		"State":     r.URL.Query().Get("state"),
	})
}
