package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/libs/auth"
	"github.com/md-rashed-zaman/bizdash/libs/httpx"
)

const secret = "test-secret"

func signed(t *testing.T, sub, tenant, role string) string {
	t.Helper()
	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		TenantID: tenant,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}, secret)
	require.NoError(t, err)
	return token
}

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-User", r.Header.Get(httpx.UserHeader))
		w.Header().Set("X-Seen-Tenant", r.Header.Get(httpx.TenantHeader))
		w.Header().Set("X-Seen-Role", r.Header.Get(httpx.RoleHeader))
		w.Header().Set("X-Seen-Path", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireRole(t *testing.T) {
	h := requireRole(echoIdentity(), "owner", "admin")

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(httpx.RoleHeader, "client")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	require.Equal(t, http.StatusForbidden, rw.Code)
	require.Contains(t, rw.Body.String(), `"success":false`)

	req = httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(httpx.RoleHeader, "owner")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)
}

func TestRequireAuthSetsIdentity(t *testing.T) {
	h := requireAuth(echoIdentity(), auth.NewVerifier(auth.VerifierConfig{HS256Secret: secret}))

	cases := []struct {
		name       string
		token      string
		wantTenant string
		wantRole   string
	}{
		{"owner is own tenant", signed(t, "u-1", "", ""), "u-1", auth.RoleOwner},
		{"staff of another tenant", signed(t, "u-2", "u-1", auth.RoleStaff), "u-1", auth.RoleStaff},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			req.Header.Set(httpx.TenantHeader, "forged")
			rw := httptest.NewRecorder()
			h.ServeHTTP(rw, req)
			require.Equal(t, http.StatusOK, rw.Code)
			require.Equal(t, tc.wantTenant, rw.Header().Get("X-Seen-Tenant"))
			require.Equal(t, tc.wantRole, rw.Header().Get("X-Seen-Role"))
		})
	}
}

func TestRequireAuthRejects(t *testing.T) {
	h := requireAuth(echoIdentity(), auth.NewVerifier(auth.VerifierConfig{HS256Secret: secret}))
	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		require.Equal(t, http.StatusUnauthorized, rw.Code, "header %q", header)
	}
}

func TestBearerTokenIsCaseInsensitive(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "bearer abc ")
	require.Equal(t, "abc", bearerToken(req))
}

// upstream records which service a request reached.
func upstream(t *testing.T, name string) *url.URL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", name)
		w.Header().Set("X-Seen-Tenant", r.Header.Get(httpx.TenantHeader))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u
}

func TestRoutes(t *testing.T) {
	mux := http.NewServeMux()
	registerRoutes(mux, upstreams{
		Dashboard: upstream(t, "dashboard"),
		Booking:   upstream(t, "booking"),
		Billing:   upstream(t, "billing"),
	}, auth.NewVerifier(auth.VerifierConfig{HS256Secret: secret}))
	gw := httptest.NewServer(mux)
	t.Cleanup(gw.Close)

	owner := signed(t, "u-1", "", "")
	client := signed(t, "c-1", "u-1", auth.RoleClient)

	cases := []struct {
		method, path, token string
		wantCode            int
		wantUpstream        string
	}{
		{http.MethodGet, "/api/v1/dashboard/config", owner, http.StatusOK, "dashboard"},
		{http.MethodGet, "/api/v1/dashboard/config", "", http.StatusUnauthorized, ""},
		{http.MethodGet, "/api/v1/dashboard/config", client, http.StatusForbidden, ""},
		{http.MethodGet, "/api/v1/booking/appointments", owner, http.StatusOK, "booking"},
		{http.MethodPost, "/api/v1/billing/checkout", owner, http.StatusOK, "billing"},
		{http.MethodPost, "/api/v1/billing/checkout", "", http.StatusUnauthorized, ""},
		{http.MethodPost, "/api/v1/billing/webhooks/stripe", "", http.StatusOK, "billing"},
		{http.MethodGet, "/api/v1/billing/checkout/session", "", http.StatusOK, "billing"},
		{http.MethodPost, "/api/v1/billing/checkout/session/ack", "", http.StatusOK, "billing"},
		{http.MethodPost, "/api/v1/public/checkout", "", http.StatusOK, "billing"},
		{http.MethodGet, "/api/v1/public/slots", "", http.StatusOK, "booking"},
		{http.MethodPost, "/api/v1/portal/login", "", http.StatusOK, "dashboard"},
	}
	for _, tc := range cases {
		req, err := http.NewRequest(tc.method, gw.URL+tc.path, nil)
		require.NoError(t, err)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		req.Header.Set(httpx.TenantHeader, "forged")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		require.Equal(t, tc.wantCode, resp.StatusCode, "%s %s", tc.method, tc.path)
		require.Equal(t, tc.wantUpstream, resp.Header.Get("X-Upstream"), "%s %s", tc.method, tc.path)
		if tc.wantUpstream != "" {
			require.NotEqual(t, "forged", resp.Header.Get("X-Seen-Tenant"), "%s %s", tc.method, tc.path)
		}
	}
}

func TestCheckoutReturnPageEscapes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/billing/success?session_id=cs_1%3C%2Fscript%3E&state=abc", nil)
	rw := httptest.NewRecorder()
	renderCheckoutReturnPage(rw, req, "Payment received", "success")

	require.Equal(t, http.StatusOK, rw.Code)
	body := rw.Body.String()
	require.Contains(t, body, "<h1>Payment received</h1>")
	require.NotContains(t, body, "cs_1</script>")
}

func TestCheckoutReturnPageWithoutSession(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/billing/cancel", nil)
	rw := httptest.NewRecorder()
	renderCheckoutReturnPage(rw, req, "Payment canceled", "cancel")
	require.Contains(t, rw.Body.String(), "Missing <code>session_id</code>")
}
