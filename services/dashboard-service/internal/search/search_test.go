package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/crud"
)

const tenant = "5f0c6d0e-8f8e-4c57-9d55-0d6b1c1f2a10"

type fakeEngine struct {
	healthy bool
	results []Result
	err     error
	calls   int
}

func (f *fakeEngine) Search(context.Context, Query) ([]Result, int64, error) {
	f.calls++
	return f.results, int64(len(f.results)), f.err
}

func (f *fakeEngine) Healthy() bool { return f.healthy }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDocumentFromRecordRow(t *testing.T) {
	row := crud.Row{
		"id":          "r1",
		"entity_type": "lead",
		"title":       "",
		"stage_id":    "new",
		"data": map[string]any{
			"company": "Acme Roofing",
			"budget":  json.Number("1200"),
			"tags":    []any{"urgent", "  "},
		},
	}
	doc := DocumentFromRow(tenant, "records", row)
	require.Equal(t, "r1", doc.ID)
	require.Equal(t, tenant, doc.UserID)
	require.Equal(t, "lead", doc.Title)
	require.Equal(t, "new", doc.StageID)
	require.Equal(t, "1200 Acme Roofing urgent", doc.Text)
}

func TestDocumentFromClientRow(t *testing.T) {
	row := crud.Row{"id": "c1", "name": "Dana", "email": "dana@example.com", "phone": nil, "tags": []any{"vip"}}
	doc := DocumentFromRow(tenant, "clients", row)
	require.Equal(t, "Dana", doc.Title)
	require.Empty(t, doc.EntityType)
	require.Equal(t, "dana@example.com vip", doc.Text)
}

func TestFilterAlwaysScopesTenant(t *testing.T) {
	require.Equal(t, []string{`user_id = "` + tenant + `"`}, Filter(Query{TenantID: tenant}))

	f := Filter(Query{TenantID: tenant, Resource: "records", EntityType: "job"})
	require.Len(t, f, 3)
	require.Equal(t, `entity_type = "job"`, f[2])
}

func TestSnippet(t *testing.T) {
	require.Equal(t, "short", snippet("  short ", 10))
	require.Equal(t, "alpha beta…", snippet("alpha beta gamma delta", 12))
}

func TestHitToResultPrefersFormattedText(t *testing.T) {
	hit := meili.Hit{
		"id":          json.RawMessage(`"r1"`),
		"resource":    json.RawMessage(`"records"`),
		"entity_type": json.RawMessage(`"job"`),
		"title":       json.RawMessage(`"Roof repair"`),
		"text":        json.RawMessage(`"full text"`),
		"_formatted":  json.RawMessage(`{"text":"…<em>roof</em>…"}`),
	}
	r := hitToResult(hit)
	require.Equal(t, Result{ID: "r1", Resource: "records", EntityType: "job", Title: "Roof repair", Snippet: "…<em>roof</em>…"}, r)

	delete(hit, "_formatted")
	require.Equal(t, "full text", hitToResult(hit).Snippet)
}

func TestFallbackSQLScopesQuery(t *testing.T) {
	sql, args := fallbackSQL(Query{TenantID: tenant, Text: "50%_off", Resource: "records", EntityType: "deal"})
	require.Equal(t, []any{tenant, `%50\%\_off%`, "deal"}, args)
	require.Contains(t, sql, "entity_type = $3")
	require.Contains(t, sql, "LIMIT $4 OFFSET $5")
	require.NotContains(t, sql, "FROM clients")

	sql, args = fallbackSQL(Query{TenantID: tenant, Text: "x"})
	require.Len(t, args, 2)
	require.Contains(t, sql, "FROM clients")
	require.Contains(t, sql, "UNION ALL")
}

func TestServiceUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &fakeEngine{healthy: true, results: []Result{{ID: "m"}}}
	fallback := &fakeEngine{results: []Result{{ID: "p"}}}
	svc := &Service{primary: primary, fallback: fallback, logger: discard()}

	resp, err := svc.Search(context.Background(), Query{TenantID: tenant, Text: "x"})
	require.NoError(t, err)
	require.Equal(t, "meilisearch", resp.Engine)
	require.Equal(t, 0, fallback.calls)
}

func TestServiceFallsBack(t *testing.T) {
	fallback := &fakeEngine{}
	for name, primary := range map[string]*fakeEngine{
		"unhealthy": {healthy: false},
		"erroring":  {healthy: true, err: errors.New("boom")},
	} {
		t.Run(name, func(t *testing.T) {
			svc := &Service{primary: primary, fallback: fallback, logger: discard()}
			resp, err := svc.Search(context.Background(), Query{TenantID: tenant, Text: "x"})
			require.NoError(t, err)
			require.Equal(t, "postgres", resp.Engine)
			require.NotNil(t, resp.Results)
		})
	}

	svc := &Service{fallback: fallback, logger: discard()}
	resp, err := svc.Search(context.Background(), Query{TenantID: tenant, Text: "x"})
	require.NoError(t, err)
	require.Equal(t, "postgres", resp.Engine)
}

func TestSearchHandlerValidation(t *testing.T) {
	h := NewHandler(&Service{fallback: &fakeEngine{}, logger: discard()}, nil, discard())
	mux := http.NewServeMux()
	h.Register(mux)

	cases := []struct {
		name   string
		url    string
		tenant string
		status int
	}{
		{"no tenant", "/api/v1/dashboard/search?q=x", "", http.StatusUnauthorized},
		{"empty q", "/api/v1/dashboard/search?q=", tenant, http.StatusBadRequest},
		{"bad resource", "/api/v1/dashboard/search?q=x&resource=invoices", tenant, http.StatusBadRequest},
		{"long q", "/api/v1/dashboard/search?q=" + strings.Repeat("a", 201), tenant, http.StatusBadRequest},
		{"ok", "/api/v1/dashboard/records/search?q=roof", tenant, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			if tc.tenant != "" {
				req.Header.Set("X-Tenant-Id", tc.tenant)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestReindexUnavailableWithoutMeili(t *testing.T) {
	h := NewHandler(&Service{fallback: &fakeEngine{}, logger: discard()}, nil, discard())
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/search/reindex", nil)
	req.Header.Set("X-Tenant-Id", tenant)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
