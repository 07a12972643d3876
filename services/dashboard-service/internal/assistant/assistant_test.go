package assistant

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/configs"
)

const tenant = "5f0c6d0e-8f8e-4c57-9d55-0d6b1c1f2a10"

func TestParseAnswer(t *testing.T) {
	a, err := ParseAnswer("```json\n{\"reply\":\"done\",\"patch\":[{\"op\":\"replace\",\"path\":\"/business_name\",\"value\":\"Glow\"}]}\n```")
	require.NoError(t, err)
	require.Equal(t, "done", a.Reply)
	require.Contains(t, string(a.Patch), "/business_name")

	a, err = ParseAnswer(`{"reply":"nothing to change"}`)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(a.Patch))

	_, err = ParseAnswer("Sure! I changed it.")
	require.Error(t, err)
}

func TestGuard(t *testing.T) {
	ok := []string{
		`[{"op":"replace","path":"/business_name","value":"x"}]`,
		`[{"op":"add","path":"/colors/accent","value":"#ff0000"}]`,
		`[{"op":"test","path":"/user_id","value":"abc"}]`,
		`[{"op":"copy","from":"/user_id","path":"/business_name"}]`,
		`[{"op":"move","from":"/tabs/0","path":"/tabs/1"}]`,
		`[]`,
	}
	for _, raw := range ok {
		_, err := Guard(json.RawMessage(raw))
		require.NoError(t, err, raw)
	}

	bad := []struct{ raw, code string }{
		{`[{"op":"replace","path":"/user_id","value":"x"}]`, "forbidden_path"},
		{`[{"op":"replace","path":"","value":{}}]`, "forbidden_path"},
		{`[{"op":"remove","path":"/colorsx"}]`, "forbidden_path"},
		{`[{"op":"move","from":"/updated_at","path":"/business_name"}]`, "forbidden_path"},
		{`{"op":"replace"}`, "invalid_patch"},
	}
	for _, tc := range bad {
		_, err := Guard(json.RawMessage(tc.raw))
		require.Error(t, err, tc.raw)
		require.Equal(t, tc.code, apperr.As(err).Code, tc.raw)
	}
}

func TestApply(t *testing.T) {
	cfg := configs.Default(tenant)
	patch, err := Guard(json.RawMessage(`[
		{"op":"replace","path":"/business_name","value":"Glow Studio"},
		{"op":"add","path":"/colors/accent","value":"#ff8800"}
	]`))
	require.NoError(t, err)

	next, err := Apply(cfg, patch)
	require.NoError(t, err)
	require.Equal(t, "Glow Studio", next.BusinessName)
	require.Equal(t, "#ff8800", next.Colors["accent"])
	require.Equal(t, tenant, next.UserID)
	require.Equal(t, "", cfg.BusinessName, "input config is not modified")
}

func TestApplyRejectsInvalidResult(t *testing.T) {
	cfg := configs.Default(tenant)

	patch, err := Guard(json.RawMessage(`[{"op":"add","path":"/colors/accent","value":"orange"}]`))
	require.NoError(t, err)
	_, err = Apply(cfg, patch)
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, apperr.As(err).Status)

	patch, err = Guard(json.RawMessage(`[{"op":"remove","path":"/tabs/99"}]`))
	require.NoError(t, err)
	_, err = Apply(cfg, patch)
	require.Equal(t, "patch_failed", apperr.As(err).Code)
}

func TestApplyRenumbersStages(t *testing.T) {
	cfg := configs.Default(tenant)
	require.GreaterOrEqual(t, len(cfg.PipelineStages), 2)
	patch, err := Guard(json.RawMessage(`[{"op":"replace","path":"/pipeline_stages/0/order","value":40}]`))
	require.NoError(t, err)

	next, err := Apply(cfg, patch)
	require.NoError(t, err)
	for i, s := range next.PipelineStages {
		require.Equal(t, i, s.Order)
	}
}

func TestBuildMessages(t *testing.T) {
	msgs, err := BuildMessages(configs.Default(tenant), []Turn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "system", Content: "dropped"},
	}, "make it blue")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	require.Equal(t, "system", msgs[0].Role)
	require.Contains(t, msgs[0].Content, `"pipeline_stages"`)
	require.Equal(t, Message{Role: "user", Content: "make it blue"}, msgs[3])
}

func TestClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "small-model", body.Model)
		require.Equal(t, "json_object", body.ResponseFormat["type"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"reply\":\"ok\",\"patch\":[]}"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "small-model"})
	a, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "ok", a.Reply)
}

func TestClientReportsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk-wrong"})
	_, err := c.Complete(context.Background(), nil)
	require.ErrorContains(t, err, "bad key")
}

func TestClientWithoutKey(t *testing.T) {
	_, err := NewClient(ClientConfig{}).Complete(context.Background(), nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestChatHandlerGuards(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		name    string
		enabled bool
		tenant  string
		body    string
		status  int
	}{
		{"no tenant", true, "", `{"message":"hi"}`, http.StatusUnauthorized},
		{"disabled", false, tenant, `{"message":"hi"}`, http.StatusServiceUnavailable},
		{"empty message", true, tenant, `{"message":"  "}`, http.StatusBadRequest},
		{"long message", true, tenant, `{"message":"` + strings.Repeat("a", maxMessage+1) + `"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			NewHandler(nil, configs.NewRepository(), NewStore(), NewClient(ClientConfig{}), tc.enabled, logger).Register(mux)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/assistant/chat", strings.NewReader(tc.body))
			if tc.tenant != "" {
				req.Header.Set("X-Tenant-Id", tc.tenant)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func stageNames(cfg configs.BusinessConfig) []string {
	names := make([]string, len(cfg.PipelineStages))
	for i, s := range cfg.PipelineStages {
		names[i] = s.Name
	}
	return names
}

func TestApplyMoveReordersStages(t *testing.T) {
	cfg := configs.Default(tenant)
	require.Equal(t, []string{"Lead", "Contacted", "Won", "Lost"}, stageNames(cfg))
	patch, err := Guard(json.RawMessage(`[{"op":"move","from":"/pipeline_stages/3","path":"/pipeline_stages/0"}]`))
	require.NoError(t, err)

	next, err := Apply(cfg, patch)
	require.NoError(t, err)
	require.Equal(t, []string{"Lost", "Lead", "Contacted", "Won"}, stageNames(next))
	for i, s := range next.PipelineStages {
		require.Equal(t, i, s.Order)
	}
	require.True(t, next.PipelineStages[1].IsDefault, "default stays with Lead")
}

func TestApplyRemoveDefaultStage(t *testing.T) {
	cfg := configs.Default(tenant)
	patch, err := Guard(json.RawMessage(`[{"op":"remove","path":"/pipeline_stages/0"}]`))
	require.NoError(t, err)

	next, err := Apply(cfg, patch)
	require.NoError(t, err)
	require.Equal(t, []string{"Contacted", "Won", "Lost"}, stageNames(next))
	require.True(t, next.PipelineStages[0].IsDefault)
	require.Equal(t, []string{cfg.PipelineStages[0].ID}, configs.RemovedStages(cfg.PipelineStages, next.PipelineStages))
}
