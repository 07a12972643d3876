package configs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/pipeline"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("u1")
	require.NoError(t, cfg.Validate())
	require.NotEmpty(t, cfg.Tabs)
	def, ok := pipeline.Default(cfg.PipelineStages)
	require.True(t, ok)
	require.Equal(t, "Lead", def.Name)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*BusinessConfig){
		"bad color":      func(c *BusinessConfig) { c.Colors["primary"] = "blue" },
		"duplicate tab":  func(c *BusinessConfig) { c.Tabs = append(c.Tabs, c.Tabs[0]) },
		"empty tab id":   func(c *BusinessConfig) { c.Tabs[0].ID = "" },
		"component type": func(c *BusinessConfig) { c.Tabs[0].Components[0].Type = "" },
		"stage name":     func(c *BusinessConfig) { c.PipelineStages[0].Name = "" },
		"settings array": func(c *BusinessConfig) { c.BookingSettings = json.RawMessage(`[1]`) },
	}
	for name, mutate := range cases {
		cfg := Default("u1")
		mutate(&cfg)
		err := cfg.Validate()
		require.Error(t, err, name)
		require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err), name)
	}
}

func TestValidateRenumbersInSliceOrder(t *testing.T) {
	cfg := Default("u1")
	cfg.PipelineStages = []pipeline.Stage{
		{ID: "b", Name: "B", Order: 7},
		{ID: "a", Name: "A", Order: 2},
	}
	cfg.BookingSettings = json.RawMessage(`null`)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "b", cfg.PipelineStages[0].ID)
	require.Equal(t, 0, cfg.PipelineStages[0].Order)
	require.Equal(t, 1, cfg.PipelineStages[1].Order)
	require.True(t, cfg.PipelineStages[0].IsDefault)
	require.Nil(t, cfg.BookingSettings)
}

// execTx records Exec calls; every other pgx.Tx method is unused here.
type execTx struct {
	pgx.Tx
	args [][]any
}

func (tx *execTx) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	tx.args = append(tx.args, args)
	return pgconn.NewCommandTag("UPDATE 2"), nil
}

func TestReassignRemovedMovesRecordsToNewDefault(t *testing.T) {
	prev := Default("u1").PipelineStages
	next := pipeline.Normalize([]pipeline.Stage{prev[2], prev[3]})

	require.Equal(t, []string{prev[0].ID, prev[1].ID}, RemovedStages(prev, next))

	tx := &execTx{}
	moved, err := NewRepository().ReassignRemoved(context.Background(), tx, "u1", prev, next)
	require.NoError(t, err)
	require.EqualValues(t, 4, moved)
	require.Equal(t, [][]any{
		{"u1", prev[0].ID, prev[2].ID},
		{"u1", prev[1].ID, prev[2].ID},
	}, tx.args)
}

func TestReassignRemovedClearsWhenNoStagesLeft(t *testing.T) {
	prev := Default("u1").PipelineStages[:1]
	tx := &execTx{}
	_, err := NewRepository().ReassignRemoved(context.Background(), tx, "u1", prev, []pipeline.Stage{})
	require.NoError(t, err)
	require.Equal(t, [][]any{{"u1", prev[0].ID, ""}}, tx.args)
}

func TestReassignRemovedSkipsUnchangedStages(t *testing.T) {
	prev := Default("u1").PipelineStages
	moved := pipeline.Normalize([]pipeline.Stage{prev[3], prev[0], prev[1], prev[2]})
	tx := &execTx{}
	n, err := NewRepository().ReassignRemoved(context.Background(), tx, "u1", prev, moved)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, tx.args)
}

func TestMerge(t *testing.T) {
	cfg := Default("u1")
	out, err := Merge(cfg, map[string]json.RawMessage{
		"business_name": json.RawMessage(`"Bloom Studio"`),
		"colors":        json.RawMessage(`{"primary":"#000000"}`),
	})
	require.NoError(t, err)
	require.Equal(t, "Bloom Studio", out.BusinessName)
	require.Equal(t, map[string]string{"primary": "#000000"}, out.Colors)
	require.Equal(t, cfg.Tabs, out.Tabs)
	require.Equal(t, "u1", out.UserID)

	_, err = Merge(cfg, map[string]json.RawMessage{"user_id": json.RawMessage(`"other"`)})
	require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	_, err = Merge(cfg, map[string]json.RawMessage{"tabs": json.RawMessage(`"nope"`)})
	require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	_, err = Merge(cfg, nil)
	require.Error(t, err)
}

func TestOnboard(t *testing.T) {
	cfg := Onboard("u1", "Cut & Color", "Salon", map[string]string{"accent": "#abcdef"})
	require.NoError(t, cfg.Validate())
	require.Equal(t, "salon", cfg.Industry)
	require.Equal(t, "#db2777", cfg.Colors["primary"])
	require.Equal(t, "#abcdef", cfg.Colors["accent"])
	require.Len(t, cfg.PipelineStages, 4)

	generic := Onboard("u1", "Acme", "spaceships", nil)
	require.Equal(t, "spaceships", generic.Industry)
	require.Equal(t, "Lead", generic.PipelineStages[0].Name)
}

func TestRoutesRequireTenant(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(nil, NewRepository(), slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/v1/dashboard/config", ""},
		{http.MethodPatch, "/api/v1/dashboard/config", `{"business_name":"x"}`},
		{http.MethodPost, "/api/v1/dashboard/pipeline/stages", `{"name":"x"}`},
		{http.MethodDelete, "/api/v1/dashboard/pipeline/stages/abc", ""},
	} {
		var body io.Reader
		if tc.body != "" {
			body = strings.NewReader(tc.body)
		}
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, body))
		require.Equal(t, http.StatusUnauthorized, rr.Code, tc.method+" "+tc.path)
	}
}
