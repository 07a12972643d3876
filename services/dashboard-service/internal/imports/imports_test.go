package imports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/crud"
)

const tenant = "5f0c6d0e-8f8e-4c57-9d55-0d6b1c1f2a10"

func recordsResource(t *testing.T) *crud.Resource {
	t.Helper()
	res, err := crud.Lookup(crud.Resources(), "records")
	require.NoError(t, err)
	return res
}

func TestParseCSV(t *testing.T) {
	raw := "\xef\xbb\xbf\n Name ,Email,Email,\nAda,ada@example.com,a2@example.com,x\n,,,\nBob\n"
	tbl, err := Parse(FormatCSV, []byte(raw))
	require.NoError(t, err)
	require.Equal(t, []string{"Name", "Email", "Email_2", "column_4"}, tbl.Headers)
	require.Equal(t, [][]string{
		{"Ada", "ada@example.com", "a2@example.com", "x"},
		{"Bob", "", "", ""},
	}, tbl.Rows)
	require.Equal(t, []map[string]string{{"Name": "Ada", "Email": "ada@example.com", "Email_2": "a2@example.com", "column_4": "x"}}, tbl.Sample(1))
}

func TestParseRejects(t *testing.T) {
	_, err := Parse(FormatCSV, []byte("\n\n"))
	require.Error(t, err)

	var b strings.Builder
	b.WriteString("name\n")
	for i := 0; i <= MaxRows; i++ {
		fmt.Fprintf(&b, "row%d\n", i)
	}
	_, err = Parse(FormatCSV, []byte(b.String()))
	require.ErrorContains(t, err, "limited")

	_, err = Parse(FormatXLSX, []byte("not a zip"))
	require.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	f, err := DetectFormat("leads.CSV", "")
	require.NoError(t, err)
	require.Equal(t, FormatCSV, f)

	f, err = DetectFormat("upload", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	require.NoError(t, err)
	require.Equal(t, FormatXLSX, f)

	_, err = DetectFormat("doc.pdf", "application/pdf")
	require.Error(t, err)
}

func TestSuggest(t *testing.T) {
	got := Suggest([]string{"Full Name", "E-Mail", "Phone Number", "Amount ($)", "Stage", "Favourite Colour", "Email Address"})
	require.Equal(t, map[string]string{
		"Full Name":        "name",
		"E-Mail":           "email",
		"Phone Number":     "phone",
		"Amount ($)":       FieldAmount,
		"Stage":            FieldStage,
		"Favourite Colour": "",
		"Email Address":    "",
	}, got)
}

func TestParseAmount(t *testing.T) {
	for in, want := range map[string]int64{
		"$1,234.50": 123450,
		"12":        1200,
		"-0.5":      -50,
		"(3.10)":    -310,
	} {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseAmount("n/a")
	require.Error(t, err)
}

func TestOptionsValidate(t *testing.T) {
	headers := []string{"a", "b"}
	require.NoError(t, Options{EntityType: "lead", Mapping: map[string]string{"a": "email", "b": ""}}.Validate(headers))
	require.Error(t, Options{Mapping: map[string]string{}}.Validate(headers))
	require.Error(t, Options{EntityType: "Lead Type"}.Validate(headers))
	require.Error(t, Options{EntityType: "lead", Mapping: map[string]string{"zzz": "email"}}.Validate(headers))
	require.Error(t, Options{EntityType: "lead", Mapping: map[string]string{"a": "email", "b": "email"}}.Validate(headers))
	require.Error(t, Options{EntityType: "lead", Mapping: map[string]string{"a": "Bad Key"}}.Validate(headers))
}

func TestBuild(t *testing.T) {
	tbl := Table{
		Headers: []string{"Name", "Email", "Budget", "Referrer"},
		Rows: [][]string{
			{"Ada", "ada@example.com", "$10", "Bob"},
			{"", "", "", "only unmapped"},
			{"Cy", "", "lots", ""},
			{"Di", "", "", ""},
		},
	}
	opts := Options{
		EntityType:   "lead",
		Mapping:      map[string]string{"Name": "name", "Email": "email", "Budget": FieldAmount},
		KeepUnmapped: true,
	}
	inputs, rep := Build(recordsResource(t), tbl, opts)
	require.Len(t, inputs, 2)
	require.Equal(t, 1, rep.Skipped)
	require.Equal(t, []RowError{{Row: 4, Message: "Budget: not a number"}}, rep.Errors)

	first := inputs[0]
	require.Equal(t, "lead", first["entity_type"])
	require.Equal(t, "Ada", first["title"])
	require.Equal(t, int64(1000), first["amount_cents"])
	var data map[string]any
	require.NoError(t, json.Unmarshal(first["data"].([]byte), &data))
	require.Equal(t, map[string]any{
		"name":  "Ada",
		"email": "ada@example.com",
		"extra": map[string]any{"Referrer": "Bob"},
	}, data)
}

func TestExportRoundTrip(t *testing.T) {
	rows := []crud.Row{
		{"id": "r1", "entity_type": "lead", "title": "Ada", "amount_cents": json.Number("1000"),
			"data": map[string]any{"email": "ada@example.com", "tags": []any{"vip"}}},
		{"id": "r2", "entity_type": "lead", "title": "Bob", "data": map[string]any{"phone": "555"}},
	}
	body, err := WriteXLSX(rows)
	require.NoError(t, err)

	tbl, err := Parse(FormatXLSX, body)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "entity_type", "title", "stage_id", "amount_cents", "created_at", "email", "phone", "tags"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	require.Equal(t, "ada@example.com", tbl.Rows[0][6])
	require.Equal(t, `["vip"]`, tbl.Rows[0][8])
	require.Equal(t, "555", tbl.Rows[1][7])
	require.Equal(t, "1000", tbl.Rows[0][4])
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newMux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(nil, recordsResource(t), nil, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)
	return mux
}

func TestPreviewHandler(t *testing.T) {
	body, ct := multipartBody(t, "leads.csv", "Name,E-mail\nAda,ada@example.com\n", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/imports/preview", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Tenant-Id", tenant)
	rec := httptest.NewRecorder()
	newMux(t).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data previewResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"Name", "E-mail"}, resp.Data.Headers)
	require.Equal(t, 1, resp.Data.TotalRows)
	require.Equal(t, "email", resp.Data.SuggestedMapping["E-mail"])
}

func TestCommitValidatesBeforeDB(t *testing.T) {
	cases := map[string]map[string]string{
		"no entity type": {},
		"bad mapping":    {"entity_type": "lead", "mapping": "[1]"},
		"unknown column": {"entity_type": "lead", "mapping": `{"Nope":"email"}`},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			body, ct := multipartBody(t, "leads.csv", "Name\nAda\n", fields)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/imports/commit", body)
			req.Header.Set("Content-Type", ct)
			req.Header.Set("X-Tenant-Id", tenant)
			rec := httptest.NewRecorder()
			newMux(t).ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestPreviewRequiresFile(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/imports/preview", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", tenant)
	rec := httptest.NewRecorder()
	newMux(t).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
