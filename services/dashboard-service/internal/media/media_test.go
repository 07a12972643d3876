package media

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const tenant = "5f0c6d0e-8f8e-4c57-9d55-0d6b1c1f2a10"

func TestSafeName(t *testing.T) {
	require.Equal(t, "My-Photo-1-.jpg", SafeName("../../My Photo (1).jpg"))
	require.Equal(t, "evil.png", SafeName(`C:\Users\x\evil.png`))
	require.Equal(t, "file", SafeName("///"))
	require.Len(t, SafeName(strings.Repeat("a", 300)+".mp4"), 100)
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey(tenant, "cut.jpg")
	require.True(t, strings.HasPrefix(key, "tenant/"+tenant+"/"))
	require.True(t, strings.HasSuffix(key, "-cut.jpg"))
	require.NotEqual(t, key, ObjectKey(tenant, "cut.jpg"))
}

func TestCheckContentType(t *testing.T) {
	ct, err := CheckContentType("image/png; charset=binary")
	require.NoError(t, err)
	require.Equal(t, "image/png", ct)

	_, err = CheckContentType("video/mp4")
	require.NoError(t, err)

	_, err = CheckContentType("application/pdf")
	require.Error(t, err)
	_, err = CheckContentType("")
	require.Error(t, err)
}

func newHandler(t *testing.T) *Handler {
	t.Helper()
	cfg := Config{Endpoint: "localhost:9000", AccessKey: "minio", SecretKey: "minio123", Bucket: "media", MaxBytes: 1 << 20}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return NewHandler(client, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func post(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/media/uploads", strings.NewReader(body))
	req.Header.Set("X-Tenant-Id", tenant)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPresign(t *testing.T) {
	rec := post(t, newHandler(t), `{"filename":"logo.png","content_type":"image/png","size_bytes":2048}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data uploadResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, http.MethodPut, resp.Data.Method)
	require.Equal(t, "image/png", resp.Data.Headers["Content-Type"])
	require.Equal(t, "http://localhost:9000/media/"+resp.Data.ObjectKey, resp.Data.PublicURL)

	u, err := url.Parse(resp.Data.UploadURL)
	require.NoError(t, err)
	require.Equal(t, "/media/"+resp.Data.ObjectKey, u.Path)
	require.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
}

func TestPresignRejects(t *testing.T) {
	h := newHandler(t)
	cases := []struct {
		body string
		want int
	}{
		{`{"content_type":"image/png"}`, http.StatusBadRequest},
		{`{"filename":"a.pdf","content_type":"application/pdf"}`, http.StatusUnprocessableEntity},
		{`{"filename":"a.mp4","content_type":"video/mp4","size_bytes":2097152}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, post(t, h, tc.body).Code, tc.body)
	}
}

func TestPresignWithoutStorage(t *testing.T) {
	h := NewHandler(nil, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Equal(t, http.StatusServiceUnavailable, post(t, h, `{}`).Code)
}
