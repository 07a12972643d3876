package social

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGraphPublishFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v19.0/123/feed", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "hello", r.PostForm.Get("message"))
		require.Equal(t, "page-token", r.PostForm.Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"123_456"}`)
	}))
	defer srv.Close()

	id, err := NewGraph(srv.URL+"/v19.0", time.Second).Publish(context.Background(), "123", "page-token", "hello", "")
	require.NoError(t, err)
	require.Equal(t, "123_456", id)
}

func TestGraphPublishPhoto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/123/photos", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "https://cdn.example.com/a.jpg", r.PostForm.Get("url"))
		require.Equal(t, "new menu", r.PostForm.Get("caption"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"photo1","post_id":"123_789"}`)
	}))
	defer srv.Close()

	id, err := NewGraph(srv.URL, time.Second).Publish(context.Background(), "123", "t", "new menu", "https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	require.Equal(t, "123_789", id)
}

func TestGraphError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid OAuth access token.","code":190}}`)
	}))
	defer srv.Close()

	_, err := NewGraph(srv.URL, time.Second).Publish(context.Background(), "123", "t", "x", "")
	var ge *GraphError
	require.ErrorAs(t, err, &ge)
	require.Equal(t, 190, ge.Code)
	require.Equal(t, http.StatusBadRequest, ge.Status)
	require.Contains(t, ge.Error(), "Invalid OAuth")
}

func TestPublishRouteValidates(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	NewHandler(nil, NewRepository(), nil, logger).Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/social_posts/abc/publish", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/social_posts/abc/publish", nil)
	req.Header.Set("X-Tenant-Id", "5f0c6d0e-8f8e-4c57-9d55-0d6b1c1f2a10")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublisherDefaults(t *testing.T) {
	p := NewPublisher(nil, NewRepository(), NewGraph("", 0), slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})
	require.Equal(t, 30*time.Second, p.interval)
	require.Equal(t, 20, p.batchSize)
	require.Equal(t, 10*time.Minute, p.stale)
}
