package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTwilioSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "AC123", user)
		require.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "+15550100", r.PostForm.Get("To"))
		require.Equal(t, "+15550199", r.PostForm.Get("From"))
		require.Equal(t, "See you at 10:00", r.PostForm.Get("Body"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	}))
	defer srv.Close()

	s := NewTwilioSender(TwilioConfig{BaseURL: srv.URL, AccountSID: "AC123", AuthToken: "secret", From: "+15550199"})
	sid, err := s.Send(context.Background(), "+15550100", "See you at 10:00")
	require.NoError(t, err)
	require.Equal(t, "SM42", sid)
}

func TestTwilioSendReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	s := NewTwilioSender(TwilioConfig{BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "t", From: "+1"})
	_, err := s.Send(context.Background(), "nope", "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "21211")
}

func TestNoopSender(t *testing.T) {
	id, err := NewNoopSender().Send(context.Background(), "+1", "x")
	require.NoError(t, err)
	require.Equal(t, "noop", id)
}
