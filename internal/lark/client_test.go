package lark

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendCardCachesTenantToken(t *testing.T) {
	var tokenRequests, messages int
	var lastPayload map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0, "tenant_access_token": "t-abc", "expire": 7200,
		})
	})
	mux.HandleFunc("POST /im/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer t-abc", r.Header.Get("Authorization"))
		messages++
		json.NewDecoder(r.Body).Decode(&lastPayload)
		json.NewEncoder(w).Encode(map[string]any{"code": 0})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClientWithBaseURL("app", "secret", srv.URL, slog.New(slog.DiscardHandler))

	card := WelcomeCard()
	require.NoError(t, c.SendCard(context.Background(), "oc_1", card))
	require.NoError(t, c.SendCard(context.Background(), "oc_1", card))

	assert.Equal(t, 1, tokenRequests)
	assert.Equal(t, 2, messages)
	assert.Equal(t, "oc_1", lastPayload["receive_id"])
	assert.Equal(t, "interactive", lastPayload["msg_type"])
}

func TestReplyThreadSetsRoot(t *testing.T) {
	var payload map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "tenant_access_token": "t", "expire": 7200})
	})
	mux.HandleFunc("POST /im/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		json.NewEncoder(w).Encode(map[string]any{"code": 0})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClientWithBaseURL("app", "secret", srv.URL, slog.New(slog.DiscardHandler))
	require.NoError(t, c.ReplyThread(context.Background(), "oc_1", "om_root", WelcomeCard()))

	assert.Equal(t, true, payload["reply_in_thread"])
	assert.Equal(t, "om_root", payload["root_id"])
}

func TestLarkAPIErrorCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "tenant_access_token": "t", "expire": 7200})
	})
	mux.HandleFunc("POST /im/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 99991, "msg": "invalid receive_id"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClientWithBaseURL("app", "secret", srv.URL, slog.New(slog.DiscardHandler))
	err := c.SendCard(context.Background(), "oc_bad", WelcomeCard())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "99991")
}
