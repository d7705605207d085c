package enrichment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vscarpenter/spend-monitor/pkg/enrichment"
	"github.com/vscarpenter/spend-monitor/pkg/model"
)

func TestHTTPBackend_Invoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/complete", r.URL.Path)
		assert.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))

		var req struct {
			Model     string `json:"model"`
			Prompt    string `json:"prompt"`
			MaxTokens int    `json:"max_tokens"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "titan-text-express", req.Model)
		assert.Equal(t, 1024, req.MaxTokens)
		assert.NotEmpty(t, req.Prompt)

		json.NewEncoder(w).Encode(map[string]string{"completion": `{"summary": "ok"}`})
	}))
	defer server.Close()

	backend := enrichment.NewHTTPBackend(server.URL, "api-key", time.Second)
	completion, err := backend.Invoke(context.Background(), "analyze this",
		enrichment.InvokeParams{Model: "titan-text-express", MaxTokens: 1024, Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, `{"summary": "ok"}`, completion)
}

func TestHTTPBackend_Invoke_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "model overloaded"})
	}))
	defer server.Close()

	backend := enrichment.NewHTTPBackend(server.URL, "", time.Second)
	_, err := backend.Invoke(context.Background(), "p", enrichment.InvokeParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestHTTPBackend_Invoke_RetryableStatuses(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		backend := enrichment.NewHTTPBackend(server.URL, "", time.Second)
		_, err := backend.Invoke(context.Background(), "p", enrichment.InvokeParams{})
		require.Error(t, err)
		assert.True(t, model.IsTransient(err), "status %d must be transient", status)
		server.Close()
	}
}

func TestHTTPBackend_Invoke_ClientErrorIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	backend := enrichment.NewHTTPBackend(server.URL, "", time.Second)
	_, err := backend.Invoke(context.Background(), "p", enrichment.InvokeParams{})
	require.Error(t, err)
	assert.False(t, model.IsTransient(err))
}
