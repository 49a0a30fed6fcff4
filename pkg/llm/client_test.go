package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientGenerateRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/generate", r.URL.Path)

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gemini-pro", req.Model)
		require.Equal(t, 2000, req.MaxTokens)

		_ = json.NewEncoder(w).Encode(Response{
			Model:    req.Model,
			Content:  "graded",
			Provider: ProviderGoogle,
			Usage:    Usage{TotalTokens: 10},
		})
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL + "/", Timeout: time.Second})
	resp, err := client.Generate(context.Background(), Request{
		Model:     "gemini-pro",
		Messages:  []Message{{Role: RoleUser, Content: "grade"}},
		MaxTokens: 2000,
	})
	require.NoError(t, err)
	require.Equal(t, "graded", resp.Content)
	require.Equal(t, ProviderGoogle, resp.Provider)
}

func TestClientGenerateSurfacesGatewayDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Model 'nope' not available. Use /models endpoint to see available models."}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := client.Generate(context.Background(), Request{Model: "nope"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "gateway", apiErr.Provider)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Contains(t, apiErr.Message, "Model 'nope' not available")
}

func TestClientListModelsIsCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		atomic.AddInt32(&hits, 1)
		_ = json.NewEncoder(w).Encode(DefaultModels()[:2])
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, ModelsCacheTTL: time.Minute})

	first, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestClientListModelsDoesNotCacheFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(DefaultModels()[:1])
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL})

	_, err := client.ListModels(context.Background())
	require.Error(t, err)

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
}

func TestClientHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Health{Status: "healthy", Service: "llm-gateway", AvailableModels: 10})
	}))
	defer srv.Close()

	health, err := NewClient(ClientConfig{BaseURL: srv.URL}).Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "healthy", health.Status)
	require.Equal(t, 10, health.AvailableModels)
}
