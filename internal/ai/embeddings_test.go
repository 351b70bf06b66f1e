package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddingClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "text-embedding-3-small", req.Model)
		require.Equal(t, "hello", req.Input)

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	c := NewEmbeddingClient(srv.URL, "test-key", "text-embedding-3-small", 3)
	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, 3)
}

func TestEmbeddingClient_UpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewEmbeddingClient(srv.URL, "k", "m", 3)
	_, err := c.Embed(context.Background(), "hello")

	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	require.Equal(t, http.StatusTooManyRequests, uerr.Status)
	require.Equal(t, "embeddings", uerr.Service)
}

func TestEmbeddingClient_EmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer srv.Close()

	c := NewEmbeddingClient(srv.URL, "k", "m", 3)
	_, err := c.Embed(context.Background(), "hello")

	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	require.Contains(t, uerr.Message, "empty response")
}

func TestEmbeddingClient_DimensionMismatchRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2}}},
		})
	}))
	defer srv.Close()

	c := NewEmbeddingClient(srv.URL, "k", "m", 3)
	_, err := c.Embed(context.Background(), "hello")

	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	require.Contains(t, uerr.Message, "dimension mismatch")
}
