package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_ChatTrimsReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req openAIChatReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gpt-4o-mini", req.Model)
		require.Equal(t, 500, req.MaxTokens)
		require.Len(t, req.Messages, 2)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "  hi there\n"}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "key", "gpt-4o-mini", 500, 0.7)
	reply, err := p.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	require.Equal(t, "hi there", reply)
}

func TestOpenAIProvider_UpstreamStatusInError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "server exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "key", "m", 0, 0)
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	require.Equal(t, http.StatusInternalServerError, uerr.Status)
	require.Contains(t, err.Error(), "status 500")
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "key", "m", 0, 0)
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	require.Contains(t, uerr.Message, "empty response")
}

func TestOpenAIProvider_StreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "key", "m", 0, 0)
	chunks, errs := p.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	var got string
	for c := range chunks {
		got += c
	}
	require.NoError(t, <-errs)
	require.Equal(t, "Hello", got)
}
