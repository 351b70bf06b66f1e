package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EmbeddingClient calls an OpenAI-compatible /embeddings endpoint and
// returns fixed-length vectors. A response whose vector size differs from
// the configured dimensionality is rejected rather than stored: mixing
// sizes would silently corrupt every later similarity ranking.
type EmbeddingClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Dims    int
	Client  *http.Client
}

type embeddingReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewEmbeddingClient(baseURL, apiKey, model string, dims int) *EmbeddingClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dims <= 0 {
		dims = 1536
	}
	return &EmbeddingClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Dims:    dims,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *EmbeddingClient) Dimensions() int { return c.Dims }

func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.Client == nil {
		return nil, errors.New("embeddings: http client is nil")
	}

	b, err := json.Marshal(embeddingReq{Model: c.Model, Input: text})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/embeddings", strings.TrimRight(c.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Service: "embeddings", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = "request failed"
		}
		return nil, &UpstreamError{Service: "embeddings", Status: resp.StatusCode, Message: msg}
	}

	var decoded embeddingResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &UpstreamError{Service: "embeddings", Message: "malformed response: " + err.Error()}
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return nil, &UpstreamError{Service: "embeddings", Message: decoded.Error.Message}
	}
	if len(decoded.Data) == 0 {
		return nil, &UpstreamError{Service: "embeddings", Message: "empty response"}
	}

	vec := decoded.Data[0].Embedding
	if len(vec) != c.Dims {
		return nil, &UpstreamError{
			Service: "embeddings",
			Message: fmt.Sprintf("dimension mismatch: got %d, want %d", len(vec), c.Dims),
		}
	}
	return vec, nil
}
