package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"flowgraph-mcp/backend/internal/llm"
)

// HTTPMLClient is an HTTP implementation of the Embedder interface backed by
// the ML sidecar.
type HTTPMLClient struct {
	url    string
	client *http.Client
}

// NewHTTPMLClient creates a new HTTPMLClient.
func NewHTTPMLClient(url string, timeout time.Duration) *HTTPMLClient {
	return &HTTPMLClient{url: url, client: &http.Client{Timeout: timeout}}
}

// Embed returns the embedding for a given text. The sidecar may answer with a
// bare array or with {"embedding": [...]}.
func (c *HTTPMLClient) Embed(ctx context.Context, text string) ([]float32, error) {
	requestBody, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/embedding", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w: %w", llm.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get embedding: %w: status code %d", llm.ErrProviderUnavailable, resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	var embedding []float32
	if err := json.Unmarshal(raw, &embedding); err == nil {
		return embedding, nil
	}
	var wrapped struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	return wrapped.Embedding, nil
}
