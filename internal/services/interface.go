package services

import (
	"context"

	"flowgraph-mcp/backend/internal/llm"
	"flowgraph-mcp/backend/internal/vectorstore"
)

// Embedder is an interface for turning text into vectors. Both the OpenAI
// client and the ML sidecar client implement it.
type Embedder interface {
	// Embed returns the embedding for a given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

var (
	_ Embedder             = (*HTTPMLClient)(nil)
	_ Embedder             = (*CachedEmbedder)(nil)
	_ Embedder             = (*llm.OpenAIClient)(nil)
	_ llm.Generator        = (*llm.OpenAIClient)(nil)
	_ vectorstore.Embedder = Embedder(nil)
)
