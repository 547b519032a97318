// Package llm holds the generative and embedding provider clients.
package llm

import "context"

// Generator calls a generative model for one pipeline stage and returns its
// response parsed as a JSON object.
type Generator interface {
	Generate(ctx context.Context, system, user, stage string) (map[string]any, error)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
