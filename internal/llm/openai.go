package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAIClient. Endpoint may point at any
// OpenAI-compatible API.
type OpenAIConfig struct {
	Endpoint       string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Temperature    float32
	Timeout        time.Duration
}

// OpenAIClient implements Generator and Embedder over the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIClient creates a new OpenAIClient.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		oc.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAIClient{client: openai.NewClientWithConfig(oc), cfg: cfg}
}

// Embed returns the embedding of text. Line breaks are replaced by spaces first.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.ReplaceAll(text, "\n", " ")
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
	})
	if err != nil {
		return nil, providerError("embedding request failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, providerError("embedding request failed", errors.New("no embedding returned"))
	}
	return resp.Data[0].Embedding, nil
}

// Generate sends a system and user message in JSON mode and parses the reply.
func (c *OpenAIClient) Generate(ctx context.Context, system, user, stage string) (map[string]any, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.cfg.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, providerError("chat completion failed", err)
	}

	raw := ""
	if len(resp.Choices) > 0 {
		raw = resp.Choices[0].Message.Content
	}
	obj, err := ParseObject(raw)
	if err != nil {
		return nil, &MalformedOutputError{Stage: stage, Raw: raw, Err: err}
	}
	return obj, nil
}
