package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"flowgraph-mcp/backend/internal/logging"
	"flowgraph-mcp/backend/internal/pipeline"
	"flowgraph-mcp/backend/internal/repository"
	"flowgraph-mcp/backend/internal/retrieval"
	"flowgraph-mcp/backend/internal/services"
	"flowgraph-mcp/backend/internal/vectorstore"
	"flowgraph-mcp/backend/pkg/models"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, system, user, stage string) (map[string]any, error) {
	args := m.Called(ctx, system, user, stage)
	out, _ := args.Get(0).(map[string]any)
	return out, args.Error(1)
}

type axisEmbedder struct{}

func (axisEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := []float32{0.1, 0, 0}
	if strings.Contains(strings.ToLower(text), "button") {
		vec[1] = 1
	}
	if strings.Contains(strings.ToLower(text), "banner") {
		vec[2] = 1
	}
	return vec, nil
}

func int64p(v int64) *int64 { return &v }

func newTestServer(t *testing.T, gen *MockGenerator) *Server {
	t.Helper()
	store := repository.NewMemoryStore()
	store.AddService(&models.Service{ID: 1, Slug: "permits", Name: "Permits"})
	store.AddFlow(&models.Flow{ID: 10, ServiceID: int64p(1), Slug: "apply", Name: "Apply"})
	store.AddStep(&models.Step{ID: 100, FlowID: int64p(10), Slug: "start", Name: "Start"})
	store.AddComponent(&models.UIComponent{ID: 50, Key: "btn", Type: "button", Name: "Button", Description: "Confirmation button"})
	store.AddComponent(&models.UIComponent{ID: 51, Key: "err", Type: "banner", Name: "Error banner", Description: "Shows an error banner"})
	store.AttachComponent(&models.StepComponent{ID: 1, StepID: 100, ComponentID: 50, Role: "primary"})

	logger := logging.NewNop()
	embedder := axisEmbedder{}
	searcher := vectorstore.NewBruteForceSearcher(store)
	retriever := retrieval.NewRetriever(embedder, searcher, store, logger)
	seeder := vectorstore.NewSeeder(store, store, embedder, logger)
	pipe := pipeline.New(gen, retriever, seeder, nil, pipeline.Options{NormalizeK: 5, EvaluateK: 5, MaxAttempts: 1}, logger)
	_, err := seeder.SeedMissing(context.Background())
	require.NoError(t, err)

	svc := services.NewDesignService(store, embedder, searcher, retriever, seeder, pipe, logger, time.Minute)
	return NewServer(svc, logger)
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestGetFlowBundle(t *testing.T) {
	s := newTestServer(t, new(MockGenerator))
	ctx := context.Background()

	res, err := s.handleGetFlowBundle(ctx, call("get_flow_bundle", map[string]any{"flow_slug": "apply"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	var bundle models.FlowBundle
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &bundle))
	assert.Equal(t, "permits", bundle.Service.Slug)
	assert.Len(t, bundle.Steps, 1)

	res, err = s.handleGetFlowBundle(ctx, call("get_flow_bundle", map[string]any{"flow_slug": "ghost"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "not found")

	res, err = s.handleGetFlowBundle(ctx, call("get_flow_bundle", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestGetStepDetails(t *testing.T) {
	s := newTestServer(t, new(MockGenerator))

	res, err := s.handleGetStepDetails(context.Background(), call("get_step_details", map[string]any{"step_slug": "start"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var details models.StepDetails
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &details))
	require.Len(t, details.Components, 1)
	assert.Equal(t, "btn", details.Components[0].Key)
}

func TestListComponents(t *testing.T) {
	s := newTestServer(t, new(MockGenerator))

	res, err := s.handleListComponents(context.Background(), call("list_ui_components", map[string]any{"type": "banner"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var out struct {
		Components []models.UIComponent `json:"components"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	require.Len(t, out.Components, 1)
	assert.Equal(t, "err", out.Components[0].Key)

	var noArgs mcp.CallToolRequest
	res, err = s.handleListComponents(context.Background(), noArgs)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Len(t, out.Components, 2)
}

func TestSemanticSearchComponents(t *testing.T) {
	s := newTestServer(t, new(MockGenerator))

	res, err := s.handleSemanticSearch(context.Background(), call("semantic_search_components", map[string]any{
		"query": "error banner", "top_k": float64(1),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var out struct {
		Components []models.ComponentHit `json:"components"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	require.Len(t, out.Components, 1)
	assert.Equal(t, "err", out.Components[0].ComponentKey)

	res, err = s.handleSemanticSearch(context.Background(), call("semantic_search_components", map[string]any{"query": " "}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestBuildGraph(t *testing.T) {
	s := newTestServer(t, new(MockGenerator))
	bundle := map[string]any{
		"steps":       []any{map[string]any{"slug": "a"}, map[string]any{"slug": "b"}},
		"transitions": []any{map[string]any{"from_step_slug": "a", "to_step_slug": "b"}},
	}
	encoded, err := json.Marshal(bundle)
	require.NoError(t, err)

	for name, arg := range map[string]any{"object": bundle, "json string": string(encoded)} {
		t.Run(name, func(t *testing.T) {
			res, err := s.handleBuildGraph(context.Background(), call("build_ui_graph_from_bundle", map[string]any{"normalized_bundle": arg}))
			require.NoError(t, err)
			require.False(t, res.IsError)
			var g models.UIGraph
			require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &g))
			assert.Len(t, g.Nodes, 2)
			assert.Len(t, g.Edges, 1)
			assert.Empty(t, g.Warnings)
		})
	}

	res, err := s.handleBuildGraph(context.Background(), call("build_ui_graph_from_bundle", map[string]any{"normalized_bundle": "not json"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestBuildContext(t *testing.T) {
	s := newTestServer(t, new(MockGenerator))

	res, err := s.handleBuildContext(context.Background(), call("build_context", map[string]any{"query": "confirm button", "k": float64(1)}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	text := resultText(t, res)
	assert.True(t, strings.HasPrefix(text, "[COMP btn:Button]"), text)
	assert.NotContains(t, text, "\n")
}

func TestGenerateScreens(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything, "propose").Return(map[string]any{}, nil)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything, "normalize").Return(map[string]any{
		"service": map[string]any{"slug": "permits"},
		"steps":   []any{map[string]any{"slug": "start", "name": "Start"}},
	}, nil)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything, "evaluate").Return(map[string]any{}, nil)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything, "specify_screens").Return(map[string]any{
		"screen_flows": []any{map[string]any{"id": "main"}},
		"screens":      []any{map[string]any{"id": "start"}},
	}, nil)
	s := newTestServer(t, gen)

	res, err := s.handleGenerateScreens(context.Background(), call("generate_screens_only", map[string]any{"brd": "Apply for a permit"}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	for _, key := range []string{"service", "ui_graph", "screen_flows", "screens", "global_mermaid"} {
		assert.Contains(t, out, key)
	}

	res, err = s.handleGenerateScreens(context.Background(), call("generate_screens_only", map[string]any{"brd": ""}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRegisteredTools(t *testing.T) {
	s := newTestServer(t, new(MockGenerator))
	tools := s.GetMCPServer().ListTools()
	for _, name := range []string{
		"generate_screens_only", "get_flow_bundle", "get_step_details", "list_ui_components",
		"semantic_search_components", "build_ui_graph_from_bundle", "build_context",
	} {
		assert.Contains(t, tools, name)
	}
}
