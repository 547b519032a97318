package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"flowgraph-mcp/backend/internal/llm"
	"flowgraph-mcp/backend/internal/logging"
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

type fakeRetriever struct {
	mu sync.Mutex
	ks []int
}

func (f *fakeRetriever) BuildContext(ctx context.Context, query string, k int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ks = append(f.ks, k)
	return "[FLOW apply:Apply] (similarity=0.900) :: Flow apply (Apply)", nil
}

type countingSeeder struct{ calls int }

func (s *countingSeeder) SeedMissing(ctx context.Context) (*vectorstore.SeedReport, error) {
	s.calls++
	return &vectorstore.SeedReport{}, nil
}

var testOptions = Options{
	NormalizeK:     20,
	EvaluateK:      30,
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     2 * time.Millisecond,
	SeedOnRun:      true,
}

func normalizedBundle() map[string]any {
	return map[string]any{
		"service": map[string]any{"slug": "permits", "name": "Permits"},
		"flows":   []any{map[string]any{"slug": "apply"}},
		"steps": []any{
			map[string]any{"slug": "a", "name": "Start"},
			map[string]any{"slug": "b", "name": "End"},
		},
		"transitions": []any{map[string]any{"from_step_slug": "a", "to_step_slug": "b", "trigger": "tap"}},
	}
}

func stageArg(stage Stage) any {
	return mock.MatchedBy(func(s string) bool { return s == string(stage) })
}

func TestRun_Success(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, proposeSystem, mock.Anything, string(StagePropose)).
		Return(map[string]any{"flows": []any{}, "steps": []any{}}, nil).Once()
	gen.On("Generate", mock.Anything, normalizeSystem, mock.MatchedBy(func(u string) bool {
		return strings.Contains(u, "[FLOW apply:Apply]") && strings.Contains(u, "permit please")
	}), string(StageNormalize)).Return(normalizedBundle(), nil).Once()
	gen.On("Generate", mock.Anything, evaluateSystem, mock.Anything, string(StageEvaluate)).
		Return(map[string]any{"workflows": []any{map[string]any{"flow_slug": "apply"}}}, nil).Once()
	gen.On("Generate", mock.Anything, screensSystem, mock.MatchedBy(func(u string) bool {
		return strings.Contains(u, `"mermaid": "flowchart TD`)
	}), string(StageScreens)).Return(map[string]any{
		"screen_flows": []any{"apply"},
		"screens":      []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}},
	}, nil).Once()

	retriever := &fakeRetriever{}
	seeder := &countingSeeder{}
	p := New(gen, retriever, seeder, NewFileArtifactWriter(t.TempDir()), testOptions, logging.NewNop())

	result, err := p.Run(context.Background(), "permit please")
	require.NoError(t, err)

	gen.AssertExpectations(t)
	assert.Equal(t, 1, seeder.calls)
	assert.Equal(t, []int{20, 30}, retriever.ks)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "permits", result.Screens.Service["slug"])
	assert.Len(t, result.Screens.Screens, 2)
	assert.Len(t, result.Screens.UIGraph.Nodes, 2)
	assert.Equal(t, result.Screens.UIGraph.Mermaid, result.Screens.GlobalMermaid)
	assert.Contains(t, result.Screens.GlobalMermaid, "a -->|tap| b")
	assert.Len(t, result.Evaluation["workflows"], 1)
}

func TestRun_EmptyInput(t *testing.T) {
	gen := new(MockGenerator)
	seeder := &countingSeeder{}
	p := New(gen, &fakeRetriever{}, seeder, nil, testOptions, logging.NewNop())

	_, err := p.Run(context.Background(), " \n\t")
	assert.ErrorIs(t, err, ErrEmptyInput)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Zero(t, seeder.calls)
}

func TestRun_RetriesMalformedOutput(t *testing.T) {
	dir := t.TempDir()
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything, stageArg(StagePropose)).
		Return(nil, &llm.MalformedOutputError{Stage: "propose", Raw: "not json", Err: errors.New("bad")}).Once()
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything, stageArg(StagePropose)).
		Return(map[string]any{}, nil).Once()
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything, stageArg(StageNormalize)).
		Return(normalizedBundle(), nil).Once()
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything, stageArg(StageEvaluate)).
		Return(map[string]any{}, nil).Once()
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything, stageArg(StageScreens)).
		Return(map[string]any{}, nil).Once()

	p := New(gen, &fakeRetriever{}, nil, NewFileArtifactWriter(dir), testOptions, logging.NewNop())
	result, err := p.Run(context.Background(), "brd")
	require.NoError(t, err)
	assert.Empty(t, result.Screens.Screens)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "malformed-propose-"))
}

func TestRun_FailsAfterMaxAttempts(t *testing.T) {
	dir := t.TempDir()
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything, stageArg(StagePropose)).
		Return(map[string]any{}, nil).Once()
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything, stageArg(StageNormalize)).
		Return(nil, &llm.MalformedOutputError{Stage: "normalize", Raw: "```oops", Err: errors.New("bad")})

	p := New(gen, &fakeRetriever{}, nil, NewFileArtifactWriter(dir), testOptions, logging.NewNop())
	result, err := p.Run(context.Background(), "brd")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, llm.IsMalformed(err))

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageNormalize, stageErr.Stage)
	assert.Equal(t, 3, stageErr.Attempts)
	assert.Equal(t, "```oops", stageErr.Raw)

	raw, err := os.ReadFile(stageErr.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, "```oops", string(raw))
	gen.AssertNumberOfCalls(t, "Generate", 4)
}

func TestRun_ProviderErrorIsNotRetried(t *testing.T) {
	gen := new(MockGenerator)
	providerErr := errors.Join(llm.ErrProviderUnavailable, errors.New("connection refused"))
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything, stageArg(StagePropose)).
		Return(nil, providerErr)

	p := New(gen, &fakeRetriever{}, nil, nil, testOptions, logging.NewNop())
	_, err := p.Run(context.Background(), "brd")

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StagePropose, stageErr.Stage)
	assert.Equal(t, 1, stageErr.Attempts)
	assert.ErrorIs(t, err, llm.ErrProviderUnavailable)
	gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestAssembleScreens_Defaults(t *testing.T) {
	res := AssembleScreens(map[string]any{}, &models.UIGraph{Mermaid: "flowchart TD"}, map[string]any{"screens": "not a list"})
	assert.Equal(t, map[string]any{}, res.Service)
	assert.Equal(t, []any{}, res.Screens)
	assert.Equal(t, []any{}, res.ScreenFlows)
	assert.Equal(t, "flowchart TD", res.GlobalMermaid)
}
