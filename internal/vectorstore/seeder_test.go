package vectorstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgraph-mcp/backend/internal/logging"
	"flowgraph-mcp/backend/internal/repository"
	"flowgraph-mcp/backend/pkg/models"
)

// fakeEmbedder maps text to a deterministic vector and can fail on demand.
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("provider unavailable")
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func int64p(v int64) *int64 { return &v }

func seededStore() *repository.MemoryStore {
	s := repository.NewMemoryStore()
	s.AddDocument(&models.Document{ID: 1, DocType: "BRD-v2", Title: "Permit BRD", Body: "Citizens apply online."})
	s.AddDocument(&models.Document{ID: 2, DocType: "guideline", Title: "Buttons", Body: "Use one primary button."})
	s.AddDocument(&models.Document{ID: 3, DocType: "guideline", Title: " ", Body: ""})
	s.AddFlow(&models.Flow{ID: 10, Slug: "apply", Name: "Apply", Goal: "Submit"})
	s.AddStep(&models.Step{ID: 100, FlowID: int64p(10), Slug: "start", Name: "Start"})
	s.AddComponent(&models.UIComponent{ID: 50, Key: "btn", Name: "Button", Type: "button"})
	return s
}

func TestSeedMissing_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	emb := &fakeEmbedder{}
	seeder := NewSeeder(store, store, emb, logging.NewNop())

	first, err := seeder.SeedMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Created)
	assert.Equal(t, 1, first.Empty)
	assert.Equal(t, 5, first.Total)

	callsAfterFirst := emb.calls
	second, err := seeder.SeedMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 5, second.Skipped)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, callsAfterFirst, emb.calls, "no embeddings computed for existing records")
}

func TestSeedMissing_SkipsFailedItemsAndResumes(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	emb := &fakeEmbedder{failOn: "Flow apply"}
	seeder := NewSeeder(store, store, emb, logging.NewNop())

	report, err := seeder.SeedMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 4, report.Created)

	emb.failOn = ""
	report, err = seeder.SeedMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 5, report.Total)
}

func TestSeedMissing_ConcurrentPassesDoNotDuplicate(t *testing.T) {
	ctx := context.Background()
	store := seededStore()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := NewSeeder(store, store, &fakeEmbedder{}, logging.NewNop()).SeedMissing(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := store.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestSummaries(t *testing.T) {
	doc := documentRecord(&models.Document{ID: 1, DocType: "brd", Title: "Title", Body: "Body text."})
	assert.Equal(t, models.VariantBRDSummary, doc.Variant)
	assert.Equal(t, "Title. Body text", doc.Content)

	noBody := documentRecord(&models.Document{ID: 2, DocType: "style", Title: "Only title"})
	assert.Equal(t, models.VariantGuidelineSummary, noBody.Variant)
	assert.Equal(t, "Only title", noBody.Content)

	flow := flowRecord(&models.Flow{ID: 3, Slug: "apply", Name: "Apply", Goal: "Submit", Notes: " "})
	assert.Equal(t, "Flow apply (Apply). Goal: Submit", flow.Content)
	assert.Equal(t, int64(3), *flow.FlowID)

	step := stepRecord(&models.Step{ID: 4, Slug: "start", Name: "Start", Purpose: "Intro"})
	assert.True(t, strings.HasPrefix(step.Content, "Step start (Start): purpose=Intro. User_actions=. "))
	assert.Equal(t, int64(4), *step.StepID)

	comp := componentRecord(&models.UIComponent{ID: 5, Key: "btn", Name: "Button", Type: "button", Description: "Acts"})
	assert.Equal(t, "Component btn (Button): type=button. Description=Acts. Usage=. Process_code=", comp.Content)
}
