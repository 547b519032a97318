package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgraph-mcp/backend/pkg/models"
)

func ptr(v int64) *int64 { return &v }

func newFixtureStore() *MemoryStore {
	s := NewMemoryStore()
	s.AddService(&models.Service{ID: 1, Slug: "permits", Name: "Building permits"})
	s.AddFlow(&models.Flow{ID: 10, ServiceID: ptr(1), Slug: "apply", Name: "Apply"})
	s.AddStep(&models.Step{ID: 100, FlowID: ptr(10), Slug: "start", Name: "Start"})
	s.AddStep(&models.Step{ID: 101, FlowID: ptr(10), Slug: "details", Name: "Details"})
	s.AddTransition(&models.Transition{ID: 1000, FlowID: ptr(10), FromStepID: 100, ToStepID: 101, Trigger: "Continue"})
	s.AddComponent(&models.UIComponent{ID: 50, Key: "btn-primary", Type: "button", Name: "Primary button"})
	s.AddComponent(&models.UIComponent{ID: 51, Key: "text-input", Type: "input", Name: "Text input", UsageNotes: "Short answers"})
	s.AttachComponent(&models.StepComponent{ID: 500, StepID: 100, ComponentID: 50, Role: "primary"})
	s.AddDocument(&models.Document{ID: 7, DocType: "brd", Title: "Permit BRD"})
	return s
}

func TestMemoryStore_InsertEmbeddingsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := func() *models.EmbeddingRecord {
		return &models.EmbeddingRecord{SourceType: models.SourceTypeFlow, SourceID: 1, Variant: models.VariantFlowSummary, Vector: []float32{1, 2}}
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.InsertEmbeddings(ctx, []*models.EmbeddingRecord{rec()})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := s.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_ListEmbeddingsPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.InsertEmbeddings(ctx, []*models.EmbeddingRecord{
		{SourceType: models.SourceTypeStep, SourceID: 2, Variant: models.VariantStepDescription},
		{SourceType: models.SourceTypeFlow, SourceID: 1, Variant: models.VariantFlowSummary},
		{SourceType: models.SourceTypeStep, SourceID: 1, Variant: models.VariantStepDescription},
	})
	require.NoError(t, err)

	recs, err := s.ListEmbeddings(ctx, []models.ContentVariant{models.VariantStepDescription})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[0].SourceID)
	assert.Equal(t, int64(1), recs[1].SourceID)
}

func TestMemoryStore_Catalog(t *testing.T) {
	ctx := context.Background()
	s := newFixtureStore()

	bundle, err := s.GetFlowBundle(ctx, "apply")
	require.NoError(t, err)
	assert.Equal(t, "permits", bundle.Service.Slug)
	assert.Len(t, bundle.Steps, 2)
	assert.Len(t, bundle.Transitions, 1)
	assert.Len(t, bundle.UIComponents, 1)

	details, err := s.GetStepDetails(ctx, "details")
	require.NoError(t, err)
	assert.Len(t, details.IncomingTransitions, 1)
	assert.Empty(t, details.Components)

	comps, err := s.SearchComponents(ctx, "", "short")
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, "text-input", comps[0].Key)

	_, err = s.GetStepDetails(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	label, err := s.LookupLabel(ctx, models.SourceTypeDocument, 7)
	require.NoError(t, err)
	assert.Equal(t, "DOC", label.Kind)
	assert.Equal(t, "brd", label.Code)

	_, err = s.LookupLabel(ctx, models.SourceType("other"), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
