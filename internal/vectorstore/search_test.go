package vectorstore

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgraph-mcp/backend/internal/repository"
	"flowgraph-mcp/backend/pkg/models"
)

// unit returns a 2-d unit vector whose cosine with (1, 0) is sim.
func unit(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func TestBruteForceSearch_TopK(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	_, err := store.InsertEmbeddings(ctx, []*models.EmbeddingRecord{
		{SourceType: models.SourceTypeStep, SourceID: 1, Variant: models.VariantStepDescription, Vector: unit(0.5)},
		{SourceType: models.SourceTypeStep, SourceID: 2, Variant: models.VariantStepDescription, Vector: unit(0.9)},
		{SourceType: models.SourceTypeStep, SourceID: 3, Variant: models.VariantStepDescription, Vector: unit(0.2)},
	})
	require.NoError(t, err)

	hits, err := NewBruteForceSearcher(store).Search(ctx, []float32{1, 0}, models.RetrievalVariants, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(2), hits[0].Record.SourceID)
	assert.InDelta(t, 0.9, hits[0].Similarity, 1e-6)
	assert.Equal(t, int64(1), hits[1].Record.SourceID)
	assert.InDelta(t, 0.5, hits[1].Similarity, 1e-6)
}

func TestBruteForceSearch_FiltersAndTies(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	_, err := store.InsertEmbeddings(ctx, []*models.EmbeddingRecord{
		{SourceType: models.SourceTypeStep, SourceID: 9, Variant: models.VariantStepDescription, Vector: []float32{1, 0}},
		{SourceType: models.SourceTypeFlow, SourceID: 4, Variant: models.VariantFlowSummary, Vector: []float32{1, 0}},
		{SourceType: models.SourceTypeStep, SourceID: 3, Variant: models.VariantStepDescription, Vector: []float32{2, 0}},
		{SourceType: models.SourceTypeComponent, SourceID: 1, Variant: models.VariantComponentDescription, Vector: []float32{1, 0}},
	})
	require.NoError(t, err)
	searcher := NewBruteForceSearcher(store)

	hits, err := searcher.Search(ctx, []float32{1, 0}, []models.ContentVariant{models.VariantStepDescription, models.VariantFlowSummary}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, models.SourceTypeFlow, hits[0].Record.SourceType)
	assert.Equal(t, int64(3), hits[1].Record.SourceID)
	assert.Equal(t, int64(9), hits[2].Record.SourceID)

	hits, err = searcher.Search(ctx, []float32{1, 0}, models.RetrievalVariants, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = searcher.Search(ctx, []float32{0, 0}, models.RetrievalVariants, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0.0, hits[0].Similarity)
}
