package vectorstore

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"flowgraph-mcp/backend/internal/repository"
	"flowgraph-mcp/backend/pkg/models"
)

func TestPgvectorSearcher(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	require.NoError(t, repository.Migrate(ctx, pool))
	store := repository.NewPostgresStore(pool)
	searcher := NewPgvectorSearcher(pool, store)
	require.NoError(t, searcher.EnsureExtension(ctx))

	_, err = store.InsertEmbeddings(ctx, []*models.EmbeddingRecord{
		{SourceType: models.SourceTypeStep, SourceID: 1, Variant: models.VariantStepDescription, Content: "a", Vector: unit(0.5)},
		{SourceType: models.SourceTypeStep, SourceID: 2, Variant: models.VariantStepDescription, Content: "b", Vector: unit(0.9)},
		{SourceType: models.SourceTypeStep, SourceID: 3, Variant: models.VariantStepDescription, Content: "c", Vector: unit(0.2)},
		{SourceType: models.SourceTypeFlow, SourceID: 4, Variant: models.VariantFlowSummary, Content: "d", Vector: unit(1)},
	})
	require.NoError(t, err)

	hits, err := searcher.Search(ctx, []float32{1, 0}, []models.ContentVariant{models.VariantStepDescription}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(2), hits[0].Record.SourceID)
	assert.InDelta(t, 0.9, hits[0].Similarity, 1e-4)
	assert.Equal(t, int64(1), hits[1].Record.SourceID)

	brute, err := NewBruteForceSearcher(store).Search(ctx, []float32{1, 0}, []models.ContentVariant{models.VariantStepDescription}, 2)
	require.NoError(t, err)
	for i := range hits {
		assert.Equal(t, brute[i].Record.SourceID, hits[i].Record.SourceID)
	}
}
