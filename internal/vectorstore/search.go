package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"flowgraph-mcp/backend/internal/repository"
	"flowgraph-mcp/backend/pkg/models"
)

// Searcher finds the stored records nearest to a query vector.
type Searcher interface {
	// Search returns at most k records whose variant is in variants, ordered
	// by descending cosine similarity.
	Search(ctx context.Context, query []float32, variants []models.ContentVariant, k int) ([]models.ScoredRecord, error)
}

// BruteForceSearcher scores every matching record. This is a linear scan,
// fine for a corpus of a few thousand records.
type BruteForceSearcher struct {
	store repository.EmbeddingStore
}

// NewBruteForceSearcher creates a new BruteForceSearcher.
func NewBruteForceSearcher(store repository.EmbeddingStore) *BruteForceSearcher {
	return &BruteForceSearcher{store: store}
}

// Search implements Searcher. Equal similarities are ordered by source type,
// source id and variant, ascending.
func (s *BruteForceSearcher) Search(ctx context.Context, query []float32, variants []models.ContentVariant, k int) ([]models.ScoredRecord, error) {
	if k <= 0 {
		return []models.ScoredRecord{}, nil
	}
	records, err := s.store.ListEmbeddings(ctx, variants)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}

	scored := make([]models.ScoredRecord, len(records))
	for i, r := range records {
		scored[i] = models.ScoredRecord{Record: r, Similarity: CosineSimilarity(query, r.Vector)}
	}
	sortScored(scored)

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func sortScored(scored []models.ScoredRecord) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Record.SourceType != b.Record.SourceType {
			return a.Record.SourceType < b.Record.SourceType
		}
		if a.Record.SourceID != b.Record.SourceID {
			return a.Record.SourceID < b.Record.SourceID
		}
		return a.Record.Variant < b.Record.Variant
	})
}
