package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"flowgraph-mcp/backend/internal/repository"
	"flowgraph-mcp/backend/pkg/models"
)

// PgvectorSearcher pushes the nearest-neighbor query into PostgreSQL using the
// pgvector cosine distance operator. Stored REAL[] vectors are cast on the fly,
// so it reads the same table the brute-force searcher does.
type PgvectorSearcher struct {
	db       *pgxpool.Pool
	fallback *BruteForceSearcher
}

// NewPgvectorSearcher creates a new PgvectorSearcher.
func NewPgvectorSearcher(db *pgxpool.Pool, store repository.EmbeddingStore) *PgvectorSearcher {
	return &PgvectorSearcher{db: db, fallback: NewBruteForceSearcher(store)}
}

// EnsureExtension installs the vector extension if it is missing.
func (s *PgvectorSearcher) EnsureExtension(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	return nil
}

// Search implements Searcher with the same ordering as BruteForceSearcher.
func (s *PgvectorSearcher) Search(ctx context.Context, query []float32, variants []models.ContentVariant, k int) ([]models.ScoredRecord, error) {
	if k <= 0 {
		return []models.ScoredRecord{}, nil
	}
	// cosine distance is undefined for a zero vector; every similarity is 0
	if CosineSimilarity(query, query) == 0 {
		return s.fallback.Search(ctx, query, variants, k)
	}

	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = string(v)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+embeddingSelect+`, 1 - (embedding::vector <=> $1::vector) AS similarity
		FROM embeddings
		WHERE content_type = ANY($2) AND cardinality(embedding) = $3
		ORDER BY embedding::vector <=> $1::vector, source_type, source_id, content_type
		LIMIT $4`,
		pgvector.NewVector(query).String(), names, len(query), k,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.ScoredRecord
	for rows.Next() {
		var (
			r          models.EmbeddingRecord
			sourceType string
			variant    string
			sim        float64
		)
		if err := rows.Scan(&r.ID, &sourceType, &r.SourceID, &r.ServiceID, &r.FlowID, &r.StepID,
			&variant, &r.Content, &r.Vector, &sim); err != nil {
			return nil, err
		}
		r.SourceType = models.SourceType(sourceType)
		r.Variant = models.ContentVariant(variant)
		out = append(out, models.ScoredRecord{Record: &r, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.ScoredRecord{}
	}
	return out, nil
}

const embeddingSelect = "id, source_type, source_id, service_id, flow_id, step_id, content_type, content, embedding"
