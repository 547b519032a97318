package vectorstore

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"flowgraph-mcp/backend/internal/logging"
	"flowgraph-mcp/backend/internal/repository"
	"flowgraph-mcp/backend/pkg/models"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SeedReport summarizes one seeding pass.
type SeedReport struct {
	Created int           `json:"created"`
	Skipped int           `json:"skipped"`
	Empty   int           `json:"empty"`
	Failed  int           `json:"failed"`
	Total   int           `json:"total"`
	Elapsed time.Duration `json:"elapsed"`
}

// Seeder creates the embedding records that are missing for the stored entities.
type Seeder struct {
	entities repository.EntityReader
	store    repository.EmbeddingStore
	embedder Embedder
	logger   *logging.Logger
	created  metric.Int64Counter
	failed   metric.Int64Counter
}

// NewSeeder creates a new Seeder.
func NewSeeder(entities repository.EntityReader, store repository.EmbeddingStore, embedder Embedder, logger *logging.Logger) *Seeder {
	meter := otel.Meter("flowgraph/vectorstore")
	created, _ := meter.Int64Counter("embeddings.seeded", metric.WithDescription("embedding records created by seeding"))
	failed, _ := meter.Int64Counter("embeddings.seed_failures", metric.WithDescription("entities whose embedding could not be computed"))
	return &Seeder{
		entities: entities,
		store:    store,
		embedder: embedder,
		logger:   logger,
		created:  created,
		failed:   failed,
	}
}

// SeedMissing embeds every entity summary that has no record yet and stores
// the new records in a single commit. An entity whose embedding fails is
// logged and left for the next pass. Running it again is a no-op.
func (s *Seeder) SeedMissing(ctx context.Context) (*SeedReport, error) {
	ctx, span := otel.Tracer("flowgraph/vectorstore").Start(ctx, "vectorstore.SeedMissing")
	defer span.End()
	start := time.Now()

	candidates, err := s.candidates(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	existing, err := s.store.EmbeddingKeys(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to load embedding keys: %w", err)
	}

	report := &SeedReport{}
	var pending []*models.EmbeddingRecord
	for _, rec := range candidates {
		if _, ok := existing[rec.Key()]; ok {
			report.Skipped++
			continue
		}
		if rec.Content == "" {
			report.Empty++
			continue
		}
		vec, err := s.embedder.Embed(ctx, rec.Content)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			report.Failed++
			s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("source_type", string(rec.SourceType))))
			s.logger.Warn("skipping embedding for entity",
				"source_type", rec.SourceType, "source_id", rec.SourceID, "variant", rec.Variant, "error", err)
			continue
		}
		rec.Vector = vec
		pending = append(pending, rec)
	}

	created, err := s.store.InsertEmbeddings(ctx, pending)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to store embeddings: %w", err)
	}
	report.Created = created
	// a concurrent seeder may have inserted some of these first
	report.Skipped += len(pending) - created
	s.created.Add(ctx, int64(created))

	if report.Total, err = s.store.CountEmbeddings(ctx); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	report.Elapsed = time.Since(start)
	span.SetAttributes(
		attribute.Int("seed.created", report.Created),
		attribute.Int("seed.failed", report.Failed),
		attribute.Int("seed.total", report.Total),
	)
	s.logger.Info("embedding seeding complete",
		"created", report.Created, "skipped", report.Skipped, "failed", report.Failed, "total", report.Total)
	return report, nil
}

// candidates builds one record per entity and variant, content filled, vector empty.
func (s *Seeder) candidates(ctx context.Context) ([]*models.EmbeddingRecord, error) {
	var out []*models.EmbeddingRecord

	docs, err := s.entities.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	for _, d := range docs {
		out = append(out, documentRecord(d))
	}

	flows, err := s.entities.ListFlows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	for _, f := range flows {
		out = append(out, flowRecord(f))
	}

	steps, err := s.entities.ListSteps(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	for _, st := range steps {
		out = append(out, stepRecord(st))
	}

	comps, err := s.entities.ListComponents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}
	for _, c := range comps {
		out = append(out, componentRecord(c))
	}
	return out, nil
}
