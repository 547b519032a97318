package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowgraph-mcp/backend/internal/graph"
	"flowgraph-mcp/backend/internal/logging"
	"flowgraph-mcp/backend/internal/pipeline"
	"flowgraph-mcp/backend/internal/repository"
	"flowgraph-mcp/backend/internal/retrieval"
	"flowgraph-mcp/backend/internal/vectorstore"
	"flowgraph-mcp/backend/pkg/models"
)

// DesignService is the entry point used by the HTTP and MCP transports.
type DesignService struct {
	store      repository.Repository
	embedder   Embedder
	searcher   vectorstore.Searcher
	retriever  *retrieval.Retriever
	seeder     *vectorstore.Seeder
	pipeline   *pipeline.Pipeline
	logger     *logging.Logger
	runTimeout time.Duration
}

// NewDesignService creates a new DesignService.
func NewDesignService(
	store repository.Repository,
	embedder Embedder,
	searcher vectorstore.Searcher,
	retriever *retrieval.Retriever,
	seeder *vectorstore.Seeder,
	pipe *pipeline.Pipeline,
	logger *logging.Logger,
	runTimeout time.Duration,
) *DesignService {
	return &DesignService{
		store:      store,
		embedder:   embedder,
		searcher:   searcher,
		retriever:  retriever,
		seeder:     seeder,
		pipeline:   pipe,
		logger:     logger,
		runTimeout: runTimeout,
	}
}

// Ping checks the store.
func (s *DesignService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Seed embeds every entity that has no embedding yet.
func (s *DesignService) Seed(ctx context.Context) (*vectorstore.SeedReport, error) {
	return s.seeder.SeedMissing(ctx)
}

// RunPipeline runs all four stages for a requirement document.
func (s *DesignService) RunPipeline(ctx context.Context, brd string) (*models.PipelineResult, error) {
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}
	return s.pipeline.Run(ctx, brd)
}

// GenerateScreens runs the pipeline and returns only the screen result.
func (s *DesignService) GenerateScreens(ctx context.Context, brd string) (*models.ScreenResult, error) {
	result, err := s.RunPipeline(ctx, brd)
	if err != nil {
		return nil, err
	}
	return result.Screens, nil
}

// BuildGraph derives the UI graph of a normalized bundle.
func (s *DesignService) BuildGraph(bundle models.Bundle) *models.UIGraph {
	g := graph.Build(bundle)
	if len(g.Warnings) > 0 {
		s.logger.Info("graph built with recovered inconsistencies", "warnings", len(g.Warnings))
	}
	return g
}

// BuildContext returns the retrieval evidence for query and its rendered form.
func (s *DesignService) BuildContext(ctx context.Context, query string, k int) ([]retrieval.Evidence, string, error) {
	evidence, err := s.retriever.Search(ctx, query, k)
	if err != nil {
		return nil, "", err
	}
	return evidence, retrieval.Render(evidence), nil
}

// GetFlowBundle returns a stored flow with its steps, transitions and components.
func (s *DesignService) GetFlowBundle(ctx context.Context, flowSlug string) (*models.FlowBundle, error) {
	return s.store.GetFlowBundle(ctx, flowSlug)
}

// GetStepDetails returns a stored step with its components and transitions.
func (s *DesignService) GetStepDetails(ctx context.Context, stepSlug string) (*models.StepDetails, error) {
	return s.store.GetStepDetails(ctx, stepSlug)
}

// ListComponents lists design system components, optionally filtered.
func (s *DesignService) ListComponents(ctx context.Context, typeFilter, search string) ([]*models.UIComponent, error) {
	return s.store.SearchComponents(ctx, typeFilter, search)
}

// SemanticSearchComponents ranks components by similarity of their
// description embedding to query.
func (s *DesignService) SemanticSearchComponents(ctx context.Context, query string, topK int) ([]models.ComponentHit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	scored, err := s.searcher.Search(ctx, vec, []models.ContentVariant{models.VariantComponentDescription}, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]models.ComponentHit, 0, len(scored))
	for _, sr := range scored {
		if sr.Record.SourceType != models.SourceTypeComponent {
			continue
		}
		c, err := s.store.GetComponent(ctx, sr.Record.SourceID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		hits = append(hits, models.ComponentHit{
			ComponentKey:  c.Key,
			ComponentName: c.Name,
			Description:   c.Description,
			UsageNotes:    c.UsageNotes,
			Similarity:    sr.Similarity,
		})
	}
	return hits, nil
}
