// Package app wires configuration into the store, providers, retrieval,
// pipeline and design service shared by every command.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"flowgraph-mcp/backend/internal/config"
	"flowgraph-mcp/backend/internal/llm"
	"flowgraph-mcp/backend/internal/logging"
	"flowgraph-mcp/backend/internal/pipeline"
	"flowgraph-mcp/backend/internal/repository"
	"flowgraph-mcp/backend/internal/retrieval"
	"flowgraph-mcp/backend/internal/services"
	"flowgraph-mcp/backend/internal/vectorstore"
)

// App holds the wired components. Close releases the database pool.
type App struct {
	Config   *config.Config
	Logger   *logging.Logger
	Pool     *pgxpool.Pool
	Store    repository.Repository
	Seeder   *vectorstore.Seeder
	Pipeline *pipeline.Pipeline
	Design   *services.DesignService
}

// Options alter how New wires the application.
type Options struct {
	// Memory replaces PostgreSQL with an empty in-process store.
	Memory bool
	// Generator overrides the configured generative provider.
	Generator llm.Generator
	// Embedder overrides the configured embedding provider.
	Embedder services.Embedder
}

// New connects to the database, applies the schema and builds the service graph.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if opts.Memory {
		logger.Warn("running with the in-memory store, nothing will be persisted")
		a.Store = repository.NewMemoryStore()
	} else {
		pool, err := InitDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		if err := repository.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		a.Store = repository.NewPostgresStore(pool)
	}

	embedder := opts.Embedder
	if embedder == nil {
		switch cfg.Embedding.Provider {
		case "sidecar":
			embedder = services.NewHTTPMLClient(cfg.MLSidecar.URL, cfg.MLSidecar.Timeout)
		default:
			embedder = llm.NewOpenAIClient(llm.OpenAIConfig{
				Endpoint:       cfg.Embedding.Endpoint,
				APIKey:         cfg.Embedding.APIKey,
				EmbeddingModel: cfg.Embedding.Model,
				Timeout:        cfg.Embedding.Timeout,
			})
		}
	}
	generator := opts.Generator
	if generator == nil {
		generator = llm.NewOpenAIClient(llm.OpenAIConfig{
			Endpoint:    cfg.Generator.Endpoint,
			APIKey:      cfg.Generator.APIKey,
			ChatModel:   cfg.Generator.Model,
			Temperature: cfg.Generator.Temperature,
			Timeout:     cfg.Generator.Timeout,
		})
	}
	queryEmbedder := services.NewCachedEmbedder(embedder, cfg.Retrieval.CacheTTL)

	searcher, err := a.newSearcher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	retriever := retrieval.NewRetriever(queryEmbedder, searcher, a.Store, logger)
	a.Seeder = vectorstore.NewSeeder(a.Store, a.Store, embedder, logger)
	a.Pipeline = pipeline.New(generator, retriever, a.Seeder, pipeline.NewFileArtifactWriter(cfg.Pipeline.DiagnosticsDir), pipeline.Options{
		NormalizeK:     cfg.Retrieval.NormalizeK,
		EvaluateK:      cfg.Retrieval.EvaluateK,
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		InitialBackoff: cfg.Pipeline.InitialBackoff,
		MaxBackoff:     cfg.Pipeline.MaxBackoff,
		SeedOnRun:      cfg.Pipeline.SeedOnRun,
	}, logger)
	a.Design = services.NewDesignService(a.Store, queryEmbedder, searcher, retriever, a.Seeder, a.Pipeline, logger, cfg.Pipeline.RunTimeout)

	logger.Info("application wired",
		"store", storeName(opts.Memory),
		"embedding_provider", cfg.Embedding.Provider,
		"searcher", cfg.Retrieval.Searcher,
		"generator_model", cfg.Generator.Model,
	)
	return a, nil
}

func (a *App) newSearcher(ctx context.Context) (vectorstore.Searcher, error) {
	if a.Config.Retrieval.Searcher != "pgvector" {
		return vectorstore.NewBruteForceSearcher(a.Store), nil
	}
	if a.Pool == nil {
		a.Logger.Warn("pgvector searcher needs PostgreSQL, using brute force")
		return vectorstore.NewBruteForceSearcher(a.Store), nil
	}
	s := vectorstore.NewPgvectorSearcher(a.Pool, a.Store)
	if err := s.EnsureExtension(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func storeName(memory bool) string {
	if memory {
		return "memory"
	}
	return "postgres"
}

// InitDatabase opens and pings a connection pool.
func InitDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
