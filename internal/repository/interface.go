package repository

import (
	"context"
	"errors"

	"flowgraph-mcp/backend/pkg/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// EntityReader enumerates the entities that embeddings are computed from.
type EntityReader interface {
	ListDocuments(ctx context.Context) ([]*models.Document, error)
	ListFlows(ctx context.Context) ([]*models.Flow, error)
	ListSteps(ctx context.Context) ([]*models.Step, error)
	ListComponents(ctx context.Context) ([]*models.UIComponent, error)
}

// EmbeddingStore persists and enumerates embedding records.
type EmbeddingStore interface {
	// EmbeddingKeys returns the keys of every stored record.
	EmbeddingKeys(ctx context.Context) (map[models.EmbeddingKey]struct{}, error)
	// InsertEmbeddings stores the records in a single transaction. Records
	// whose key already exists are skipped. It returns the number inserted.
	InsertEmbeddings(ctx context.Context, records []*models.EmbeddingRecord) (int, error)
	// ListEmbeddings returns the records whose variant is in variants, in
	// insertion order.
	ListEmbeddings(ctx context.Context, variants []models.ContentVariant) ([]*models.EmbeddingRecord, error)
	// CountEmbeddings returns the total number of stored records.
	CountEmbeddings(ctx context.Context) (int, error)
}

// LabelResolver maps an embedded entity back to its human-readable identity.
type LabelResolver interface {
	LookupLabel(ctx context.Context, sourceType models.SourceType, sourceID int64) (models.SourceLabel, error)
}

// Catalog answers design-system inspection queries.
type Catalog interface {
	GetFlowBundle(ctx context.Context, flowSlug string) (*models.FlowBundle, error)
	GetStepDetails(ctx context.Context, stepSlug string) (*models.StepDetails, error)
	SearchComponents(ctx context.Context, typeFilter, search string) ([]*models.UIComponent, error)
	GetComponent(ctx context.Context, id int64) (*models.UIComponent, error)
}

// Repository is the full persistent store used by the application.
type Repository interface {
	EntityReader
	EmbeddingStore
	LabelResolver
	Catalog
	Ping(ctx context.Context) error
}
