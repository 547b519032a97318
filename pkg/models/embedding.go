package models

// SourceType identifies the kind of entity an embedding was computed from
type SourceType string

const (
	SourceTypeDocument  SourceType = "document"
	SourceTypeFlow      SourceType = "flow"
	SourceTypeStep      SourceType = "step"
	SourceTypeComponent SourceType = "component"
)

// ContentVariant distinguishes the different textual summaries of one entity
type ContentVariant string

const (
	VariantBRDSummary           ContentVariant = "brd_summary"
	VariantGuidelineSummary     ContentVariant = "guideline_summary"
	VariantFlowSummary          ContentVariant = "flow_summary"
	VariantStepDescription      ContentVariant = "step_description"
	VariantComponentDescription ContentVariant = "component_description"
)

// RetrievalVariants are the variants searched when building prompt context
var RetrievalVariants = []ContentVariant{
	VariantBRDSummary,
	VariantGuidelineSummary,
	VariantFlowSummary,
	VariantStepDescription,
	VariantComponentDescription,
}

// EmbeddingKey is the uniqueness key of an embedding record
type EmbeddingKey struct {
	SourceType SourceType
	SourceID   int64
	Variant    ContentVariant
}

// EmbeddingRecord is an embedding vector tagged with its provenance
type EmbeddingRecord struct {
	ID         int64          `json:"id" db:"id"`
	SourceType SourceType     `json:"source_type" db:"source_type"`
	SourceID   int64          `json:"source_id" db:"source_id"`
	ServiceID  *int64         `json:"service_id,omitempty" db:"service_id"`
	FlowID     *int64         `json:"flow_id,omitempty" db:"flow_id"`
	StepID     *int64         `json:"step_id,omitempty" db:"step_id"`
	Variant    ContentVariant `json:"content_type" db:"content_type"`
	Content    string         `json:"content" db:"content"`

	// Vector is not exposed in JSON
	Vector []float32 `json:"-" db:"embedding"`
}

// Key returns the uniqueness key of the record.
func (r *EmbeddingRecord) Key() EmbeddingKey {
	return EmbeddingKey{SourceType: r.SourceType, SourceID: r.SourceID, Variant: r.Variant}
}

// ScoredRecord is an embedding record with its similarity to a query vector
type ScoredRecord struct {
	Record     *EmbeddingRecord `json:"record"`
	Similarity float64          `json:"similarity"`
}

// SourceLabel is the human-readable identity of an embedded entity
type SourceLabel struct {
	Kind string `json:"kind"`
	Code string `json:"code"`
	Name string `json:"name"`
}
