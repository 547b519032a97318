package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowgraph-mcp/backend/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of the Repository interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

const (
	documentColumns  = "id, service_id, flow_id, doc_type, COALESCE(title, ''), COALESCE(body, '')"
	flowColumns      = "id, service_id, slug, name, COALESCE(goal, ''), COALESCE(notes, ''), COALESCE(mermaid_diagram, '')"
	stepColumns      = "id, service_id, flow_id, slug, name, COALESCE(purpose, ''), COALESCE(user_actions, ''), COALESCE(data_inputs, ''), COALESCE(data_outputs, ''), COALESCE(conditions, ''), COALESCE(ui_summary, ''), COALESCE(notes, ''), COALESCE(mermaid_node_id, '')"
	componentColumns = "id, key, COALESCE(type, ''), name, COALESCE(description, ''), COALESCE(usage_notes, ''), COALESCE(process_code, '')"
	transitionCols   = "id, flow_id, from_step_id, to_step_id, COALESCE(trigger, ''), COALESCE(condition, '')"
	embeddingColumns = "id, source_type, source_id, service_id, flow_id, step_id, content_type, content, embedding"
)

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.ServiceID, &d.FlowID, &d.DocType, &d.Title, &d.Body)
	return &d, err
}

func scanFlow(row pgx.Row) (*models.Flow, error) {
	var f models.Flow
	err := row.Scan(&f.ID, &f.ServiceID, &f.Slug, &f.Name, &f.Goal, &f.Notes, &f.MermaidDiagram)
	return &f, err
}

func scanStep(row pgx.Row) (*models.Step, error) {
	var st models.Step
	err := row.Scan(&st.ID, &st.ServiceID, &st.FlowID, &st.Slug, &st.Name, &st.Purpose, &st.UserActions,
		&st.DataInputs, &st.DataOutputs, &st.Conditions, &st.UISummary, &st.Notes, &st.MermaidNodeID)
	return &st, err
}

func scanComponent(row pgx.Row) (*models.UIComponent, error) {
	var c models.UIComponent
	err := row.Scan(&c.ID, &c.Key, &c.Type, &c.Name, &c.Description, &c.UsageNotes, &c.ProcessCode)
	return &c, err
}

func scanTransition(row pgx.Row) (*models.Transition, error) {
	var t models.Transition
	err := row.Scan(&t.ID, &t.FlowID, &t.FromStepID, &t.ToStepID, &t.Trigger, &t.Condition)
	return &t, err
}

func scanEmbedding(row pgx.Row) (*models.EmbeddingRecord, error) {
	var (
		r          models.EmbeddingRecord
		sourceType string
		variant    string
	)
	err := row.Scan(&r.ID, &sourceType, &r.SourceID, &r.ServiceID, &r.FlowID, &r.StepID, &variant, &r.Content, &r.Vector)
	r.SourceType = models.SourceType(sourceType)
	r.Variant = models.ContentVariant(variant)
	return &r, err
}

// queryAll runs a query and scans every row with scan.
func queryAll[T any](ctx context.Context, db *pgxpool.Pool, scan func(pgx.Row) (*T, error), sql string, args ...any) ([]*T, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListDocuments returns every document.
func (s *PostgresStore) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	return queryAll(ctx, s.db, scanDocument, "SELECT "+documentColumns+" FROM documents ORDER BY id")
}

// ListFlows returns every flow.
func (s *PostgresStore) ListFlows(ctx context.Context) ([]*models.Flow, error) {
	return queryAll(ctx, s.db, scanFlow, "SELECT "+flowColumns+" FROM flows ORDER BY id")
}

// ListSteps returns every step.
func (s *PostgresStore) ListSteps(ctx context.Context) ([]*models.Step, error) {
	return queryAll(ctx, s.db, scanStep, "SELECT "+stepColumns+" FROM steps ORDER BY id")
}

// ListComponents returns every UI component.
func (s *PostgresStore) ListComponents(ctx context.Context) ([]*models.UIComponent, error) {
	return queryAll(ctx, s.db, scanComponent, "SELECT "+componentColumns+" FROM ui_components ORDER BY id")
}

// EmbeddingKeys returns the keys of every stored embedding.
func (s *PostgresStore) EmbeddingKeys(ctx context.Context) (map[models.EmbeddingKey]struct{}, error) {
	rows, err := s.db.Query(ctx, "SELECT source_type, source_id, content_type FROM embeddings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[models.EmbeddingKey]struct{})
	for rows.Next() {
		var (
			sourceType string
			sourceID   int64
			variant    string
		)
		if err := rows.Scan(&sourceType, &sourceID, &variant); err != nil {
			return nil, err
		}
		keys[models.EmbeddingKey{
			SourceType: models.SourceType(sourceType),
			SourceID:   sourceID,
			Variant:    models.ContentVariant(variant),
		}] = struct{}{}
	}
	return keys, rows.Err()
}

// InsertEmbeddings stores records in one transaction. A record whose key was
// inserted concurrently by another seeder is skipped, not an error.
func (s *PostgresStore) InsertEmbeddings(ctx context.Context, records []*models.EmbeddingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, r := range records {
		err := tx.QueryRow(ctx, `
			INSERT INTO embeddings (source_type, source_id, service_id, flow_id, step_id, content_type, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (source_type, source_id, content_type) DO NOTHING
			RETURNING id`,
			string(r.SourceType), r.SourceID, r.ServiceID, r.FlowID, r.StepID, string(r.Variant), r.Content, r.Vector,
		).Scan(&r.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to insert embedding %s/%d/%s: %w", r.SourceType, r.SourceID, r.Variant, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit embeddings: %w", err)
	}
	return inserted, nil
}

// ListEmbeddings returns the records whose content type is in variants.
func (s *PostgresStore) ListEmbeddings(ctx context.Context, variants []models.ContentVariant) ([]*models.EmbeddingRecord, error) {
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = string(v)
	}
	return queryAll(ctx, s.db, scanEmbedding,
		"SELECT "+embeddingColumns+" FROM embeddings WHERE content_type = ANY($1) ORDER BY id", names)
}

// CountEmbeddings returns the number of stored embeddings.
func (s *PostgresStore) CountEmbeddings(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&n)
	return n, err
}

// LookupLabel resolves an embedded entity to its kind, code and name.
func (s *PostgresStore) LookupLabel(ctx context.Context, sourceType models.SourceType, sourceID int64) (models.SourceLabel, error) {
	var (
		label models.SourceLabel
		sql   string
	)
	switch sourceType {
	case models.SourceTypeDocument:
		label.Kind = "DOC"
		sql = "SELECT doc_type, COALESCE(title, '') FROM documents WHERE id = $1"
	case models.SourceTypeFlow:
		label.Kind = "FLOW"
		sql = "SELECT slug, name FROM flows WHERE id = $1"
	case models.SourceTypeStep:
		label.Kind = "STEP"
		sql = "SELECT slug, name FROM steps WHERE id = $1"
	case models.SourceTypeComponent:
		label.Kind = "COMP"
		sql = "SELECT key, name FROM ui_components WHERE id = $1"
	default:
		return label, fmt.Errorf("unknown source type %q: %w", sourceType, ErrNotFound)
	}

	err := s.db.QueryRow(ctx, sql, sourceID).Scan(&label.Code, &label.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return label, fmt.Errorf("%s %d: %w", sourceType, sourceID, ErrNotFound)
	}
	return label, err
}

// GetFlowBundle loads a flow with its service, steps, transitions and components.
func (s *PostgresStore) GetFlowBundle(ctx context.Context, flowSlug string) (*models.FlowBundle, error) {
	flow, err := scanFlow(s.db.QueryRow(ctx, "SELECT "+flowColumns+" FROM flows WHERE slug = $1", flowSlug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("flow %q: %w", flowSlug, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	bundle := &models.FlowBundle{Flows: []*models.Flow{flow}}
	if flow.ServiceID != nil {
		var svc models.Service
		err := s.db.QueryRow(ctx, "SELECT id, slug, name, COALESCE(summary, '') FROM services WHERE id = $1", *flow.ServiceID).
			Scan(&svc.ID, &svc.Slug, &svc.Name, &svc.Summary)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			bundle.Service = &svc
		}
	}

	if bundle.Steps, err = queryAll(ctx, s.db, scanStep,
		"SELECT "+stepColumns+" FROM steps WHERE flow_id = $1 ORDER BY id", flow.ID); err != nil {
		return nil, err
	}
	stepIDs := make([]int64, len(bundle.Steps))
	for i, st := range bundle.Steps {
		stepIDs[i] = st.ID
	}

	if bundle.Transitions, err = queryAll(ctx, s.db, scanTransition,
		"SELECT "+transitionCols+" FROM transitions WHERE flow_id = $1 AND from_step_id = ANY($2) ORDER BY id",
		flow.ID, stepIDs); err != nil {
		return nil, err
	}

	if bundle.StepComponents, err = queryAll(ctx, s.db, func(row pgx.Row) (*models.StepComponent, error) {
		var sc models.StepComponent
		err := row.Scan(&sc.ID, &sc.StepID, &sc.ComponentID, &sc.Role)
		return &sc, err
	}, "SELECT id, step_id, component_id, COALESCE(role, '') FROM step_components WHERE step_id = ANY($1) ORDER BY id",
		stepIDs); err != nil {
		return nil, err
	}

	if bundle.UIComponents, err = queryAll(ctx, s.db, scanComponent,
		"SELECT "+componentColumns+" FROM ui_components WHERE id IN (SELECT component_id FROM step_components WHERE step_id = ANY($1)) ORDER BY id",
		stepIDs); err != nil {
		return nil, err
	}
	return bundle, nil
}

// GetStepDetails loads a step with its components and transitions.
func (s *PostgresStore) GetStepDetails(ctx context.Context, stepSlug string) (*models.StepDetails, error) {
	step, err := scanStep(s.db.QueryRow(ctx, "SELECT "+stepColumns+" FROM steps WHERE slug = $1", stepSlug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("step %q: %w", stepSlug, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	details := &models.StepDetails{Step: step}
	if details.Components, err = queryAll(ctx, s.db, func(row pgx.Row) (*models.RoledComponent, error) {
		var c models.UIComponent
		rc := models.RoledComponent{UIComponent: &c}
		err := row.Scan(&c.ID, &c.Key, &c.Type, &c.Name, &c.Description, &c.UsageNotes, &c.ProcessCode, &rc.Role)
		return &rc, err
	}, `SELECT c.id, c.key, COALESCE(c.type, ''), c.name, COALESCE(c.description, ''),
			COALESCE(c.usage_notes, ''), COALESCE(c.process_code, ''), COALESCE(sc.role, '')
		FROM step_components sc JOIN ui_components c ON c.id = sc.component_id
		WHERE sc.step_id = $1 ORDER BY sc.id`, step.ID); err != nil {
		return nil, err
	}

	if details.OutgoingTransitions, err = queryAll(ctx, s.db, scanTransition,
		"SELECT "+transitionCols+" FROM transitions WHERE from_step_id = $1 ORDER BY id", step.ID); err != nil {
		return nil, err
	}
	if details.IncomingTransitions, err = queryAll(ctx, s.db, scanTransition,
		"SELECT "+transitionCols+" FROM transitions WHERE to_step_id = $1 ORDER BY id", step.ID); err != nil {
		return nil, err
	}
	return details, nil
}

// SearchComponents lists components, optionally filtered by type and by a
// case-insensitive substring of name, description or usage notes.
func (s *PostgresStore) SearchComponents(ctx context.Context, typeFilter, search string) ([]*models.UIComponent, error) {
	var (
		where []string
		args  []any
	)
	if typeFilter != "" {
		args = append(args, typeFilter)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d OR usage_notes ILIKE $%d)", n, n, n))
	}

	sql := "SELECT " + componentColumns + " FROM ui_components"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	return queryAll(ctx, s.db, scanComponent, sql+" ORDER BY id", args...)
}

// GetComponent retrieves a component by its ID.
func (s *PostgresStore) GetComponent(ctx context.Context, id int64) (*models.UIComponent, error) {
	c, err := scanComponent(s.db.QueryRow(ctx, "SELECT "+componentColumns+" FROM ui_components WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("component %d: %w", id, ErrNotFound)
	}
	return c, err
}
