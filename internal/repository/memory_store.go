package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"flowgraph-mcp/backend/pkg/models"
)

// MemoryStore is an in-process Repository. It backs tests and the --memory
// mode of the server, where no database is available.
type MemoryStore struct {
	mu             sync.RWMutex
	services       []*models.Service
	flows          []*models.Flow
	steps          []*models.Step
	transitions    []*models.Transition
	components     []*models.UIComponent
	stepComponents []*models.StepComponent
	documents      []*models.Document
	embeddings     []*models.EmbeddingRecord
	nextID         int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// AddService stores a service.
func (s *MemoryStore) AddService(v *models.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = append(s.services, v)
}

// AddFlow stores a flow.
func (s *MemoryStore) AddFlow(v *models.Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows = append(s.flows, v)
}

// AddStep stores a step.
func (s *MemoryStore) AddStep(v *models.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, v)
}

// AddTransition stores a transition.
func (s *MemoryStore) AddTransition(v *models.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, v)
}

// AddComponent stores a UI component.
func (s *MemoryStore) AddComponent(v *models.UIComponent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, v)
}

// AttachComponent links a component to a step.
func (s *MemoryStore) AttachComponent(v *models.StepComponent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepComponents = append(s.stepComponents, v)
}

// AddDocument stores a document.
func (s *MemoryStore) AddDocument(v *models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = append(s.documents, v)
}

func (s *MemoryStore) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.documents), nil
}

func (s *MemoryStore) ListFlows(ctx context.Context) ([]*models.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.flows), nil
}

func (s *MemoryStore) ListSteps(ctx context.Context) ([]*models.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.steps), nil
}

func (s *MemoryStore) ListComponents(ctx context.Context) ([]*models.UIComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.components), nil
}

func (s *MemoryStore) EmbeddingKeys(ctx context.Context) (map[models.EmbeddingKey]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make(map[models.EmbeddingKey]struct{}, len(s.embeddings))
	for _, r := range s.embeddings {
		keys[r.Key()] = struct{}{}
	}
	return keys, nil
}

// InsertEmbeddings appends records whose key is not yet present. The whole
// batch is applied under one lock, so concurrent callers never both insert a key.
func (s *MemoryStore) InsertEmbeddings(ctx context.Context, records []*models.EmbeddingRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[models.EmbeddingKey]struct{}, len(s.embeddings))
	for _, r := range s.embeddings {
		existing[r.Key()] = struct{}{}
	}
	inserted := 0
	for _, r := range records {
		if _, ok := existing[r.Key()]; ok {
			continue
		}
		r.ID = s.nextID
		s.nextID++
		stored := *r
		stored.Vector = slices.Clone(r.Vector)
		s.embeddings = append(s.embeddings, &stored)
		existing[r.Key()] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) ListEmbeddings(ctx context.Context, variants []models.ContentVariant) ([]*models.EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.EmbeddingRecord
	for _, r := range s.embeddings {
		if slices.Contains(variants, r.Variant) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) CountEmbeddings(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.embeddings), nil
}

func (s *MemoryStore) LookupLabel(ctx context.Context, sourceType models.SourceType, sourceID int64) (models.SourceLabel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch sourceType {
	case models.SourceTypeDocument:
		for _, d := range s.documents {
			if d.ID == sourceID {
				return models.SourceLabel{Kind: "DOC", Code: d.DocType, Name: d.Title}, nil
			}
		}
	case models.SourceTypeFlow:
		if f := findByID(s.flows, sourceID, func(f *models.Flow) int64 { return f.ID }); f != nil {
			return models.SourceLabel{Kind: "FLOW", Code: f.Slug, Name: f.Name}, nil
		}
	case models.SourceTypeStep:
		if st := findByID(s.steps, sourceID, func(st *models.Step) int64 { return st.ID }); st != nil {
			return models.SourceLabel{Kind: "STEP", Code: st.Slug, Name: st.Name}, nil
		}
	case models.SourceTypeComponent:
		if c := findByID(s.components, sourceID, func(c *models.UIComponent) int64 { return c.ID }); c != nil {
			return models.SourceLabel{Kind: "COMP", Code: c.Key, Name: c.Name}, nil
		}
	default:
		return models.SourceLabel{}, fmt.Errorf("unknown source type %q: %w", sourceType, ErrNotFound)
	}
	return models.SourceLabel{}, fmt.Errorf("%s %d: %w", sourceType, sourceID, ErrNotFound)
}

func findByID[T any](items []*T, id int64, idOf func(*T) int64) *T {
	for _, it := range items {
		if idOf(it) == id {
			return it
		}
	}
	return nil
}

func (s *MemoryStore) GetFlowBundle(ctx context.Context, flowSlug string) (*models.FlowBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var flow *models.Flow
	for _, f := range s.flows {
		if f.Slug == flowSlug {
			flow = f
			break
		}
	}
	if flow == nil {
		return nil, fmt.Errorf("flow %q: %w", flowSlug, ErrNotFound)
	}

	bundle := &models.FlowBundle{Flows: []*models.Flow{flow}}
	if flow.ServiceID != nil {
		bundle.Service = findByID(s.services, *flow.ServiceID, func(v *models.Service) int64 { return v.ID })
	}
	stepIDs := map[int64]bool{}
	for _, st := range s.steps {
		if st.FlowID != nil && *st.FlowID == flow.ID {
			bundle.Steps = append(bundle.Steps, st)
			stepIDs[st.ID] = true
		}
	}
	for _, t := range s.transitions {
		if t.FlowID != nil && *t.FlowID == flow.ID && stepIDs[t.FromStepID] {
			bundle.Transitions = append(bundle.Transitions, t)
		}
	}
	componentIDs := map[int64]bool{}
	for _, sc := range s.stepComponents {
		if stepIDs[sc.StepID] {
			bundle.StepComponents = append(bundle.StepComponents, sc)
			componentIDs[sc.ComponentID] = true
		}
	}
	for _, c := range s.components {
		if componentIDs[c.ID] {
			bundle.UIComponents = append(bundle.UIComponents, c)
		}
	}
	return bundle, nil
}

func (s *MemoryStore) GetStepDetails(ctx context.Context, stepSlug string) (*models.StepDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var step *models.Step
	for _, st := range s.steps {
		if st.Slug == stepSlug {
			step = st
			break
		}
	}
	if step == nil {
		return nil, fmt.Errorf("step %q: %w", stepSlug, ErrNotFound)
	}

	details := &models.StepDetails{Step: step}
	for _, sc := range s.stepComponents {
		if sc.StepID != step.ID {
			continue
		}
		if c := findByID(s.components, sc.ComponentID, func(c *models.UIComponent) int64 { return c.ID }); c != nil {
			details.Components = append(details.Components, &models.RoledComponent{UIComponent: c, Role: sc.Role})
		}
	}
	for _, t := range s.transitions {
		if t.FromStepID == step.ID {
			details.OutgoingTransitions = append(details.OutgoingTransitions, t)
		}
		if t.ToStepID == step.ID {
			details.IncomingTransitions = append(details.IncomingTransitions, t)
		}
	}
	return details, nil
}

func (s *MemoryStore) SearchComponents(ctx context.Context, typeFilter, search string) ([]*models.UIComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(search)
	var out []*models.UIComponent
	for _, c := range s.components {
		if typeFilter != "" && c.Type != typeFilter {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(c.Name), needle) &&
			!strings.Contains(strings.ToLower(c.Description), needle) &&
			!strings.Contains(strings.ToLower(c.UsageNotes), needle) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) GetComponent(ctx context.Context, id int64) (*models.UIComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c := findByID(s.components, id, func(c *models.UIComponent) int64 { return c.ID }); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("component %d: %w", id, ErrNotFound)
}
