// Package models defines the domain models for the flow design service
package models

// Service represents a public service that groups one or more user flows
type Service struct {
	ID      int64  `json:"id" db:"id"`
	Slug    string `json:"slug" db:"slug"`
	Name    string `json:"name" db:"name"`
	Summary string `json:"summary,omitempty" db:"summary"`
}

// Flow represents a stored user flow of a service
type Flow struct {
	ID             int64  `json:"id" db:"id"`
	ServiceID      *int64 `json:"service_id,omitempty" db:"service_id"`
	Slug           string `json:"slug" db:"slug"`
	Name           string `json:"name" db:"name"`
	Goal           string `json:"goal,omitempty" db:"goal"`
	Notes          string `json:"notes,omitempty" db:"notes"`
	MermaidDiagram string `json:"mermaid_diagram,omitempty" db:"mermaid_diagram"`
}

// Step represents a single screen-level step inside a stored flow
type Step struct {
	ID            int64  `json:"id" db:"id"`
	ServiceID     *int64 `json:"service_id,omitempty" db:"service_id"`
	FlowID        *int64 `json:"flow_id,omitempty" db:"flow_id"`
	Slug          string `json:"slug" db:"slug"`
	Name          string `json:"name" db:"name"`
	Purpose       string `json:"purpose,omitempty" db:"purpose"`
	UserActions   string `json:"user_actions,omitempty" db:"user_actions"`
	DataInputs    string `json:"data_inputs,omitempty" db:"data_inputs"`
	DataOutputs   string `json:"data_outputs,omitempty" db:"data_outputs"`
	Conditions    string `json:"conditions,omitempty" db:"conditions"`
	UISummary     string `json:"ui_summary,omitempty" db:"ui_summary"`
	Notes         string `json:"notes,omitempty" db:"notes"`
	MermaidNodeID string `json:"mermaid_node_id,omitempty" db:"mermaid_node_id"`
}

// UIComponent represents a design system component
type UIComponent struct {
	ID          int64  `json:"id" db:"id"`
	Key         string `json:"key" db:"key"`
	Type        string `json:"type,omitempty" db:"type"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	UsageNotes  string `json:"usage_notes,omitempty" db:"usage_notes"`
	ProcessCode string `json:"process_code,omitempty" db:"process_code"`
}

// StepComponent links a component to a step with a role
type StepComponent struct {
	ID          int64  `json:"id" db:"id"`
	StepID      int64  `json:"step_id" db:"step_id"`
	ComponentID int64  `json:"component_id" db:"component_id"`
	Role        string `json:"role,omitempty" db:"role"`
}

// Transition represents a directed move between two stored steps
type Transition struct {
	ID         int64  `json:"id" db:"id"`
	FlowID     *int64 `json:"flow_id,omitempty" db:"flow_id"`
	FromStepID int64  `json:"from_step_id" db:"from_step_id"`
	ToStepID   int64  `json:"to_step_id" db:"to_step_id"`
	Trigger    string `json:"trigger,omitempty" db:"trigger"`
	Condition  string `json:"condition,omitempty" db:"condition"`
}

// Document represents a requirement document or a design guideline
type Document struct {
	ID        int64  `json:"id" db:"id"`
	ServiceID *int64 `json:"service_id,omitempty" db:"service_id"`
	FlowID    *int64 `json:"flow_id,omitempty" db:"flow_id"`
	DocType   string `json:"doc_type" db:"doc_type"`
	Title     string `json:"title" db:"title"`
	Body      string `json:"body,omitempty" db:"body"`
}

// FlowBundle is a complete stored flow with everything needed to inspect or extend it
type FlowBundle struct {
	Service        *Service         `json:"service"`
	Flows          []*Flow          `json:"flows"`
	Steps          []*Step          `json:"steps"`
	Transitions    []*Transition    `json:"transitions"`
	StepComponents []*StepComponent `json:"step_components"`
	UIComponents   []*UIComponent   `json:"ui_components"`
}

// RoledComponent is a component as attached to a particular step
type RoledComponent struct {
	*UIComponent
	Role string `json:"role"`
}

// StepDetails is a deep view of a single stored step
type StepDetails struct {
	Step                *Step             `json:"step"`
	Components          []*RoledComponent `json:"components"`
	OutgoingTransitions []*Transition     `json:"outgoing_transitions"`
	IncomingTransitions []*Transition     `json:"incoming_transitions"`
}

// ComponentHit is a component returned by semantic search
type ComponentHit struct {
	ComponentKey  string  `json:"component_key"`
	ComponentName string  `json:"component_name"`
	Description   string  `json:"description"`
	UsageNotes    string  `json:"usage_notes"`
	Similarity    float64 `json:"similarity"`
}
