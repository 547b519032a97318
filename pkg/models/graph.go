package models

// Bundle is a workflow bundle as produced by a generative stage. It is
// untrusted: fields may be missing, mistyped, or keyed differently.
type Bundle map[string]any

// NodeComponent is a component attached to a graph node
type NodeComponent struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Role        string `json:"role"`
}

// Node is one screen-level node of the UI graph, one per step
type Node struct {
	ID          string          `json:"id"`
	StepSlug    string          `json:"step_slug"`
	Title       string          `json:"title"`
	Flows       []string        `json:"flows"`
	Description string          `json:"description"`
	Components  []NodeComponent `json:"components"`
}

// Edge is a transition between two known steps
type Edge struct {
	From         string `json:"from"`
	To           string `json:"to"`
	FromStepSlug string `json:"from_step_slug"`
	ToStepSlug   string `json:"to_step_slug"`
	Trigger      string `json:"trigger"`
	Condition    string `json:"condition"`
}

// WarningKind classifies a recovered inconsistency in a bundle
type WarningKind string

const (
	WarningDroppedTransition    WarningKind = "dropped_transition"
	WarningSynthesizedComponent WarningKind = "synthesized_component"
	WarningUnknownStepLink      WarningKind = "unknown_step_link"
	WarningMalformedDiagram     WarningKind = "malformed_diagram"
	WarningStepMissingSlug      WarningKind = "step_missing_slug"
	WarningDuplicateStep        WarningKind = "duplicate_step"
)

// GraphWarning reports an inconsistency that was recovered while building a graph
type GraphWarning struct {
	Kind   WarningKind `json:"kind"`
	Ref    string      `json:"ref,omitempty"`
	Detail string      `json:"detail"`
}

// UIGraph is the navigable flow graph derived from a normalized bundle
type UIGraph struct {
	Service      map[string]any   `json:"service"`
	Flows        []any            `json:"flows"`
	UIComponents []map[string]any `json:"ui_components"`
	Nodes        []Node           `json:"nodes"`
	Edges        []Edge           `json:"edges"`
	Mermaid      string           `json:"mermaid"`
	Warnings     []GraphWarning   `json:"warnings"`
}
