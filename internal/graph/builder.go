// Package graph derives a navigable screen graph from a normalized workflow bundle.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"flowgraph-mcp/backend/pkg/models"
)

const defaultRole = "primary"

// step is a bundle step with its derived identifiers.
type step struct {
	slug   string
	nodeID string
	raw    map[string]any
}

// builder holds the canonical indexes of one Build call.
type builder struct {
	steps      []*step
	stepBySlug map[string]*step

	componentKeys []string
	components    map[string]map[string]any

	warnings []models.GraphWarning
}

func (b *builder) warn(kind models.WarningKind, ref, format string, args ...any) {
	b.warnings = append(b.warnings, models.GraphWarning{Kind: kind, Ref: ref, Detail: fmt.Sprintf(format, args...)})
}

// Build derives the UI graph of a normalized bundle. It never fails: broken
// references are dropped or synthesized and reported as warnings. The bundle
// is not modified.
func Build(bundle models.Bundle) *models.UIGraph {
	b := &builder{
		stepBySlug: map[string]*step{},
		components: map[string]map[string]any{},
	}
	b.indexSteps(bundle["steps"])
	b.indexComponents(bundle["ui_components"])

	attached := b.attachComponents(bundle["step_components"])
	diagrams := b.flowDiagrams(bundle)
	memberOf := b.attributeFlows(diagrams)

	nodes := make([]models.Node, 0, len(b.steps))
	for _, st := range b.steps {
		comps := attached[st.slug]
		if comps == nil {
			comps = []models.NodeComponent{}
		}
		nodes = append(nodes, models.Node{
			ID:          st.nodeID,
			StepSlug:    st.slug,
			Title:       firstString(st.raw, "name", "title", "slug"),
			Flows:       memberOf[st.slug],
			Description: nodeDescription(st.raw, comps),
			Components:  comps,
		})
	}
	edges := b.buildEdges(bundle["transitions"])

	mermaid := mergeDiagrams(diagrams)
	if mermaid == "" {
		mermaid = synthesizeDiagram(nodes, edges)
	}

	service := mapFromAny(bundle["service"])
	if service == nil {
		service = map[string]any{}
	}
	flows := sliceAny(bundle["flows"])
	if flows == nil {
		flows = []any{}
	}
	uiComponents := make([]map[string]any, 0, len(b.componentKeys))
	for _, key := range b.componentKeys {
		uiComponents = append(uiComponents, b.components[key])
	}
	warnings := b.warnings
	if warnings == nil {
		warnings = []models.GraphWarning{}
	}

	return &models.UIGraph{
		Service:      service,
		Flows:        flows,
		UIComponents: uiComponents,
		Nodes:        nodes,
		Edges:        edges,
		Mermaid:      mermaid,
		Warnings:     warnings,
	}
}

// indexSteps keeps steps in bundle order. A repeated slug replaces the earlier
// definition but keeps its position.
func (b *builder) indexSteps(v any) {
	for i, raw := range mapsFromAny(v) {
		slug := firstString(raw, "slug")
		if slug == "" {
			b.warn(models.WarningStepMissingSlug, fmt.Sprintf("steps[%d]", i), "step has no slug and was skipped")
			continue
		}
		nodeID := firstString(raw, "mermaid_node_id")
		if nodeID == "" {
			nodeID = slug
		}
		st := &step{slug: slug, nodeID: nodeID, raw: raw}
		if prev, ok := b.stepBySlug[slug]; ok {
			b.warn(models.WarningDuplicateStep, slug, "step defined more than once, the last definition wins")
			*prev = *st
			continue
		}
		b.stepBySlug[slug] = st
		b.steps = append(b.steps, st)
	}
}

// indexComponents keys each component by its slug, falling back to its key.
// This is the only place that resolves the slug/key ambiguity.
func (b *builder) indexComponents(v any) {
	for _, raw := range mapsFromAny(v) {
		key := firstString(raw, "slug", "key")
		if key == "" {
			continue
		}
		comp := make(map[string]any, len(raw)+1)
		for k, val := range raw {
			comp[k] = val
		}
		if _, ok := comp["key"]; !ok {
			comp["key"] = key
		}
		if _, seen := b.components[key]; !seen {
			b.componentKeys = append(b.componentKeys, key)
		}
		b.components[key] = comp
	}
}

// attachComponents resolves every step-component link into node components,
// synthesizing a placeholder for keys that are not in the index.
func (b *builder) attachComponents(v any) map[string][]models.NodeComponent {
	attached := map[string][]models.NodeComponent{}
	for i, link := range mapsFromAny(v) {
		stepSlug := firstString(link, "step_slug")
		if _, ok := b.stepBySlug[stepSlug]; !ok {
			b.warn(models.WarningUnknownStepLink, stepSlug, "step_components[%d] refers to an unknown step", i)
			continue
		}
		role := firstString(link, "role")
		if role == "" {
			role = defaultRole
		}
		for _, key := range linkComponentKeys(link) {
			comp, ok := b.components[key]
			if !ok {
				b.warn(models.WarningSynthesizedComponent, key, "component referenced by step %q is not defined", stepSlug)
				comp = map[string]any{"key": key, "name": key}
			}
			name := firstString(comp, "name")
			if name == "" {
				name = key
			}
			compKey := firstString(comp, "key")
			if compKey == "" {
				compKey = key
			}
			attached[stepSlug] = append(attached[stepSlug], models.NodeComponent{
				Key:         compKey,
				Name:        name,
				Description: stringFromAny(comp["description"]),
				Role:        role,
			})
		}
	}
	return attached
}

func linkComponentKeys(link map[string]any) []string {
	for _, field := range []string{"component_slugs", "component_keys"} {
		if list := sliceAny(link[field]); list != nil {
			keys := make([]string, 0, len(list))
			for _, item := range list {
				if s := strings.TrimSpace(stringFromAny(item)); s != "" {
					keys = append(keys, s)
				}
			}
			return keys
		}
	}
	if key := firstString(link, "component_key", "component_slug"); key != "" {
		return []string{key}
	}
	return nil
}

// attributeFlows returns the sorted flow slugs whose diagram declares each step's node.
func (b *builder) attributeFlows(diagrams []flowDiagram) map[string][]string {
	sets := map[string]map[string]struct{}{}
	for _, d := range diagrams {
		if d.flowSlug == "" {
			continue
		}
		for _, st := range b.steps {
			if !DeclaresNode(d.body, st.nodeID) {
				continue
			}
			if sets[st.slug] == nil {
				sets[st.slug] = map[string]struct{}{}
			}
			sets[st.slug][d.flowSlug] = struct{}{}
		}
	}

	out := make(map[string][]string, len(b.steps))
	for _, st := range b.steps {
		flows := make([]string, 0, len(sets[st.slug]))
		for f := range sets[st.slug] {
			flows = append(flows, f)
		}
		sort.Strings(flows)
		out[st.slug] = flows
	}
	return out
}

func (b *builder) buildEdges(v any) []models.Edge {
	edges := []models.Edge{}
	for i, tr := range mapsFromAny(v) {
		fromSlug := firstString(tr, "from_step_slug")
		toSlug := firstString(tr, "to_step_slug")
		from, okFrom := b.stepBySlug[fromSlug]
		to, okTo := b.stepBySlug[toSlug]
		if !okFrom || !okTo {
			b.warn(models.WarningDroppedTransition, fmt.Sprintf("%s->%s", fromSlug, toSlug),
				"transitions[%d] refers to an unknown step", i)
			continue
		}
		edges = append(edges, models.Edge{
			From:         from.nodeID,
			To:           to.nodeID,
			FromStepSlug: fromSlug,
			ToStepSlug:   toSlug,
			Trigger:      stringFromAny(tr["trigger"]),
			Condition:    stringFromAny(tr["condition"]),
		})
	}
	return edges
}

// nodeDescription joins the step description, its component list and the
// normalization notes with blank lines, omitting empty parts.
func nodeDescription(raw map[string]any, comps []models.NodeComponent) string {
	var parts []string
	if d := strings.TrimSpace(stringFromAny(raw["description"])); d != "" {
		parts = append(parts, d)
	}
	if len(comps) > 0 {
		lines := make([]string, len(comps))
		for i, c := range comps {
			lines[i] = fmt.Sprintf("- %s: %s", c.Name, strings.TrimSpace(c.Description))
		}
		parts = append(parts, "Screen components:\n"+strings.Join(lines, "\n"))
	}
	if notes := firstString(raw, "normalization_notes", "notes"); notes != "" {
		parts = append(parts, "Normalization notes: "+notes)
	}
	return strings.Join(parts, "\n\n")
}
