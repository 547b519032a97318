package pipeline

import (
	"strings"
	"text/template"
)

const bundleShape = `- service: { slug, name, summary }
- flows[]: { slug, name, goal, notes, mermaid_diagram }
- steps[]: { slug, flow_slug, name, description, mermaid_node_id, purpose, user_actions, data_inputs, data_outputs, conditions }
- ui_components[]: { slug, type, name, description, usage_notes }
- step_components[]: { "step_slug": "<step_slug>", "component_slugs": ["<ui_component_slug>"], "role": "primary" }
- transitions[]: { from_step_slug, to_step_slug, trigger, condition }
- flows_diagrams[]: { flow_slug, mermaid_diagram }`

const proposeSystem = `You are an experienced service designer and product analyst.
Given a business requirement document, propose two or three alternative user workflows that implement it.
Output a single JSON object with this structure and nothing else:
` + bundleShape + `
Every Mermaid diagram starts with "flowchart TD" and declares each step as a node with its mermaid_node_id.
Keep descriptions compact and state any assumptions in notes.`

const normalizeSystem = `You are a service design expert. Normalize proposed workflows so they follow the patterns
of the existing services described in the reference context: reuse their entry points, naming, steps and components.
Keep the bundle structure; you may add derived_from_flow_slug, mapping_to_reference_flows and normalization_notes.
Output a single JSON object and nothing else.`

const evaluateSystem = `You are an internal evaluation assistant for a design team.
For every workflow estimate the clicks on the happy path, list unusual components, score how closely it matches
existing design patterns (0-1) and give an overall score (0-1) with short pros and cons.
Output a single JSON object { "workflows": [...], "recommended_flow_slug": "...", "rationale": "..." } and nothing else.`

const screensSystem = `You are a senior product designer and UX writer.
From a normalized workflow bundle and its UI graph, specify the final app screens.
Output a single JSON object { "screen_flows": [...], "screens": [...] } and nothing else.
Each screen has an id matching a UI graph node, a title, its components with labels and placeholders, and its actions.`

var (
	proposeUser = template.Must(template.New("propose").Parse(`BUSINESS REQUIREMENT
---
{{.BRD}}
---
Propose the workflows. Return only the JSON object.`))

	normalizeUser = template.Must(template.New("normalize").Parse(`1) ORIGINAL REQUIREMENT
---
{{.BRD}}
---

2) PROPOSED WORKFLOWS (JSON)
---
{{.Bundle}}
---

3) REFERENCE CONTEXT (retrieved by similarity, one item per line)
---
{{.Context}}
---
Normalize the proposed workflows against the reference context. Update Mermaid diagrams where needed.
Return only the JSON object.`))

	evaluateUser = template.Must(template.New("evaluate").Parse(`1) CANDIDATE WORKFLOWS (JSON)
---
{{.Bundle}}
---

2) SIMILARITY EVIDENCE
---
{{.Context}}
---
Evaluate every workflow and recommend one. Return only the JSON object.`))

	screensUser = template.Must(template.New("screens").Parse(`1) NORMALIZED WORKFLOW BUNDLE (JSON)
---
{{.Bundle}}
---

2) UI GRAPH (nodes, edges, merged diagram)
---
{{.Graph}}
---
Specify the screens. Return only the JSON object.`))
)

type promptData struct {
	BRD     string
	Bundle  string
	Context string
	Graph   string
}

func render(t *template.Template, data promptData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
