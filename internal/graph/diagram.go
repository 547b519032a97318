package graph

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"flowgraph-mcp/backend/pkg/models"
)

const diagramHeader = "flowchart TD"

type flowDiagram struct {
	flowSlug string
	body     string
}

// flowDiagrams collects the per-flow diagrams of a bundle. They are read from
// "flows_diagrams" or "flows_mermaid"; each entry may be an object or a
// JSON-encoded object. Without either field the flows' own mermaid_diagram is used.
func (b *builder) flowDiagrams(bundle models.Bundle) []flowDiagram {
	field := ""
	for _, f := range []string{"flows_diagrams", "flows_mermaid"} {
		if _, ok := bundle[f]; ok {
			field = f
			break
		}
	}
	if field == "" {
		var out []flowDiagram
		for _, f := range mapsFromAny(bundle["flows"]) {
			body := stringFromAny(f["mermaid_diagram"])
			if strings.TrimSpace(body) != "" {
				out = append(out, flowDiagram{flowSlug: firstString(f, "slug", "flow_slug"), body: body})
			}
		}
		return out
	}

	entries := bundle[field]
	if s, ok := entries.(string); ok {
		var decoded []any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			b.warn(models.WarningMalformedDiagram, field, "diagram list is not valid JSON")
			return nil
		}
		entries = decoded
	}

	var out []flowDiagram
	for i, entry := range sliceAny(entries) {
		obj, ok := objectFromAny(entry)
		if !ok {
			b.warn(models.WarningMalformedDiagram, fmt.Sprintf("%s[%d]", field, i), "diagram entry is not a JSON object")
			continue
		}
		body := stringFromAny(obj["mermaid_diagram"])
		if strings.TrimSpace(body) == "" {
			continue
		}
		out = append(out, flowDiagram{flowSlug: firstString(obj, "flow_slug", "slug"), body: body})
	}
	return out
}

// DeclaresNode reports whether diagram contains a declaration of nodeID, that
// is nodeID directly followed by a shape opener ([, ( or {) and not preceded
// by another identifier character. Link tokens such as --- or --> may end
// right before it.
func DeclaresNode(diagram, nodeID string) bool {
	if nodeID == "" {
		return false
	}
	for offset := 0; ; {
		i := strings.Index(diagram[offset:], nodeID)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(nodeID)
		offset = start + 1

		if end >= len(diagram) || !strings.ContainsRune("[({", rune(diagram[end])) {
			continue
		}
		if start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(diagram[:start])
			if isIdentRune(prev) {
				continue
			}
		}
		return true
	}
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// mergeDiagrams concatenates the diagram bodies under one shared header. It
// returns "" when no diagram has content.
func mergeDiagrams(diagrams []flowDiagram) string {
	var blocks []string
	for _, d := range diagrams {
		var kept []string
		for _, line := range strings.Split(d.body, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "flowchart ") || strings.HasPrefix(trimmed, "graph ") {
				continue
			}
			kept = append(kept, strings.TrimRight(line, "\r"))
		}
		block := strings.Join(kept, "\n")
		if strings.TrimSpace(block) != "" {
			blocks = append(blocks, block)
		}
	}
	if len(blocks) == 0 {
		return ""
	}
	return diagramHeader + "\n" + strings.Join(blocks, "\n")
}

// synthesizeDiagram declares one node per step and one edge per transition.
func synthesizeDiagram(nodes []models.Node, edges []models.Edge) string {
	lines := []string{diagramHeader}
	for _, n := range nodes {
		title := n.Title
		if title == "" {
			title = n.StepSlug
		}
		lines = append(lines, fmt.Sprintf(`%s["%s"]`, n.ID, escapeQuotes(title)))
	}
	for _, e := range edges {
		var label []string
		if e.Trigger != "" {
			label = append(label, e.Trigger)
		}
		if e.Condition != "" {
			label = append(label, e.Condition)
		}
		if len(label) > 0 {
			lines = append(lines, fmt.Sprintf("%s -->|%s| %s", e.From, escapeQuotes(strings.Join(label, " | ")), e.To))
		} else {
			lines = append(lines, fmt.Sprintf("%s --> %s", e.From, e.To))
		}
	}
	return strings.Join(lines, "\n")
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
