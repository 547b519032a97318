package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgraph-mcp/backend/pkg/models"
)

func sampleResult() *models.PipelineResult {
	return &models.PipelineResult{
		RunID:      "run-1",
		Bundle:     models.Bundle{"flows": []any{}},
		Normalized: models.Bundle{"service": map[string]any{"name": "Дозвіл <new>"}},
		Evaluation: map[string]any{"score": 0.9},
		Screens: &models.ScreenResult{
			Service:       map[string]any{"name": "Дозвіл <new>"},
			Screens:       []any{map[string]any{"id": "start"}},
			GlobalMermaid: "flowchart TD",
		},
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleResult()))

	out := buf.String()
	for _, heading := range []string{"=== Proposed bundle ===", "=== Normalized bundle ===", "=== Evaluation ===", "=== UI graph + screen spec ==="} {
		assert.Contains(t, out, heading)
	}
	assert.Less(t, strings.Index(out, "Proposed"), strings.Index(out, "Normalized"))
	assert.Contains(t, out, "Дозвіл <new>")
}

func TestSaveScreens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, saveScreens(path, sampleResult().Screens))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got models.ScreenResult
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "flowchart TD", got.GlobalMermaid)
	assert.Len(t, got.Screens, 1)
}

func TestRun_EmptyInput(t *testing.T) {
	err := run(context.Background(), options{}, strings.NewReader("  \n"), &bytes.Buffer{})
	assert.ErrorContains(t, err, "no requirement document")
}
