package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileArtifactWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "diagnostics")
	w := NewFileArtifactWriter(dir)

	first, err := w.Write(StageEvaluate, "raw one")
	require.NoError(t, err)
	second, err := w.Write(StageEvaluate, "raw two")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(filepath.Base(first), "malformed-evaluate-"))
	assert.Equal(t, ".txt", filepath.Ext(first))

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "raw two", string(data))
}
