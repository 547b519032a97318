package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ArtifactWriter keeps the raw text of a malformed stage response for inspection.
type ArtifactWriter interface {
	Write(stage Stage, raw string) (string, error)
}

// FileArtifactWriter writes each artifact to its own file in a directory.
type FileArtifactWriter struct {
	dir string
}

// NewFileArtifactWriter creates a new FileArtifactWriter.
func NewFileArtifactWriter(dir string) *FileArtifactWriter {
	return &FileArtifactWriter{dir: dir}
}

// Write stores raw as <dir>/malformed-<stage>-<uuid>.txt and returns the path.
func (w *FileArtifactWriter) Write(stage Stage, raw string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create diagnostics dir: %w", err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("malformed-%s-%s.txt", stage, uuid.NewString()))
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		return "", fmt.Errorf("failed to write diagnostic artifact: %w", err)
	}
	return path, nil
}
