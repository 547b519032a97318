// Package retrieval builds ranked evidence about prior designs for a free-text query.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"flowgraph-mcp/backend/internal/logging"
	"flowgraph-mcp/backend/internal/repository"
	"flowgraph-mcp/backend/internal/vectorstore"
	"flowgraph-mcp/backend/pkg/models"
)

// ErrEmptyQuery is returned when the query text is blank.
var ErrEmptyQuery = errors.New("empty query")

// Evidence is one retrieved record, resolved to its owning entity.
type Evidence struct {
	Kind       string                  `json:"kind"`
	Code       string                  `json:"code"`
	Name       string                  `json:"name"`
	Similarity float64                 `json:"similarity"`
	Content    string                  `json:"content"`
	Record     *models.EmbeddingRecord `json:"-"`
}

// Retriever embeds a query and ranks the stored records against it.
type Retriever struct {
	embedder vectorstore.Embedder
	searcher vectorstore.Searcher
	labels   repository.LabelResolver
	logger   *logging.Logger
}

// NewRetriever creates a new Retriever.
func NewRetriever(embedder vectorstore.Embedder, searcher vectorstore.Searcher, labels repository.LabelResolver, logger *logging.Logger) *Retriever {
	return &Retriever{embedder: embedder, searcher: searcher, labels: labels, logger: logger}
}

// Search returns the k records most similar to query across all retrieval
// variants, most similar first.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Evidence, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	ctx, span := otel.Tracer("flowgraph/retrieval").Start(ctx, "retrieval.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieval.k", k))

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := r.searcher.Search(ctx, vec, models.RetrievalVariants, k)
	if err != nil {
		return nil, err
	}

	out := make([]Evidence, 0, len(hits))
	for _, h := range hits {
		label, err := r.labels.LookupLabel(ctx, h.Record.SourceType, h.Record.SourceID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			r.logger.Warn("embedding refers to a missing entity",
				"source_type", h.Record.SourceType, "source_id", h.Record.SourceID)
			label = models.SourceLabel{Kind: kindOf(h.Record.SourceType), Code: fmt.Sprintf("id=%d", h.Record.SourceID)}
		}
		out = append(out, Evidence{
			Kind:       label.Kind,
			Code:       label.Code,
			Name:       label.Name,
			Similarity: h.Similarity,
			Content:    h.Record.Content,
			Record:     h.Record,
		})
	}
	span.SetAttributes(attribute.Int("retrieval.hits", len(out)))
	return out, nil
}

// BuildContext renders Search results as newline-joined context lines.
func (r *Retriever) BuildContext(ctx context.Context, query string, k int) (string, error) {
	evidence, err := r.Search(ctx, query, k)
	if err != nil {
		return "", err
	}
	return Render(evidence), nil
}

func kindOf(t models.SourceType) string {
	switch t {
	case models.SourceTypeDocument:
		return "DOC"
	case models.SourceTypeComponent:
		return "COMP"
	default:
		return strings.ToUpper(string(t))
	}
}

// Render joins one FormatLine per item with newlines, without a trailing one.
func Render(evidence []Evidence) string {
	lines := make([]string, len(evidence))
	for i, e := range evidence {
		lines[i] = FormatLine(e)
	}
	return strings.Join(lines, "\n")
}

// FormatLine renders e as "[KIND CODE:NAME] (similarity=S.SSS) :: CONTENT".
// Line breaks inside fields become spaces so each item stays on one line.
// A colon in CODE is written as %3A (and % as %25) so it cannot end the field.
func FormatLine(e Evidence) string {
	return fmt.Sprintf("[%s %s:%s] (similarity=%.3f) :: %s",
		oneLine(e.Kind), codeEscaper.Replace(oneLine(e.Code)), oneLine(e.Name), e.Similarity, oneLine(e.Content))
}

var (
	lineBreaks    = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")
	codeEscaper   = strings.NewReplacer("%", "%25", ":", "%3A")
	codeUnescaper = strings.NewReplacer("%3A", ":", "%3a", ":", "%25", "%")
)

func oneLine(s string) string {
	return lineBreaks.Replace(s)
}

var linePattern = regexp.MustCompile(`^\[(\S+) ([^:]*):(.*?)\] \(similarity=(-?\d+\.\d+)\) :: (.*)$`)

// ParseLine parses a line produced by FormatLine.
func ParseLine(line string) (Evidence, error) {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return Evidence{}, fmt.Errorf("malformed context line %q", line)
	}
	sim, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Evidence{}, fmt.Errorf("malformed similarity in %q: %w", line, err)
	}
	return Evidence{Kind: m[1], Code: codeUnescaper.Replace(m[2]), Name: m[3], Similarity: sim, Content: m[5]}, nil
}

// ParseContext parses every non-empty line of a rendered context.
func ParseContext(text string) ([]Evidence, error) {
	var out []Evidence
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		e, err := ParseLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
