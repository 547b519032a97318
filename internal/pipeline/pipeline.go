// Package pipeline runs the four generative stages that turn a requirement
// document into a normalized workflow bundle, its evaluation and screen specs.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"flowgraph-mcp/backend/internal/graph"
	"flowgraph-mcp/backend/internal/llm"
	"flowgraph-mcp/backend/internal/logging"
	"flowgraph-mcp/backend/internal/vectorstore"
	"flowgraph-mcp/backend/pkg/models"
)

// Stage names one generative step of a run.
type Stage string

const (
	StagePropose   Stage = "propose"
	StageNormalize Stage = "normalize"
	StageEvaluate  Stage = "evaluate"
	StageScreens   Stage = "specify_screens"
)

// ErrEmptyInput is returned when the requirement text is blank.
var ErrEmptyInput = errors.New("empty input")

// StageError identifies the stage a run failed in. For malformed output it
// carries the last raw response and where it was saved.
type StageError struct {
	Stage        Stage
	Attempts     int
	Raw          string
	ArtifactPath string
	Err          error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ContextBuilder renders retrieval evidence for a query.
type ContextBuilder interface {
	BuildContext(ctx context.Context, query string, k int) (string, error)
}

// Seeder brings the embedding store up to date.
type Seeder interface {
	SeedMissing(ctx context.Context) (*vectorstore.SeedReport, error)
}

// Options tunes a Pipeline.
type Options struct {
	NormalizeK     int
	EvaluateK      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	SeedOnRun      bool
}

// Pipeline sequences the stages. It holds no per-run state, so one Pipeline
// may serve concurrent runs.
type Pipeline struct {
	generator llm.Generator
	retriever ContextBuilder
	seeder    Seeder
	artifacts ArtifactWriter
	opts      Options
	logger    *logging.Logger

	attempts metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// New creates a new Pipeline. seeder may be nil.
func New(generator llm.Generator, retriever ContextBuilder, seeder Seeder, artifacts ArtifactWriter, opts Options, logger *logging.Logger) *Pipeline {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	meter := otel.Meter("flowgraph/pipeline")
	attempts, _ := meter.Int64Counter("pipeline.stage.attempts")
	failures, _ := meter.Int64Counter("pipeline.stage.failures")
	duration, _ := meter.Float64Histogram("pipeline.stage.duration", metric.WithUnit("s"))
	return &Pipeline{
		generator: generator,
		retriever: retriever,
		seeder:    seeder,
		artifacts: artifacts,
		opts:      opts,
		logger:    logger,
		attempts:  attempts,
		failures:  failures,
		duration:  duration,
	}
}

// Run executes all four stages for brd. It returns either every stage output
// or an error naming the failing stage; partial results are never returned.
func (p *Pipeline) Run(ctx context.Context, brd string) (*models.PipelineResult, error) {
	if strings.TrimSpace(brd) == "" {
		return nil, ErrEmptyInput
	}
	runID := uuid.NewString()
	log := p.logger.With("run_id", runID)
	ctx, span := otel.Tracer("flowgraph/pipeline").Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("pipeline.run_id", runID), attribute.Int("pipeline.brd_chars", len(brd)))

	if p.opts.SeedOnRun && p.seeder != nil {
		if _, err := p.seeder.SeedMissing(ctx); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to seed embeddings: %w", err)
		}
	}
	log.Info("starting pipeline", "brd_chars", len(brd))

	bundle, err := p.propose(ctx, log, brd)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	normalized, err := p.normalize(ctx, log, brd, bundle)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	evaluation, err := p.evaluate(ctx, log, brd, normalized)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	screens, err := p.specifyScreens(ctx, log, normalized)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	log.Info("pipeline finished")
	return &models.PipelineResult{
		RunID:      runID,
		Bundle:     bundle,
		Normalized: normalized,
		Evaluation: evaluation,
		Screens:    screens,
	}, nil
}

func (p *Pipeline) propose(ctx context.Context, log *logging.Logger, brd string) (models.Bundle, error) {
	user, err := render(proposeUser, promptData{BRD: brd})
	if err != nil {
		return nil, &StageError{Stage: StagePropose, Err: err}
	}
	out, err := p.callStage(ctx, log, StagePropose, proposeSystem, user)
	if err != nil {
		return nil, err
	}
	log.Info("candidate bundle generated", "flows", len(listOf(out, "flows")), "steps", len(listOf(out, "steps")))
	return out, nil
}

func (p *Pipeline) normalize(ctx context.Context, log *logging.Logger, brd string, bundle models.Bundle) (models.Bundle, error) {
	evidence, err := p.retriever.BuildContext(ctx, brd, p.opts.NormalizeK)
	if err != nil {
		return nil, &StageError{Stage: StageNormalize, Err: fmt.Errorf("failed to build retrieval context: %w", err)}
	}
	log.Debug("retrieval context built", "stage", StageNormalize, "chars", len(evidence))

	user, err := renderWithJSON(normalizeUser, promptData{BRD: brd, Context: evidence}, bundle, nil)
	if err != nil {
		return nil, &StageError{Stage: StageNormalize, Err: err}
	}
	out, err := p.callStage(ctx, log, StageNormalize, normalizeSystem, user)
	if err != nil {
		return nil, err
	}
	log.Info("bundle normalized", "flows", len(listOf(out, "flows")))
	return out, nil
}

func (p *Pipeline) evaluate(ctx context.Context, log *logging.Logger, brd string, normalized models.Bundle) (map[string]any, error) {
	evidence, err := p.retriever.BuildContext(ctx, brd, p.opts.EvaluateK)
	if err != nil {
		return nil, &StageError{Stage: StageEvaluate, Err: fmt.Errorf("failed to build retrieval context: %w", err)}
	}
	user, err := renderWithJSON(evaluateUser, promptData{Context: evidence}, normalized, nil)
	if err != nil {
		return nil, &StageError{Stage: StageEvaluate, Err: err}
	}
	out, err := p.callStage(ctx, log, StageEvaluate, evaluateSystem, user)
	if err != nil {
		return nil, err
	}
	log.Info("workflows evaluated", "workflows", len(listOf(out, "workflows")))
	return out, nil
}

func (p *Pipeline) specifyScreens(ctx context.Context, log *logging.Logger, normalized models.Bundle) (*models.ScreenResult, error) {
	g := graph.Build(normalized)
	for _, w := range g.Warnings {
		log.Warn("bundle inconsistency recovered", "kind", w.Kind, "ref", w.Ref, "detail", w.Detail)
	}

	user, err := renderWithJSON(screensUser, promptData{}, normalized, g)
	if err != nil {
		return nil, &StageError{Stage: StageScreens, Err: err}
	}
	spec, err := p.callStage(ctx, log, StageScreens, screensSystem, user)
	if err != nil {
		return nil, err
	}
	result := AssembleScreens(normalized, g, spec)
	log.Info("screen spec generated", "screens", len(result.Screens))
	return result, nil
}

// AssembleScreens combines a normalized bundle, its graph and a screen
// specification response into the final result.
func AssembleScreens(normalized models.Bundle, g *models.UIGraph, spec map[string]any) *models.ScreenResult {
	service, _ := normalized["service"].(map[string]any)
	if service == nil {
		service = map[string]any{}
	}
	return &models.ScreenResult{
		Service:       service,
		UIGraph:       g,
		ScreenFlows:   listOf(spec, "screen_flows"),
		Screens:       listOf(spec, "screens"),
		GlobalMermaid: g.Mermaid,
	}
}

// callStage invokes the generator, retrying malformed output with exponential
// backoff. Provider errors are not retried.
func (p *Pipeline) callStage(ctx context.Context, log *logging.Logger, stage Stage, system, user string) (map[string]any, error) {
	ctx, span := otel.Tracer("flowgraph/pipeline").Start(ctx, "pipeline.stage."+string(stage))
	defer span.End()
	stageAttr := metric.WithAttributes(attribute.String("stage", string(stage)))
	start := time.Now()
	defer func() {
		p.duration.Record(ctx, time.Since(start).Seconds(), stageAttr)
	}()

	var (
		out      map[string]any
		attempts int
		lastRaw  string
		artifact string
	)
	op := func() error {
		attempts++
		p.attempts.Add(ctx, 1, stageAttr)
		result, err := p.generator.Generate(ctx, system, user, string(stage))
		if err == nil {
			out = result
			return nil
		}
		var malformed *llm.MalformedOutputError
		if !errors.As(err, &malformed) {
			return backoff.Permanent(err)
		}
		lastRaw = malformed.Raw
		if p.artifacts != nil {
			path, werr := p.artifacts.Write(stage, malformed.Raw)
			if werr != nil {
				log.Error("failed to save malformed output", "stage", stage, "error", werr)
			} else {
				artifact = path
			}
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.InitialBackoff
	b.MaxInterval = p.opts.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.opts.MaxAttempts-1)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Warn("malformed stage output, retrying", "stage", stage, "attempt", attempts, "wait", wait, "artifact", artifact)
	})
	if err != nil {
		p.failures.Add(ctx, 1, stageAttr)
		span.SetStatus(codes.Error, err.Error())
		stageErr := &StageError{Stage: stage, Attempts: attempts, Err: err}
		if llm.IsMalformed(err) {
			stageErr.Raw = lastRaw
			stageErr.ArtifactPath = artifact
		}
		log.Error("pipeline stage failed", "stage", stage, "attempts", attempts, "artifact", artifact, "error", err)
		return nil, stageErr
	}
	span.SetAttributes(attribute.Int("stage.attempts", attempts))
	return out, nil
}

func renderWithJSON(t *template.Template, data promptData, bundle models.Bundle, g *models.UIGraph) (string, error) {
	if bundle != nil {
		b, err := json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode bundle: %w", err)
		}
		data.Bundle = string(b)
	}
	if g != nil {
		b, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode graph: %w", err)
		}
		data.Graph = string(b)
	}
	return render(t, data)
}

// listOf returns m[key] as a list, or an empty list.
func listOf(m map[string]any, key string) []any {
	if l, ok := m[key].([]any); ok {
		return l
	}
	return []any{}
}
