package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"flowgraph-mcp/backend/internal/app"
	"flowgraph-mcp/backend/internal/config"
	"flowgraph-mcp/backend/internal/logging"
	"flowgraph-mcp/backend/pkg/models"
)

type options struct {
	configFile string
	output     string
	memory     bool
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the design pipeline on a requirement document read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&opts.configFile, "config-file", "", "Path to config file.")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "screen_spec.json", "where to save the screen spec")
	cmd.Flags().BoolVar(&opts.memory, "memory", false, "use the in-memory store instead of PostgreSQL")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	if f, ok := in.(*os.File); ok {
		if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
			fmt.Fprintln(out, "Paste BRD text and press Ctrl+D:")
		}
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read requirement document: %w", err)
	}
	brd := strings.TrimSpace(string(raw))
	if brd == "" {
		return errors.New("no requirement document provided on stdin")
	}

	cfg, err := config.LoadConfig(opts.configFile)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(ctx, cfg, logger, app.Options{Memory: opts.memory})
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Design.RunPipeline(ctx, brd)
	if err != nil {
		return err
	}
	if err := writeReport(out, result); err != nil {
		return err
	}
	if err := saveScreens(opts.output, result.Screens); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n[INFO] screen spec saved to %s\n", opts.output)
	return nil
}

// writeReport prints every stage output under its own heading.
func writeReport(w io.Writer, result *models.PipelineResult) error {
	sections := []struct {
		title string
		value any
	}{
		{"Proposed bundle", result.Bundle},
		{"Normalized bundle", result.Normalized},
		{"Evaluation", result.Evaluation},
		{"UI graph + screen spec", result.Screens},
	}
	for _, s := range sections {
		b, err := marshalIndent(s.value)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "\n=== %s ===\n%s\n", s.title, b); err != nil {
			return err
		}
	}
	return nil
}

func saveScreens(path string, screens *models.ScreenResult) error {
	b, err := marshalIndent(screens)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to save screen spec: %w", err)
	}
	return nil
}

// marshalIndent keeps non-ASCII text and markup readable.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode output: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
