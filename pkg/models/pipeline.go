package models

// ScreenResult is the designer-facing output of a pipeline run
type ScreenResult struct {
	Service       map[string]any `json:"service"`
	UIGraph       *UIGraph       `json:"ui_graph"`
	ScreenFlows   []any          `json:"screen_flows"`
	Screens       []any          `json:"screens"`
	GlobalMermaid string         `json:"global_mermaid"`
}

// PipelineResult holds the outputs of all four stages of a successful run
type PipelineResult struct {
	RunID      string         `json:"run_id"`
	Bundle     Bundle         `json:"bundle"`
	Normalized Bundle         `json:"normalized"`
	Evaluation map[string]any `json:"evaluation"`
	Screens    *ScreenResult  `json:"screens"`
}
