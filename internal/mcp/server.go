package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"flowgraph-mcp/backend/internal/logging"
	"flowgraph-mcp/backend/internal/repository"
	"flowgraph-mcp/backend/internal/services"
	"flowgraph-mcp/backend/pkg/models"
)

const (
	defaultTopK     = 10
	defaultContextK = 20
)

type Server struct {
	mcpServer     *server.MCPServer
	designService *services.DesignService
	logger        *logging.Logger
}

func NewServer(designService *services.DesignService, logger *logging.Logger) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Flowgraph Design",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		designService: designService,
		logger:        logger,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"generate_screens_only",
			mcp.WithDescription("Run the design pipeline on a requirement document and return only designer-facing data: "+
				"service, UI graph, screen flows, screen definitions and the global Mermaid diagram"),
			mcp.WithString("brd", mcp.Required(), mcp.Description("The business requirement document text")),
		),
		s.handleGenerateScreens,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_flow_bundle",
			mcp.WithDescription("Load a stored flow by slug with its service, steps, transitions, step components and UI components"),
			mcp.WithString("flow_slug", mcp.Required(), mcp.Description("The slug of the flow")),
		),
		s.handleGetFlowBundle,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_step_details",
			mcp.WithDescription("Get a single stored step by slug with its components (with roles) and incoming and outgoing transitions"),
			mcp.WithString("step_slug", mcp.Required(), mcp.Description("The slug of the step")),
		),
		s.handleGetStepDetails,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_ui_components",
			mcp.WithDescription("List design system components, optionally filtered by type and a search string matched against name, description and usage notes"),
			mcp.WithString("type", mcp.Description("Component type, e.g. button or input")),
			mcp.WithString("search", mcp.Description("Substring to match")),
		),
		s.handleListComponents,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"semantic_search_components",
			mcp.WithDescription("Find the design system components most relevant to a natural-language description"),
			mcp.WithString("query", mcp.Required(), mcp.Description("What the component should do or look like")),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of components to return (default 10)")),
		),
		s.handleSemanticSearch,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"build_ui_graph_from_bundle",
			mcp.WithDescription("Build a UI graph (nodes, edges, Mermaid diagram, warnings) from a normalized bundle"),
			mcp.WithObject("normalized_bundle", mcp.Required(), mcp.Description("The normalized bundle, as an object or a JSON string")),
		),
		s.handleBuildGraph,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"build_context",
			mcp.WithDescription("Return the retrieval context lines the pipeline would see for a query"),
			mcp.WithString("query", mcp.Required(), mcp.Description("The query text")),
			mcp.WithNumber("k", mcp.Description("Number of records to return (default 20)")),
		),
		s.handleBuildContext,
	)
}

func (s *Server) handleGenerateScreens(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	brd, ok := args["brd"].(string)
	if !ok || strings.TrimSpace(brd) == "" {
		return mcp.NewToolResultError("Missing required parameter: brd"), nil
	}

	screens, err := s.designService.GenerateScreens(ctx, brd)
	if err != nil {
		s.logger.Error("generate_screens_only failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate screens: %v", err)), nil
	}
	return jsonResult(screens)
}

func (s *Server) handleGetFlowBundle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	slug, ok := args["flow_slug"].(string)
	if !ok || slug == "" {
		return mcp.NewToolResultError("Missing required parameter: flow_slug"), nil
	}

	bundle, err := s.designService.GetFlowBundle(ctx, slug)
	if errors.Is(err, repository.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Flow with slug %q not found", slug)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load flow: %v", err)), nil
	}
	return jsonResult(bundle)
}

func (s *Server) handleGetStepDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	slug, ok := args["step_slug"].(string)
	if !ok || slug == "" {
		return mcp.NewToolResultError("Missing required parameter: step_slug"), nil
	}

	details, err := s.designService.GetStepDetails(ctx, slug)
	if errors.Is(err, repository.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Step with slug %q not found", slug)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load step: %v", err)), nil
	}
	return jsonResult(details)
}

func (s *Server) handleListComponents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok && request.Params.Arguments != nil {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	typeFilter, _ := args["type"].(string)
	search, _ := args["search"].(string)

	components, err := s.designService.ListComponents(ctx, strings.TrimSpace(typeFilter), strings.TrimSpace(search))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list components: %v", err)), nil
	}
	if components == nil {
		components = []*models.UIComponent{}
	}
	return jsonResult(map[string]any{"components": components})
}

func (s *Server) handleSemanticSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("Missing required parameter: query"), nil
	}
	topK := defaultTopK
	if v, ok := args["top_k"].(float64); ok {
		topK = int(v)
	}

	hits, err := s.designService.SemanticSearchComponents(ctx, query, topK)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search components: %v", err)), nil
	}
	if hits == nil {
		hits = []models.ComponentHit{}
	}
	return jsonResult(map[string]any{"components": hits})
}

func (s *Server) handleBuildGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	var bundle models.Bundle
	switch v := args["normalized_bundle"].(type) {
	case map[string]interface{}:
		bundle = v
	case string:
		if err := json.Unmarshal([]byte(v), &bundle); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("normalized_bundle is not a JSON object: %v", err)), nil
		}
	default:
		return mcp.NewToolResultError("Missing required parameter: normalized_bundle"), nil
	}

	return jsonResult(s.designService.BuildGraph(bundle))
}

func (s *Server) handleBuildContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("Missing required parameter: query"), nil
	}
	k := defaultContextK
	if v, ok := args["k"].(float64); ok {
		k = int(v)
	}

	_, text, err := s.designService.BuildContext(ctx, query, k)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to build context: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// SSE transport under /mcp/sse and /mcp/message
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
