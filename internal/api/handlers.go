// Package api contains the HTTP handlers for the design service
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"

	"flowgraph-mcp/backend/internal/llm"
	"flowgraph-mcp/backend/internal/logging"
	"flowgraph-mcp/backend/internal/pipeline"
	"flowgraph-mcp/backend/internal/repository"
	"flowgraph-mcp/backend/internal/retrieval"
	"flowgraph-mcp/backend/internal/services"
	"flowgraph-mcp/backend/pkg/models"
)

const (
	serviceName    = "flowgraph-mcp"
	serviceVersion = "1.0.0"

	defaultContextK = 20
	defaultTopK     = 10
)

// Server holds the dependencies for the API server.
type Server struct {
	svc    *services.DesignService
	logger *logging.Logger
}

// NewServer creates a new Server.
func NewServer(svc *services.DesignService, logger *logging.Logger) *Server {
	return &Server{svc: svc, logger: logger}
}

// RegisterRoutes mounts every handler on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/status", s.Status)
	e.GET("/api/search", s.SearchScreens)

	v1 := e.Group("/api/v1")
	v1.GET("/health", s.HandleHealth)
	v1.POST("/pipeline", s.RunPipeline)
	v1.POST("/graph", s.BuildGraph)
	v1.GET("/context", s.BuildContext)
	v1.GET("/flows/:slug", s.GetFlowBundle)
	v1.GET("/steps/:slug", s.GetStepDetails)
	v1.GET("/components", s.ListComponents)
	v1.GET("/components/search", s.SearchComponents)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Database  string    `json:"database"`
}

// Status is the plain liveness probe
// (GET /status)
func (s *Server) Status(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// HandleHealth reports service and database health
// (GET /api/v1/health)
func (s *Server) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   serviceName,
		Version:   serviceVersion,
		Database:  "ok",
	}
	if err := s.svc.Ping(c.Request().Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		status.Status = "degraded"
		status.Database = err.Error()
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	return c.JSON(http.StatusOK, status)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
	Stage    string `json:"stage,omitempty"`
}

// writeError writes an RFC 7807 Problem Details JSON error response
func writeError(c echo.Context, status int, title, detail string) error {
	return writeProblem(c, ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

func writeProblem(c echo.Context, problem ProblemDetails) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(problem.Status, problem)
}

// writeServiceError maps a service error onto a problem response.
func (s *Server) writeServiceError(c echo.Context, err error) error {
	problem := ProblemDetails{
		Type:     "about:blank",
		Detail:   err.Error(),
		Instance: c.Request().URL.Path,
	}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		problem.Stage = string(stageErr.Stage)
	}

	switch {
	case errors.Is(err, pipeline.ErrEmptyInput), errors.Is(err, retrieval.ErrEmptyQuery):
		problem.Status, problem.Title = http.StatusBadRequest, "Bad Request"
	case errors.Is(err, repository.ErrNotFound):
		problem.Status, problem.Title = http.StatusNotFound, "Not Found"
	case errors.Is(err, llm.ErrMalformedOutput):
		problem.Status, problem.Title = http.StatusBadGateway, "Malformed Model Output"
	case errors.Is(err, llm.ErrProviderUnavailable):
		problem.Status, problem.Title = http.StatusServiceUnavailable, "Provider Unavailable"
	default:
		problem.Status, problem.Title = http.StatusInternalServerError, "Internal Server Error"
	}
	if problem.Status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", problem.Instance, "status", problem.Status, "error", err)
	}
	return writeProblem(c, problem)
}

// SearchScreens runs the full pipeline for a requirement passed as a query
// parameter and returns the screen result
// (GET /api/search)
func (s *Server) SearchScreens(c echo.Context) error {
	var query string
	if err := runtime.BindQueryParameter("form", true, true, "query", c.QueryParams(), &query); err != nil {
		return writeError(c, http.StatusBadRequest, "Bad Request", err.Error())
	}
	screens, err := s.svc.GenerateScreens(c.Request().Context(), query)
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, screens)
}

// PipelineRequest is the body of a pipeline run.
type PipelineRequest struct {
	BRD string `json:"brd"`
}

// RunPipeline runs all four stages and returns every output
// (POST /api/v1/pipeline)
func (s *Server) RunPipeline(c echo.Context) error {
	var req PipelineRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "Bad Request", "Invalid request body: "+err.Error())
	}
	result, err := s.svc.RunPipeline(c.Request().Context(), req.BRD)
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// BuildGraph derives the UI graph of a normalized bundle
// (POST /api/v1/graph)
func (s *Server) BuildGraph(c echo.Context) error {
	var bundle models.Bundle
	if err := c.Bind(&bundle); err != nil {
		return writeError(c, http.StatusBadRequest, "Bad Request", "Invalid bundle: "+err.Error())
	}
	return c.JSON(http.StatusOK, s.svc.BuildGraph(bundle))
}

// ContextResponse carries retrieval evidence and its rendered text.
type ContextResponse struct {
	Query    string               `json:"query"`
	K        int                  `json:"k"`
	Evidence []retrieval.Evidence `json:"evidence"`
	Context  string               `json:"context"`
}

// BuildContext returns the k most similar records for a query
// (GET /api/v1/context)
func (s *Server) BuildContext(c echo.Context) error {
	var query string
	if err := runtime.BindQueryParameter("form", true, true, "query", c.QueryParams(), &query); err != nil {
		return writeError(c, http.StatusBadRequest, "Bad Request", err.Error())
	}
	k := defaultContextK
	if err := runtime.BindQueryParameter("form", true, false, "k", c.QueryParams(), &k); err != nil {
		return writeError(c, http.StatusBadRequest, "Bad Request", err.Error())
	}

	evidence, text, err := s.svc.BuildContext(c.Request().Context(), query, k)
	if err != nil {
		return s.writeServiceError(c, err)
	}
	if evidence == nil {
		evidence = []retrieval.Evidence{}
	}
	return c.JSON(http.StatusOK, ContextResponse{Query: query, K: k, Evidence: evidence, Context: text})
}

// GetFlowBundle returns a stored flow with its steps and components
// (GET /api/v1/flows/{slug})
func (s *Server) GetFlowBundle(c echo.Context) error {
	bundle, err := s.svc.GetFlowBundle(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, bundle)
}

// GetStepDetails returns a stored step with its components and transitions
// (GET /api/v1/steps/{slug})
func (s *Server) GetStepDetails(c echo.Context) error {
	details, err := s.svc.GetStepDetails(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, details)
}

// ListComponents lists design system components
// (GET /api/v1/components)
func (s *Server) ListComponents(c echo.Context) error {
	var typeFilter, search string
	if err := runtime.BindQueryParameter("form", true, false, "type", c.QueryParams(), &typeFilter); err != nil {
		return writeError(c, http.StatusBadRequest, "Bad Request", err.Error())
	}
	if err := runtime.BindQueryParameter("form", true, false, "search", c.QueryParams(), &search); err != nil {
		return writeError(c, http.StatusBadRequest, "Bad Request", err.Error())
	}

	components, err := s.svc.ListComponents(c.Request().Context(), strings.TrimSpace(typeFilter), strings.TrimSpace(search))
	if err != nil {
		return s.writeServiceError(c, err)
	}
	if components == nil {
		components = []*models.UIComponent{}
	}
	return c.JSON(http.StatusOK, components)
}

// SearchComponents ranks components semantically against a query
// (GET /api/v1/components/search)
func (s *Server) SearchComponents(c echo.Context) error {
	var query string
	if err := runtime.BindQueryParameter("form", true, true, "query", c.QueryParams(), &query); err != nil {
		return writeError(c, http.StatusBadRequest, "Bad Request", err.Error())
	}
	topK := defaultTopK
	if err := runtime.BindQueryParameter("form", true, false, "top_k", c.QueryParams(), &topK); err != nil {
		return writeError(c, http.StatusBadRequest, "Bad Request", err.Error())
	}
	if strings.TrimSpace(query) == "" {
		return writeError(c, http.StatusBadRequest, "Bad Request", "query must not be blank")
	}

	hits, err := s.svc.SemanticSearchComponents(c.Request().Context(), query, topK)
	if err != nil {
		return s.writeServiceError(c, err)
	}
	if hits == nil {
		hits = []models.ComponentHit{}
	}
	return c.JSON(http.StatusOK, hits)
}
