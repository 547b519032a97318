package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"flowgraph-mcp/backend/internal/api"
	"flowgraph-mcp/backend/internal/app"
	"flowgraph-mcp/backend/internal/config"
	"flowgraph-mcp/backend/internal/logging"
	"flowgraph-mcp/backend/internal/mcp"
)

type cli struct {
	cfg        *config.Config
	configFile string
	addr       string
	memory     bool
	seed       bool
}

func (c *cli) setupFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.configFile, "config-file", "", "Path to config file.")
	cmd.Flags().StringVar(&c.addr, "addr", "", "listen address, overrides server.addr")
	cmd.Flags().BoolVar(&c.memory, "memory", false, "use the in-memory store instead of PostgreSQL")
	cmd.Flags().BoolVar(&c.seed, "seed", true, "seed missing embeddings before serving")
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(c.configFile)
	if err != nil {
		return err
	}
	if c.addr != "" {
		cfg.Server.Addr = c.addr
	}
	c.cfg = cfg
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := c.cfg

	logger, err := logging.NewLogger(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting flowgraph design service")

	a, err := app.New(ctx, cfg, logger, app.Options{Memory: c.memory})
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		return err
	}
	defer a.Close()

	if c.seed {
		report, err := a.Design.Seed(ctx)
		if err != nil {
			// the pipeline seeds again on each run, so a failed start-up pass is not fatal
			logger.Error("initial seeding failed", "error", err)
		} else {
			logger.Info("Embeddings seeded", "created", report.Created, "total", report.Total)
		}
	}

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("flowgraph-mcp"))

	api.NewServer(a.Design, logger).RegisterRoutes(e)
	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(a.Design, logger)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp", echo.WrapHandler(mcpHandlers))
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
	return nil
}

func main() {
	c := &cli{}

	cmd := &cobra.Command{
		Use:     "server",
		Short:   "Serve the design pipeline over HTTP and MCP",
		PreRunE: c.setupConfig,
		RunE:    c.run,
	}
	c.setupFlags(cmd)

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
