package app

import (
	"fmt"
	"time"

	"github.com/bobmcallan/powerstore-mcp/internal/client"
	"github.com/bobmcallan/powerstore-mcp/internal/common"
	"github.com/bobmcallan/powerstore-mcp/internal/config"
	"github.com/bobmcallan/powerstore-mcp/internal/handlers"
	"github.com/bobmcallan/powerstore-mcp/internal/mcp"
	"github.com/bobmcallan/powerstore-mcp/internal/metrics"
	"github.com/bobmcallan/powerstore-mcp/internal/openapi"
	"github.com/bobmcallan/powerstore-mcp/internal/tools"
)

// App holds all application components and dependencies.
type App struct {
	Config      *config.Config
	Logger      *common.Logger
	StartupTime time.Time

	Spec       *openapi.Document
	Catalog    *tools.Catalog
	Client     *client.PowerStoreClient
	Dispatcher *mcp.Dispatcher
	Metrics    *metrics.Metrics

	// HTTP handlers
	HealthHandler  *handlers.HealthHandler
	VersionHandler *handlers.VersionHandler
	ToolsHandler   *handlers.ToolsHandler
	MCPHandler     *mcp.Handler
}

// New initializes the application with all dependencies.
// The OpenAPI document is loaded once; a missing or malformed document is fatal.
func New(cfg *config.Config, logger *common.Logger) (*App, error) {
	a := &App{
		Config:      cfg,
		Logger:      logger,
		StartupTime: time.Now(),
	}

	doc, err := openapi.Load(cfg.PowerStore.LocalSpecPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	a.Spec = doc

	logger.Info().
		Str("path", cfg.PowerStore.LocalSpecPath).
		Str("title", doc.Info.Title).
		Str("api_version", doc.Info.Version).
		Msg("OpenAPI spec loaded")

	a.Catalog = tools.Generate(doc, logger)
	a.Metrics = metrics.New()
	a.Metrics.SetCatalogSize(a.Catalog.Len())

	a.Client = client.NewPowerStoreClient(client.Options{
		APIBasePath: cfg.PowerStore.APIBasePath,
		TLSVerify:   cfg.PowerStore.TLSVerify,
		MaxRetries:  cfg.Client.MaxRetries,
		RetryDelay:  cfg.Client.GetRetryDelay(),
		Timeout:     cfg.Client.GetRequestTimeout(),
		Logger:      logger,
		Metrics:     a.Metrics,
	})

	defaults := client.Credentials{
		Host:     cfg.PowerStore.Host,
		Username: cfg.PowerStore.Username,
		Password: cfg.PowerStore.Password,
	}
	a.Dispatcher = mcp.NewDispatcher(a.Catalog, a.Client, defaults, logger, a.Metrics)

	if err := a.initHandlers(); err != nil {
		a.Client.Close()
		return nil, err
	}

	logger.Info().
		Int("tools", a.Catalog.Len()).
		Bool("default_credentials", cfg.HasDefaultCredentials()).
		Msg("application initialization complete")

	return a, nil
}

// initHandlers initializes all HTTP handlers.
func (a *App) initHandlers() error {
	mcpHandler, err := mcp.NewHandler(a.Config.Server.Name, config.GetVersion(), a.Dispatcher, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP handler: %w", err)
	}
	a.MCPHandler = mcpHandler

	a.HealthHandler = handlers.NewHealthHandler(a.Logger)
	a.VersionHandler = handlers.NewVersionHandler(a.Logger)
	a.ToolsHandler = handlers.NewToolsHandler(a.Logger, a.MCPHandler)

	a.Logger.Debug().Msg("HTTP handlers initialized")
	return nil
}

// Close closes all application resources.
func (a *App) Close() error {
	if a.Client != nil {
		a.Client.Close()
	}
	return nil
}
