package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/accesscontrol"
	"github.com/gridbasehq/gridbase/internal/app"
	"github.com/gridbasehq/gridbase/internal/handlers"
	"github.com/gridbasehq/gridbase/internal/masking"
	"github.com/gridbasehq/gridbase/internal/middleware"
	"github.com/gridbasehq/gridbase/internal/realtime"
	"github.com/gridbasehq/gridbase/internal/services"
)

// Dependencies carries the wired components the router mounts. DB, Config and
// the core services are required; RateStore is optional (rate limiting is
// skipped when absent).
type Dependencies struct {
	DB             *gorm.DB
	Config         *app.Config
	Evaluator      *accesscontrol.Evaluator
	Grants         *services.GrantService
	Rows           *services.RowService
	Plugins        *services.PluginService
	Catalog        *services.PluginCatalog
	Audit          *services.AuditService
	ResponseMasker *masking.ResponseMasker
	ExportMasker   *masking.ExportMasker
	Hub            *realtime.Hub
	RateStore      middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	if cfg.RateLimits.Enabled {
		r.Use(middleware.RateLimit(deps.RateStore, cfg.RateLimits.MaxRequests, cfg.RateLimits.Window))
	}

	// Health endpoint (public)
	if cfg.Monitoring.Health.Enabled {
		healthHandler := handlers.NewHealthHandler(deps.DB)
		r.GET("/api/health", healthHandler.Health)
	}

	// Everything below needs an acting user
	api := r.Group("/api")
	api.Use(middleware.Actor())

	permHandler, err := handlers.NewPermissionHandler(deps.Evaluator)
	if err != nil {
		return nil, err
	}
	grantHandler, err := handlers.NewGrantHandler(deps.DB, deps.Grants)
	if err != nil {
		return nil, err
	}
	rowHandler, err := handlers.NewRowHandler(deps.Rows, deps.ResponseMasker)
	if err != nil {
		return nil, err
	}
	exportHandler, err := handlers.NewExportHandler(deps.Rows, deps.ExportMasker)
	if err != nil {
		return nil, err
	}
	pluginHandler, err := handlers.NewPluginHandler(deps.Plugins, deps.Catalog)
	if err != nil {
		return nil, err
	}
	auditHandler, err := handlers.NewAuditHandler(deps.Audit)
	if err != nil {
		return nil, err
	}

	// Workspaces: checks, snapshots, workspace-scoped grants, plugins
	workspaces := api.Group("/workspaces/:workspaceID")
	{
		workspaces.POST("/permissions/check", permHandler.Check)
		workspaces.GET("/permissions/snapshot", permHandler.Snapshot)

		workspaces.PUT("/grants/structure", grantHandler.SetWorkspaceStructure)
		workspaces.DELETE("/grants/structure/:userID", grantHandler.DeleteWorkspaceStructure)
		workspaces.PUT("/grants/plugins", grantHandler.SetPluginPermission)
		workspaces.DELETE("/grants/plugins/:userID/:pluginType", grantHandler.DeletePluginPermission)

		workspaces.GET("/plugins", pluginHandler.List)
		workspaces.GET("/plugins/:pluginType/check", pluginHandler.Check)
	}

	// Databases: collaborations
	databases := api.Group("/databases/:databaseID")
	{
		databases.PUT("/grants/collaborations", grantHandler.SetCollaboration)
		databases.DELETE("/grants/collaborations/:userID", grantHandler.DeleteCollaboration)
	}

	// Tables: rows, exports, table grants and condition rules
	tables := api.Group("/tables/:tableID")
	{
		tables.GET("/rows", rowHandler.List)
		tables.POST("/rows", rowHandler.Create)
		tables.POST("/rows/batch-delete", rowHandler.BatchDelete)
		tables.GET("/rows/:rowID", rowHandler.Get)
		tables.PATCH("/rows/:rowID", rowHandler.Update)
		tables.DELETE("/rows/:rowID", rowHandler.Delete)

		tables.GET("/export/csv", exportHandler.CSV)

		tables.PUT("/grants", grantHandler.SetTablePermission)
		tables.DELETE("/grants/:userID", grantHandler.DeleteTablePermission)
		tables.POST("/rules", grantHandler.SaveConditionRule)
		tables.DELETE("/rules/:ruleID", grantHandler.DeleteConditionRule)
	}

	// Fields and rows: direct grants
	api.PUT("/fields/:fieldID/grants", grantHandler.SetFieldPermission)
	api.DELETE("/fields/:fieldID/grants/:userID", grantHandler.DeleteFieldPermission)
	api.PUT("/rows/:rowID/grants", grantHandler.SetRowPermission)
	api.DELETE("/rows/:rowID/grants/:userID", grantHandler.DeleteRowPermission)

	// Audit trail
	api.GET("/audit", auditHandler.List)

	// Realtime
	if deps.Hub != nil {
		realtimeHandler, err := handlers.NewRealtimeHandler(deps.Hub)
		if err != nil {
			return nil, err
		}
		api.GET("/ws", realtimeHandler.Serve)
	}

	// Metrics endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(cfg.Monitoring.Prometheus.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
