package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gin-gonic/gin"

	"github.com/gridbasehq/gridbase/internal/accesscontrol"
	"github.com/gridbasehq/gridbase/internal/api"
	"github.com/gridbasehq/gridbase/internal/app"
	"github.com/gridbasehq/gridbase/internal/app/maintenance"
	"github.com/gridbasehq/gridbase/internal/cache"
	"github.com/gridbasehq/gridbase/internal/database"
	"github.com/gridbasehq/gridbase/internal/masking"
	"github.com/gridbasehq/gridbase/internal/middleware"
	"github.com/gridbasehq/gridbase/internal/realtime"
	"github.com/gridbasehq/gridbase/internal/services"
	"github.com/gridbasehq/gridbase/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     cache.Store
	Hub       *realtime.Hub
	AuditSvc  *services.AuditService
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	var audienceStore cache.Store = dbStore
	if stack.Redis != nil {
		audienceStore = stack.Redis
	}

	evaluator, err := accesscontrol.NewEvaluator(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise evaluator: %w", err)
	}

	resolver, err := masking.NewAudienceResolver(stack.DB, audienceStore,
		masking.WithTTL(cfg.Masking.AudienceTTL),
		masking.WithLookupTimeout(cfg.Masking.LookupTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise audience resolver: %w", err)
	}

	responseMasker, err := masking.NewResponseMasker(stack.DB, resolver)
	if err != nil {
		return nil, fmt.Errorf("initialise response masker: %w", err)
	}

	exportMasker, err := masking.NewExportMasker(stack.DB, responseMasker)
	if err != nil {
		return nil, fmt.Errorf("initialise export masker: %w", err)
	}

	stack.Hub = realtime.NewHub()
	broadcaster, err := masking.NewBroadcastMasker(stack.DB, resolver, realtime.NewEventSender(stack.Hub))
	if err != nil {
		return nil, fmt.Errorf("initialise broadcast masker: %w", err)
	}

	stack.AuditSvc, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	grantSvc, err := services.NewGrantService(stack.DB, resolver, realtime.NewNotifier(stack.Hub), stack.AuditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise grant service: %w", err)
	}

	catalog := services.NewPluginCatalog()
	if err := registerBuiltinPlugins(catalog); err != nil {
		return nil, fmt.Errorf("register plugins: %w", err)
	}
	pluginSvc, err := services.NewPluginService(stack.DB, catalog)
	if err != nil {
		return nil, fmt.Errorf("initialise plugin service: %w", err)
	}

	rowSvc, err := services.NewRowService(stack.DB, evaluator, broadcaster)
	if err != nil {
		return nil, fmt.Errorf("initialise row service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.AuditSvc, dbStore,
			maintenance.WithAuditRetentionDays(cfg.Audit.RetentionDays),
			maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
			maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	switch {
	case stack.Redis != nil:
		stack.RateStore = middleware.NewRedisRateStore(stack.Redis)
	case dbStore != nil:
		stack.RateStore = middleware.NewDatabaseRateStore(dbStore)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:             stack.DB,
		Config:         cfg,
		Evaluator:      evaluator,
		Grants:         grantSvc,
		Rows:           rowSvc,
		Plugins:        pluginSvc,
		Catalog:        catalog,
		Audit:          stack.AuditSvc,
		ResponseMasker: responseMasker,
		ExportMasker:   exportMasker,
		Hub:            stack.Hub,
		RateStore:      stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func registerBuiltinPlugins(catalog *services.PluginCatalog) error {
	return catalog.Register(services.PluginInfo{
		Type:        "access_control",
		Name:        "Access Control",
		Description: "Hierarchical permissions and data masking for workspaces.",
	})
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if rc, ok := s.Redis.(*cache.RedisClient); ok && rc != nil {
		if err := rc.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
