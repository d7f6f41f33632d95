package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gridbasehq/gridbase/internal/app"
)

func testBootstrapConfig(t *testing.T) *app.Config {
	t.Helper()
	cfg := &app.Config{}
	cfg.Server.Port = 0
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	cfg.Masking.AudienceTTL = 0
	cfg.Audit.RetentionDays = 1
	cfg.Monitoring.Health.Enabled = true
	cfg.Monitoring.Prometheus.Enabled = false
	cfg.RateLimits.Enabled = false
	cfg.Maintenance.Enabled = false
	return cfg
}

func TestBootstrapRuntime(t *testing.T) {
	cfg := testBootstrapConfig(t)

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.DB)
	require.NotNil(t, stack.Router)
	require.NotNil(t, stack.AuditSvc)
	require.Nil(t, stack.Cleaner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBootstrapRuntimeStartsMaintenance(t *testing.T) {
	cfg := testBootstrapConfig(t)
	cfg.Maintenance.Enabled = true
	cfg.Maintenance.AuditSchedule = "@daily"
	cfg.Maintenance.CacheSchedule = "@hourly"

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.Cleaner)
}

func TestConvertDatabaseConfigPostgres(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "postgresql"
	cfg.Database.Postgres.Host = "db.internal"
	cfg.Database.Postgres.Port = 5432
	cfg.Database.Postgres.Database = "gridbase"
	cfg.Database.Postgres.Username = "svc"
	cfg.Database.Postgres.Password = "secret"

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5432, dbCfg.Port)
	require.Equal(t, "gridbase", dbCfg.Name)
	require.Equal(t, "svc", dbCfg.User)
	require.Equal(t, "secret", dbCfg.Password)
}
