package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridbasehq/gridbase/internal/models"
	apperrors "github.com/gridbasehq/gridbase/pkg/errors"
)

func testCatalog(t *testing.T) *PluginCatalog {
	t.Helper()

	catalog := NewPluginCatalog()
	require.NoError(t, catalog.Register(PluginInfo{Type: "charts", Name: "Charts"}))
	require.NoError(t, catalog.Register(PluginInfo{Type: "automations", Name: "Automations"}))
	return catalog
}

func (f *serviceFixture) pluginService(t *testing.T, catalog *PluginCatalog) *PluginService {
	t.Helper()
	service, err := NewPluginService(f.db, catalog)
	require.NoError(t, err)
	return service
}

func TestCatalogRejectsDuplicateType(t *testing.T) {
	catalog := testCatalog(t)
	require.Error(t, catalog.Register(PluginInfo{Type: "charts"}))
}

func TestCatalogListSorted(t *testing.T) {
	catalog := testCatalog(t)

	infos := catalog.List()
	require.Len(t, infos, 2)
	require.Equal(t, "automations", infos[0].Type)
	require.Equal(t, "charts", infos[1].Type)
}

func TestPluginAccessDefaultsToNone(t *testing.T) {
	f := newServiceFixture(t)
	service := f.pluginService(t, testCatalog(t))

	err := service.CheckAccess(context.Background(), memberID, f.workspace.ID, "charts", models.PluginLevelUse)
	require.ErrorIs(t, err, apperrors.ErrPluginNoPermission)
}

func TestPluginAccessAdminBypass(t *testing.T) {
	f := newServiceFixture(t)
	service := f.pluginService(t, testCatalog(t))
	ctx := context.Background()

	require.NoError(t, service.CheckAccess(ctx, adminID, f.workspace.ID, "charts", models.PluginLevelUse))
	require.NoError(t, service.CheckAccess(ctx, adminID, f.workspace.ID, "charts", models.PluginLevelConfigure))
}

func TestPluginAccessLevels(t *testing.T) {
	f := newServiceFixture(t)
	service := f.pluginService(t, testCatalog(t))
	ctx := context.Background()

	require.NoError(t, f.db.Create(&models.PluginPermission{
		WorkspaceID: f.workspace.ID, UserID: memberID, PluginType: "charts", Level: models.PluginLevelUse,
	}).Error)

	require.NoError(t, service.CheckAccess(ctx, memberID, f.workspace.ID, "charts", models.PluginLevelUse))
	require.ErrorIs(t, service.CheckAccess(ctx, memberID, f.workspace.ID, "charts", models.PluginLevelConfigure), apperrors.ErrPluginNoPermission)
	require.ErrorIs(t, service.CheckAccess(ctx, memberID, f.workspace.ID, "automations", models.PluginLevelUse), apperrors.ErrPluginNoPermission)
}

func TestPluginAccessUnknownPlugin(t *testing.T) {
	f := newServiceFixture(t)
	service := f.pluginService(t, testCatalog(t))

	err := service.CheckAccess(context.Background(), adminID, f.workspace.ID, "mystery", models.PluginLevelUse)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPluginAccessLevelsSummary(t *testing.T) {
	f := newServiceFixture(t)
	service := f.pluginService(t, testCatalog(t))
	ctx := context.Background()

	require.NoError(t, f.db.Create(&models.PluginPermission{
		WorkspaceID: f.workspace.ID, UserID: memberID, PluginType: "charts", Level: models.PluginLevelConfigure,
	}).Error)

	levels, err := service.AccessLevels(ctx, memberID, f.workspace.ID)
	require.NoError(t, err)
	require.Equal(t, models.PluginLevelConfigure, levels["charts"])
	require.Equal(t, models.PluginLevelNone, levels["automations"])

	adminLevels, err := service.AccessLevels(ctx, adminID, f.workspace.ID)
	require.NoError(t, err)
	require.Equal(t, models.PluginLevelConfigure, adminLevels["charts"])
	require.Equal(t, models.PluginLevelConfigure, adminLevels["automations"])
}
