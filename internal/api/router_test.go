package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/accesscontrol"
	"github.com/gridbasehq/gridbase/internal/app"
	"github.com/gridbasehq/gridbase/internal/database/testutil"
	"github.com/gridbasehq/gridbase/internal/masking"
	"github.com/gridbasehq/gridbase/internal/models"
	"github.com/gridbasehq/gridbase/internal/realtime"
	"github.com/gridbasehq/gridbase/internal/services"
)

func testRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	evaluator, err := accesscontrol.NewEvaluator(db)
	require.NoError(t, err)
	resolver, err := masking.NewAudienceResolver(db, nil)
	require.NoError(t, err)
	responseMasker, err := masking.NewResponseMasker(db, resolver)
	require.NoError(t, err)
	exportMasker, err := masking.NewExportMasker(db, responseMasker)
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	grants, err := services.NewGrantService(db, resolver, nil, audit)
	require.NoError(t, err)
	catalog := services.NewPluginCatalog()
	require.NoError(t, catalog.Register(services.PluginInfo{Type: "access_control", Name: "Access Control"}))
	plugins, err := services.NewPluginService(db, catalog)
	require.NoError(t, err)
	rows, err := services.NewRowService(db, evaluator, nil)
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Monitoring.Health.Enabled = true

	router, err := NewRouter(Dependencies{
		DB:             db,
		Config:         cfg,
		Evaluator:      evaluator,
		Grants:         grants,
		Rows:           rows,
		Plugins:        plugins,
		Catalog:        catalog,
		Audit:          audit,
		ResponseMasker: responseMasker,
		ExportMasker:   exportMasker,
		Hub:            realtime.NewHub(),
	})
	require.NoError(t, err)

	return router, db
}

func seedRouterFixture(t *testing.T, db *gorm.DB) (workspaceID, tableID int64) {
	t.Helper()

	workspace := models.Workspace{Name: "Ops"}
	require.NoError(t, db.Create(&workspace).Error)
	require.NoError(t, db.Create(&models.WorkspaceMember{WorkspaceID: workspace.ID, UserID: 1, Role: models.RoleAdmin}).Error)

	dbRecord := models.Database{WorkspaceID: workspace.ID, Name: "CRM"}
	require.NoError(t, db.Create(&dbRecord).Error)
	table := models.Table{DatabaseID: dbRecord.ID, Name: "Deals"}
	require.NoError(t, db.Create(&table).Error)
	field := models.Field{TableID: table.ID, Name: "Amount", Type: "number"}
	require.NoError(t, db.Create(&field).Error)
	row := models.Row{TableID: table.ID, Order: 1, CreatedByID: 1}
	row.Data = map[string]any{fmt.Sprintf("field_%d", field.ID): "100"}
	require.NoError(t, db.Create(&row).Error)

	return workspace.ID, table.ID
}

func TestRouterRequiresActor(t *testing.T) {
	router, db := testRouter(t)
	_, tableID := seedRouterFixture(t, db)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/tables/%d/rows", tableID), nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "MISSING_ACTOR")
}

func TestRouterHealthIsPublic(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterListsRowsForAdmin(t *testing.T) {
	router, db := testRouter(t)
	_, tableID := seedRouterFixture(t, db)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/tables/%d/rows", tableID), nil)
	req.Header.Set("X-Actor-ID", "1")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"count":1`)
}

func TestRouterPermissionCheck(t *testing.T) {
	router, db := testRouter(t)
	workspaceID, tableID := seedRouterFixture(t, db)

	body := fmt.Sprintf(`{"checks":[{"operation":"table.read","table_id":%d}]}`, tableID)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/workspaces/%d/permissions/check", workspaceID), strings.NewReader(body))
	req.Header.Set("X-Actor-ID", "1")
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"allowed":true`)
}

func TestRouterGrantRequiresWorkspaceAdmin(t *testing.T) {
	router, db := testRouter(t)
	workspaceID, tableID := seedRouterFixture(t, db)
	require.NoError(t, db.Create(&models.WorkspaceMember{WorkspaceID: workspaceID, UserID: 2, Role: models.RoleMember}).Error)

	body := `{"user_id":2,"level":"read_only"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/tables/%d/grants", tableID), strings.NewReader(body))
	req.Header.Set("X-Actor-ID", "2")
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	req.Header.Set("X-Actor-ID", "1")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
