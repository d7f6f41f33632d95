package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/accesscontrol"
	"github.com/gridbasehq/gridbase/internal/masking"
	"github.com/gridbasehq/gridbase/internal/models"
)

const (
	adminID  int64 = 1
	memberID int64 = 2
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Workspace{},
		&models.WorkspaceMember{},
		&models.Database{},
		&models.Table{},
		&models.Field{},
		&models.Row{},
		&models.WorkspaceStructurePermission{},
		&models.PluginPermission{},
		&models.DatabaseCollaboration{},
		&models.TablePermission{},
		&models.FieldPermission{},
		&models.RowPermission{},
		&models.ConditionRule{},
		&models.AuditLog{},
		&models.CacheEntry{},
	))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

type serviceFixture struct {
	db        *gorm.DB
	workspace models.Workspace
	database  models.Database
	table     models.Table
	field     models.Field
	row       models.Row
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db := setupTestDB(t)

	f := &serviceFixture{db: db}
	f.workspace = models.Workspace{Name: "Acme"}
	require.NoError(t, db.Create(&f.workspace).Error)

	require.NoError(t, db.Create(&models.WorkspaceMember{
		WorkspaceID: f.workspace.ID, UserID: adminID, Role: models.RoleAdmin,
	}).Error)
	require.NoError(t, db.Create(&models.WorkspaceMember{
		WorkspaceID: f.workspace.ID, UserID: memberID, Role: models.RoleMember,
	}).Error)

	f.database = models.Database{WorkspaceID: f.workspace.ID, Name: "CRM"}
	require.NoError(t, db.Create(&f.database).Error)

	f.table = models.Table{DatabaseID: f.database.ID, Name: "Deals"}
	require.NoError(t, db.Create(&f.table).Error)

	f.field = models.Field{TableID: f.table.ID, Name: "Amount", Type: "number"}
	require.NoError(t, db.Create(&f.field).Error)

	f.row = models.Row{
		TableID:     f.table.ID,
		Order:       1,
		CreatedByID: memberID,
		Data: datatypes.JSONMap{
			f.fieldKey(): "100",
		},
	}
	require.NoError(t, db.Create(&f.row).Error)

	return f
}

func (f *serviceFixture) fieldKey() string {
	return fmt.Sprintf("field_%d", f.field.ID)
}

func (f *serviceFixture) evaluator(t *testing.T) *accesscontrol.Evaluator {
	t.Helper()
	evaluator, err := accesscontrol.NewEvaluator(f.db)
	require.NoError(t, err)
	return evaluator
}

func (f *serviceFixture) resolver(t *testing.T) *masking.AudienceResolver {
	t.Helper()
	resolver, err := masking.NewAudienceResolver(f.db, nil)
	require.NoError(t, err)
	return resolver
}

func (f *serviceFixture) auditService(t *testing.T) *AuditService {
	t.Helper()
	audit, err := NewAuditService(f.db)
	require.NoError(t, err)
	return audit
}

type recordedNotification struct {
	userID int64
	scope  string
	detail map[string]any
}

type fakeNotifier struct {
	notifications []recordedNotification
}

func (n *fakeNotifier) PermissionsUpdated(userID int64, scope string, detail map[string]any) {
	n.notifications = append(n.notifications, recordedNotification{userID, scope, detail})
}
