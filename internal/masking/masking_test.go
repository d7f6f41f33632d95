package masking

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/models"
)

const (
	adminID  int64 = 1
	memberID int64 = 42
)

type maskFixture struct {
	db        *gorm.DB
	workspace models.Workspace
	database  models.Database
	table     models.Table
	fieldOne  models.Field
	fieldTwo  models.Field
	rowOne    models.Row
	rowTwo    models.Row
}

func newMaskFixture(t *testing.T) *maskFixture {
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
		&models.RowPermission{},
		&models.FieldPermission{},
		&models.ConditionRule{},
		&models.CacheEntry{},
	))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &maskFixture{db: db}
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

	f.fieldOne = models.Field{TableID: f.table.ID, Name: "Name"}
	require.NoError(t, db.Create(&f.fieldOne).Error)
	f.fieldTwo = models.Field{TableID: f.table.ID, Name: "Salary"}
	require.NoError(t, db.Create(&f.fieldTwo).Error)

	f.rowOne = models.Row{
		TableID: f.table.ID, Order: 1, CreatedByID: memberID,
		Data: datatypes.JSONMap{
			f.fieldKey(1): "Alice",
			f.fieldKey(2): "90000",
		},
	}
	require.NoError(t, db.Create(&f.rowOne).Error)

	f.rowTwo = models.Row{
		TableID: f.table.ID, Order: 2, CreatedByID: adminID,
		Data: datatypes.JSONMap{
			f.fieldKey(1): "Bob",
			f.fieldKey(2): "120000",
		},
	}
	require.NoError(t, db.Create(&f.rowTwo).Error)

	return f
}

// fieldKey returns the canonical data key for the fixture's nth field.
func (f *maskFixture) fieldKey(n int) string {
	id := f.fieldOne.ID
	if n == 2 {
		id = f.fieldTwo.ID
	}
	return fmt.Sprintf("field_%d", id)
}

func (f *maskFixture) resolver(t *testing.T, opts ...ResolverOption) *AudienceResolver {
	t.Helper()
	resolver, err := NewAudienceResolver(f.db, nil, opts...)
	require.NoError(t, err)
	return resolver
}
