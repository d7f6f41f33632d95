package database

import (
	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
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
	)
}
