package accesscontrol

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/models"
)

// Snapshot summarises every grant an actor holds in a workspace, shaped for
// UI consumption. Read-only; no side effects.
type Snapshot struct {
	UserID      int64 `json:"user_id"`
	WorkspaceID int64 `json:"workspace_id"`
	IsAdmin     bool  `json:"is_admin"`

	Structure      StructureGrant        `json:"structure"`
	Plugins        map[string]string     `json:"plugins"`
	Collaborations []CollaborationGrant  `json:"collaborations"`
	Tables         []TableGrant          `json:"tables"`
	HiddenFields   []int64               `json:"hidden_field_ids"`
	ReadOnlyFields []int64               `json:"read_only_field_ids"`
	Rows           []RowGrant            `json:"rows"`
}

// StructureGrant lists structural capabilities in the workspace.
type StructureGrant struct {
	CanCreateDatabase bool `json:"can_create_database"`
	CanDeleteDatabase bool `json:"can_delete_database"`
	CanCreateTable    bool `json:"can_create_table"`
	CanDeleteTable    bool `json:"can_delete_table"`
}

// CollaborationGrant reports a database collaboration scoped to the actor.
type CollaborationGrant struct {
	DatabaseID       int64            `json:"database_id"`
	AccessibleTables []int64          `json:"accessible_table_ids"`
	TableLevels      map[string]string `json:"table_levels"`
	CanCreateTable   bool             `json:"can_create_table"`
	CanDeleteTable   bool             `json:"can_delete_table"`
}

// TableGrant reports an explicit per-table level.
type TableGrant struct {
	TableID        int64  `json:"table_id"`
	Level          string `json:"level"`
	CanCreateField bool   `json:"can_create_field"`
	CanDeleteField bool   `json:"can_delete_field"`
}

// RowGrant reports an explicit per-row level.
type RowGrant struct {
	TableID int64  `json:"table_id"`
	RowID   int64  `json:"row_id"`
	Level   string `json:"level"`
}

// Snapshot assembles the full grant picture for an actor in a workspace.
// Admins short-circuit: every other listing is empty because nothing
// restricts them.
func (e *Evaluator) Snapshot(ctx context.Context, actorID, workspaceID int64) (*Snapshot, error) {
	ctx = ensureContext(ctx)

	snap := &Snapshot{
		UserID:      actorID,
		WorkspaceID: workspaceID,
		Plugins:     map[string]string{},
	}

	isAdmin, err := e.isWorkspaceAdmin(ctx, actorID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("access control: snapshot role: %w", err)
	}
	snap.IsAdmin = isAdmin
	if isAdmin {
		snap.Structure = StructureGrant{true, true, true, true}
		return snap, nil
	}

	var structure models.WorkspaceStructurePermission
	err = e.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, actorID).
		First(&structure).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("access control: snapshot structure: %w", err)
	}
	snap.Structure = StructureGrant{
		CanCreateDatabase: structure.CanCreateDatabase,
		CanDeleteDatabase: structure.CanDeleteDatabase,
		CanCreateTable:    structure.CanCreateTable,
		CanDeleteTable:    structure.CanDeleteTable,
	}

	var plugins []models.PluginPermission
	if err := e.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, actorID).
		Find(&plugins).Error; err != nil {
		return nil, fmt.Errorf("access control: snapshot plugins: %w", err)
	}
	for _, p := range plugins {
		snap.Plugins[p.PluginType] = p.Level
	}

	var collabs []models.DatabaseCollaboration
	if err := e.db.WithContext(ctx).
		Joins("JOIN databases ON databases.id = database_collaborations.database_id").
		Where("databases.workspace_id = ? AND database_collaborations.user_id = ?", workspaceID, actorID).
		Find(&collabs).Error; err != nil {
		return nil, fmt.Errorf("access control: snapshot collaborations: %w", err)
	}
	for _, c := range collabs {
		grant := CollaborationGrant{
			DatabaseID:       c.DatabaseID,
			AccessibleTables: c.AccessibleTableIDs(),
			TableLevels:      map[string]string{},
			CanCreateTable:   c.CanCreateTable,
			CanDeleteTable:   c.CanDeleteTable,
		}
		for _, tableID := range grant.AccessibleTables {
			if level, ok := c.TableLevel(tableID); ok {
				grant.TableLevels[fmt.Sprintf("%d", tableID)] = level
			}
		}
		snap.Collaborations = append(snap.Collaborations, grant)
	}

	var tablePerms []models.TablePermission
	if err := e.db.WithContext(ctx).
		Joins("JOIN tables ON tables.id = table_permissions.table_id").
		Joins("JOIN databases ON databases.id = tables.database_id").
		Where("databases.workspace_id = ? AND table_permissions.user_id = ?", workspaceID, actorID).
		Find(&tablePerms).Error; err != nil {
		return nil, fmt.Errorf("access control: snapshot tables: %w", err)
	}
	for _, p := range tablePerms {
		snap.Tables = append(snap.Tables, TableGrant{
			TableID:        p.TableID,
			Level:          p.Level,
			CanCreateField: p.CanCreateField,
			CanDeleteField: p.CanDeleteField,
		})
	}

	var fieldPerms []models.FieldPermission
	if err := e.db.WithContext(ctx).
		Joins("JOIN tables ON tables.id = field_permissions.table_id").
		Joins("JOIN databases ON databases.id = tables.database_id").
		Where("databases.workspace_id = ? AND field_permissions.user_id = ?", workspaceID, actorID).
		Find(&fieldPerms).Error; err != nil {
		return nil, fmt.Errorf("access control: snapshot fields: %w", err)
	}
	for _, p := range fieldPerms {
		switch Level(p.Level).Rank() {
		case 0:
			snap.HiddenFields = append(snap.HiddenFields, p.FieldID)
		case 1:
			snap.ReadOnlyFields = append(snap.ReadOnlyFields, p.FieldID)
		}
	}

	var rowPerms []models.RowPermission
	if err := e.db.WithContext(ctx).
		Joins("JOIN tables ON tables.id = row_permissions.table_id").
		Joins("JOIN databases ON databases.id = tables.database_id").
		Where("databases.workspace_id = ? AND row_permissions.user_id = ?", workspaceID, actorID).
		Find(&rowPerms).Error; err != nil {
		return nil, fmt.Errorf("access control: snapshot rows: %w", err)
	}
	for _, p := range rowPerms {
		snap.Rows = append(snap.Rows, RowGrant{TableID: p.TableID, RowID: p.RowID, Level: p.Level})
	}

	return snap, nil
}
