package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gridbasehq/gridbase/internal/accesscontrol"
	"github.com/gridbasehq/gridbase/internal/masking"
	"github.com/gridbasehq/gridbase/internal/models"
	apperrors "github.com/gridbasehq/gridbase/pkg/errors"
)

// ChangeNotifier pushes a grant-change signal to the affected user.
type ChangeNotifier interface {
	PermissionsUpdated(userID int64, scope string, detail map[string]any)
}

// GrantService owns every permission record write path. Each mutation runs as
// upsert-or-delete, invalidates the masking audience for the touched table in
// the same unit of work, records an audit event, and then notifies the
// affected user.
type GrantService struct {
	db       *gorm.DB
	resolver *masking.AudienceResolver
	notifier ChangeNotifier
	audit    *AuditService
}

// NewGrantService constructs a GrantService. The resolver, notifier and audit
// service are each optional.
func NewGrantService(db *gorm.DB, resolver *masking.AudienceResolver, notifier ChangeNotifier, audit *AuditService) (*GrantService, error) {
	if db == nil {
		return nil, fmt.Errorf("grant service requires database handle")
	}
	return &GrantService{db: db, resolver: resolver, notifier: notifier, audit: audit}, nil
}

// WorkspaceStructureInput sets a member's structural capability booleans.
type WorkspaceStructureInput struct {
	WorkspaceID       int64 `json:"workspace_id"`
	UserID            int64 `json:"user_id" validate:"required"`
	CanCreateDatabase bool  `json:"can_create_database"`
	CanDeleteDatabase bool  `json:"can_delete_database"`
	CanCreateTable    bool  `json:"can_create_table"`
	CanDeleteTable    bool  `json:"can_delete_table"`
}

// SetWorkspaceStructure upserts the structural capability record for a member.
func (s *GrantService) SetWorkspaceStructure(ctx context.Context, input WorkspaceStructureInput) (*models.WorkspaceStructurePermission, error) {
	ctx = ensureContext(ctx)

	record := models.WorkspaceStructurePermission{
		WorkspaceID:       input.WorkspaceID,
		UserID:            input.UserID,
		CanCreateDatabase: input.CanCreateDatabase,
		CanDeleteDatabase: input.CanDeleteDatabase,
		CanCreateTable:    input.CanCreateTable,
		CanDeleteTable:    input.CanDeleteTable,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"can_create_database", "can_delete_database", "can_create_table", "can_delete_table", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("grants: upsert workspace structure: %w", err)
	}

	s.recordChange(ctx, input.UserID, "grant.workspace_structure.set", fmt.Sprintf("workspace:%d", input.WorkspaceID), "workspace", map[string]any{
		"workspace_id": input.WorkspaceID,
	})
	return &record, nil
}

// DeleteWorkspaceStructure removes a member's structural capability record.
func (s *GrantService) DeleteWorkspaceStructure(ctx context.Context, workspaceID, userID int64) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Delete(&models.WorkspaceStructurePermission{})
	if result.Error != nil {
		return fmt.Errorf("grants: delete workspace structure: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.recordChange(ctx, userID, "grant.workspace_structure.delete", fmt.Sprintf("workspace:%d", workspaceID), "workspace", map[string]any{
		"workspace_id": workspaceID,
	})
	return nil
}

// PluginPermissionInput assigns a plugin access level to a member.
type PluginPermissionInput struct {
	WorkspaceID int64  `json:"workspace_id"`
	UserID      int64  `json:"user_id" validate:"required"`
	PluginType  string `json:"plugin_type" validate:"required"`
	Level       string `json:"level" validate:"required,oneof=none use configure"`
}

// SetPluginPermission upserts a member's plugin access level.
func (s *GrantService) SetPluginPermission(ctx context.Context, input PluginPermissionInput) (*models.PluginPermission, error) {
	ctx = ensureContext(ctx)

	switch input.Level {
	case models.PluginLevelNone, models.PluginLevelUse, models.PluginLevelConfigure:
	default:
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown plugin level %q", input.Level))
	}
	if input.PluginType == "" {
		return nil, apperrors.NewBadRequest("plugin type is required")
	}

	record := models.PluginPermission{
		WorkspaceID: input.WorkspaceID,
		UserID:      input.UserID,
		PluginType:  input.PluginType,
		Level:       input.Level,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "user_id"}, {Name: "plugin_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"level", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("grants: upsert plugin permission: %w", err)
	}

	s.recordChange(ctx, input.UserID, "grant.plugin.set", fmt.Sprintf("workspace:%d", input.WorkspaceID), "plugin", map[string]any{
		"workspace_id": input.WorkspaceID,
		"plugin_type":  input.PluginType,
		"level":        input.Level,
	})
	return &record, nil
}

// DeletePluginPermission removes a member's plugin access record.
func (s *GrantService) DeletePluginPermission(ctx context.Context, workspaceID, userID int64, pluginType string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ? AND plugin_type = ?", workspaceID, userID, pluginType).
		Delete(&models.PluginPermission{})
	if result.Error != nil {
		return fmt.Errorf("grants: delete plugin permission: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.recordChange(ctx, userID, "grant.plugin.delete", fmt.Sprintf("workspace:%d", workspaceID), "plugin", map[string]any{
		"workspace_id": workspaceID,
		"plugin_type":  pluginType,
	})
	return nil
}

// CollaborationInput scopes a member to a table subset inside a database.
type CollaborationInput struct {
	DatabaseID       int64            `json:"database_id"`
	UserID           int64            `json:"user_id" validate:"required"`
	AccessibleTables []int64          `json:"accessible_tables"`
	TableLevels      map[int64]string `json:"table_levels"`
	CanCreateTable   bool             `json:"can_create_table"`
	CanDeleteTable   bool             `json:"can_delete_table"`
}

// SetCollaboration upserts a member's database collaboration. Storing any
// collaboration for a database flips that database into collaboration-gated
// mode for every member.
func (s *GrantService) SetCollaboration(ctx context.Context, input CollaborationInput) (*models.DatabaseCollaboration, error) {
	ctx = ensureContext(ctx)

	tables := normaliseIDs(input.AccessibleTables)
	accessible, err := json.Marshal(tables)
	if err != nil {
		return nil, fmt.Errorf("grants: encode accessible tables: %w", err)
	}

	levels := make(map[string]string, len(input.TableLevels))
	for tableID, level := range input.TableLevels {
		if !accesscontrol.Level(level).Valid() {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown level %q for table %d", level, tableID))
		}
		levels[strconv.FormatInt(tableID, 10)] = level
	}
	overrides, err := json.Marshal(levels)
	if err != nil {
		return nil, fmt.Errorf("grants: encode table levels: %w", err)
	}

	record := models.DatabaseCollaboration{
		DatabaseID:       input.DatabaseID,
		UserID:           input.UserID,
		AccessibleTables: datatypes.JSON(accessible),
		TablePermissions: datatypes.JSON(overrides),
		CanCreateTable:   input.CanCreateTable,
		CanDeleteTable:   input.CanDeleteTable,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "database_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"accessible_tables", "table_permissions", "can_create_table", "can_delete_table", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("grants: upsert collaboration: %w", err)
	}

	s.recordChange(ctx, input.UserID, "grant.collaboration.set", fmt.Sprintf("database:%d", input.DatabaseID), "database", map[string]any{
		"database_id":       input.DatabaseID,
		"accessible_tables": tables,
	})
	return &record, nil
}

// DeleteCollaboration removes a member's database collaboration.
func (s *GrantService) DeleteCollaboration(ctx context.Context, databaseID, userID int64) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("database_id = ? AND user_id = ?", databaseID, userID).
		Delete(&models.DatabaseCollaboration{})
	if result.Error != nil {
		return fmt.Errorf("grants: delete collaboration: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.recordChange(ctx, userID, "grant.collaboration.delete", fmt.Sprintf("database:%d", databaseID), "database", map[string]any{
		"database_id": databaseID,
	})
	return nil
}

// TablePermissionInput grants a member a level on a whole table.
type TablePermissionInput struct {
	TableID        int64  `json:"table_id"`
	UserID         int64  `json:"user_id" validate:"required"`
	Level          string `json:"level" validate:"required,oneof=read_only editable"`
	CanCreateField bool   `json:"can_create_field"`
	CanDeleteField bool   `json:"can_delete_field"`
}

// SetTablePermission upserts a member's table-wide permission.
func (s *GrantService) SetTablePermission(ctx context.Context, input TablePermissionInput) (*models.TablePermission, error) {
	ctx = ensureContext(ctx)

	// Table-wide permissions only narrow to read_only; hiding lives on the
	// field and row records.
	switch accesscontrol.Level(input.Level) {
	case accesscontrol.LevelReadOnly, accesscontrol.LevelEditable:
	default:
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown table permission level %q", input.Level))
	}

	record := models.TablePermission{
		TableID:        input.TableID,
		UserID:         input.UserID,
		Level:          input.Level,
		CanCreateField: input.CanCreateField,
		CanDeleteField: input.CanDeleteField,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "table_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"level", "can_create_field", "can_delete_field", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("grants: upsert table permission: %w", err)
	}

	s.recordChange(ctx, input.UserID, "grant.table.set", fmt.Sprintf("table:%d", input.TableID), "table", map[string]any{
		"table_id": input.TableID,
		"level":    input.Level,
	})
	return &record, nil
}

// DeleteTablePermission removes a member's table-wide permission.
func (s *GrantService) DeleteTablePermission(ctx context.Context, tableID, userID int64) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("table_id = ? AND user_id = ?", tableID, userID).
		Delete(&models.TablePermission{})
	if result.Error != nil {
		return fmt.Errorf("grants: delete table permission: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.recordChange(ctx, userID, "grant.table.delete", fmt.Sprintf("table:%d", tableID), "table", map[string]any{
		"table_id": tableID,
	})
	return nil
}

// FieldPermissionInput assigns a member a level on one field.
type FieldPermissionInput struct {
	FieldID int64  `json:"field_id"`
	UserID  int64  `json:"user_id" validate:"required"`
	Level   string `json:"level" validate:"required,oneof=hidden read_only editable"`
}

// SetFieldPermission upserts a member's field permission and refreshes the
// masking audience for the owning table before returning.
func (s *GrantService) SetFieldPermission(ctx context.Context, input FieldPermissionInput) (*models.FieldPermission, error) {
	ctx = ensureContext(ctx)

	if !accesscontrol.Level(input.Level).Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown level %q", input.Level))
	}

	var field models.Field
	if err := s.db.WithContext(ctx).First(&field, input.FieldID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithInternal(fmt.Errorf("field %d", input.FieldID))
		}
		return nil, fmt.Errorf("grants: load field: %w", err)
	}

	record := models.FieldPermission{
		TableID: field.TableID,
		FieldID: input.FieldID,
		UserID:  input.UserID,
		Level:   input.Level,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "field_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"level", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("grants: upsert field permission: %w", err)
	}

	if err := s.invalidateAudience(ctx, field.TableID); err != nil {
		return nil, err
	}

	s.recordChange(ctx, input.UserID, "grant.field.set", fmt.Sprintf("field:%d", input.FieldID), "field", map[string]any{
		"table_id": field.TableID,
		"field_id": input.FieldID,
		"level":    input.Level,
	})
	return &record, nil
}

// DeleteFieldPermission removes a member's field permission and refreshes the
// masking audience for the owning table.
func (s *GrantService) DeleteFieldPermission(ctx context.Context, fieldID, userID int64) error {
	ctx = ensureContext(ctx)

	var record models.FieldPermission
	err := s.db.WithContext(ctx).
		Where("field_id = ? AND user_id = ?", fieldID, userID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("grants: load field permission: %w", err)
	}

	if err := s.db.WithContext(ctx).Delete(&record).Error; err != nil {
		return fmt.Errorf("grants: delete field permission: %w", err)
	}

	if err := s.invalidateAudience(ctx, record.TableID); err != nil {
		return err
	}

	s.recordChange(ctx, userID, "grant.field.delete", fmt.Sprintf("field:%d", fieldID), "field", map[string]any{
		"table_id": record.TableID,
		"field_id": fieldID,
	})
	return nil
}

// RowPermissionInput pins a member's level on one row.
type RowPermissionInput struct {
	RowID  int64  `json:"row_id"`
	UserID int64  `json:"user_id" validate:"required"`
	Level  string `json:"level" validate:"required,oneof=invisible read_only editable"`
}

// SetRowPermission upserts a member's row permission and refreshes the
// masking audience for the owning table before returning.
func (s *GrantService) SetRowPermission(ctx context.Context, input RowPermissionInput) (*models.RowPermission, error) {
	ctx = ensureContext(ctx)

	if !accesscontrol.Level(input.Level).Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown level %q", input.Level))
	}

	var row models.Row
	if err := s.db.WithContext(ctx).First(&row, input.RowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithInternal(fmt.Errorf("row %d", input.RowID))
		}
		return nil, fmt.Errorf("grants: load row: %w", err)
	}

	record := models.RowPermission{
		TableID: row.TableID,
		RowID:   input.RowID,
		UserID:  input.UserID,
		Level:   input.Level,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "row_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"level", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("grants: upsert row permission: %w", err)
	}

	if err := s.invalidateAudience(ctx, row.TableID); err != nil {
		return nil, err
	}

	s.recordChange(ctx, input.UserID, "grant.row.set", fmt.Sprintf("row:%d", input.RowID), "row", map[string]any{
		"table_id": row.TableID,
		"row_id":   input.RowID,
		"level":    input.Level,
	})
	return &record, nil
}

// DeleteRowPermission removes a member's row permission and refreshes the
// masking audience for the owning table.
func (s *GrantService) DeleteRowPermission(ctx context.Context, rowID, userID int64) error {
	ctx = ensureContext(ctx)

	var record models.RowPermission
	err := s.db.WithContext(ctx).
		Where("row_id = ? AND user_id = ?", rowID, userID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("grants: load row permission: %w", err)
	}

	if err := s.db.WithContext(ctx).Delete(&record).Error; err != nil {
		return fmt.Errorf("grants: delete row permission: %w", err)
	}

	if err := s.invalidateAudience(ctx, record.TableID); err != nil {
		return err
	}

	s.recordChange(ctx, userID, "grant.row.delete", fmt.Sprintf("row:%d", rowID), "row", map[string]any{
		"table_id": record.TableID,
		"row_id":   rowID,
	})
	return nil
}

// ConditionRuleInput creates or updates a content-derived permission rule.
type ConditionRuleInput struct {
	ID            int64          `json:"id"`
	TableID       int64          `json:"table_id"`
	Name          string         `json:"name"`
	IsActive      *bool          `json:"is_active"`
	ConditionType string         `json:"condition_type" validate:"required,oneof=creator field_match collaborator"`
	Level         string         `json:"level" validate:"required,oneof=invisible read_only editable"`
	Priority      int            `json:"priority"`
	LogicOperator string         `json:"logic_operator"`
	Config        map[string]any `json:"config"`
}

// SaveConditionRule creates the rule when ID is zero, otherwise updates it.
func (s *GrantService) SaveConditionRule(ctx context.Context, input ConditionRuleInput) (*models.ConditionRule, error) {
	ctx = ensureContext(ctx)

	switch input.ConditionType {
	case models.ConditionTypeCreator, models.ConditionTypeFieldMatch, models.ConditionTypeCollaborator:
	default:
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown condition type %q", input.ConditionType))
	}
	if !accesscontrol.Level(input.Level).Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown level %q", input.Level))
	}

	config, err := json.Marshal(input.Config)
	if err != nil {
		return nil, fmt.Errorf("grants: encode rule config: %w", err)
	}

	rule := models.ConditionRule{
		ID:            input.ID,
		TableID:       input.TableID,
		Name:          input.Name,
		IsActive:      true,
		ConditionType: input.ConditionType,
		Level:         input.Level,
		Priority:      input.Priority,
		LogicOperator: input.LogicOperator,
		Config:        datatypes.JSON(config),
	}
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}
	if rule.LogicOperator == "" {
		rule.LogicOperator = "OR"
	}

	if rule.ID == 0 {
		if err := s.db.WithContext(ctx).Create(&rule).Error; err != nil {
			return nil, fmt.Errorf("grants: create condition rule: %w", err)
		}
	} else {
		result := s.db.WithContext(ctx).
			Model(&models.ConditionRule{}).
			Where("id = ? AND table_id = ?", rule.ID, rule.TableID).
			Updates(map[string]any{
				"name":           rule.Name,
				"is_active":      rule.IsActive,
				"condition_type": rule.ConditionType,
				"level":          rule.Level,
				"priority":       rule.Priority,
				"logic_operator": rule.LogicOperator,
				"config":         rule.Config,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("grants: update condition rule: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, apperrors.ErrNotFound
		}
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "grant.rule.save",
		Resource: fmt.Sprintf("table:%d", input.TableID),
		Result:   "success",
		Metadata: map[string]any{"rule_id": rule.ID, "condition_type": rule.ConditionType, "level": rule.Level},
	})
	return &rule, nil
}

// DeleteConditionRule removes a rule by id.
func (s *GrantService) DeleteConditionRule(ctx context.Context, ruleID int64) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Delete(&models.ConditionRule{}, ruleID)
	if result.Error != nil {
		return fmt.Errorf("grants: delete condition rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "grant.rule.delete",
		Resource: fmt.Sprintf("rule:%d", ruleID),
		Result:   "success",
	})
	return nil
}

// invalidateAudience drops the cached masking audience for a table. A stale
// audience must never survive a permission write, so failures propagate.
func (s *GrantService) invalidateAudience(ctx context.Context, tableID int64) error {
	if s.resolver == nil {
		return nil
	}
	if err := s.resolver.Invalidate(ctx, tableID); err != nil {
		return fmt.Errorf("grants: invalidate audience for table %d: %w", tableID, err)
	}
	return nil
}

// recordChange audits the mutation and pings the affected user.
func (s *GrantService) recordChange(ctx context.Context, userID int64, action, resource, scope string, detail map[string]any) {
	meta := make(map[string]any, len(detail)+1)
	for k, v := range detail {
		meta[k] = v
	}
	meta["target_user_id"] = userID

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   action,
		Resource: resource,
		Result:   "success",
		Metadata: meta,
	})

	if s.notifier != nil {
		s.notifier.PermissionsUpdated(userID, scope, detail)
	}
}
