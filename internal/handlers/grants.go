package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/models"
	"github.com/gridbasehq/gridbase/internal/services"
	apperrors "github.com/gridbasehq/gridbase/pkg/errors"
	"github.com/gridbasehq/gridbase/pkg/response"
)

// GrantHandler manages permission records. Every mutation requires the acting
// user to be an admin of the workspace owning the target object.
type GrantHandler struct {
	db     *gorm.DB
	grants *services.GrantService
}

// NewGrantHandler constructs a GrantHandler.
func NewGrantHandler(db *gorm.DB, grants *services.GrantService) (*GrantHandler, error) {
	if db == nil {
		return nil, fmt.Errorf("grant handler requires database handle")
	}
	if grants == nil {
		return nil, fmt.Errorf("grant handler requires grant service")
	}
	return &GrantHandler{db: db, grants: grants}, nil
}

func (h *GrantHandler) requireAdmin(ctx context.Context, actorID, workspaceID int64) error {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ? AND role = ?", workspaceID, actorID, models.RoleAdmin).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("grants: admin lookup: %w", err)
	}
	if count == 0 {
		return apperrors.ErrNotWorkspaceAdmin
	}
	return nil
}

func (h *GrantHandler) workspaceForDatabase(ctx context.Context, databaseID int64) (int64, error) {
	var database models.Database
	if err := h.db.WithContext(ctx).First(&database, databaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.ErrNotFound.WithInternal(fmt.Errorf("database %d", databaseID))
		}
		return 0, fmt.Errorf("grants: load database: %w", err)
	}
	return database.WorkspaceID, nil
}

func (h *GrantHandler) workspaceForTable(ctx context.Context, tableID int64) (int64, error) {
	var table models.Table
	if err := h.db.WithContext(ctx).First(&table, tableID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.ErrNotFound.WithInternal(fmt.Errorf("table %d", tableID))
		}
		return 0, fmt.Errorf("grants: load table: %w", err)
	}
	return h.workspaceForDatabase(ctx, table.DatabaseID)
}

func (h *GrantHandler) workspaceForField(ctx context.Context, fieldID int64) (int64, error) {
	var field models.Field
	if err := h.db.WithContext(ctx).First(&field, fieldID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.ErrNotFound.WithInternal(fmt.Errorf("field %d", fieldID))
		}
		return 0, fmt.Errorf("grants: load field: %w", err)
	}
	return h.workspaceForTable(ctx, field.TableID)
}

func (h *GrantHandler) workspaceForRow(ctx context.Context, rowID int64) (int64, error) {
	var row models.Row
	if err := h.db.WithContext(ctx).First(&row, rowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.ErrNotFound.WithInternal(fmt.Errorf("row %d", rowID))
		}
		return 0, fmt.Errorf("grants: load row: %w", err)
	}
	return h.workspaceForTable(ctx, row.TableID)
}

// SetWorkspaceStructure upserts a member's structural capability booleans.
// PUT /api/workspaces/:workspaceID/grants/structure
func (h *GrantHandler) SetWorkspaceStructure(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	workspaceID, err := paramID(c, "workspaceID")
	if err != nil {
		response.Error(c, err)
		return
	}

	var input services.WorkspaceStructureInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}
	input.WorkspaceID = workspaceID

	ctx := c.Request.Context()
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}

	record, err := h.grants.SetWorkspaceStructure(ctx, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// DeleteWorkspaceStructure removes a member's structural capability record.
// DELETE /api/workspaces/:workspaceID/grants/structure/:userID
func (h *GrantHandler) DeleteWorkspaceStructure(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	workspaceID, err := paramID(c, "workspaceID")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := paramID(c, "userID")
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.grants.DeleteWorkspaceStructure(ctx, workspaceID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// SetPluginPermission upserts a member's plugin access level.
// PUT /api/workspaces/:workspaceID/grants/plugins
func (h *GrantHandler) SetPluginPermission(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	workspaceID, err := paramID(c, "workspaceID")
	if err != nil {
		response.Error(c, err)
		return
	}

	var input services.PluginPermissionInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}
	input.WorkspaceID = workspaceID

	ctx := c.Request.Context()
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}

	record, err := h.grants.SetPluginPermission(ctx, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// DeletePluginPermission removes a member's plugin access record.
// DELETE /api/workspaces/:workspaceID/grants/plugins/:userID/:pluginType
func (h *GrantHandler) DeletePluginPermission(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	workspaceID, err := paramID(c, "workspaceID")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := paramID(c, "userID")
	if err != nil {
		response.Error(c, err)
		return
	}
	pluginType := c.Param("pluginType")

	ctx := c.Request.Context()
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.grants.DeletePluginPermission(ctx, workspaceID, userID, pluginType); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// SetCollaboration upserts a member's database collaboration.
// PUT /api/databases/:databaseID/grants/collaborations
func (h *GrantHandler) SetCollaboration(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	databaseID, err := paramID(c, "databaseID")
	if err != nil {
		response.Error(c, err)
		return
	}

	var input services.CollaborationInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}
	input.DatabaseID = databaseID

	ctx := c.Request.Context()
	workspaceID, err := h.workspaceForDatabase(ctx, databaseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}

	record, err := h.grants.SetCollaboration(ctx, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// DeleteCollaboration removes a member's database collaboration.
// DELETE /api/databases/:databaseID/grants/collaborations/:userID
func (h *GrantHandler) DeleteCollaboration(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	databaseID, err := paramID(c, "databaseID")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := paramID(c, "userID")
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	workspaceID, err := h.workspaceForDatabase(ctx, databaseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.grants.DeleteCollaboration(ctx, databaseID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// SetTablePermission upserts a member's table-wide permission.
// PUT /api/tables/:tableID/grants
func (h *GrantHandler) SetTablePermission(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	tableID, err := paramID(c, "tableID")
	if err != nil {
		response.Error(c, err)
		return
	}

	var input services.TablePermissionInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}
	input.TableID = tableID

	ctx := c.Request.Context()
	workspaceID, err := h.workspaceForTable(ctx, tableID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}

	record, err := h.grants.SetTablePermission(ctx, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// DeleteTablePermission removes a member's table-wide permission.
// DELETE /api/tables/:tableID/grants/:userID
func (h *GrantHandler) DeleteTablePermission(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	tableID, err := paramID(c, "tableID")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := paramID(c, "userID")
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	workspaceID, err := h.workspaceForTable(ctx, tableID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.grants.DeleteTablePermission(ctx, tableID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// SetFieldPermission upserts a member's field permission.
// PUT /api/fields/:fieldID/grants
func (h *GrantHandler) SetFieldPermission(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	fieldID, err := paramID(c, "fieldID")
	if err != nil {
		response.Error(c, err)
		return
	}

	var input services.FieldPermissionInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}
	input.FieldID = fieldID

	ctx := c.Request.Context()
	workspaceID, err := h.workspaceForField(ctx, fieldID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}

	record, err := h.grants.SetFieldPermission(ctx, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// DeleteFieldPermission removes a member's field permission.
// DELETE /api/fields/:fieldID/grants/:userID
func (h *GrantHandler) DeleteFieldPermission(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	fieldID, err := paramID(c, "fieldID")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := paramID(c, "userID")
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	workspaceID, err := h.workspaceForField(ctx, fieldID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.grants.DeleteFieldPermission(ctx, fieldID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// SetRowPermission upserts a member's row permission.
// PUT /api/rows/:rowID/grants
func (h *GrantHandler) SetRowPermission(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rowID, err := paramID(c, "rowID")
	if err != nil {
		response.Error(c, err)
		return
	}

	var input services.RowPermissionInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}
	input.RowID = rowID

	ctx := c.Request.Context()
	workspaceID, err := h.workspaceForRow(ctx, rowID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}

	record, err := h.grants.SetRowPermission(ctx, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// DeleteRowPermission removes a member's row permission.
// DELETE /api/rows/:rowID/grants/:userID
func (h *GrantHandler) DeleteRowPermission(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rowID, err := paramID(c, "rowID")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := paramID(c, "userID")
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	workspaceID, err := h.workspaceForRow(ctx, rowID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.grants.DeleteRowPermission(ctx, rowID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// SaveConditionRule creates or updates a condition rule on a table.
// POST /api/tables/:tableID/rules
func (h *GrantHandler) SaveConditionRule(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	tableID, err := paramID(c, "tableID")
	if err != nil {
		response.Error(c, err)
		return
	}

	var input services.ConditionRuleInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}
	input.TableID = tableID

	ctx := c.Request.Context()
	workspaceID, err := h.workspaceForTable(ctx, tableID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}

	rule, err := h.grants.SaveConditionRule(ctx, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rule)
}

// DeleteConditionRule removes a condition rule.
// DELETE /api/tables/:tableID/rules/:ruleID
func (h *GrantHandler) DeleteConditionRule(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	tableID, err := paramID(c, "tableID")
	if err != nil {
		response.Error(c, err)
		return
	}
	ruleID, err := paramID(c, "ruleID")
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	workspaceID, err := h.workspaceForTable(ctx, tableID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.requireAdmin(ctx, actor, workspaceID); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.grants.DeleteConditionRule(ctx, ruleID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
