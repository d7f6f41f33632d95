package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/models"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// isWorkspaceAdmin reports whether the user holds the admin role in the
// workspace.
func isWorkspaceAdmin(ctx context.Context, db *gorm.DB, userID, workspaceID int64) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&models.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ? AND role = ?", workspaceID, userID, models.RoleAdmin).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("services: admin lookup: %w", err)
	}
	return count > 0, nil
}

// normaliseIDs removes zero values and duplicates while preserving order.
func normaliseIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, exists := seen[id]; exists {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
