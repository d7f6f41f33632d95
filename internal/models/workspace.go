package models

import "time"

// Workspace member roles.
const (
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// Workspace is the top-level grouping for databases.
type Workspace struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"not null" json:"name"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorkspaceMember binds a user to a workspace with a role.
type WorkspaceMember struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkspaceID int64  `gorm:"not null;uniqueIndex:idx_workspace_members_workspace_user" json:"workspace_id"`
	UserID      int64  `gorm:"not null;uniqueIndex:idx_workspace_members_workspace_user" json:"user_id"`
	Role        string `gorm:"not null;default:MEMBER" json:"role"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAdmin reports whether the membership carries the admin role.
func (m WorkspaceMember) IsAdmin() bool {
	return m.Role == RoleAdmin
}
