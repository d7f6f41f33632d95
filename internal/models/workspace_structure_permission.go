package models

// WorkspaceStructurePermission records structural capabilities granted to a
// member inside a workspace. Database and table lifecycle operations stay
// admin-only during evaluation; the booleans are surfaced through the
// permissions snapshot so clients can render structure controls.
type WorkspaceStructurePermission struct {
	BaseModel
	WorkspaceID       int64 `gorm:"not null;uniqueIndex:idx_ws_structure_workspace_user" json:"workspace_id"`
	UserID            int64 `gorm:"not null;uniqueIndex:idx_ws_structure_workspace_user" json:"user_id"`
	CanCreateDatabase bool  `gorm:"not null;default:false" json:"can_create_database"`
	CanDeleteDatabase bool  `gorm:"not null;default:false" json:"can_delete_database"`
	CanCreateTable    bool  `gorm:"not null;default:false" json:"can_create_table"`
	CanDeleteTable    bool  `gorm:"not null;default:false" json:"can_delete_table"`
}
