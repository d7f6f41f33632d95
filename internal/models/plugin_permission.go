package models

// Plugin permission levels, from least to most capable.
const (
	PluginLevelNone      = "none"
	PluginLevelUse       = "use"
	PluginLevelConfigure = "configure"
)

// PluginPermission controls whether a member may use or configure a plugin
// within a workspace. Absent record means no access for non-admins.
type PluginPermission struct {
	BaseModel
	WorkspaceID int64  `gorm:"not null;uniqueIndex:idx_plugin_perm_workspace_user_plugin" json:"workspace_id"`
	UserID      int64  `gorm:"not null;uniqueIndex:idx_plugin_perm_workspace_user_plugin" json:"user_id"`
	PluginType  string `gorm:"not null;uniqueIndex:idx_plugin_perm_workspace_user_plugin" json:"plugin_type"`
	Level       string `gorm:"not null;default:none" json:"level"`
}
