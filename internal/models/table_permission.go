package models

// TablePermission grants a member a level on an entire table, independent of
// any database collaboration. When a table has at least one record, members
// without one are denied access. The structural booleans gate field
// creation/deletion and default to denied.
type TablePermission struct {
	BaseModel
	TableID        int64  `gorm:"not null;uniqueIndex:idx_table_perm_table_user" json:"table_id"`
	UserID         int64  `gorm:"not null;uniqueIndex:idx_table_perm_table_user" json:"user_id"`
	Level          string `gorm:"not null;default:editable" json:"level"`
	CanCreateField bool   `gorm:"not null;default:false" json:"can_create_field"`
	CanDeleteField bool   `gorm:"not null;default:false" json:"can_delete_field"`
}
