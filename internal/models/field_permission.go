package models

// FieldPermission assigns a member a level on a single field. Hidden fields
// are masked out of reads and reject writes.
type FieldPermission struct {
	BaseModel
	TableID int64  `gorm:"not null;index" json:"table_id"`
	FieldID int64  `gorm:"not null;uniqueIndex:idx_field_perm_field_user" json:"field_id"`
	UserID  int64  `gorm:"not null;uniqueIndex:idx_field_perm_field_user" json:"user_id"`
	Level   string `gorm:"not null;default:editable" json:"level"`
}
