package models

// RowPermission pins a member's level on a single row. An explicit record
// always wins over condition rules.
type RowPermission struct {
	BaseModel
	TableID int64  `gorm:"not null;index" json:"table_id"`
	RowID   int64  `gorm:"not null;uniqueIndex:idx_row_perm_row_user" json:"row_id"`
	UserID  int64  `gorm:"not null;uniqueIndex:idx_row_perm_row_user" json:"user_id"`
	Level   string `gorm:"not null;default:editable" json:"level"`
}
