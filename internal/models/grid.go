package models

import (
	"time"

	"gorm.io/datatypes"
)

// Database groups tables inside a workspace.
type Database struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkspaceID int64  `gorm:"not null;index" json:"workspace_id"`
	Name        string `gorm:"not null" json:"name"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Table holds rows shaped by its fields.
type Table struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	DatabaseID int64  `gorm:"not null;index" json:"database_id"`
	Name       string `gorm:"not null" json:"name"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Field describes one column of a table. Row data references fields either
// by the canonical "field_<id>" key or by display name.
type Field struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TableID   int64  `gorm:"not null;index" json:"table_id"`
	Name      string `gorm:"not null" json:"name"`
	Type      string `gorm:"not null;default:text" json:"type"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Row stores cell values as a JSON document keyed by "field_<id>".
type Row struct {
	ID          int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	TableID     int64             `gorm:"not null;index" json:"table_id"`
	Order       float64           `gorm:"not null;default:0" json:"order"`
	CreatedByID int64             `gorm:"index" json:"created_by_id"`
	Data        datatypes.JSONMap `gorm:"type:json" json:"data"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Payload returns the row as a wire-shaped map including identity keys.
func (r Row) Payload() map[string]any {
	out := make(map[string]any, len(r.Data)+3)
	for k, v := range r.Data {
		out[k] = v
	}
	out["id"] = r.ID
	out["order"] = r.Order
	out["created_by"] = r.CreatedByID
	return out
}
