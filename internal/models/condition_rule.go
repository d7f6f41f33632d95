package models

import (
	"time"

	"gorm.io/datatypes"
)

// Condition rule types.
const (
	ConditionTypeCreator      = "creator"
	ConditionTypeFieldMatch   = "field_match"
	ConditionTypeCollaborator = "collaborator"
)

// ConditionRule derives a row-level permission from row content when no
// explicit RowPermission record exists. Active rules are evaluated ordered by
// priority descending, then id ascending; every matching rule contributes its
// level and the strictest merged level wins.
//
// The integer primary key is deliberate: the id tie-break must follow
// insertion order.
type ConditionRule struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TableID       int64          `gorm:"not null;index" json:"table_id"`
	Name          string         `json:"name"`
	IsActive      bool           `gorm:"not null;default:true" json:"is_active"`
	ConditionType string         `gorm:"not null" json:"condition_type"`
	Level         string         `gorm:"not null;default:editable" json:"level"`
	Priority      int            `gorm:"not null;default:0" json:"priority"`
	LogicOperator string         `gorm:"not null;default:OR" json:"logic_operator"`
	Config        datatypes.JSON `gorm:"type:json" json:"config"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
