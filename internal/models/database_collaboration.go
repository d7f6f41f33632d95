package models

import (
	"encoding/json"
	"strconv"

	"gorm.io/datatypes"
)

// DatabaseCollaboration scopes a member to a subset of tables inside a
// database. The presence of any collaboration record for a database flips
// that database into collaboration-gated mode: members without their own
// record lose access entirely.
//
// AccessibleTables holds a JSON list of table ids. TablePermissions maps a
// stringified table id (JSON object keys are strings) to a level override.
type DatabaseCollaboration struct {
	BaseModel
	DatabaseID       int64          `gorm:"not null;uniqueIndex:idx_db_collab_database_user" json:"database_id"`
	UserID           int64          `gorm:"not null;uniqueIndex:idx_db_collab_database_user" json:"user_id"`
	AccessibleTables datatypes.JSON `gorm:"type:json" json:"accessible_tables"`
	TablePermissions datatypes.JSON `gorm:"type:json" json:"table_permissions"`
	CanCreateTable   bool           `gorm:"not null;default:false" json:"can_create_table"`
	CanDeleteTable   bool           `gorm:"not null;default:false" json:"can_delete_table"`
}

// AccessibleTableIDs decodes the accessible table list. A malformed column
// decodes to nil, which denies every table.
func (c DatabaseCollaboration) AccessibleTableIDs() []int64 {
	if len(c.AccessibleTables) == 0 {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal(c.AccessibleTables, &ids); err != nil {
		return nil
	}
	return ids
}

// TableAccessible reports whether the collaboration grants access to the
// table.
func (c DatabaseCollaboration) TableAccessible(tableID int64) bool {
	for _, id := range c.AccessibleTableIDs() {
		if id == tableID {
			return true
		}
	}
	return false
}

// TableLevel returns the per-table level override and whether one exists.
func (c DatabaseCollaboration) TableLevel(tableID int64) (string, bool) {
	if len(c.TablePermissions) == 0 {
		return "", false
	}
	var levels map[string]string
	if err := json.Unmarshal(c.TablePermissions, &levels); err != nil {
		return "", false
	}
	level, ok := levels[strconv.FormatInt(tableID, 10)]
	if !ok || level == "" {
		return "", false
	}
	return level, true
}
