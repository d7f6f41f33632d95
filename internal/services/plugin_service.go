package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/models"
	apperrors "github.com/gridbasehq/gridbase/pkg/errors"
)

// PluginInfo describes an installed plugin.
type PluginInfo struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PluginCatalog is an explicit registry of installed plugins. Callers create
// their own instance and pass it where needed; there is no package-level
// registry.
type PluginCatalog struct {
	mu      sync.RWMutex
	plugins map[string]PluginInfo
}

// NewPluginCatalog constructs an empty catalog.
func NewPluginCatalog() *PluginCatalog {
	return &PluginCatalog{plugins: make(map[string]PluginInfo)}
}

// Register adds a plugin to the catalog. Registering the same type twice is
// an error.
func (c *PluginCatalog) Register(info PluginInfo) error {
	if info.Type == "" {
		return fmt.Errorf("plugins: type is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.plugins[info.Type]; exists {
		return fmt.Errorf("plugins: %q already registered", info.Type)
	}
	c.plugins[info.Type] = info
	return nil
}

// Get looks up a plugin by type.
func (c *PluginCatalog) Get(pluginType string) (PluginInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.plugins[pluginType]
	return info, ok
}

// List returns all registered plugins ordered by type.
func (c *PluginCatalog) List() []PluginInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]PluginInfo, 0, len(c.plugins))
	for _, info := range c.plugins {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })
	return infos
}

// PluginService answers plugin access questions. Workspace admins can always
// use and configure every plugin; everyone else needs an explicit permission
// record, and an absent record means no access.
type PluginService struct {
	db      *gorm.DB
	catalog *PluginCatalog
}

// NewPluginService constructs a PluginService.
func NewPluginService(db *gorm.DB, catalog *PluginCatalog) (*PluginService, error) {
	if db == nil {
		return nil, fmt.Errorf("plugin service requires database handle")
	}
	if catalog == nil {
		return nil, fmt.Errorf("plugin service requires catalog")
	}
	return &PluginService{db: db, catalog: catalog}, nil
}

// CheckAccess verifies the actor holds at least the required level
// ("use" or "configure") for a plugin in the workspace.
func (s *PluginService) CheckAccess(ctx context.Context, actorID, workspaceID int64, pluginType, required string) error {
	ctx = ensureContext(ctx)

	if _, known := s.catalog.Get(pluginType); !known {
		return apperrors.ErrNotFound.WithInternal(fmt.Errorf("plugin %q", pluginType))
	}

	switch required {
	case models.PluginLevelUse, models.PluginLevelConfigure:
	default:
		return apperrors.NewBadRequest(fmt.Sprintf("unknown plugin level %q", required))
	}

	admin, err := isWorkspaceAdmin(ctx, s.db, actorID, workspaceID)
	if err != nil {
		return err
	}
	if admin {
		return nil
	}

	var record models.PluginPermission
	err = s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ? AND plugin_type = ?", workspaceID, actorID, pluginType).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrPluginNoPermission
		}
		return fmt.Errorf("plugins: load permission: %w", err)
	}

	switch record.Level {
	case models.PluginLevelConfigure:
		return nil
	case models.PluginLevelUse:
		if required == models.PluginLevelUse {
			return nil
		}
	}
	return apperrors.ErrPluginNoPermission
}

// AccessLevels returns the actor's effective level per registered plugin.
func (s *PluginService) AccessLevels(ctx context.Context, actorID, workspaceID int64) (map[string]string, error) {
	ctx = ensureContext(ctx)

	levels := make(map[string]string)
	for _, info := range s.catalog.List() {
		levels[info.Type] = models.PluginLevelNone
	}

	admin, err := isWorkspaceAdmin(ctx, s.db, actorID, workspaceID)
	if err != nil {
		return nil, err
	}
	if admin {
		for pluginType := range levels {
			levels[pluginType] = models.PluginLevelConfigure
		}
		return levels, nil
	}

	var records []models.PluginPermission
	err = s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, actorID).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("plugins: list permissions: %w", err)
	}

	for _, record := range records {
		if _, known := levels[record.PluginType]; known {
			levels[record.PluginType] = record.Level
		}
	}
	return levels, nil
}
