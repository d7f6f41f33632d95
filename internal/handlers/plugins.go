package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gridbasehq/gridbase/internal/models"
	"github.com/gridbasehq/gridbase/internal/services"
	"github.com/gridbasehq/gridbase/pkg/response"
)

// PluginHandler lists installed plugins and answers access questions.
type PluginHandler struct {
	plugins *services.PluginService
	catalog *services.PluginCatalog
}

// NewPluginHandler constructs a PluginHandler.
func NewPluginHandler(plugins *services.PluginService, catalog *services.PluginCatalog) (*PluginHandler, error) {
	if plugins == nil {
		return nil, fmt.Errorf("plugin handler requires plugin service")
	}
	if catalog == nil {
		return nil, fmt.Errorf("plugin handler requires catalog")
	}
	return &PluginHandler{plugins: plugins, catalog: catalog}, nil
}

// List returns every registered plugin with the acting user's level.
// GET /api/workspaces/:workspaceID/plugins
func (h *PluginHandler) List(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	workspaceID, err := paramID(c, "workspaceID")
	if err != nil {
		response.Error(c, err)
		return
	}

	levels, err := h.plugins.AccessLevels(c.Request.Context(), actor, workspaceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	type pluginView struct {
		services.PluginInfo
		Level string `json:"level"`
	}
	out := make([]pluginView, 0, len(levels))
	for _, info := range h.catalog.List() {
		out = append(out, pluginView{PluginInfo: info, Level: levels[info.Type]})
	}
	response.Success(c, http.StatusOK, gin.H{"plugins": out})
}

// Check verifies the acting user holds the requested level for a plugin.
// GET /api/workspaces/:workspaceID/plugins/:pluginType/check?level=use
func (h *PluginHandler) Check(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	workspaceID, err := paramID(c, "workspaceID")
	if err != nil {
		response.Error(c, err)
		return
	}

	level := strings.TrimSpace(c.DefaultQuery("level", models.PluginLevelUse))
	pluginType := c.Param("pluginType")

	if err := h.plugins.CheckAccess(c.Request.Context(), actor, workspaceID, pluginType, level); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"allowed": true, "level": level})
}
