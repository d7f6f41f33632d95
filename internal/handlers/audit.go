package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gridbasehq/gridbase/internal/services"
	"github.com/gridbasehq/gridbase/pkg/response"
)

// AuditHandler exposes the permission audit trail.
type AuditHandler struct {
	audit *services.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audit *services.AuditService) (*AuditHandler, error) {
	if audit == nil {
		return nil, fmt.Errorf("audit handler requires audit service")
	}
	return &AuditHandler{audit: audit}, nil
}

// List returns a page of audit events, newest first.
// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	opts := services.AuditListOptions{}
	opts.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	opts.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))
	opts.Filters.Action = c.Query("action")
	opts.Filters.Resource = c.Query("resource")
	opts.Filters.Result = c.Query("result")

	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, err)
			return
		}
		opts.Filters.UserID = &userID
	}

	page, err := h.audit.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	totalPages := 0
	if page.PageSize > 0 {
		totalPages = int((page.Total + int64(page.PageSize) - 1) / int64(page.PageSize))
	}
	response.SuccessWithMeta(c, http.StatusOK, page.Logs, &response.Meta{
		Page:       page.Page,
		PerPage:    page.PageSize,
		Total:      int(page.Total),
		TotalPages: totalPages,
	})
}
