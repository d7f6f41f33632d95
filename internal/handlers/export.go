package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gridbasehq/gridbase/internal/masking"
	"github.com/gridbasehq/gridbase/internal/services"
	"github.com/gridbasehq/gridbase/pkg/response"
)

// ExportHandler streams masked CSV exports.
type ExportHandler struct {
	rows   *services.RowService
	export *masking.ExportMasker
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(rows *services.RowService, export *masking.ExportMasker) (*ExportHandler, error) {
	if rows == nil {
		return nil, fmt.Errorf("export handler requires row service")
	}
	if export == nil {
		return nil, fmt.Errorf("export handler requires export masker")
	}
	return &ExportHandler{rows: rows, export: export}, nil
}

// CSV writes the table as CSV with the acting user's masking applied.
// GET /api/tables/:tableID/export/csv
func (h *ExportHandler) CSV(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	tableID, err := paramID(c, "tableID")
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.rows.EnsureTableReadable(ctx, actor, tableID); err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="table_%d.csv"`, tableID))
	c.Status(http.StatusOK)

	if err := h.export.WriteCSV(ctx, c.Writer, actor, tableID); err != nil {
		// Headers are already sent; all we can do is abort the stream.
		_ = c.Error(err)
	}
}
