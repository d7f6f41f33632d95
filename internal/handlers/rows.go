package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gridbasehq/gridbase/internal/masking"
	"github.com/gridbasehq/gridbase/internal/services"
	"github.com/gridbasehq/gridbase/pkg/response"
)

// RowHandler serves row CRUD with permission checks and response masking.
type RowHandler struct {
	rows   *services.RowService
	masker *masking.ResponseMasker
}

// NewRowHandler constructs a RowHandler.
func NewRowHandler(rows *services.RowService, masker *masking.ResponseMasker) (*RowHandler, error) {
	if rows == nil {
		return nil, fmt.Errorf("row handler requires row service")
	}
	if masker == nil {
		return nil, fmt.Errorf("row handler requires response masker")
	}
	return &RowHandler{rows: rows, masker: masker}, nil
}

func useFieldNames(c *gin.Context) bool {
	value, present := c.GetQuery("user_field_names")
	return truthy(value, present)
}

// List returns the table's rows, masked for the acting user.
// GET /api/tables/:tableID/rows
func (h *RowHandler) List(c *gin.Context) {
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
	rows, err := h.rows.ListRows(ctx, actor, tableID)
	if err != nil {
		response.Error(c, err)
		return
	}

	results := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		results = append(results, row.Payload())
	}

	payload, err := h.masker.MaskPayload(ctx, actor, tableID, map[string]any{
		"count":   len(results),
		"results": results,
	}, useFieldNames(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, payload)
}

// Get returns a single row, masked for the acting user.
// GET /api/tables/:tableID/rows/:rowID
func (h *RowHandler) Get(c *gin.Context) {
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
	rowID, err := paramID(c, "rowID")
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	row, err := h.rows.GetRow(ctx, actor, tableID, rowID)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload, err := h.masker.MaskPayload(ctx, actor, tableID, row.Payload(), useFieldNames(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, payload)
}

type rowWriteRequest struct {
	Data map[string]any `json:"data" validate:"required"`
}

// Create inserts a new row.
// POST /api/tables/:tableID/rows
func (h *RowHandler) Create(c *gin.Context) {
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

	var req rowWriteRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	row, err := h.rows.CreateRow(c.Request.Context(), actor, tableID, req.Data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, row.Payload())
}

// Update merges cell values into a row.
// PATCH /api/tables/:tableID/rows/:rowID
func (h *RowHandler) Update(c *gin.Context) {
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
	rowID, err := paramID(c, "rowID")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req rowWriteRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	row, err := h.rows.UpdateRow(c.Request.Context(), actor, tableID, rowID, req.Data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, row.Payload())
}

// Delete removes a row.
// DELETE /api/tables/:tableID/rows/:rowID
func (h *RowHandler) Delete(c *gin.Context) {
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
	rowID, err := paramID(c, "rowID")
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.rows.DeleteRow(c.Request.Context(), actor, tableID, rowID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type batchDeleteRequest struct {
	RowIDs []int64 `json:"row_ids" validate:"required,min=1"`
}

// BatchDelete removes several rows atomically.
// POST /api/tables/:tableID/rows/batch-delete
func (h *RowHandler) BatchDelete(c *gin.Context) {
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

	var req batchDeleteRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	if err := h.rows.BulkDeleteRows(c.Request.Context(), actor, tableID, req.RowIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": len(req.RowIDs)})
}
