package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gridbasehq/gridbase/internal/accesscontrol"
	"github.com/gridbasehq/gridbase/pkg/response"
)

// PermissionHandler exposes batch permission checks and grant snapshots.
type PermissionHandler struct {
	evaluator *accesscontrol.Evaluator
}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler(evaluator *accesscontrol.Evaluator) (*PermissionHandler, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("permission handler requires evaluator")
	}
	return &PermissionHandler{evaluator: evaluator}, nil
}

type checkRequest struct {
	Checks []checkItem `json:"checks" validate:"required,min=1,dive"`
}

type checkItem struct {
	Operation     string `json:"operation" validate:"required"`
	DatabaseID    int64  `json:"database_id"`
	TableID       int64  `json:"table_id"`
	FieldID       int64  `json:"field_id"`
	RowID         int64  `json:"row_id"`
	IsRowCreation bool   `json:"is_row_creation"`
}

type checkResult struct {
	Effect  string `json:"effect"`
	Allowed bool   `json:"allowed"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Check evaluates a batch of permission questions for the acting user.
// POST /api/workspaces/:workspaceID/permissions/check
func (h *PermissionHandler) Check(c *gin.Context) {
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

	var req checkRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	checks := make([]accesscontrol.Check, 0, len(req.Checks))
	for _, item := range req.Checks {
		checks = append(checks, accesscontrol.Check{
			ActorID:   actor,
			Operation: accesscontrol.Operation(item.Operation),
			Target: accesscontrol.Target{
				DatabaseID: item.DatabaseID,
				TableID:    item.TableID,
				FieldID:    item.FieldID,
				RowID:      item.RowID,
			},
			IsRowCreation: item.IsRowCreation,
		})
	}

	results := h.evaluator.CheckAll(c.Request.Context(), workspaceID, checks)

	out := make([]checkResult, len(results))
	for i, res := range results {
		out[i] = checkResult{
			Effect:  res.Effect.String(),
			Allowed: res.Allowed(),
		}
		if res.Denied != nil {
			out[i].Code = res.Denied.Code
			out[i].Message = res.Denied.Message
		}
		if res.Err != nil {
			out[i].Code = "CHECK_FAILED"
			out[i].Message = res.Err.Error()
		}
	}

	response.Success(c, http.StatusOK, gin.H{"results": out})
}

// Snapshot returns the acting user's effective grants for a workspace.
// GET /api/workspaces/:workspaceID/permissions/snapshot
func (h *PermissionHandler) Snapshot(c *gin.Context) {
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

	snapshot, err := h.evaluator.Snapshot(c.Request.Context(), actor, workspaceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, snapshot)
}
