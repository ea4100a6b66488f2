package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vizflow/vizflow/internal/application/execution"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
	"github.com/vizflow/vizflow/pkg/models"
)

// ExecutionHandlers serves /executions/preview, /executions and
// /executions/{id} (spec.md §6).
type ExecutionHandlers struct {
	svc *execution.Service
	log *logger.Logger
}

// NewExecutionHandlers constructs an ExecutionHandlers.
func NewExecutionHandlers(svc *execution.Service, log *logger.Logger) *ExecutionHandlers {
	return &ExecutionHandlers{svc: svc, log: log}
}

type previewRequest struct {
	Graph        models.Graph `json:"graph"`
	TargetNodeID string       `json:"target_node_id" binding:"required"`
	Offset       int          `json:"offset,omitempty"`
	Limit        int          `json:"limit,omitempty"`
}

// HandlePreview handles POST /executions/preview.
func (h *ExecutionHandlers) HandlePreview(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	var req previewRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = 100
	}

	resp, err := h.svc.Preview(c.Request.Context(), tenantID, req.Graph, req.TargetNodeID, req.Offset, limit)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type executeRequest struct {
	WorkflowID string `json:"workflow_id" binding:"required"`
}

// HandleExecute handles POST /executions — runs a stored workflow
// asynchronously, responding 202 with the execution id immediately
// (spec.md §6).
func (h *ExecutionHandlers) HandleExecute(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	var req executeRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	executionID, err := h.svc.Execute(c.Request.Context(), tenantID, req.WorkflowID)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"execution_id": executionID})
}

// HandleGet handles GET /executions/{id}.
func (h *ExecutionHandlers) HandleGet(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	rec, err := h.svc.Get(c.Request.Context(), tenantID, c.Param("execution_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, rec)
}

// HandleCancel handles POST /executions/{id}/cancel.
func (h *ExecutionHandlers) HandleCancel(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	if err := h.svc.Cancel(c.Request.Context(), tenantID, c.Param("execution_id")); err != nil {
		respondAPIError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
