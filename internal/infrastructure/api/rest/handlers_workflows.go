package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vizflow/vizflow/internal/domain/schema"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
	"github.com/vizflow/vizflow/pkg/models"
)

// WorkflowRepository is the subset of storage.WorkflowRepository the REST
// layer depends on.
type WorkflowRepository interface {
	Create(ctx context.Context, wf models.Workflow) (models.Workflow, error)
	GetByID(ctx context.Context, tenantID, id string) (models.Workflow, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.Workflow, error)
	Update(ctx context.Context, tenantID, id string, graph models.Graph, name string) (models.Workflow, error)
	Delete(ctx context.Context, tenantID, id string) error
	ListVersions(ctx context.Context, tenantID, workflowID string) ([]models.WorkflowVersion, error)
	Rollback(ctx context.Context, tenantID, workflowID, versionID string) (models.Workflow, error)
}

// WorkflowHandlers serves the /workflows resource family (spec.md §6).
type WorkflowHandlers struct {
	repo   WorkflowRepository
	schema *schema.Engine
	log    *logger.Logger
}

// NewWorkflowHandlers constructs a WorkflowHandlers.
func NewWorkflowHandlers(repo WorkflowRepository, schemaEngine *schema.Engine, log *logger.Logger) *WorkflowHandlers {
	return &WorkflowHandlers{repo: repo, schema: schemaEngine, log: log}
}

type createWorkflowRequest struct {
	Name  string       `json:"name" binding:"required,min=1,max=255"`
	Graph models.Graph `json:"graph"`
}

// HandleCreate handles POST /workflows. The graph is validated through the
// Schema Engine before persisting (spec.md §4.1).
func (h *WorkflowHandlers) HandleCreate(c *gin.Context) {
	tenantID, _ := GetTenantID(c)

	var req createWorkflowRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	if _, err := h.schema.Validate(req.Graph); err != nil {
		respondAPIError(c, err)
		return
	}

	wf, err := h.repo.Create(c.Request.Context(), models.Workflow{TenantID: tenantID, Name: req.Name, Graph: req.Graph})
	if err != nil {
		h.log.ErrorContext(c.Request.Context(), "create workflow failed", "error", err, "request_id", GetRequestID(c))
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, wf)
}

// HandleGet handles GET /workflows/{id}.
func (h *WorkflowHandlers) HandleGet(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	wf, err := h.repo.GetByID(c.Request.Context(), tenantID, c.Param("workflow_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, wf)
}

// HandleList handles GET /workflows.
func (h *WorkflowHandlers) HandleList(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	list, err := h.repo.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondList(c, http.StatusOK, list, len(list), len(list), 0)
}

type updateWorkflowRequest struct {
	Name  string       `json:"name,omitempty"`
	Graph models.Graph `json:"graph"`
}

// HandleUpdate handles PUT /workflows/{id}. The prior graph is snapshotted
// into workflow_versions before the new graph is validated and written
// (spec.md §3 "Workflow versioning").
func (h *WorkflowHandlers) HandleUpdate(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	workflowID := c.Param("workflow_id")

	var req updateWorkflowRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	if _, err := h.schema.Validate(req.Graph); err != nil {
		respondAPIError(c, err)
		return
	}

	wf, err := h.repo.Update(c.Request.Context(), tenantID, workflowID, req.Graph, req.Name)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, wf)
}

// HandleDelete handles DELETE /workflows/{id}.
func (h *WorkflowHandlers) HandleDelete(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	if err := h.repo.Delete(c.Request.Context(), tenantID, c.Param("workflow_id")); err != nil {
		respondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleExport handles GET /workflows/{id}/export — the stored graph as a
// standalone JSON document (spec.md §9 "Dynamic JSON graph payload").
func (h *WorkflowHandlers) HandleExport(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	wf, err := h.repo.GetByID(c.Request.Context(), tenantID, c.Param("workflow_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": wf.Name, "graph": wf.Graph, "version": wf.Version})
}

type importWorkflowRequest struct {
	Name  string       `json:"name" binding:"required,min=1,max=255"`
	Graph models.Graph `json:"graph"`
}

// HandleImport handles POST /workflows/import — creates a new workflow
// from a previously exported document. Node and edge ids are freshly
// assigned rather than reused, so re-importing the same export twice never
// collides with the original (spec.md §8 "Export(W) then Import").
func (h *WorkflowHandlers) HandleImport(c *gin.Context) {
	tenantID, _ := GetTenantID(c)

	var req importWorkflowRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}
	freshGraph := req.Graph.ReassignIDs(func() string { return uuid.New().String() })
	if _, err := h.schema.Validate(freshGraph); err != nil {
		respondAPIError(c, err)
		return
	}

	wf, err := h.repo.Create(c.Request.Context(), models.Workflow{TenantID: tenantID, Name: req.Name, Graph: freshGraph})
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, wf)
}

// HandleListVersions handles GET /workflows/{id}/versions.
func (h *WorkflowHandlers) HandleListVersions(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	versions, err := h.repo.ListVersions(c.Request.Context(), tenantID, c.Param("workflow_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondList(c, http.StatusOK, versions, len(versions), len(versions), 0)
}

// HandleRollback handles POST /workflows/{id}/versions/{vid}/rollback.
func (h *WorkflowHandlers) HandleRollback(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	wf, err := h.repo.Rollback(c.Request.Context(), tenantID, c.Param("workflow_id"), c.Param("version_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, wf)
}
