package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vizflow/vizflow/internal/infrastructure/logger"
	"github.com/vizflow/vizflow/pkg/models"
)

// DashboardRepository is the subset of storage.DashboardRepository the
// REST layer depends on.
type DashboardRepository interface {
	Create(ctx context.Context, tenantID, name string) (models.Dashboard, error)
	GetByID(ctx context.Context, tenantID, id string) (models.Dashboard, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.Dashboard, error)
	Update(ctx context.Context, tenantID, id, name string) (models.Dashboard, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// DashboardHandlers serves the /dashboards resource (spec.md §6).
type DashboardHandlers struct {
	repo DashboardRepository
	log  *logger.Logger
}

// NewDashboardHandlers constructs a DashboardHandlers.
func NewDashboardHandlers(repo DashboardRepository, log *logger.Logger) *DashboardHandlers {
	return &DashboardHandlers{repo: repo, log: log}
}

type dashboardRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
}

func (h *DashboardHandlers) HandleCreate(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	var req dashboardRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}
	dash, err := h.repo.Create(c.Request.Context(), tenantID, req.Name)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, dash)
}

func (h *DashboardHandlers) HandleGet(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	dash, err := h.repo.GetByID(c.Request.Context(), tenantID, c.Param("dashboard_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dash)
}

func (h *DashboardHandlers) HandleList(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	list, err := h.repo.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondList(c, http.StatusOK, list, len(list), len(list), 0)
}

func (h *DashboardHandlers) HandleUpdate(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	var req dashboardRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}
	dash, err := h.repo.Update(c.Request.Context(), tenantID, c.Param("dashboard_id"), req.Name)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dash)
}

func (h *DashboardHandlers) HandleDelete(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	if err := h.repo.Delete(c.Request.Context(), tenantID, c.Param("dashboard_id")); err != nil {
		respondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
