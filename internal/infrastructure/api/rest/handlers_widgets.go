package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vizflow/vizflow/internal/application/execution"
	"github.com/vizflow/vizflow/internal/application/livepoll"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
	"github.com/vizflow/vizflow/pkg/models"
)

// WidgetRepository is the subset of storage.WidgetRepository the REST
// layer depends on.
type WidgetRepository interface {
	Create(ctx context.Context, w models.Widget) (models.Widget, error)
	GetByID(ctx context.Context, tenantID, id string) (models.Widget, error)
	ListByDashboard(ctx context.Context, tenantID, dashboardID string) ([]models.Widget, error)
	Update(ctx context.Context, tenantID, id string, overrides, layout json.RawMessage, autoRefresh *int) (models.Widget, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// WidgetHandlers serves /widgets and /widgets/{id}/data (spec.md §6).
type WidgetHandlers struct {
	repo      WidgetRepository
	workflows execution.WorkflowLoader
	exec      *execution.Service
	poll      *livepoll.Supervisor
	log       *logger.Logger
}

// NewWidgetHandlers constructs a WidgetHandlers. poll may be nil if live
// polling is disabled.
func NewWidgetHandlers(repo WidgetRepository, workflows execution.WorkflowLoader, exec *execution.Service, poll *livepoll.Supervisor, log *logger.Logger) *WidgetHandlers {
	return &WidgetHandlers{repo: repo, workflows: workflows, exec: exec, poll: poll, log: log}
}

type widgetRequest struct {
	DashboardID         string          `json:"dashboard_id" binding:"required"`
	SourceWorkflowID    string          `json:"source_workflow_id" binding:"required"`
	SourceNodeID        string          `json:"source_node_id" binding:"required"`
	Layout              json.RawMessage `json:"layout,omitempty"`
	ConfigOverrides     json.RawMessage `json:"config_overrides,omitempty"`
	AutoRefreshInterval *int            `json:"auto_refresh_interval,omitempty"`
}

func (h *WidgetHandlers) HandleCreate(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	var req widgetRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	widget, err := h.repo.Create(c.Request.Context(), models.Widget{
		DashboardID:         req.DashboardID,
		SourceWorkflowID:    req.SourceWorkflowID,
		SourceNodeID:        req.SourceNodeID,
		Layout:              req.Layout,
		ConfigOverrides:     req.ConfigOverrides,
		AutoRefreshInterval: req.AutoRefreshInterval,
	})
	if err != nil {
		respondAPIError(c, err)
		return
	}

	h.syncLivePoll(tenantID, widget)
	respondJSON(c, http.StatusCreated, widget)
}

func (h *WidgetHandlers) HandleGet(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	widget, err := h.repo.GetByID(c.Request.Context(), tenantID, c.Param("widget_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, widget)
}

func (h *WidgetHandlers) HandleListByDashboard(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	list, err := h.repo.ListByDashboard(c.Request.Context(), tenantID, c.Query("dashboard_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondList(c, http.StatusOK, list, len(list), len(list), 0)
}

type updateWidgetRequest struct {
	Layout              json.RawMessage `json:"layout,omitempty"`
	ConfigOverrides     json.RawMessage `json:"config_overrides,omitempty"`
	AutoRefreshInterval *int            `json:"auto_refresh_interval,omitempty"`
}

// HandleUpdate handles PUT /widgets/{id}. Flipping auto_refresh_interval
// to -1 (live mode) or away from it starts/stops the live-poll supervisor
// for this widget (spec.md §4.5 "Live mode").
func (h *WidgetHandlers) HandleUpdate(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	var req updateWidgetRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	widget, err := h.repo.Update(c.Request.Context(), tenantID, c.Param("widget_id"), req.ConfigOverrides, req.Layout, req.AutoRefreshInterval)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	h.syncLivePoll(tenantID, widget)
	respondJSON(c, http.StatusOK, widget)
}

func (h *WidgetHandlers) HandleDelete(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	widgetID := c.Param("widget_id")
	if h.poll != nil {
		h.poll.Stop(widgetID)
	}
	if err := h.repo.Delete(c.Request.Context(), tenantID, widgetID); err != nil {
		respondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleData handles GET /widgets/{id}/data — authenticated widget data
// read, composing config_overrides onto the widget's source node
// (spec.md §3 "Widget").
func (h *WidgetHandlers) HandleData(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	widget, err := h.repo.GetByID(c.Request.Context(), tenantID, c.Param("widget_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}

	wf, err := h.workflows.GetByID(c.Request.Context(), tenantID, widget.SourceWorkflowID)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	filters := parseFilters(c.Query("filters"))
	offset := getQueryInt(c, "offset", 0)
	limit := getQueryInt(c, "limit", 100)

	resp, err := h.exec.WidgetData(c.Request.Context(), tenantID, wf.Graph, widget, filters, offset, limit)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// syncLivePoll starts or stops the widget's live-poll loop to match its
// current auto_refresh_interval. Never fails the caller's request.
func (h *WidgetHandlers) syncLivePoll(tenantID string, widget models.Widget) {
	if h.poll == nil {
		return
	}
	if widget.IsLiveMode() {
		h.poll.Start(tenantID, widget, time.Second)
		return
	}
	h.poll.Stop(widget.ID)
}

func parseFilters(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
