package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vizflow/vizflow/internal/application/execution"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
)

// EmbedHandlers serves the unauthenticated-by-JWT, API-key-gated
// GET /embed/{widget_id} endpoint (spec.md §6).
type EmbedHandlers struct {
	repo      WidgetRepository
	workflows execution.WorkflowLoader
	exec      *execution.Service
	log       *logger.Logger
}

// NewEmbedHandlers constructs an EmbedHandlers.
func NewEmbedHandlers(repo WidgetRepository, workflows execution.WorkflowLoader, exec *execution.Service, log *logger.Logger) *EmbedHandlers {
	return &EmbedHandlers{repo: repo, workflows: workflows, exec: exec, log: log}
}

// HandleData handles GET /embed/{widget_id}. EmbedAuthMiddleware has
// already authenticated the API key and enforced its rate limit; this
// handler only checks the key's widget scope before serving data
// (spec.md §3 "API Key", §6).
func (h *EmbedHandlers) HandleData(c *gin.Context) {
	key, ok := GetAPIKey(c)
	if !ok {
		respondAPIError(c, ErrUnauthorized)
		return
	}

	widgetID := c.Param("widget_id")
	if !keyScopedTo(key.ScopedWidgetIDs, widgetID) {
		respondAPIError(c, ErrForbidden)
		return
	}

	widget, err := h.repo.GetByID(c.Request.Context(), key.TenantID, widgetID)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	wf, err := h.workflows.GetByID(c.Request.Context(), key.TenantID, widget.SourceWorkflowID)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	offset := getQueryInt(c, "offset", 0)
	limit := getQueryInt(c, "limit", 100)

	resp, err := h.exec.WidgetData(c.Request.Context(), key.TenantID, wf.Graph, widget, nil, offset, limit)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// keyScopedTo reports whether widgetID is permitted by scope. An empty
// scope list means the key is unrestricted across its tenant's widgets.
func keyScopedTo(scope []string, widgetID string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, id := range scope {
		if id == widgetID {
			return true
		}
	}
	return false
}
