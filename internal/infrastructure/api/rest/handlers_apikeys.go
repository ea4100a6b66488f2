package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vizflow/vizflow/internal/application/apikey"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
)

// APIKeyHandlers serves /api-keys (spec.md §6). The raw key is returned
// exactly once, on creation.
type APIKeyHandlers struct {
	svc *apikey.Service
	log *logger.Logger
}

// NewAPIKeyHandlers constructs an APIKeyHandlers.
func NewAPIKeyHandlers(svc *apikey.Service, log *logger.Logger) *APIKeyHandlers {
	return &APIKeyHandlers{svc: svc, log: log}
}

type createAPIKeyRequest struct {
	ScopedWidgetIDs []string `json:"scoped_widget_ids,omitempty"`
	RateLimit       *int     `json:"rate_limit,omitempty"`
}

func (h *APIKeyHandlers) HandleCreate(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	var req createAPIKeyRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	result, err := h.svc.Create(c.Request.Context(), tenantID, req.ScopedWidgetIDs, req.RateLimit)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, gin.H{
		"api_key": result.Key,
		"key":     result.PlainKey,
	})
}

func (h *APIKeyHandlers) HandleList(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	list, err := h.svc.List(c.Request.Context(), tenantID)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondList(c, http.StatusOK, list, len(list), len(list), 0)
}

func (h *APIKeyHandlers) HandleRevoke(c *gin.Context) {
	tenantID, _ := GetTenantID(c)
	if err := h.svc.Revoke(c.Request.Context(), tenantID, c.Param("key_id")); err != nil {
		respondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
