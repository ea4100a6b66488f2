package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vizflow/vizflow/pkg/models"
)

// CatalogService is the subset of catalog.Service the REST layer depends
// on.
type CatalogService interface {
	Get(ctx context.Context) (models.CatalogResponse, error)
	Refresh(ctx context.Context) (models.CatalogResponse, error)
}

// SchemaHandlers serves the /schema resource family (spec.md §6,
// SPEC_FULL.md §12 "Schema catalog refresh").
type SchemaHandlers struct {
	catalog CatalogService
}

// NewSchemaHandlers constructs a SchemaHandlers.
func NewSchemaHandlers(catalog CatalogService) *SchemaHandlers {
	return &SchemaHandlers{catalog: catalog}
}

// HandleGet handles GET /schema — the cached catalog of every table/pattern
// discoverable across the backing stores.
func (h *SchemaHandlers) HandleGet(c *gin.Context) {
	catalog, err := h.catalog.Get(c.Request.Context())
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, catalog)
}

// HandleRefresh handles POST /schema/refresh — forces re-discovery against
// the backing stores, bypassing the cache.
func (h *SchemaHandlers) HandleRefresh(c *gin.Context) {
	catalog, err := h.catalog.Refresh(c.Request.Context())
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, catalog)
}
