package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/uptrace/bun"

	"github.com/vizflow/vizflow/internal/infrastructure/cache"
	"github.com/vizflow/vizflow/internal/infrastructure/storage"
)

const readyProbeTimeout = 3 * time.Second

// HealthHandlers serves the liveness/readiness probe family (SPEC_FULL.md
// §12 "Health/readiness probes"), grounded on the teacher's
// cmd/server/main.go health/ready endpoints.
type HealthHandlers struct {
	db    *bun.DB
	cache *cache.RedisCache
}

// NewHealthHandlers constructs a HealthHandlers.
func NewHealthHandlers(db *bun.DB, rc *cache.RedisCache) *HealthHandlers {
	return &HealthHandlers{db: db, cache: rc}
}

// HandleHealth handles GET /health — a bare liveness check with no
// dependency probing, for load balancers that just want a fast 200.
func (h *HealthHandlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleLive handles GET /health/live — process-level liveness, identical
// to HandleHealth; kept as a distinct route so orchestrators can point
// liveness and readiness probes at different paths without either probe
// changing meaning later.
func (h *HealthHandlers) HandleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /health/ready — readiness requires the
// relational store and the fast store to both answer, since neither
// workflow CRUD nor query execution can proceed without them.
func (h *HealthHandlers) HandleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyProbeTimeout)
	defer cancel()

	checks := gin.H{}
	ready := true

	if h.db != nil {
		if err := storage.Health(ctx, h.db); err != nil {
			checks["database"] = err.Error()
			ready = false
		} else {
			checks["database"] = "ok"
		}
	}

	if h.cache != nil {
		if err := h.cache.Health(ctx); err != nil {
			checks["cache"] = err.Error()
			ready = false
		} else {
			checks["cache"] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": readyStatus(ready), "checks": checks})
}

func readyStatus(ready bool) string {
	if ready {
		return "ok"
	}
	return "not_ready"
}
