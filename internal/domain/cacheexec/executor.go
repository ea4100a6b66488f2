// Package cacheexec implements the Cache-and-Execute Layer: it fingerprints
// a compile request, reads through the fast-store cache, wraps the
// terminal segment in a resource-limit envelope, and on miss compiles and
// dispatches via the Workflow Compiler and Query Router, single-flighting
// concurrent identical requests. Grounded on the teacher's
// internal/infrastructure/cache/redis.go (cache wrapper reused directly)
// and original_source's test_preview_cache_invalidation.py /
// test_tenant_isolation.py for the fingerprint invariants this layer must
// uphold.
package cacheexec

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vizflow/vizflow/internal/domain/compiler"
	"github.com/vizflow/vizflow/internal/domain/compiler/sqlast"
	"github.com/vizflow/vizflow/internal/domain/nodeconfig"
	"github.com/vizflow/vizflow/internal/domain/router"
	"github.com/vizflow/vizflow/internal/infrastructure/cache"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
	"github.com/vizflow/vizflow/pkg/models"
)

// Budget bounds one request path's resource envelope (spec.md §4.4
// "Resource wrapping"). Preview and widget-data paths get distinct Budgets.
type Budget struct {
	WallTime      time.Duration
	MemoryMB      int64
	MaxRowsScanned int64
}

// TTLs holds the per-target-store cache lifetimes the executor derives a
// response's TTL from (spec.md §4.4 "TTLs").
type TTLs struct {
	Analytical time.Duration
	Live       time.Duration
	Point      time.Duration
}

// Path distinguishes the preview and widget-data request paths, which get
// distinct cache key namespaces and resource budgets (GLOSSARY "Preview
// path").
type Path string

const (
	PathPreview Path = "preview"
	PathWidget  Path = "widget"
)

// Executor ties the Compiler and Router together behind a read-through
// cache with fail-open discipline and per-fingerprint single-flight.
type Executor struct {
	compiler *compiler.Compiler
	router   *router.Router
	cache    *cache.RedisCache
	ttls     TTLs
	budgets  map[Path]Budget
	group    singleflight.Group
	log      *logger.Logger
}

// New constructs an Executor.
func New(c *compiler.Compiler, r *router.Router, rc *cache.RedisCache, ttls TTLs, previewBudget, widgetBudget Budget, log *logger.Logger) *Executor {
	return &Executor{
		compiler: c,
		router:   r,
		cache:    rc,
		ttls:     ttls,
		budgets: map[Path]Budget{
			PathPreview: previewBudget,
			PathWidget:  widgetBudget,
		},
		log: log,
	}
}

// Request describes one compile-and-execute call.
type Request struct {
	Path            Path
	TenantID        string
	Graph           models.Graph
	TargetNodeID    string
	ConfigOverrides json.RawMessage
	FilterParams    map[string]any
	Offset          int
	Limit           int
}

// Response is the augmented shape returned to the request layer
// (spec.md §4.4 "Response augmentation").
type Response struct {
	Columns     []models.ColumnSchema `json:"columns"`
	Rows        []map[string]any      `json:"rows"`
	TotalRows   int                   `json:"total_rows"`
	ExecutionMS int64                 `json:"execution_ms"`
	CacheHit    bool                  `json:"cache_hit"`
	Offset      int                   `json:"offset"`
	Limit       int                   `json:"limit"`
	ChartConfig json.RawMessage       `json:"chart_config,omitempty"`
}

// cachedPayload is the JSON shape stored in the fast store — everything in
// Response except CacheHit and ExecutionMS, which are request-local.
type cachedPayload struct {
	Columns     []models.ColumnSchema `json:"columns"`
	Rows        []map[string]any      `json:"rows"`
	TotalRows   int                   `json:"total_rows"`
	ChartConfig json.RawMessage       `json:"chart_config,omitempty"`
}

// Execute runs req, reading through the cache and single-flighting
// concurrent identical fingerprints. Cache read/write errors are logged
// and treated as a miss / no-op, never as a request failure — only
// downstream compile or store failure surfaces to the caller.
func (e *Executor) Execute(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	fp := Fingerprint(FingerprintInput{
		TenantID:        req.TenantID,
		TargetNodeID:    req.TargetNodeID,
		Graph:           lineageOf(req.Graph, req.TargetNodeID),
		ConfigOverrides: req.ConfigOverrides,
		FilterParams:    req.FilterParams,
		Offset:          req.Offset,
		Limit:           req.Limit,
	})
	cacheKey := string(req.Path) + ":" + fp

	if payload, ok := e.readCache(ctx, cacheKey); ok {
		return Response{
			Columns:     payload.Columns,
			Rows:        payload.Rows,
			TotalRows:   payload.TotalRows,
			ExecutionMS: time.Since(start).Milliseconds(),
			CacheHit:    true,
			Offset:      req.Offset,
			Limit:       req.Limit,
			ChartConfig: payload.ChartConfig,
		}, nil
	}

	// Single-flight: concurrent identical fingerprints share one
	// compile+execute; losers await the winner's result (spec.md §4.4,
	// §9 "Single-flight on cache miss").
	v, err, _ := e.group.Do(cacheKey, func() (any, error) {
		return e.compileAndExecute(ctx, req, cacheKey)
	})
	if err != nil {
		return Response{}, err
	}
	payload := v.(cachedPayload)

	return Response{
		Columns:     payload.Columns,
		Rows:        payload.Rows,
		TotalRows:   payload.TotalRows,
		ExecutionMS: time.Since(start).Milliseconds(),
		CacheHit:    false,
		Offset:      req.Offset,
		Limit:       req.Limit,
		ChartConfig: payload.ChartConfig,
	}, nil
}

// lineageOf restricts graph to ancestors(targetNodeID) ∪ {targetNodeID}
// (spec.md §4.4 "Fingerprint"), matching the restriction CompileSubgraph
// applies — an edit to an unrelated branch of the canvas must never
// change the fingerprint of a node that doesn't depend on it.
func lineageOf(graph models.Graph, targetNodeID string) models.Graph {
	ids := graph.Ancestors(targetNodeID)
	ids[targetNodeID] = true
	return graph.Subgraph(ids)
}

func (e *Executor) readCache(ctx context.Context, key string) (cachedPayload, bool) {
	raw, err := e.cache.Get(ctx, key)
	if err != nil {
		if !cache.IsMiss(err) {
			e.log.WarnContext(ctx, "cache read failed, treating as miss", "key", key, "error", err)
		}
		return cachedPayload{}, false
	}
	var payload cachedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		e.log.WarnContext(ctx, "cache entry corrupt, treating as miss", "key", key, "error", err)
		return cachedPayload{}, false
	}
	return payload, true
}

func (e *Executor) compileAndExecute(ctx context.Context, req Request, cacheKey string) (cachedPayload, error) {
	graph := req.Graph
	if len(req.ConfigOverrides) > 0 {
		graph = overlayConfig(graph, req.TargetNodeID, req.ConfigOverrides)
	}

	segments, err := e.compiler.CompileSubgraph(graph, req.TargetNodeID)
	if err != nil {
		return cachedPayload{}, err
	}
	if len(segments) == 0 {
		return cachedPayload{}, &models.CompileError{Kind: "unresolved_column", NodeID: req.TargetNodeID, Detail: "target node has no upstream segment"}
	}

	budget := e.budgets[req.Path]
	wrapTerminalSegment(&segments[len(segments)-1], req.Offset, req.Limit, budget)

	dispatchCtx := ctx
	if budget.WallTime > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, budget.WallTime)
		defer cancel()
	}

	results, err := e.router.ExecuteAll(dispatchCtx, segments)
	if err != nil {
		return cachedPayload{}, err
	}
	final := results[len(results)-1]

	payload := cachedPayload{
		Columns:     final.Columns,
		Rows:        final.Rows,
		TotalRows:   final.TotalRows,
		ChartConfig: chartConfigFor(req),
	}

	ttl := e.ttlFor(segments[len(segments)-1].TargetStore)
	e.writeCache(ctx, cacheKey, payload, ttl)

	return payload, nil
}

func (e *Executor) writeCache(ctx context.Context, key string, payload cachedPayload, ttl time.Duration) {
	raw, err := json.Marshal(payload)
	if err != nil {
		e.log.WarnContext(ctx, "cache encode failed, skipping write-back", "key", key, "error", err)
		return
	}
	if err := e.cache.Set(ctx, key, raw, ttl); err != nil {
		e.log.WarnContext(ctx, "cache write failed, continuing uncached", "key", key, "error", err)
	}
}

func (e *Executor) ttlFor(target models.StoreTarget) time.Duration {
	switch target {
	case models.StoreLive:
		return e.ttls.Live
	case models.StorePoint:
		return e.ttls.Point
	default:
		return e.ttls.Analytical
	}
}

// wrapTerminalSegment rewrites seg's SQL to `SELECT * FROM (<inner>) AS _
// LIMIT <limit> OFFSET <offset>` through the SQL AST (never string
// interpolation), and records the path's resource budget as reserved
// params the store client reads when it builds its execution-budget
// options (spec.md §4.4 "Resource wrapping").
func wrapTerminalSegment(seg *models.CompiledSegment, offset, limit int, budget Budget) {
	if limit <= 0 {
		limit = nodeconfig.DefaultMaxRows
	}
	wrapped := &sqlast.Select{
		From:   sqlast.RawSubquery{SQL: seg.SQL, Alias: "_"},
		Limit:  intPtr(limit),
		Offset: intPtr(offset),
	}
	seg.SQL = wrapped.Render()
	seg.Offset = intPtr(offset)
	seg.Limit = intPtr(limit)

	if seg.Params == nil {
		seg.Params = map[string]any{}
	}
	seg.Params["__budget_wall_time_ms"] = budget.WallTime.Milliseconds()
	seg.Params["__budget_memory_mb"] = budget.MemoryMB
	seg.Params["__budget_max_rows_scanned"] = budget.MaxRowsScanned
}

func intPtr(v int) *int { return &v }

// overlayConfig returns a copy of graph with ConfigOverrides merged onto
// targetNodeID's config bag (top-level keys only), the widget-data path's
// "compose a query by overlaying config_overrides onto the source node"
// behaviour (spec.md §3 "Widget").
func overlayConfig(graph models.Graph, targetNodeID string, overrides json.RawMessage) models.Graph {
	out := models.Graph{Edges: graph.Edges}
	out.Nodes = make([]models.Node, len(graph.Nodes))
	copy(out.Nodes, graph.Nodes)

	for i, n := range out.Nodes {
		if n.ID != targetNodeID {
			continue
		}
		base := map[string]json.RawMessage{}
		if len(n.Data.Config) > 0 {
			_ = json.Unmarshal(n.Data.Config, &base)
		}
		var ov map[string]json.RawMessage
		if err := json.Unmarshal(overrides, &ov); err == nil {
			for k, v := range ov {
				base[k] = v
			}
		}
		merged, err := json.Marshal(base)
		if err != nil {
			continue
		}
		n.Data.Config = merged
		out.Nodes[i] = n
	}
	return out
}

// chartConfigFor lifts the terminal node's config onto the response for
// widget-data requests, so the client can render without a second
// round-trip (spec.md §4.4 "Response augmentation").
func chartConfigFor(req Request) json.RawMessage {
	if req.Path != PathWidget {
		return nil
	}
	for _, n := range req.Graph.Nodes {
		if n.ID == req.TargetNodeID {
			return n.Data.Config
		}
	}
	return nil
}
