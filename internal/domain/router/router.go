// Package router implements the Query Router: the only component that
// knows which backing store answers a compiled segment. Grounded on
// original_source's services/query_router.py for the dispatch-by-target
// shape (that source's execute_all was a sequential TODO stub; this
// package's ExecuteAll follows the teacher's wave-based parallel-execution
// idiom from internal/application/engine/dag_executor.go instead —
// WaitGroup + bounded semaphore + per-call error collection).
package router

import (
	"context"
	"sync"
	"time"

	"github.com/vizflow/vizflow/pkg/models"
)

// AnalyticalStore executes SQL against the analytical (historical,
// higher-latency) backing store.
type AnalyticalStore interface {
	Query(ctx context.Context, sql string, params map[string]any) (models.QueryResult, error)
}

// LiveStore executes SQL against the low-latency live backing store.
type LiveStore interface {
	Query(ctx context.Context, sql string, params map[string]any) (models.QueryResult, error)
}

// PointStore answers direct key lookups without going through SQL at all.
type PointStore interface {
	Get(ctx context.Context, params map[string]any) (models.QueryResult, error)
}

// MaxParallelism bounds how many segments ExecuteAll dispatches at once.
const MaxParallelism = 8

// Router dispatches CompiledSegments to the store indicated by their
// TargetStore field.
type Router struct {
	analytical AnalyticalStore
	live       LiveStore
	point      PointStore
}

// New constructs a Router. Any store may be nil if this deployment never
// routes to it; dispatching to a nil store surfaces as StoreUnavailable.
func New(analytical AnalyticalStore, live LiveStore, point PointStore) *Router {
	return &Router{analytical: analytical, live: live, point: point}
}

// Execute dispatches a single segment and returns its result with timing
// attached.
func (r *Router) Execute(ctx context.Context, seg models.CompiledSegment) (models.QueryResult, error) {
	start := time.Now()

	result, err := r.dispatch(ctx, seg)
	if err != nil {
		return models.QueryResult{}, err
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

func (r *Router) dispatch(ctx context.Context, seg models.CompiledSegment) (models.QueryResult, error) {
	switch seg.TargetStore {
	case models.StoreAnalytical:
		if r.analytical == nil {
			return models.QueryResult{}, &models.RouterError{Kind: "store_unavailable", Target: string(seg.TargetStore), Err: models.ErrStoreUnavailable}
		}
		result, err := r.analytical.Query(ctx, seg.SQL, seg.Params)
		if err != nil {
			return models.QueryResult{}, &models.RouterError{Kind: "query_failed", Target: string(seg.TargetStore), Err: err}
		}
		result.SourceStore = models.StoreAnalytical
		return result, nil

	case models.StoreLive:
		if r.live == nil {
			return models.QueryResult{}, &models.RouterError{Kind: "store_unavailable", Target: string(seg.TargetStore), Err: models.ErrStoreUnavailable}
		}
		result, err := r.live.Query(ctx, seg.SQL, seg.Params)
		if err != nil {
			return models.QueryResult{}, &models.RouterError{Kind: "query_failed", Target: string(seg.TargetStore), Err: err}
		}
		result.SourceStore = models.StoreLive
		return result, nil

	case models.StorePoint:
		if r.point == nil {
			return models.QueryResult{}, &models.RouterError{Kind: "store_unavailable", Target: string(seg.TargetStore), Err: models.ErrStoreUnavailable}
		}
		result, err := r.point.Get(ctx, seg.Params)
		if err != nil {
			return models.QueryResult{}, &models.RouterError{Kind: "query_failed", Target: string(seg.TargetStore), Err: err}
		}
		result.SourceStore = models.StorePoint
		return result, nil

	default:
		return models.QueryResult{}, &models.RouterError{Kind: "unknown_target", Target: string(seg.TargetStore), Err: models.ErrUnknownTarget}
	}
}

// segmentResult pairs a segment's position with its outcome, so ExecuteAll
// can return results in the caller's original order despite running them
// concurrently.
type segmentResult struct {
	index  int
	result models.QueryResult
	err    error
}

// ExecuteAll dispatches every segment concurrently, bounded by
// MaxParallelism, and returns results in the same order as segs. It does
// not reorder or otherwise change each segment's observable execution —
// only the wall-clock overlap changes versus running them one at a time.
// The first error encountered is returned after every in-flight dispatch
// completes or the context is cancelled, whichever happens first.
func (r *Router) ExecuteAll(ctx context.Context, segs []models.CompiledSegment) ([]models.QueryResult, error) {
	results := make([]models.QueryResult, len(segs))
	out := make(chan segmentResult, len(segs))
	semaphore := make(chan struct{}, MaxParallelism)

	var wg sync.WaitGroup
	for i, seg := range segs {
		wg.Add(1)
		go func(idx int, s models.CompiledSegment) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				out <- segmentResult{index: idx, err: ctx.Err()}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			res, err := r.Execute(ctx, s)
			out <- segmentResult{index: idx, result: res, err: err}
		}(i, seg)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	var firstErr error
	for sr := range out {
		if sr.err != nil {
			if firstErr == nil {
				firstErr = sr.err
			}
			continue
		}
		results[sr.index] = sr.result
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
