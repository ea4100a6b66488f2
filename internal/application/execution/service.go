package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vizflow/vizflow/internal/domain/cacheexec"
	"github.com/vizflow/vizflow/internal/domain/compiler"
	"github.com/vizflow/vizflow/internal/domain/livehub"
	"github.com/vizflow/vizflow/internal/domain/router"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
	"github.com/vizflow/vizflow/pkg/models"
)

// WorkflowLoader resolves a stored workflow by id, tenant-scoped. Backed by
// the relational storage layer.
type WorkflowLoader interface {
	GetByID(ctx context.Context, tenantID, workflowID string) (models.Workflow, error)
}

// Service orchestrates the three request shapes that walk Schema Engine →
// Compiler → Cache-and-Execute → Router → Live Channel Hub: inline-graph
// preview, widget-data, and full stored-workflow execution.
type Service struct {
	compiler  *compiler.Compiler
	router    *router.Router
	cacheExec *cacheexec.Executor
	hub       *livehub.Hub
	store     *Store
	workflows WorkflowLoader
	namespace string
	log       *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs a Service.
func New(c *compiler.Compiler, r *router.Router, ce *cacheexec.Executor, hub *livehub.Hub, store *Store, workflows WorkflowLoader, namespace string, log *logger.Logger) *Service {
	return &Service{
		compiler:  c,
		router:    r,
		cacheExec: ce,
		hub:       hub,
		store:     store,
		workflows: workflows,
		namespace: namespace,
		log:       log,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Preview compiles and executes a single node of an inline graph through
// the cache layer, never touching the relational store or the hub.
func (s *Service) Preview(ctx context.Context, tenantID string, graph models.Graph, targetNodeID string, offset, limit int) (cacheexec.Response, error) {
	return s.cacheExec.Execute(ctx, cacheexec.Request{
		Path:         cacheexec.PathPreview,
		TenantID:     tenantID,
		Graph:        graph,
		TargetNodeID: targetNodeID,
		Offset:       offset,
		Limit:        limit,
	})
}

// WidgetData composes a widget's query by overlaying config_overrides and
// filter_params onto its source node and executes it through the cache
// layer (spec.md §3 "Widget").
func (s *Service) WidgetData(ctx context.Context, tenantID string, graph models.Graph, widget models.Widget, filterParams map[string]any, offset, limit int) (cacheexec.Response, error) {
	return s.cacheExec.Execute(ctx, cacheexec.Request{
		Path:            cacheexec.PathWidget,
		TenantID:        tenantID,
		Graph:           graph,
		TargetNodeID:    widget.SourceNodeID,
		ConfigOverrides: widget.ConfigOverrides,
		FilterParams:    filterParams,
		Offset:          offset,
		Limit:           limit,
	})
}

// Execute starts asynchronous execution of a stored workflow and returns
// immediately with the new execution id; the caller (REST layer) responds
// 202 and the client follows progress over GET /executions/{id} or the WS
// channel (spec.md §6).
func (s *Service) Execute(ctx context.Context, tenantID, workflowID string) (string, error) {
	wf, err := s.workflows.GetByID(ctx, tenantID, workflowID)
	if err != nil {
		return "", err
	}

	segments, err := s.compiler.Compile(wf.Graph)
	if err != nil {
		return "", err
	}

	executionID := uuid.New().String()
	rec := models.ExecutionRecord{
		ID:           executionID,
		WorkflowID:   workflowID,
		TenantID:     tenantID,
		Status:       models.StatusPending,
		StartedAt:    time.Now(),
		NodeStatuses: make(map[string]models.NodeStatus),
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[executionID] = cancel
	s.mu.Unlock()

	go s.run(runCtx, tenantID, executionID, segments)

	return executionID, nil
}

// Cancel marks a running execution cancelled and requests cancellation of
// any in-flight store dispatch. In-flight segments that complete after
// cancellation are still persisted (spec.md §5 "Cancellation and timeouts").
func (s *Service) Cancel(ctx context.Context, tenantID, executionID string) error {
	rec, err := s.store.Get(ctx, tenantID, executionID)
	if err != nil {
		return err
	}
	if rec.Status.IsTerminal() {
		return &models.ConflictError{Err: models.ErrExecutionTerminal}
	}

	s.mu.Lock()
	cancel, ok := s.cancels[executionID]
	s.mu.Unlock()
	if ok {
		cancel()
	}

	if err := s.store.Update(ctx, tenantID, executionID, func(r *models.ExecutionRecord) {
		r.Status = models.StatusCancelled
		now := time.Now()
		r.CompletedAt = &now
	}); err != nil {
		return err
	}

	s.publish(ctx, tenantID, executionID, models.PseudoNodeWorkflow, models.StatusCancelled, nil)
	return nil
}

// Get returns the current execution record.
func (s *Service) Get(ctx context.Context, tenantID, executionID string) (models.ExecutionRecord, error) {
	return s.store.Get(ctx, tenantID, executionID)
}

// run drives one execution's per-segment dispatch, publishing
// running→completed|failed per segment in order and a terminal
// __workflow__ frame after every segment's terminal frame
// (spec.md §5 "Ordering guarantees").
func (s *Service) run(ctx context.Context, tenantID, executionID string, segments []models.CompiledSegment) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, executionID)
		s.mu.Unlock()
	}()

	if err := s.store.Update(context.Background(), tenantID, executionID, func(r *models.ExecutionRecord) {
		r.Status = models.StatusRunning
	}); err != nil {
		s.log.Error("execution record update failed", "execution_id", executionID, "error", err)
		return
	}
	s.publish(context.Background(), tenantID, executionID, models.PseudoNodeWorkflow, models.StatusRunning, nil)

	for _, seg := range segments {
		nodeID := models.PseudoNodeCompiler
		if len(seg.SourceNodeIDs) > 0 {
			nodeID = seg.SourceNodeIDs[len(seg.SourceNodeIDs)-1]
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		s.publish(context.Background(), tenantID, executionID, nodeID, models.StatusRunning, nil)
		startedAt := time.Now()

		result, err := s.router.Execute(ctx, seg)
		if err != nil {
			completedAt := time.Now()
			_ = s.store.Update(context.Background(), tenantID, executionID, func(r *models.ExecutionRecord) {
				r.NodeStatuses[nodeID] = models.NodeStatus{Status: models.StatusFailed, StartedAt: &startedAt, CompletedAt: &completedAt, Error: err.Error()}
				r.Status = models.StatusFailed
				r.CompletedAt = &completedAt
			})
			s.publish(context.Background(), tenantID, executionID, nodeID, models.StatusFailed, map[string]any{"error": err.Error()})
			s.publish(context.Background(), tenantID, executionID, models.PseudoNodeWorkflow, models.StatusFailed, nil)
			return
		}

		completedAt := time.Now()
		rows := len(result.Rows)
		_ = s.store.Update(context.Background(), tenantID, executionID, func(r *models.ExecutionRecord) {
			r.NodeStatuses[nodeID] = models.NodeStatus{Status: models.StatusCompleted, StartedAt: &startedAt, CompletedAt: &completedAt, RowsProcessed: &rows}
		})
		s.publish(context.Background(), tenantID, executionID, nodeID, models.StatusCompleted, map[string]any{"rows_processed": rows})
	}

	completedAt := time.Now()
	_ = s.store.Update(context.Background(), tenantID, executionID, func(r *models.ExecutionRecord) {
		r.Status = models.StatusCompleted
		r.CompletedAt = &completedAt
	})
	s.publish(context.Background(), tenantID, executionID, models.PseudoNodeWorkflow, models.StatusCompleted, nil)
}

func (s *Service) publish(ctx context.Context, tenantID, executionID, nodeID string, status models.ExecutionStatus, data any) {
	if s.hub == nil {
		return
	}
	channel := livehub.ChannelName(s.namespace, tenantID, livehub.KindExecution, executionID)
	frame := livehub.ExecutionStatusFrame{
		Type:        "execution_status",
		ExecutionID: executionID,
		NodeID:      nodeID,
		Status:      string(status),
		Data:        data,
	}
	if err := s.hub.Publish(ctx, channel, frame); err != nil {
		s.log.WarnContext(ctx, "execution status publish failed", "execution_id", executionID, "channel", channel, "error", err)
	}
}
