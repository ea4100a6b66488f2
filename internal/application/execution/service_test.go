package execution

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizflow/vizflow/internal/config"
	"github.com/vizflow/vizflow/internal/domain/cacheexec"
	"github.com/vizflow/vizflow/internal/domain/compiler"
	"github.com/vizflow/vizflow/internal/domain/livehub"
	"github.com/vizflow/vizflow/internal/domain/router"
	"github.com/vizflow/vizflow/internal/domain/schema"
	"github.com/vizflow/vizflow/internal/infrastructure/cache"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
	"github.com/vizflow/vizflow/pkg/models"
)

type fakeWorkflowLoader struct {
	workflow models.Workflow
	err      error
}

func (f *fakeWorkflowLoader) GetByID(_ context.Context, _, _ string) (models.Workflow, error) {
	return f.workflow, f.err
}

type instantStore struct{}

func (instantStore) Query(_ context.Context, _ string, _ map[string]any) (models.QueryResult, error) {
	return models.QueryResult{TotalRows: 1, Rows: []map[string]any{{"id": 1}}}, nil
}

type blockingStore struct {
	unblocked chan struct{}
	sawCancel chan struct{}
}

func (s *blockingStore) Query(ctx context.Context, _ string, _ map[string]any) (models.QueryResult, error) {
	select {
	case <-ctx.Done():
		close(s.sawCancel)
		return models.QueryResult{}, ctx.Err()
	case <-s.unblocked:
		return models.QueryResult{TotalRows: 0}, nil
	}
}

func node(id string, typ models.NodeType, cfg any) models.Node {
	raw, _ := json.Marshal(cfg)
	return models.Node{ID: id, Type: typ, Data: models.NodeData{Config: raw}}
}

func testGraph() models.Graph {
	return models.Graph{
		Nodes: []models.Node{
			node("ds", models.NodeDataSource, map[string]any{
				"table": "orders", "freshness": "analytical",
				"columns": []models.ColumnSchema{
					{Name: "id", Dtype: models.DtypeInt64},
				},
			}),
			node("out", models.NodeTableOutput, map[string]any{}),
		},
		Edges: []models.Edge{{Source: "ds", Target: "out"}},
	}
}

func newTestService(t *testing.T, store router.AnalyticalStore, loader WorkflowLoader) (*Service, *livehub.Hub, context.CancelFunc) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(config.RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	comp := compiler.New(schema.NewEngine())
	r := router.New(store, nil, nil)
	ttls := cacheexec.TTLs{Analytical: time.Minute, Live: time.Second, Point: time.Second}
	budget := cacheexec.Budget{WallTime: 5 * time.Second, MemoryMB: 100, MaxRowsScanned: 1000}
	ce := cacheexec.New(comp, r, rc, ttls, budget, budget, logger.Default())

	hub := livehub.New("vizflow", nil, logger.Default())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	execStore := NewStore(rc, "vizflow")
	svc := New(comp, r, ce, hub, execStore, loader, "vizflow", logger.Default())
	return svc, hub, cancel
}

func waitForStatus(t *testing.T, svc *Service, tenantID, executionID string, status models.ExecutionStatus) models.ExecutionRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := svc.Get(context.Background(), tenantID, executionID)
		require.NoError(t, err)
		if rec.Status == status {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("execution never reached status %s", status)
	return models.ExecutionRecord{}
}

func TestExecute_RunsToCompletion(t *testing.T) {
	loader := &fakeWorkflowLoader{workflow: models.Workflow{ID: "wf1", TenantID: "t1", Graph: testGraph()}}
	svc, hub, cancel := newTestService(t, instantStore{}, loader)
	defer cancel()

	client := livehub.NewClient("c1", "t1", hub, nil)
	hub.Register(client)
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	executionID, err := svc.Execute(context.Background(), "t1", "wf1")
	require.NoError(t, err)
	assert.NotEmpty(t, executionID)

	rec := waitForStatus(t, svc, "t1", executionID, models.StatusCompleted)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.NotNil(t, rec.CompletedAt)

	channel := livehub.ChannelName("vizflow", "t1", livehub.KindExecution, executionID)
	_ = hub.Subscribe(client, channel)
}

func TestExecute_WorkflowNotFound(t *testing.T) {
	loader := &fakeWorkflowLoader{err: models.ErrWorkflowNotFound}
	svc, _, cancel := newTestService(t, instantStore{}, loader)
	defer cancel()

	_, err := svc.Execute(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, models.ErrWorkflowNotFound)
}

func TestCancel_StopsRunningExecution(t *testing.T) {
	store := &blockingStore{unblocked: make(chan struct{}), sawCancel: make(chan struct{})}
	loader := &fakeWorkflowLoader{workflow: models.Workflow{ID: "wf1", TenantID: "t1", Graph: testGraph()}}
	svc, _, cancel := newTestService(t, store, loader)
	defer cancel()

	executionID, err := svc.Execute(context.Background(), "t1", "wf1")
	require.NoError(t, err)

	waitForStatus(t, svc, "t1", executionID, models.StatusRunning)

	require.NoError(t, svc.Cancel(context.Background(), "t1", executionID))

	select {
	case <-store.sawCancel:
	case <-time.After(time.Second):
		t.Fatal("in-flight dispatch was never cancelled")
	}

	rec, err := svc.Get(context.Background(), "t1", executionID)
	require.NoError(t, err)
	assert.True(t, rec.Status.IsTerminal())
}

func TestCancel_RejectsTerminalExecution(t *testing.T) {
	loader := &fakeWorkflowLoader{workflow: models.Workflow{ID: "wf1", TenantID: "t1", Graph: testGraph()}}
	svc, _, cancel := newTestService(t, instantStore{}, loader)
	defer cancel()

	executionID, err := svc.Execute(context.Background(), "t1", "wf1")
	require.NoError(t, err)
	waitForStatus(t, svc, "t1", executionID, models.StatusCompleted)

	err = svc.Cancel(context.Background(), "t1", executionID)
	var conflict *models.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestPreview_DoesNotTouchWorkflowLoaderOrHub(t *testing.T) {
	loader := &fakeWorkflowLoader{err: models.ErrWorkflowNotFound}
	svc, _, cancel := newTestService(t, instantStore{}, loader)
	defer cancel()

	res, err := svc.Preview(context.Background(), "t1", testGraph(), "out", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalRows)
}
