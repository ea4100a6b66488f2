package cacheexec

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizflow/vizflow/internal/config"
	"github.com/vizflow/vizflow/internal/domain/compiler"
	"github.com/vizflow/vizflow/internal/domain/router"
	"github.com/vizflow/vizflow/internal/domain/schema"
	"github.com/vizflow/vizflow/internal/infrastructure/cache"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
	"github.com/vizflow/vizflow/pkg/models"
)

type countingStore struct {
	calls  int
	result models.QueryResult
}

func (s *countingStore) Query(_ context.Context, _ string, _ map[string]any) (models.QueryResult, error) {
	s.calls++
	return s.result, nil
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
					{Name: "amount", Dtype: models.DtypeFloat64},
				},
			}),
			node("out", models.NodeTableOutput, map[string]any{}),
		},
		Edges: []models.Edge{{Source: "ds", Target: "out"}},
	}
}

func newTestExecutor(t *testing.T, store *countingStore) *Executor {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(config.RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	comp := compiler.New(schema.NewEngine())
	r := router.New(store, nil, nil)
	ttls := TTLs{Analytical: time.Minute, Live: time.Second, Point: time.Second}
	budget := Budget{WallTime: time.Second, MemoryMB: 100, MaxRowsScanned: 1000}
	return New(comp, r, rc, ttls, budget, budget, log(t))
}

func log(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.Default()
}

func TestExecute_MissCompilesAndCaches(t *testing.T) {
	store := &countingStore{result: models.QueryResult{TotalRows: 2, Rows: []map[string]any{{"id": 1}, {"id": 2}}}}
	exec := newTestExecutor(t, store)

	req := Request{Path: PathPreview, TenantID: "t1", Graph: testGraph(), TargetNodeID: "out", Limit: 100}
	res, err := exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, 2, res.TotalRows)
	assert.Equal(t, 1, store.calls)

	res2, err := exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res2.CacheHit)
	assert.Equal(t, 1, store.calls)
}

func TestExecute_TenantIsolation(t *testing.T) {
	store := &countingStore{result: models.QueryResult{TotalRows: 1}}
	exec := newTestExecutor(t, store)

	g := testGraph()
	_, err := exec.Execute(context.Background(), Request{Path: PathPreview, TenantID: "tenant-a", Graph: g, TargetNodeID: "out", Limit: 100})
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), Request{Path: PathPreview, TenantID: "tenant-b", Graph: g, TargetNodeID: "out", Limit: 100})
	require.NoError(t, err)

	assert.Equal(t, 2, store.calls, "different tenants must not share a cache entry")
}

func TestExecute_EditToUnrelatedBranchDoesNotBustCache(t *testing.T) {
	store := &countingStore{result: models.QueryResult{TotalRows: 1}}
	exec := newTestExecutor(t, store)

	graphWithSibling := func(siblingTable string) models.Graph {
		g := testGraph()
		g.Nodes = append(g.Nodes, node("sibling_ds", models.NodeDataSource, map[string]any{
			"table": siblingTable, "freshness": "analytical",
			"columns": []models.ColumnSchema{{Name: "id", Dtype: models.DtypeInt64}},
		}))
		return g
	}

	_, err := exec.Execute(context.Background(), Request{Path: PathPreview, TenantID: "t1", Graph: graphWithSibling("customers"), TargetNodeID: "out", Limit: 100})
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), Request{Path: PathPreview, TenantID: "t1", Graph: graphWithSibling("products"), TargetNodeID: "out", Limit: 100})
	require.NoError(t, err)

	assert.Equal(t, 1, store.calls, "editing a node outside target's ancestry must not change the fingerprint")
}

func TestExecute_OffsetLimitAffectsFingerprint(t *testing.T) {
	store := &countingStore{result: models.QueryResult{TotalRows: 1}}
	exec := newTestExecutor(t, store)

	g := testGraph()
	_, err := exec.Execute(context.Background(), Request{Path: PathPreview, TenantID: "t1", Graph: g, TargetNodeID: "out", Offset: 0, Limit: 100})
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), Request{Path: PathPreview, TenantID: "t1", Graph: g, TargetNodeID: "out", Offset: 100, Limit: 100})
	require.NoError(t, err)

	assert.Equal(t, 2, store.calls)
}
