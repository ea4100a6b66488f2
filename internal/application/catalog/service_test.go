package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizflow/vizflow/internal/config"
	vizcache "github.com/vizflow/vizflow/internal/infrastructure/cache"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
	"github.com/vizflow/vizflow/pkg/models"
)

type fakeSource struct {
	tables []models.TableSchema
	calls  int
	err    error
}

func (f *fakeSource) DiscoverSchema(context.Context) ([]models.TableSchema, error) {
	f.calls++
	return f.tables, f.err
}

func newTestCache(t *testing.T) *vizcache.RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := vizcache.NewRedisCache(config.RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })
	return rc
}

func TestService_Get_DiscoversOnMissThenCaches(t *testing.T) {
	rc := newTestCache(t)
	analytical := &fakeSource{tables: []models.TableSchema{{Name: "fct_trades", Source: "analytical"}}}
	live := &fakeSource{tables: []models.TableSchema{{Name: "rt_quotes", Source: "live"}}}

	svc := New(analytical, live, StaticPointCatalog(), rc, "vizflow", time.Minute, logger.Default())

	catalog, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, analytical.calls)
	assert.Equal(t, 1, live.calls)
	assert.Len(t, catalog.Tables, 2+len(StaticPointCatalog()))

	// Second call reads from cache; no further discovery.
	_, err = svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, analytical.calls)
	assert.Equal(t, 1, live.calls)
}

func TestService_Refresh_ForcesRediscovery(t *testing.T) {
	rc := newTestCache(t)
	analytical := &fakeSource{tables: []models.TableSchema{{Name: "fct_trades", Source: "analytical"}}}

	svc := New(analytical, nil, nil, rc, "vizflow", time.Minute, logger.Default())

	_, err := svc.Get(context.Background())
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, analytical.calls)
}

func TestService_Get_FailsOpenOnSourceError(t *testing.T) {
	rc := newTestCache(t)
	analytical := &fakeSource{err: assert.AnError}

	svc := New(analytical, nil, StaticPointCatalog(), rc, "vizflow", time.Minute, logger.Default())

	catalog, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, catalog.Tables, len(StaticPointCatalog()))
}
