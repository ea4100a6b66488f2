// Package catalog implements the Schema catalog: a Redis-cached
// materialization of the backing stores' system catalogs into the
// engine's normalized ColumnSchema shape (spec.md §3 "Schema catalog",
// SPEC_FULL.md §12 "Schema catalog refresh"). Grounded on
// original_source's app/services/schema_registry.py (cache-then-discover
// shape, dev-mode mock fallback) and the teacher's
// internal/infrastructure/cache/redis.go for the Redis wrapper this
// package reads through.
package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vizflow/vizflow/internal/infrastructure/cache"
	"github.com/vizflow/vizflow/internal/infrastructure/logger"
	"github.com/vizflow/vizflow/pkg/models"
)

// Source discovers the tables/patterns a single backing store exposes.
// AnalyticalClient and LiveClient (internal/infrastructure/storeclients)
// both implement this.
type Source interface {
	DiscoverSchema(ctx context.Context) ([]models.TableSchema, error)
}

const cacheKeySuffix = "schema:catalog"

// Service answers GET /schema and POST /schema/refresh (spec.md §6).
type Service struct {
	analytical Source
	live       Source
	pointKeys  []models.TableSchema
	cache      *cache.RedisCache
	namespace  string
	ttl        time.Duration
	log        *logger.Logger
}

// New constructs a catalog Service. analytical and live may be nil if this
// deployment has no such store configured. pointKeys is the static
// key-pattern catalog for the point store, which has no queryable system
// table to discover from (spec.md §9 "point store: direct key lookup";
// original_source's _discover_redis_patterns).
func New(analytical, live Source, pointKeys []models.TableSchema, rc *cache.RedisCache, namespace string, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{
		analytical: analytical,
		live:       live,
		pointKeys:  pointKeys,
		cache:      rc,
		namespace:  namespace,
		ttl:        ttl,
		log:        log,
	}
}

func (s *Service) cacheKey() string { return s.namespace + ":" + cacheKeySuffix }

// Get returns the cached catalog, discovering and populating it on a miss.
// Cache errors are logged and treated as a miss, never as a request
// failure (spec.md §4.4, §7 "CacheError — always recovered locally").
func (s *Service) Get(ctx context.Context) (models.CatalogResponse, error) {
	if cached, ok := s.readCache(ctx); ok {
		return cached, nil
	}
	return s.Refresh(ctx)
}

// Refresh forces re-discovery against the backing stores and replaces the
// cached catalog.
func (s *Service) Refresh(ctx context.Context) (models.CatalogResponse, error) {
	catalog := models.CatalogResponse{}

	if s.analytical != nil {
		tables, err := s.analytical.DiscoverSchema(ctx)
		if err != nil {
			s.log.Warn("schema catalog: analytical discovery failed", "error", err)
		} else {
			catalog.Tables = append(catalog.Tables, tables...)
		}
	}
	if s.live != nil {
		tables, err := s.live.DiscoverSchema(ctx)
		if err != nil {
			s.log.Warn("schema catalog: live discovery failed", "error", err)
		} else {
			catalog.Tables = append(catalog.Tables, tables...)
		}
	}
	catalog.Tables = append(catalog.Tables, s.pointKeys...)

	s.writeCache(ctx, catalog)
	return catalog, nil
}

func (s *Service) readCache(ctx context.Context) (models.CatalogResponse, bool) {
	raw, err := s.cache.Get(ctx, s.cacheKey())
	if err != nil {
		if !cache.IsMiss(err) {
			s.log.Warn("schema catalog cache read failed", "error", err)
		}
		return models.CatalogResponse{}, false
	}
	var catalog models.CatalogResponse
	if err := json.Unmarshal([]byte(raw), &catalog); err != nil {
		s.log.Warn("schema catalog cache decode failed", "error", err)
		return models.CatalogResponse{}, false
	}
	return catalog, true
}

func (s *Service) writeCache(ctx context.Context, catalog models.CatalogResponse) {
	encoded, err := json.Marshal(catalog)
	if err != nil {
		s.log.Warn("schema catalog encode failed", "error", err)
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(), string(encoded), s.ttl); err != nil {
		s.log.Warn("schema catalog cache write failed", "error", err)
	}
}

// StaticPointCatalog returns the fixed key-pattern schemas the point store
// exposes, grounded on original_source's schema_registry.py
// _discover_redis_patterns.
func StaticPointCatalog() []models.TableSchema {
	return []models.TableSchema{
		{
			Name:   "latest:vwap:*",
			Source: "point",
			Columns: models.Schema{
				{Name: "symbol", Dtype: models.DtypeString},
				{Name: "vwap", Dtype: models.DtypeFloat64},
				{Name: "volume", Dtype: models.DtypeInt64},
				{Name: "timestamp", Dtype: models.DtypeDatetime},
			},
		},
		{
			Name:   "latest:position:*",
			Source: "point",
			Columns: models.Schema{
				{Name: "symbol", Dtype: models.DtypeString},
				{Name: "quantity", Dtype: models.DtypeInt64},
				{Name: "avg_price", Dtype: models.DtypeFloat64},
				{Name: "market_value", Dtype: models.DtypeFloat64},
				{Name: "timestamp", Dtype: models.DtypeDatetime},
			},
		},
	}
}
