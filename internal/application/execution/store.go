// Package execution orchestrates whole-workflow and single-node requests:
// it ties the Schema Engine, Workflow Compiler, Cache-and-Execute Layer,
// Query Router and Live Channel Hub together behind the three request
// shapes the REST layer exposes (preview, widget-data, full execute), and
// owns the execution record's get-modify-set lifecycle in the fast store.
// Grounded on the teacher's internal/application/executor/engine.go for
// the plan→execute→finalize orchestration shape (generalized here from
// per-node event-sourced execution to per-segment store dispatch) and
// original_source's services/execution_service.py for the execution
// record fields and TTL.
package execution

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vizflow/vizflow/internal/infrastructure/cache"
	"github.com/vizflow/vizflow/pkg/models"
)

// recordTTL matches spec.md §6 "Fast store" layout:
// "<ns>:<tenant_id>:execution:<id> (JSON, 1h TTL)".
const recordTTL = time.Hour

// Store persists ExecutionRecords in the fast store under
// "<ns>:<tenant_id>:execution:<id>" with a get-modify-set update path.
// Concurrent updates to the same execution id are forbidden by
// construction (spec.md §5 "one execution has one owner process") — Store
// does not attempt optimistic concurrency control.
type Store struct {
	cache     *cache.RedisCache
	namespace string
}

// NewStore constructs a Store.
func NewStore(c *cache.RedisCache, namespace string) *Store {
	return &Store{cache: c, namespace: namespace}
}

func (s *Store) key(tenantID, id string) string {
	return s.namespace + ":" + tenantID + ":execution:" + id
}

// Put writes rec, resetting the TTL.
func (s *Store) Put(ctx context.Context, rec models.ExecutionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.key(rec.TenantID, rec.ID), raw, recordTTL)
}

// Get loads an ExecutionRecord, returning models.ErrExecutionNotFound on miss.
func (s *Store) Get(ctx context.Context, tenantID, id string) (models.ExecutionRecord, error) {
	raw, err := s.cache.Get(ctx, s.key(tenantID, id))
	if err != nil {
		if cache.IsMiss(err) {
			return models.ExecutionRecord{}, models.ErrExecutionNotFound
		}
		return models.ExecutionRecord{}, err
	}
	var rec models.ExecutionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return models.ExecutionRecord{}, err
	}
	return rec, nil
}

// Update loads the record, applies mutate, and writes it back, refreshing
// the TTL (the "simple get-modify-set pattern" of spec.md §5).
func (s *Store) Update(ctx context.Context, tenantID, id string, mutate func(*models.ExecutionRecord)) error {
	rec, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	mutate(&rec)
	return s.Put(ctx, rec)
}
