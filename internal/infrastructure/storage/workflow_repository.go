package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vizflow/vizflow/pkg/models"
)

// WorkflowRepository persists workflows and their version history,
// tenant-scoped on every read and write. Grounded on the teacher's
// trigger_repository.go for the bun.IDB CRUD shape.
type WorkflowRepository struct {
	db bun.IDB
}

// NewWorkflowRepository constructs a WorkflowRepository.
func NewWorkflowRepository(db bun.IDB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create persists a new workflow at version 1.
func (r *WorkflowRepository) Create(ctx context.Context, wf models.Workflow) (models.Workflow, error) {
	graph, err := json.Marshal(wf.Graph)
	if err != nil {
		return models.Workflow{}, err
	}
	row := &WorkflowModel{
		ID:       uuid.New().String(),
		TenantID: wf.TenantID,
		Name:     wf.Name,
		Graph:    RawJSON(graph),
		Version:  1,
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return models.Workflow{}, err
	}
	return toWorkflow(row)
}

// GetByID loads a workflow, tenant-scoped. Cross-tenant access and
// missing ids both surface as ErrWorkflowNotFound (SPEC_FULL.md §12
// "cross-tenant 404 masking").
func (r *WorkflowRepository) GetByID(ctx context.Context, tenantID, id string) (models.Workflow, error) {
	row := &WorkflowModel{}
	err := r.db.NewSelect().Model(row).Where("id = ? AND tenant_id = ?", id, tenantID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Workflow{}, models.ErrWorkflowNotFound
	}
	if err != nil {
		return models.Workflow{}, err
	}
	return toWorkflow(row)
}

// ListByTenant lists every workflow owned by tenantID.
func (r *WorkflowRepository) ListByTenant(ctx context.Context, tenantID string) ([]models.Workflow, error) {
	var rows []*WorkflowModel
	if err := r.db.NewSelect().Model(&rows).Where("tenant_id = ?", tenantID).Order("updated_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]models.Workflow, 0, len(rows))
	for _, row := range rows {
		wf, err := toWorkflow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

// Update snapshots the current graph into workflow_versions, then writes
// the new graph and bumps the version (SPEC_FULL.md §12 "Workflow
// versioning"). Both steps run in one transaction.
func (r *WorkflowRepository) Update(ctx context.Context, tenantID, id string, graph models.Graph, name string) (models.Workflow, error) {
	var updated models.Workflow
	err := WithTransaction(ctx, r.asDB(), func(tx bun.Tx) error {
		existing := &WorkflowModel{}
		if err := tx.NewSelect().Model(existing).Where("id = ? AND tenant_id = ?", id, tenantID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrWorkflowNotFound
			}
			return err
		}

		version := &WorkflowVersionModel{
			ID:         uuid.New().String(),
			WorkflowID: existing.ID,
			Version:    existing.Version,
			Graph:      existing.Graph,
		}
		if _, err := tx.NewInsert().Model(version).Exec(ctx); err != nil {
			return err
		}

		rawGraph, err := json.Marshal(graph)
		if err != nil {
			return err
		}
		existing.Graph = RawJSON(rawGraph)
		existing.Version++
		if name != "" {
			existing.Name = name
		}
		if _, err := tx.NewUpdate().Model(existing).WherePK().Exec(ctx); err != nil {
			return err
		}

		updated, err = toWorkflow(existing)
		return err
	})
	return updated, err
}

// Delete removes a workflow. Tenant-scoped.
func (r *WorkflowRepository) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.NewDelete().Model((*WorkflowModel)(nil)).Where("id = ? AND tenant_id = ?", id, tenantID).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrWorkflowNotFound
	}
	return nil
}

// ListVersions returns every stored version snapshot for workflowID, most
// recent first.
func (r *WorkflowRepository) ListVersions(ctx context.Context, tenantID, workflowID string) ([]models.WorkflowVersion, error) {
	if _, err := r.GetByID(ctx, tenantID, workflowID); err != nil {
		return nil, err
	}
	var rows []*WorkflowVersionModel
	if err := r.db.NewSelect().Model(&rows).Where("workflow_id = ?", workflowID).Order("version DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]models.WorkflowVersion, 0, len(rows))
	for _, row := range rows {
		var graph models.Graph
		if err := json.Unmarshal(row.Graph, &graph); err != nil {
			return nil, err
		}
		out = append(out, models.WorkflowVersion{ID: row.ID, WorkflowID: row.WorkflowID, Version: row.Version, Graph: graph, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

// Rollback restores workflowID's graph to a prior version, snapshotting
// the current graph first (the same history trail as Update).
func (r *WorkflowRepository) Rollback(ctx context.Context, tenantID, workflowID, versionID string) (models.Workflow, error) {
	var rolledBack models.Workflow
	err := WithTransaction(ctx, r.asDB(), func(tx bun.Tx) error {
		version := &WorkflowVersionModel{}
		if err := tx.NewSelect().Model(version).Where("id = ? AND workflow_id = ?", versionID, workflowID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrVersionNotFound
			}
			return err
		}

		existing := &WorkflowModel{}
		if err := tx.NewSelect().Model(existing).Where("id = ? AND tenant_id = ?", workflowID, tenantID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrWorkflowNotFound
			}
			return err
		}

		snapshot := &WorkflowVersionModel{ID: uuid.New().String(), WorkflowID: existing.ID, Version: existing.Version, Graph: existing.Graph}
		if _, err := tx.NewInsert().Model(snapshot).Exec(ctx); err != nil {
			return err
		}

		existing.Graph = version.Graph
		existing.Version++
		if _, err := tx.NewUpdate().Model(existing).WherePK().Exec(ctx); err != nil {
			return err
		}

		var err error
		rolledBack, err = toWorkflow(existing)
		return err
	})
	return rolledBack, err
}

func toWorkflow(row *WorkflowModel) (models.Workflow, error) {
	var graph models.Graph
	if err := json.Unmarshal(row.Graph, &graph); err != nil {
		return models.Workflow{}, err
	}
	return models.Workflow{
		ID:        row.ID,
		TenantID:  row.TenantID,
		Name:      row.Name,
		Graph:     graph,
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// asDB recovers the *bun.DB for transactional use. Repositories are
// normally constructed directly against *bun.DB; a bun.Tx passed in
// (nested transactions) is not supported by this accessor.
func (r *WorkflowRepository) asDB() *bun.DB {
	db, ok := r.db.(*bun.DB)
	if !ok {
		panic("storage: WorkflowRepository requires a *bun.DB, not a transaction")
	}
	return db
}
