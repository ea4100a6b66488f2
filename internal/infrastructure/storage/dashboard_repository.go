package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vizflow/vizflow/pkg/models"
)

// DashboardRepository persists dashboards, tenant-scoped.
type DashboardRepository struct {
	db bun.IDB
}

// NewDashboardRepository constructs a DashboardRepository.
func NewDashboardRepository(db bun.IDB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

func (r *DashboardRepository) Create(ctx context.Context, tenantID, name string) (models.Dashboard, error) {
	row := &DashboardModel{ID: uuid.New().String(), TenantID: tenantID, Name: name}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return models.Dashboard{}, err
	}
	return toDashboard(row), nil
}

func (r *DashboardRepository) GetByID(ctx context.Context, tenantID, id string) (models.Dashboard, error) {
	row := &DashboardModel{}
	err := r.db.NewSelect().Model(row).Where("id = ? AND tenant_id = ?", id, tenantID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Dashboard{}, models.ErrDashboardNotFound
	}
	if err != nil {
		return models.Dashboard{}, err
	}
	return toDashboard(row), nil
}

func (r *DashboardRepository) ListByTenant(ctx context.Context, tenantID string) ([]models.Dashboard, error) {
	var rows []*DashboardModel
	if err := r.db.NewSelect().Model(&rows).Where("tenant_id = ?", tenantID).Order("updated_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]models.Dashboard, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDashboard(row))
	}
	return out, nil
}

func (r *DashboardRepository) Update(ctx context.Context, tenantID, id, name string) (models.Dashboard, error) {
	row := &DashboardModel{}
	if err := r.db.NewSelect().Model(row).Where("id = ? AND tenant_id = ?", id, tenantID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Dashboard{}, models.ErrDashboardNotFound
		}
		return models.Dashboard{}, err
	}
	row.Name = name
	if _, err := r.db.NewUpdate().Model(row).WherePK().Exec(ctx); err != nil {
		return models.Dashboard{}, err
	}
	return toDashboard(row), nil
}

func (r *DashboardRepository) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.NewDelete().Model((*DashboardModel)(nil)).Where("id = ? AND tenant_id = ?", id, tenantID).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrDashboardNotFound
	}
	return nil
}

func toDashboard(row *DashboardModel) models.Dashboard {
	return models.Dashboard{ID: row.ID, TenantID: row.TenantID, Name: row.Name, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}
}
