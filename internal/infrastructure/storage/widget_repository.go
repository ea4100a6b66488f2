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

// WidgetRepository persists widgets. Widgets have no tenant_id column of
// their own — they inherit tenant scope via their dashboard
// (spec.md §6 "widgets inherit tenant scope via dashboard") — so every
// tenant-scoped lookup joins dashboards.
type WidgetRepository struct {
	db bun.IDB
}

// NewWidgetRepository constructs a WidgetRepository.
func NewWidgetRepository(db bun.IDB) *WidgetRepository {
	return &WidgetRepository{db: db}
}

func (r *WidgetRepository) Create(ctx context.Context, w models.Widget) (models.Widget, error) {
	row := &WidgetModel{
		ID:                  uuid.New().String(),
		DashboardID:         w.DashboardID,
		SourceWorkflowID:    w.SourceWorkflowID,
		SourceNodeID:        w.SourceNodeID,
		Layout:              RawJSON(w.Layout),
		ConfigOverrides:     RawJSON(w.ConfigOverrides),
		AutoRefreshInterval: w.AutoRefreshInterval,
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return models.Widget{}, err
	}
	return toWidget(row), nil
}

// GetByID loads a widget, tenant-scoped via its dashboard.
func (r *WidgetRepository) GetByID(ctx context.Context, tenantID, id string) (models.Widget, error) {
	row := &WidgetModel{}
	err := r.db.NewSelect().
		Model(row).
		Join("JOIN dashboards AS db ON db.id = wg.dashboard_id").
		Where("wg.id = ? AND db.tenant_id = ?", id, tenantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Widget{}, models.ErrWidgetNotFound
	}
	if err != nil {
		return models.Widget{}, err
	}
	return toWidget(row), nil
}

func (r *WidgetRepository) ListByDashboard(ctx context.Context, tenantID, dashboardID string) ([]models.Widget, error) {
	var rows []*WidgetModel
	err := r.db.NewSelect().
		Model(&rows).
		Join("JOIN dashboards AS db ON db.id = wg.dashboard_id").
		Where("wg.dashboard_id = ? AND db.tenant_id = ?", dashboardID, tenantID).
		Order("wg.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Widget, 0, len(rows))
	for _, row := range rows {
		out = append(out, toWidget(row))
	}
	return out, nil
}

// LiveWidget pairs a live-mode widget with the tenant it belongs to, since
// ListLive spans every tenant.
type LiveWidget struct {
	TenantID string
	Widget   models.Widget
}

// ListLive returns every live-mode widget (auto_refresh_interval = -1)
// across all tenants, used to seed the live-poll supervisor on startup.
func (r *WidgetRepository) ListLive(ctx context.Context) ([]LiveWidget, error) {
	var rows []struct {
		TenantID string `bun:"tenant_id"`
		WidgetModel
	}
	err := r.db.NewSelect().
		ColumnExpr("wg.*").
		ColumnExpr("db.tenant_id AS tenant_id").
		TableExpr("widgets AS wg").
		Join("JOIN dashboards AS db ON db.id = wg.dashboard_id").
		Where("wg.auto_refresh_interval = -1").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]LiveWidget, 0, len(rows))
	for i := range rows {
		out = append(out, LiveWidget{TenantID: rows[i].TenantID, Widget: toWidget(&rows[i].WidgetModel)})
	}
	return out, nil
}

func (r *WidgetRepository) Update(ctx context.Context, tenantID, id string, overrides json.RawMessage, layout json.RawMessage, autoRefresh *int) (models.Widget, error) {
	existing, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return models.Widget{}, err
	}
	row := &WidgetModel{ID: existing.ID, DashboardID: existing.DashboardID, SourceWorkflowID: existing.SourceWorkflowID, SourceNodeID: existing.SourceNodeID}
	if overrides != nil {
		row.ConfigOverrides = RawJSON(overrides)
	} else {
		row.ConfigOverrides = RawJSON(existing.ConfigOverrides)
	}
	if layout != nil {
		row.Layout = RawJSON(layout)
	} else {
		row.Layout = RawJSON(existing.Layout)
	}
	if autoRefresh != nil {
		row.AutoRefreshInterval = autoRefresh
	} else {
		row.AutoRefreshInterval = existing.AutoRefreshInterval
	}
	if _, err := r.db.NewUpdate().Model(row).WherePK().Exec(ctx); err != nil {
		return models.Widget{}, err
	}
	return toWidget(row), nil
}

func (r *WidgetRepository) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := r.GetByID(ctx, tenantID, id); err != nil {
		return err
	}
	_, err := r.db.NewDelete().Model((*WidgetModel)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func toWidget(row *WidgetModel) models.Widget {
	return models.Widget{
		ID:                  row.ID,
		DashboardID:         row.DashboardID,
		SourceWorkflowID:    row.SourceWorkflowID,
		SourceNodeID:        row.SourceNodeID,
		Layout:              json.RawMessage(row.Layout),
		ConfigOverrides:     json.RawMessage(row.ConfigOverrides),
		AutoRefreshInterval: row.AutoRefreshInterval,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}
