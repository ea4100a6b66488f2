package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/vizflow/vizflow/internal/application/apikey"
	"github.com/vizflow/vizflow/pkg/models"
)

// APIKeyRepository implements apikey.Repository against the relational
// store.
type APIKeyRepository struct {
	db bun.IDB
}

// NewAPIKeyRepository constructs an APIKeyRepository.
func NewAPIKeyRepository(db bun.IDB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

func (r *APIKeyRepository) Create(ctx context.Context, key models.APIKey) error {
	row := &APIKeyModel{
		ID:              key.ID,
		TenantID:        key.TenantID,
		KeyHash:         key.KeyHash,
		ScopedWidgetIDs: StringArray(key.ScopedWidgetIDs),
		RateLimit:       key.RateLimit,
	}
	_, err := r.db.NewInsert().Model(row).Exec(ctx)
	return err
}

func (r *APIKeyRepository) FindByID(ctx context.Context, tenantID, id string) (models.APIKey, error) {
	row := &APIKeyModel{}
	err := r.db.NewSelect().Model(row).Where("id = ? AND tenant_id = ?", id, tenantID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.APIKey{}, models.ErrAPIKeyNotFound
	}
	if err != nil {
		return models.APIKey{}, err
	}
	return toAPIKey(row), nil
}

func (r *APIKeyRepository) FindByPrefix(ctx context.Context, prefix string) ([]models.APIKey, error) {
	var rows []*APIKeyModel
	if err := r.db.NewSelect().Model(&rows).Where("key_hash LIKE ?", prefix+":%").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]models.APIKey, 0, len(rows))
	for _, row := range rows {
		out = append(out, toAPIKey(row))
	}
	return out, nil
}

func (r *APIKeyRepository) ListByTenant(ctx context.Context, tenantID string) ([]models.APIKey, error) {
	var rows []*APIKeyModel
	if err := r.db.NewSelect().Model(&rows).Where("tenant_id = ?", tenantID).Order("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]models.APIKey, 0, len(rows))
	for _, row := range rows {
		out = append(out, toAPIKey(row))
	}
	return out, nil
}

func (r *APIKeyRepository) Revoke(ctx context.Context, tenantID, id string) error {
	now := time.Now()
	res, err := r.db.NewUpdate().
		Model((*APIKeyModel)(nil)).
		Set("revoked_at = ?", now).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrAPIKeyNotFound
	}
	return nil
}

func toAPIKey(row *APIKeyModel) models.APIKey {
	return models.APIKey{
		ID:              row.ID,
		TenantID:        row.TenantID,
		KeyHash:         row.KeyHash,
		ScopedWidgetIDs: []string(row.ScopedWidgetIDs),
		RateLimit:       row.RateLimit,
		RevokedAt:       row.RevokedAt,
		CreatedAt:       row.CreatedAt,
	}
}
