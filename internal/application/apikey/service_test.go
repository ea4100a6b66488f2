package apikey

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizflow/vizflow/pkg/models"
)

type memRepo struct {
	keys map[string]models.APIKey
}

func newMemRepo() *memRepo { return &memRepo{keys: map[string]models.APIKey{}} }

func (r *memRepo) Create(_ context.Context, key models.APIKey) error {
	r.keys[key.ID] = key
	return nil
}

func (r *memRepo) FindByID(_ context.Context, tenantID, id string) (models.APIKey, error) {
	k, ok := r.keys[id]
	if !ok || k.TenantID != tenantID {
		return models.APIKey{}, models.ErrAPIKeyNotFound
	}
	return k, nil
}

func (r *memRepo) FindByPrefix(_ context.Context, prefix string) ([]models.APIKey, error) {
	var out []models.APIKey
	for _, k := range r.keys {
		if len(k.KeyHash) >= len(prefix) && k.KeyHash[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *memRepo) ListByTenant(_ context.Context, tenantID string) ([]models.APIKey, error) {
	var out []models.APIKey
	for _, k := range r.keys {
		if k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *memRepo) Revoke(_ context.Context, tenantID, id string) error {
	k, ok := r.keys[id]
	if !ok || k.TenantID != tenantID {
		return models.ErrAPIKeyNotFound
	}
	now := k.CreatedAt
	k.RevokedAt = &now
	r.keys[id] = k
	return nil
}

func TestCreate_ReturnsPlainKeyOnceAndHashesAtRest(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo)

	result, err := svc.Create(context.Background(), "tenant-1", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.PlainKey)
	assert.NotContains(t, result.Key.KeyHash, result.PlainKey)

	stored := repo.keys[result.Key.ID]
	assert.NotEqual(t, result.PlainKey, stored.KeyHash)
}

func TestAuthenticate_RoundTripsPlainKey(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo)

	result, err := svc.Create(context.Background(), "tenant-1", nil, nil)
	require.NoError(t, err)

	authed, err := svc.Authenticate(context.Background(), result.PlainKey)
	require.NoError(t, err)
	assert.Equal(t, result.Key.ID, authed.ID)
}

func TestAuthenticate_RevokedKeyRejected(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo)

	result, err := svc.Create(context.Background(), "tenant-1", nil, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(context.Background(), "tenant-1", result.Key.ID))

	_, err = svc.Authenticate(context.Background(), result.PlainKey)
	assert.ErrorIs(t, err, models.ErrKeyRevoked)
}

func TestAuthenticate_UnknownKeyRejected(t *testing.T) {
	svc := New(newMemRepo())
	_, err := svc.Authenticate(context.Background(), "vzk_nonexistentkeyvalue")
	assert.ErrorIs(t, err, models.ErrAPIKeyNotFound)
}

func TestRevoke_CrossTenantIsNotFound(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo)

	result, err := svc.Create(context.Background(), "tenant-a", nil, nil)
	require.NoError(t, err)

	err = svc.Revoke(context.Background(), "tenant-b", result.Key.ID)
	assert.ErrorIs(t, err, models.ErrAPIKeyNotFound)
}
