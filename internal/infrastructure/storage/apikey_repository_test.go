package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizflow/vizflow/pkg/models"
)

func TestAPIKeyRepository_FindByPrefix_MatchesHashPrefix(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPIKeyRepository(db)

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "key_hash", "scoped_widget_ids", "rate_limit", "revoked_at", "created_at"}).
		AddRow("k1", "t1", "vzk_abc123:$2a$hash", "{}", nil, nil, time.Now())
	mock.ExpectQuery(`SELECT .* FROM "api_keys"`).WillReturnRows(rows)

	keys, err := repo.FindByPrefix(context.Background(), "vzk_abc123")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "vzk_abc123:$2a$hash", keys[0].KeyHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_Revoke_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPIKeyRepository(db)

	mock.ExpectExec(`UPDATE "api_keys"`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Revoke(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, models.ErrAPIKeyNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepository_Revoke_CrossTenantIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPIKeyRepository(db)

	mock.ExpectExec(`UPDATE "api_keys"`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Revoke(context.Background(), "other-tenant", "k1")
	assert.ErrorIs(t, err, models.ErrAPIKeyNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
