package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/vizflow/vizflow/pkg/models"
)

func newMockDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return bun.NewDB(db, pgdialect.New()), mock
}

func TestWorkflowRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWorkflowRepository(db)

	mock.ExpectExec(`INSERT INTO "workflows"`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	wf, err := repo.Create(context.Background(), models.Workflow{TenantID: "t1", Name: "my workflow", Graph: models.Graph{}})
	require.NoError(t, err)
	assert.Equal(t, "t1", wf.TenantID)
	assert.Equal(t, 1, wf.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_GetByID_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWorkflowRepository(db)

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "name", "graph", "version", "created_at", "updated_at"}).
		AddRow("wf1", "t1", "my workflow", []byte(`{"nodes":[],"edges":[]}`), 1, time.Now(), time.Now())
	mock.ExpectQuery(`SELECT .* FROM "workflows"`).WillReturnRows(rows)

	wf, err := repo.GetByID(context.Background(), "t1", "wf1")
	require.NoError(t, err)
	assert.Equal(t, "wf1", wf.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWorkflowRepository(db)

	mock.ExpectQuery(`SELECT .* FROM "workflows"`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, models.ErrWorkflowNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_Delete_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWorkflowRepository(db)

	mock.ExpectExec(`DELETE FROM "workflows"`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, models.ErrWorkflowNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_Delete_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWorkflowRepository(db)

	mock.ExpectExec(`DELETE FROM "workflows"`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "t1", "wf1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
