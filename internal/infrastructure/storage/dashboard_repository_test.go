package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizflow/vizflow/pkg/models"
)

func TestDashboardRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDashboardRepository(db)

	mock.ExpectExec(`INSERT INTO "dashboards"`).WillReturnResult(sqlmock.NewResult(1, 1))

	d, err := repo.Create(context.Background(), "t1", "sales overview")
	require.NoError(t, err)
	assert.Equal(t, "t1", d.TenantID)
	assert.Equal(t, "sales overview", d.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardRepository_GetByID_CrossTenantIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDashboardRepository(db)

	mock.ExpectQuery(`SELECT .* FROM "dashboards"`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "other-tenant", "d1")
	assert.ErrorIs(t, err, models.ErrDashboardNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardRepository_Update_RenamesExisting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDashboardRepository(db)

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "name", "created_at", "updated_at"}).
		AddRow("d1", "t1", "old name", time.Now(), time.Now())
	mock.ExpectQuery(`SELECT .* FROM "dashboards"`).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE "dashboards"`).WillReturnResult(sqlmock.NewResult(0, 1))

	d, err := repo.Update(context.Background(), "t1", "d1", "new name")
	require.NoError(t, err)
	assert.Equal(t, "new name", d.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardRepository_Delete_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDashboardRepository(db)

	mock.ExpectExec(`DELETE FROM "dashboards"`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, models.ErrDashboardNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
