package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/repository/postgres"
)

func TestOrganizationRepository_ResolveOrganization(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewOrganizationRepository(db)
	ctx := context.Background()

	t.Run("Member", func(t *testing.T) {
		mock.ExpectQuery("SELECT organization_id FROM organization_members WHERE actor_id = \\$1").
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-a"))

		orgID, err := repo.ResolveOrganization(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "org-a", orgID)
	})

	t.Run("Unknown actor", func(t *testing.T) {
		mock.ExpectQuery("SELECT organization_id FROM organization_members").
			WithArgs("mallory").
			WillReturnRows(sqlmock.NewRows([]string{"organization_id"}))

		_, err := repo.ResolveOrganization(ctx, "mallory")
		assert.True(t, domain.IsNotFound(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEquipmentRepository_UpdateCurrentOrganization(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewEquipmentRepository(db)
	ctx := context.Background()
	at := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE equipment SET current_organization_id=\\$1, updated_at=\\$2 WHERE id=\\$3").
			WithArgs("org-b", at, "eq-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.UpdateCurrentOrganization(ctx, "eq-1", "org-b", at))
	})

	t.Run("Unknown equipment", func(t *testing.T) {
		mock.ExpectExec("UPDATE equipment SET current_organization_id").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateCurrentOrganization(ctx, "eq-x", "org-b", at)
		assert.True(t, domain.IsNotFound(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	store := postgres.NewStore(db)
	assert.NoError(t, store.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
