package postgres_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/repository"
	"equipshare-backend/internal/repository/postgres"
)

var requestCols = []string{
	"id", "equipment_id", "owning_organization_id", "requesting_organization_id", "requester_id",
	"request_type", "start_date", "end_date", "urgency", "purpose", "notes", "status",
	"response_notes", "created_at", "updated_at",
}

func sampleRequest() *domain.EquipmentRequest {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return &domain.EquipmentRequest{
		ID:                       "req-1",
		EquipmentID:              "eq-1",
		OwningOrganizationID:     "org-a",
		RequestingOrganizationID: "org-b",
		RequesterID:              "bob",
		RequestType:              domain.RequestTypeBorrow,
		StartDate:                time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		EndDate:                  time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		Urgency:                  domain.UrgencyNormal,
		Purpose:                  "field survey",
		Status:                   domain.RequestStatusPending,
		CreatedAt:                created,
		UpdatedAt:                created,
	}
}

func requestRow(r *domain.EquipmentRequest) []driver.Value {
	return []driver.Value{r.ID, r.EquipmentID, r.OwningOrganizationID, r.RequestingOrganizationID, r.RequesterID,
		string(r.RequestType), r.StartDate, r.EndDate, string(r.Urgency), r.Purpose, r.Notes, string(r.Status),
		r.ResponseNotes, r.CreatedAt, r.UpdatedAt}
}

func TestRequestRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewRequestRepository(db)
	ctx := context.Background()
	req := sampleRequest()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO equipment_requests").
			WithArgs(req.ID, req.EquipmentID, req.OwningOrganizationID, req.RequestingOrganizationID, req.RequesterID,
				"borrow", req.StartDate, req.EndDate, "normal", req.Purpose, req.Notes, "pending", "",
				req.CreatedAt, req.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Create(ctx, req))
	})

	t.Run("Duplicate", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO equipment_requests").
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, req)
		assert.True(t, domain.IsConflict(err))
	})

	t.Run("Connection lost", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO equipment_requests").
			WillReturnError(&pq.Error{Code: "08006"})

		err := repo.Create(ctx, req)
		assert.True(t, repository.IsTransient(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewRequestRepository(db)
	ctx := context.Background()
	want := sampleRequest()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM equipment_requests WHERE id = \\$1").
			WithArgs("req-1").
			WillReturnRows(sqlmock.NewRows(requestCols).AddRow(requestRow(want)...))

		got, err := repo.GetByID(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM equipment_requests WHERE id = \\$1").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(requestCols))

		_, err := repo.GetByID(ctx, "missing")
		assert.True(t, domain.IsNotFound(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_CompareAndSwap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewRequestRepository(db)
	ctx := context.Background()
	prev := sampleRequest()
	next := *prev
	next.Status = domain.RequestStatusApproved
	next.ResponseNotes = "ok"
	next.UpdatedAt = prev.UpdatedAt.Add(time.Minute)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE equipment_requests SET status=\\$1").
			WithArgs("approved", "ok", next.UpdatedAt, prev.ID, "pending", prev.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.CompareAndSwap(ctx, &next, prev.Status, prev.UpdatedAt))
	})

	t.Run("Stale token", func(t *testing.T) {
		mock.ExpectExec("UPDATE equipment_requests SET status=\\$1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.CompareAndSwap(ctx, &next, prev.Status, prev.UpdatedAt)
		assert.True(t, domain.IsConflict(err))
	})

	t.Run("Bad connection", func(t *testing.T) {
		mock.ExpectExec("UPDATE equipment_requests SET status=\\$1").
			WillReturnError(sql.ErrConnDone)

		err := repo.CompareAndSwap(ctx, &next, prev.Status, prev.UpdatedAt)
		assert.True(t, repository.IsTransient(err))
	})

	t.Run("Other failure", func(t *testing.T) {
		mock.ExpectExec("UPDATE equipment_requests SET status=\\$1").
			WillReturnError(errors.New("syntax error"))

		err := repo.CompareAndSwap(ctx, &next, prev.Status, prev.UpdatedAt)
		assert.Error(t, err)
		assert.False(t, repository.IsTransient(err))
		assert.False(t, domain.IsConflict(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewRequestRepository(db)
	ctx := context.Background()
	req := sampleRequest()

	t.Run("Either side", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM equipment_requests WHERE \\(owning_organization_id = \\$1 OR requesting_organization_id = \\$2\\) AND status = \\$3 ORDER BY created_at DESC LIMIT 10").
			WithArgs("org-b", "org-b", "pending").
			WillReturnRows(sqlmock.NewRows(requestCols).AddRow(requestRow(req)...))

		got, err := repo.List(ctx, repository.RequestFilter{OrganizationID: "org-b", Status: domain.RequestStatusPending, Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "req-1", got[0].ID)
	})

	t.Run("Owner role", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM equipment_requests WHERE owning_organization_id = \\$1 ORDER BY created_at DESC").
			WithArgs("org-a").
			WillReturnRows(sqlmock.NewRows(requestCols))

		got, err := repo.List(ctx, repository.RequestFilter{OrganizationID: "org-a", Role: repository.RoleOwner})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
