package postgres

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/repository"
)

var requestColumns = []string{
	"id", "equipment_id", "owning_organization_id", "requesting_organization_id", "requester_id",
	"request_type", "start_date", "end_date", "urgency", "purpose", "notes", "status",
	"response_notes", "created_at", "updated_at",
}

type requestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) repository.RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *domain.EquipmentRequest) error {
	query := `INSERT INTO equipment_requests (id, equipment_id, owning_organization_id, requesting_organization_id, requester_id,
	          request_type, start_date, end_date, urgency, purpose, notes, status, response_notes, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	logger.DatabaseCall("insert", "equipment_requests", "id", req.ID)
	res, err := r.db.ExecContext(ctx, query, req.ID, req.EquipmentID, req.OwningOrganizationID, req.RequestingOrganizationID,
		req.RequesterID, req.RequestType, req.StartDate, req.EndDate, req.Urgency, req.Purpose, req.Notes, req.Status,
		req.ResponseNotes, req.CreatedAt, req.UpdatedAt)
	logger.DatabaseResult("insert", rowsAffected(res), err)
	return classify("insert request", "request", req.ID, err)
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.EquipmentRequest, error) {
	query, args, err := psql.Select(requestColumns...).From("equipment_requests").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	logger.DatabaseCall("select", query, "id", id)
	req, err := scanRequest(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, classify("select request", "request", id, err)
	}
	return req, nil
}

func (r *requestRepository) CompareAndSwap(ctx context.Context, req *domain.EquipmentRequest, expectedStatus domain.RequestStatus, expectedUpdatedAt time.Time) error {
	query := `UPDATE equipment_requests SET status=$1, response_notes=$2, updated_at=$3
	          WHERE id=$4 AND status=$5 AND updated_at=$6`
	logger.DatabaseCall("update", "equipment_requests", "id", req.ID, "expected_status", expectedStatus)
	res, err := r.db.ExecContext(ctx, query, req.Status, req.ResponseNotes, req.UpdatedAt, req.ID, expectedStatus, expectedUpdatedAt)
	n := rowsAffected(res)
	logger.DatabaseResult("update", n, err)
	if err != nil {
		return classify("update request", "request", req.ID, err)
	}
	if n == 0 {
		return &domain.ConflictError{Entity: "request", ID: req.ID}
	}
	return nil
}

func (r *requestRepository) List(ctx context.Context, f repository.RequestFilter) ([]domain.EquipmentRequest, error) {
	b := psql.Select(requestColumns...).From("equipment_requests").OrderBy("created_at DESC")
	if f.OrganizationID != "" {
		switch f.Role {
		case repository.RoleOwner:
			b = b.Where(sq.Eq{"owning_organization_id": f.OrganizationID})
		case repository.RoleRequester:
			b = b.Where(sq.Eq{"requesting_organization_id": f.OrganizationID})
		default:
			b = b.Where(sq.Or{
				sq.Eq{"owning_organization_id": f.OrganizationID},
				sq.Eq{"requesting_organization_id": f.OrganizationID},
			})
		}
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}
	if f.EquipmentID != "" {
		b = b.Where(sq.Eq{"equipment_id": f.EquipmentID})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	logger.DatabaseCall("select", query)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list requests", "request", "", err)
	}
	defer rows.Close()

	var out []domain.EquipmentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, classify("scan request", "request", "", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list requests", "request", "", err)
	}
	logger.DatabaseResult("select", int64(len(out)), nil)
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*domain.EquipmentRequest, error) {
	req := &domain.EquipmentRequest{}
	err := row.Scan(&req.ID, &req.EquipmentID, &req.OwningOrganizationID, &req.RequestingOrganizationID, &req.RequesterID,
		&req.RequestType, &req.StartDate, &req.EndDate, &req.Urgency, &req.Purpose, &req.Notes, &req.Status,
		&req.ResponseNotes, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.StartDate = domain.DateOf(req.StartDate)
	req.EndDate = domain.DateOf(req.EndDate)
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	return req, nil
}

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
