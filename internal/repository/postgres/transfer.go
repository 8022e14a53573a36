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

var transferColumns = []string{
	"id", "equipment_id", "request_id", "from_organization_id", "to_organization_id", "status",
	"scheduled_date", "pickup_date", "delivery_date", "return_scheduled_date", "return_date",
	"condition_on_pickup", "condition_on_return", "tracking_number", "cancellation_reason",
	"created_at", "updated_at",
}

// activeTransfer mirrors the predicate of the one-active-per-request index.
var activeTransfer = sq.Or{
	sq.Eq{"status": []string{
		string(domain.TransferStatusScheduled),
		string(domain.TransferStatusPickedUp),
		string(domain.TransferStatusInTransit),
	}},
	sq.And{
		sq.Eq{"status": string(domain.TransferStatusDelivered)},
		sq.NotEq{"return_scheduled_date": nil},
	},
}

type transferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) repository.TransferRepository {
	return &transferRepository{db: db}
}

func (r *transferRepository) Create(ctx context.Context, t *domain.EquipmentTransfer) error {
	query := `INSERT INTO equipment_transfers (id, equipment_id, request_id, from_organization_id, to_organization_id, status,
	          scheduled_date, return_scheduled_date, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	logger.DatabaseCall("insert", "equipment_transfers", "id", t.ID, "request_id", t.RequestID)
	res, err := r.db.ExecContext(ctx, query, t.ID, t.EquipmentID, t.RequestID, t.FromOrganizationID, t.ToOrganizationID,
		t.Status, t.ScheduledDate, t.ReturnScheduledDate, t.CreatedAt, t.UpdatedAt)
	logger.DatabaseResult("insert", rowsAffected(res), err)
	return classify("insert transfer", "transfer", t.ID, err)
}

func (r *transferRepository) GetByID(ctx context.Context, id string) (*domain.EquipmentTransfer, error) {
	return r.selectOne(ctx, id, sq.Eq{"id": id})
}

func (r *transferRepository) GetActiveByRequest(ctx context.Context, requestID string) (*domain.EquipmentTransfer, error) {
	return r.selectOne(ctx, "request:"+requestID, sq.And{sq.Eq{"request_id": requestID}, activeTransfer})
}

// latestOrder puts the newest transfer first. On equal created_at the
// non-terminal one wins, then the higher id.
var latestOrder = []string{
	"created_at DESC",
	"CASE WHEN status IN ('scheduled','picked_up','in_transit') OR (status = 'delivered' AND return_scheduled_date IS NOT NULL) THEN 0 ELSE 1 END",
	"id DESC",
}

func (r *transferRepository) GetLatestByRequest(ctx context.Context, requestID string) (*domain.EquipmentTransfer, error) {
	return r.selectOne(ctx, "request:"+requestID, sq.Eq{"request_id": requestID}, latestOrder...)
}

func (r *transferRepository) selectOne(ctx context.Context, id string, pred sq.Sqlizer, orderBy ...string) (*domain.EquipmentTransfer, error) {
	b := psql.Select(transferColumns...).From("equipment_transfers").Where(pred).OrderBy(orderBy...).Limit(1)
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	logger.DatabaseCall("select", query, "id", id)
	t, err := scanTransfer(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, classify("select transfer", "transfer", id, err)
	}
	return t, nil
}

func (r *transferRepository) CompareAndSwap(ctx context.Context, t *domain.EquipmentTransfer, expectedStatus domain.TransferStatus, expectedUpdatedAt time.Time) error {
	query := `UPDATE equipment_transfers SET status=$1, pickup_date=$2, delivery_date=$3, return_date=$4,
	          condition_on_pickup=$5, condition_on_return=$6, tracking_number=$7, cancellation_reason=$8, updated_at=$9
	          WHERE id=$10 AND status=$11 AND updated_at=$12`
	logger.DatabaseCall("update", "equipment_transfers", "id", t.ID, "expected_status", expectedStatus)
	res, err := r.db.ExecContext(ctx, query, t.Status, t.PickupDate, t.DeliveryDate, t.ReturnDate,
		t.ConditionOnPickup, t.ConditionOnReturn, t.TrackingNumber, t.CancellationReason, t.UpdatedAt,
		t.ID, expectedStatus, expectedUpdatedAt)
	n := rowsAffected(res)
	logger.DatabaseResult("update", n, err)
	if err != nil {
		return classify("update transfer", "transfer", t.ID, err)
	}
	if n == 0 {
		return &domain.ConflictError{Entity: "transfer", ID: t.ID}
	}
	return nil
}

func (r *transferRepository) List(ctx context.Context, f repository.TransferFilter) ([]domain.EquipmentTransfer, error) {
	b := psql.Select(transferColumns...).From("equipment_transfers").OrderBy("created_at DESC")
	if f.OrganizationID != "" {
		b = b.Where(sq.Or{
			sq.Eq{"from_organization_id": f.OrganizationID},
			sq.Eq{"to_organization_id": f.OrganizationID},
		})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}
	if f.RequestID != "" {
		b = b.Where(sq.Eq{"request_id": f.RequestID})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	return r.selectMany(ctx, b)
}

func (r *transferRepository) ListOverdue(ctx context.Context, today time.Time) ([]domain.EquipmentTransfer, error) {
	b := psql.Select(transferColumns...).From("equipment_transfers").
		Where(sq.Eq{"status": string(domain.TransferStatusDelivered)}).
		Where(sq.Lt{"return_scheduled_date": domain.DateOf(today)}).
		OrderBy("return_scheduled_date ASC")
	return r.selectMany(ctx, b)
}

func (r *transferRepository) ListReconcileCandidates(ctx context.Context, since time.Time) ([]domain.EquipmentTransfer, error) {
	b := psql.Select(transferColumns...).From("equipment_transfers").
		Where(sq.Or{
			sq.GtOrEq{"updated_at": since},
			sq.Eq{"status": string(domain.TransferStatusScheduled)},
		}).
		OrderBy("updated_at ASC")
	return r.selectMany(ctx, b)
}

func (r *transferRepository) selectMany(ctx context.Context, b sq.SelectBuilder) ([]domain.EquipmentTransfer, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	logger.DatabaseCall("select", query)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list transfers", "transfer", "", err)
	}
	defer rows.Close()

	var out []domain.EquipmentTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, classify("scan transfer", "transfer", "", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list transfers", "transfer", "", err)
	}
	logger.DatabaseResult("select", int64(len(out)), nil)
	return out, nil
}

func scanTransfer(row rowScanner) (*domain.EquipmentTransfer, error) {
	t := &domain.EquipmentTransfer{}
	err := row.Scan(&t.ID, &t.EquipmentID, &t.RequestID, &t.FromOrganizationID, &t.ToOrganizationID, &t.Status,
		&t.ScheduledDate, &t.PickupDate, &t.DeliveryDate, &t.ReturnScheduledDate, &t.ReturnDate,
		&t.ConditionOnPickup, &t.ConditionOnReturn, &t.TrackingNumber, &t.CancellationReason,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ScheduledDate = domain.DateOf(t.ScheduledDate)
	if t.ReturnScheduledDate != nil {
		d := domain.DateOf(*t.ReturnScheduledDate)
		t.ReturnScheduledDate = &d
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}
