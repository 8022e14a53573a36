package postgres

import (
	"context"
	"database/sql"
	"time"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/repository"
)

type equipmentRepository struct {
	db *sql.DB
}

func NewEquipmentRepository(db *sql.DB) repository.EquipmentRepository {
	return &equipmentRepository{db: db}
}

func (r *equipmentRepository) GetByID(ctx context.Context, id string) (*domain.Equipment, error) {
	eq := &domain.Equipment{}
	query := `SELECT id, name, owning_organization_id, current_organization_id, updated_at FROM equipment WHERE id = $1`
	logger.DatabaseCall("select", query, "id", id)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&eq.ID, &eq.Name, &eq.OwningOrganizationID, &eq.CurrentOrganizationID, &eq.UpdatedAt)
	if err != nil {
		return nil, classify("select equipment", "equipment", id, err)
	}
	return eq, nil
}

func (r *equipmentRepository) UpdateCurrentOrganization(ctx context.Context, equipmentID, organizationID string, at time.Time) error {
	query := `UPDATE equipment SET current_organization_id=$1, updated_at=$2 WHERE id=$3`
	logger.DatabaseCall("update", "equipment", "id", equipmentID, "current_organization_id", organizationID)
	res, err := r.db.ExecContext(ctx, query, organizationID, at, equipmentID)
	n := rowsAffected(res)
	logger.DatabaseResult("update", n, err)
	if err != nil {
		return classify("update equipment", "equipment", equipmentID, err)
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: "equipment", ID: equipmentID}
	}
	return nil
}
