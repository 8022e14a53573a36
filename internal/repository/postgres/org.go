package postgres

import (
	"context"
	"database/sql"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/repository"
)

type organizationRepository struct {
	db *sql.DB
}

func NewOrganizationRepository(db *sql.DB) repository.OrganizationRepository {
	return &organizationRepository{db: db}
}

func (r *organizationRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	o := &domain.Organization{}
	query := `SELECT id, name, contact_email, contact_name FROM organizations WHERE id = $1`
	logger.DatabaseCall("select", query, "id", id)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.Name, &o.ContactEmail, &o.ContactName)
	if err != nil {
		return nil, classify("select organization", "organization", id, err)
	}
	return o, nil
}

func (r *organizationRepository) ResolveOrganization(ctx context.Context, actorID string) (string, error) {
	var orgID string
	query := `SELECT organization_id FROM organization_members WHERE actor_id = $1`
	logger.DatabaseCall("select", query, "actor_id", actorID)
	if err := r.db.QueryRowContext(ctx, query, actorID).Scan(&orgID); err != nil {
		return "", classify("resolve organization", "member", actorID, err)
	}
	return orgID, nil
}
