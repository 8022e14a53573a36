package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/repository"
)

//go:embed schema.sql
var schema string

// psql builds Postgres-flavoured statements for the dynamic list queries.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Store struct {
	db *sql.DB
	repository.RequestRepository
	repository.TransferRepository
	repository.EquipmentRepository
	repository.OrganizationRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                     db,
		RequestRepository:      NewRequestRepository(db),
		TransferRepository:     NewTransferRepository(db),
		EquipmentRepository:    NewEquipmentRepository(db),
		OrganizationRepository: NewOrganizationRepository(db),
	}
}

// Migrate creates the sharing tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	logger.DatabaseCall("migrate", "schema.sql")
	_, err := db.ExecContext(ctx, schema)
	logger.DatabaseResult("migrate", 0, err)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
