package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/repository"
)

const uniqueViolation = pq.ErrorCode("23505")

// classify turns driver errors into the repository/domain vocabulary.
func classify(op, entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Entity: entity, ID: id}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == uniqueViolation {
			return &domain.ConflictError{Entity: entity, ID: id}
		}
		if isTransientCode(pqErr.Code) {
			return &repository.TransientError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return &repository.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransientCode(code pq.ErrorCode) bool {
	switch code.Class() {
	case "08", "53": // connection exception, insufficient resources
		return true
	}
	switch code {
	case "40001", "40P01", "57P01", "57P03":
		return true
	}
	return false
}
