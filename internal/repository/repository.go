package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"equipshare-backend/internal/domain"
)

// RequestFilter narrows request listings. OrganizationID is required for
// actor-facing listings; Role selects which side of the request it must be on.
type RequestFilter struct {
	OrganizationID string
	Role           string // "owner", "requester" or "" for either
	Status         domain.RequestStatus
	EquipmentID    string
	Limit          int
	Offset         int
}

type TransferFilter struct {
	OrganizationID string
	Status         domain.TransferStatus
	RequestID      string
	Limit          int
	Offset         int
}

const (
	RoleOwner     = "owner"
	RoleRequester = "requester"
)

// RequestRepository persists equipment requests. CompareAndSwap writes the
// mutable columns only if status and updated_at still hold the expected
// values and returns *domain.ConflictError otherwise.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.EquipmentRequest) error
	GetByID(ctx context.Context, id string) (*domain.EquipmentRequest, error)
	CompareAndSwap(ctx context.Context, req *domain.EquipmentRequest, expectedStatus domain.RequestStatus, expectedUpdatedAt time.Time) error
	List(ctx context.Context, filter RequestFilter) ([]domain.EquipmentRequest, error)
}

// TransferRepository persists transfers. Create fails with
// *domain.ConflictError when the request already has a non-terminal transfer.
type TransferRepository interface {
	Create(ctx context.Context, t *domain.EquipmentTransfer) error
	GetByID(ctx context.Context, id string) (*domain.EquipmentTransfer, error)
	GetActiveByRequest(ctx context.Context, requestID string) (*domain.EquipmentTransfer, error)
	GetLatestByRequest(ctx context.Context, requestID string) (*domain.EquipmentTransfer, error)
	CompareAndSwap(ctx context.Context, t *domain.EquipmentTransfer, expectedStatus domain.TransferStatus, expectedUpdatedAt time.Time) error
	List(ctx context.Context, filter TransferFilter) ([]domain.EquipmentTransfer, error)
	ListOverdue(ctx context.Context, today time.Time) ([]domain.EquipmentTransfer, error)
	// ListReconcileCandidates returns transfers updated at or after since
	// plus every scheduled transfer regardless of age.
	ListReconcileCandidates(ctx context.Context, since time.Time) ([]domain.EquipmentTransfer, error)
}

// EquipmentRepository exposes the only write the sharing workflow makes to
// the equipment record: where it currently is.
type EquipmentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Equipment, error)
	UpdateCurrentOrganization(ctx context.Context, equipmentID, organizationID string, at time.Time) error
}

type OrganizationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	ResolveOrganization(ctx context.Context, actorID string) (string, error)
}

// TransientError marks a store failure worth one retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
