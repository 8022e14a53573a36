package http

import (
	"context"

	"github.com/stretchr/testify/mock"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/repository"
	"equipshare-backend/internal/service"
)

type MockRequestService struct {
	mock.Mock
}

func (m *MockRequestService) request(args mock.Arguments) (*domain.EquipmentRequest, error) {
	if r := args.Get(0); r != nil {
		return r.(*domain.EquipmentRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRequestService) Create(ctx context.Context, in service.CreateRequestInput) (*domain.EquipmentRequest, error) {
	return m.request(m.Called(ctx, in))
}

func (m *MockRequestService) Approve(ctx context.Context, actorID, requestID, notes string) (*domain.EquipmentRequest, error) {
	return m.request(m.Called(ctx, actorID, requestID, notes))
}

func (m *MockRequestService) Reject(ctx context.Context, actorID, requestID, notes string) (*domain.EquipmentRequest, error) {
	return m.request(m.Called(ctx, actorID, requestID, notes))
}

func (m *MockRequestService) Cancel(ctx context.Context, actorID, requestID string) (*domain.EquipmentRequest, error) {
	return m.request(m.Called(ctx, actorID, requestID))
}

func (m *MockRequestService) Transition(ctx context.Context, actorID, requestID string, target domain.RequestStatus, notes string) (*domain.EquipmentRequest, error) {
	return m.request(m.Called(ctx, actorID, requestID, target, notes))
}

func (m *MockRequestService) Get(ctx context.Context, actorID, requestID string) (*domain.EquipmentRequest, error) {
	return m.request(m.Called(ctx, actorID, requestID))
}

func (m *MockRequestService) List(ctx context.Context, actorID string, filter repository.RequestFilter) ([]domain.EquipmentRequest, error) {
	args := m.Called(ctx, actorID, filter)
	if r := args.Get(0); r != nil {
		return r.([]domain.EquipmentRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockTransferService struct {
	mock.Mock
}

func (m *MockTransferService) transfer(args mock.Arguments) (*domain.EquipmentTransfer, error) {
	if t := args.Get(0); t != nil {
		return t.(*domain.EquipmentTransfer), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransferService) MarkPickedUp(ctx context.Context, actorID, transferID, notes string) (*domain.EquipmentTransfer, error) {
	return m.transfer(m.Called(ctx, actorID, transferID, notes))
}

func (m *MockTransferService) MarkInTransit(ctx context.Context, actorID, transferID, tracking string) (*domain.EquipmentTransfer, error) {
	return m.transfer(m.Called(ctx, actorID, transferID, tracking))
}

func (m *MockTransferService) ConfirmDelivery(ctx context.Context, actorID, transferID string) (*domain.EquipmentTransfer, error) {
	return m.transfer(m.Called(ctx, actorID, transferID))
}

func (m *MockTransferService) InitiateReturn(ctx context.Context, actorID, transferID, notes string) (*domain.EquipmentTransfer, error) {
	return m.transfer(m.Called(ctx, actorID, transferID, notes))
}

func (m *MockTransferService) Cancel(ctx context.Context, actorID, transferID, reason string) (*domain.EquipmentTransfer, error) {
	return m.transfer(m.Called(ctx, actorID, transferID, reason))
}

func (m *MockTransferService) Get(ctx context.Context, actorID, transferID string) (*domain.EquipmentTransfer, error) {
	return m.transfer(m.Called(ctx, actorID, transferID))
}

func (m *MockTransferService) GetByRequest(ctx context.Context, actorID, requestID string) (*domain.EquipmentTransfer, error) {
	return m.transfer(m.Called(ctx, actorID, requestID))
}

func (m *MockTransferService) List(ctx context.Context, actorID string, filter repository.TransferFilter) ([]domain.EquipmentTransfer, error) {
	args := m.Called(ctx, actorID, filter)
	if r := args.Get(0); r != nil {
		return r.([]domain.EquipmentTransfer), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransferService) ListOverdue(ctx context.Context) ([]domain.EquipmentTransfer, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.([]domain.EquipmentTransfer), args.Error(1)
	}
	return nil, args.Error(1)
}
