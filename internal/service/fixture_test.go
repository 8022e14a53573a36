package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"equipshare-backend/internal/clock"
	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/events"
	"equipshare-backend/internal/repository"
	"equipshare-backend/internal/repository/memory"
)

const (
	ownerOrg     = "H1"
	requesterOrg = "H2"
	strangerOrg  = "H3"

	alice = "alice" // acts for H1
	bob   = "bob"   // acts for H2
	carol = "carol" // acts for H3
)

// scenarioNow is the day the borrow scenario starts from.
var scenarioNow = time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memory.Store
	clock  *clock.Fixed
	events *events.Recorder
	svc    *Services
}

// requestHooks lets a test intercept request writes.
type requestHooks struct {
	repository.RequestRepository
	cas func(ctx context.Context, req *domain.EquipmentRequest, status domain.RequestStatus, at time.Time) error
	get func(ctx context.Context, id string) (*domain.EquipmentRequest, error)
}

func (h *requestHooks) CompareAndSwap(ctx context.Context, req *domain.EquipmentRequest, status domain.RequestStatus, at time.Time) error {
	if h.cas != nil {
		return h.cas(ctx, req, status, at)
	}
	return h.RequestRepository.CompareAndSwap(ctx, req, status, at)
}

func (h *requestHooks) GetByID(ctx context.Context, id string) (*domain.EquipmentRequest, error) {
	if h.get != nil {
		return h.get(ctx, id)
	}
	return h.RequestRepository.GetByID(ctx, id)
}

type transferHooks struct {
	repository.TransferRepository
	cas func(ctx context.Context, t *domain.EquipmentTransfer, status domain.TransferStatus, at time.Time) error
}

func (h *transferHooks) CompareAndSwap(ctx context.Context, t *domain.EquipmentTransfer, status domain.TransferStatus, at time.Time) error {
	if h.cas != nil {
		return h.cas(ctx, t, status, at)
	}
	return h.TransferRepository.CompareAndSwap(ctx, t, status, at)
}

func newFixture(t *testing.T, wire ...func(f *fixture, d *Dependencies)) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.AddOrganization(domain.Organization{ID: ownerOrg, Name: "Harbor One", ContactEmail: "ops@h1.example"}, alice)
	store.AddOrganization(domain.Organization{ID: requesterOrg, Name: "Harbor Two", ContactEmail: "ops@h2.example"}, bob)
	store.AddOrganization(domain.Organization{ID: strangerOrg, Name: "Harbor Three"}, carol)
	store.AddEquipment(domain.Equipment{ID: "eq-1", Name: "Forklift", OwningOrganizationID: ownerOrg})

	f := &fixture{store: store, clock: clock.NewFixed(scenarioNow), events: &events.Recorder{}}
	var seq atomic.Int64
	d := Dependencies{
		Requests:      store.Requests,
		Transfers:     store.Transfers,
		Equipment:     store.Equipment,
		Organizations: store.Organizations,
		Clock:         f.clock,
		Events:        f.events,
		Policy:        CallPolicy{Timeout: time.Second, Retries: 1},
		NewID:         func() string { return fmt.Sprintf("id-%d", seq.Add(1)) },
	}
	for _, w := range wire {
		w(f, &d)
	}
	f.svc = New(d)
	return f
}

func borrowInput() CreateRequestInput {
	return CreateRequestInput{
		RequesterID:              bob,
		EquipmentID:              "eq-1",
		OwningOrganizationID:     ownerOrg,
		RequestingOrganizationID: requesterOrg,
		RequestType:              domain.RequestTypeBorrow,
		StartDate:                time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:                  time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Purpose:                  "dock repairs",
	}
}

func (f *fixture) createRequest(t *testing.T, in CreateRequestInput) *domain.EquipmentRequest {
	t.Helper()
	req, err := f.svc.Requests.Create(context.Background(), in)
	require.NoError(t, err)
	return req
}

func (f *fixture) approvedRequest(t *testing.T, in CreateRequestInput) (*domain.EquipmentRequest, *domain.EquipmentTransfer) {
	t.Helper()
	ctx := context.Background()
	req := f.createRequest(t, in)
	f.clock.Advance(time.Hour)
	req, err := f.svc.Requests.Approve(ctx, alice, req.ID, "")
	require.NoError(t, err)
	tr, err := f.svc.Transfers.GetByRequest(ctx, alice, req.ID)
	require.NoError(t, err)
	return req, tr
}

func (f *fixture) request(t *testing.T, id string) *domain.EquipmentRequest {
	t.Helper()
	req, err := f.store.Requests.GetByID(context.Background(), id)
	require.NoError(t, err)
	return req
}

func (f *fixture) transfer(t *testing.T, id string) *domain.EquipmentTransfer {
	t.Helper()
	tr, err := f.store.Transfers.GetByID(context.Background(), id)
	require.NoError(t, err)
	return tr
}

// orphanTransfer writes a scheduled transfer for req the way an approval
// that crashed between its two writes would leave it.
func (f *fixture) orphanTransfer(t *testing.T, req *domain.EquipmentRequest, created time.Time) *domain.EquipmentTransfer {
	t.Helper()
	end := req.EndDate
	tr := &domain.EquipmentTransfer{
		ID:                  "orphan-" + req.ID,
		EquipmentID:         req.EquipmentID,
		RequestID:           req.ID,
		FromOrganizationID:  req.OwningOrganizationID,
		ToOrganizationID:    req.RequestingOrganizationID,
		Status:              domain.TransferStatusScheduled,
		ScheduledDate:       req.StartDate,
		ReturnScheduledDate: &end,
		CreatedAt:           created,
		UpdatedAt:           created,
	}
	require.NoError(t, f.store.Transfers.Create(context.Background(), tr))
	return tr
}
