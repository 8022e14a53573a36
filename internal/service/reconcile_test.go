package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipshare-backend/internal/domain"
)

const (
	grace    = 15 * time.Minute
	lookback = 72 * time.Hour
)

func TestReconcilerCancelsOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stale := f.createRequest(t, borrowInput())
	staleOrphan := f.orphanTransfer(t, stale, scenarioNow)

	fresh := f.createRequest(t, borrowInput())
	freshOrphan := f.orphanTransfer(t, fresh, scenarioNow.Add(10*time.Minute))

	rejected := f.createRequest(t, borrowInput())
	rejectedOrphan := f.orphanTransfer(t, rejected, scenarioNow.Add(10*time.Minute))
	_, err := f.svc.Requests.Reject(ctx, alice, rejected.ID, "")
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	report, err := f.svc.Reconciler.Run(ctx, grace, lookback)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.OrphansCancelled)
	assert.Zero(t, report.Failures)
	assert.Equal(t, domain.TransferStatusCancelled, f.transfer(t, staleOrphan.ID).Status)
	assert.Equal(t, domain.TransferStatusScheduled, f.transfer(t, freshOrphan.ID).Status, "approval may still be in flight")
	assert.Equal(t, domain.TransferStatusCancelled, f.transfer(t, rejectedOrphan.ID).Status)

	assert.Equal(t, domain.RequestStatusPending, f.request(t, stale.ID).Status, "requests are not touched")
	assert.Equal(t, domain.RequestStatusRejected, f.request(t, rejected.ID).Status)

	// the stale request can still be approved afterwards
	_, err = f.svc.Requests.Approve(ctx, alice, stale.ID, "")
	require.NoError(t, err)
}

func TestReconcilerRepairsMissedReflection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req, tr := f.approvedRequest(t, borrowInput())

	// a pickup whose reflection never reached the request
	f.clock.Advance(time.Hour)
	next := *tr
	pickup := f.clock.Now()
	next.Status = domain.TransferStatusPickedUp
	next.PickupDate = &pickup
	next.UpdatedAt = pickup
	require.NoError(t, f.store.Transfers.CompareAndSwap(ctx, &next, tr.Status, tr.UpdatedAt))
	require.Equal(t, domain.RequestStatusApproved, f.request(t, req.ID).Status)

	report, err := f.svc.Reconciler.Run(ctx, grace, lookback)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RequestsRepaired)
	assert.Equal(t, domain.RequestStatusInTransit, f.request(t, req.ID).Status)

	// a second pass has nothing to do
	report, err = f.svc.Reconciler.Run(ctx, grace, lookback)
	require.NoError(t, err)
	assert.Zero(t, report.RequestsRepaired)
	assert.Zero(t, report.OrphansCancelled)
}

func TestReconcilerIgnoresSupersededTransfers(t *testing.T) {
	ctx := context.Background()
	hooks := &requestHooks{}
	f := newFixture(t, func(f *fixture, d *Dependencies) {
		hooks.RequestRepository = d.Requests
		d.Requests = hooks
	})
	req := f.createRequest(t, borrowInput())

	// first approval loses its request write and is compensated
	hooks.cas = func(ctx context.Context, r *domain.EquipmentRequest, status domain.RequestStatus, at time.Time) error {
		return &domain.ConflictError{Entity: "request", ID: r.ID}
	}
	_, err := f.svc.Requests.Approve(ctx, alice, req.ID, "")
	require.Error(t, err)
	hooks.cas = nil

	f.clock.Advance(time.Minute)
	_, err = f.svc.Requests.Approve(ctx, alice, req.ID, "")
	require.NoError(t, err)

	report, err := f.svc.Reconciler.Run(ctx, grace, lookback)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Zero(t, report.RequestsRepaired)
	assert.Equal(t, domain.RequestStatusApproved, f.request(t, req.ID).Status, "compensated transfer must not cancel the request")
}

func TestReconcilerLookback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.createRequest(t, borrowInput())
	orphan := f.orphanTransfer(t, req, scenarioNow)

	// settled transfers older than lookback are not rescanned
	_, settled := f.approvedRequest(t, borrowInput())
	_, err := f.svc.Transfers.Cancel(ctx, bob, settled.ID, "no longer needed")
	require.NoError(t, err)

	// an outage longer than lookback must not hide the orphan
	f.clock.Advance(lookback + time.Hour)
	report, err := f.svc.Reconciler.Run(ctx, grace, lookback)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.OrphansCancelled)
	assert.Equal(t, domain.TransferStatusCancelled, f.transfer(t, orphan.ID).Status)
}
