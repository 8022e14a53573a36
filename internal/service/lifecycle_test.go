package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/repository"
)

func TestBorrowRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := f.createRequest(t, borrowInput())
	assert.Equal(t, domain.RequestStatusPending, req.Status)
	assert.Equal(t, domain.UrgencyNormal, req.Urgency)
	assert.Equal(t, bob, req.RequesterID)

	// owner approves; a scheduled transfer appears
	f.clock.Advance(time.Hour)
	req, err := f.svc.Requests.Approve(ctx, alice, req.ID, "take care of it")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusApproved, req.Status)
	assert.Equal(t, "take care of it", req.ResponseNotes)

	tr, err := f.svc.Transfers.GetByRequest(ctx, bob, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusScheduled, tr.Status)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), tr.ScheduledDate)
	require.NotNil(t, tr.ReturnScheduledDate)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), *tr.ReturnScheduledDate)
	assert.Equal(t, ownerOrg, tr.FromOrganizationID)
	assert.Equal(t, requesterOrg, tr.ToOrganizationID)
	assert.Equal(t, domain.RequestStatusApproved, f.request(t, req.ID).Status, "scheduled transfer leaves the request approved")

	// pickup drives the request to in_transit
	f.clock.Set(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	tr, err = f.svc.Transfers.MarkPickedUp(ctx, alice, tr.ID, "minor scratches")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusPickedUp, tr.Status)
	assert.Equal(t, "minor scratches", tr.ConditionOnPickup)
	assert.Equal(t, domain.RequestStatusInTransit, f.request(t, req.ID).Status)

	f.clock.Advance(time.Hour)
	tr, err = f.svc.Transfers.MarkInTransit(ctx, bob, tr.ID, "TRK-42")
	require.NoError(t, err)
	assert.Equal(t, "TRK-42", tr.TrackingNumber)
	assert.Equal(t, domain.RequestStatusInTransit, f.request(t, req.ID).Status)

	// delivery with a return scheduled makes the request active
	f.clock.Advance(3 * time.Hour)
	tr, err = f.svc.Transfers.ConfirmDelivery(ctx, bob, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusDelivered, tr.Status)
	assert.Equal(t, domain.RequestStatusActive, f.request(t, req.ID).Status)
	eq, _ := f.store.Equipment.GetByID(ctx, "eq-1")
	assert.Equal(t, requesterOrg, eq.CurrentOrganizationID)

	// the day after the scheduled return the transfer reads as overdue
	f.clock.Set(time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC))
	read, err := f.svc.Transfers.Get(ctx, alice, tr.ID)
	require.NoError(t, err)
	assert.True(t, read.IsOverdue)
	overdue, err := f.svc.Transfers.ListOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.True(t, overdue[0].IsOverdue)

	tr, err = f.svc.Transfers.InitiateReturn(ctx, bob, tr.ID, "cleaned")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusReturned, tr.Status)
	assert.False(t, tr.IsOverdue)
	assert.Equal(t, "cleaned", tr.ConditionOnReturn)
	assert.Equal(t, domain.RequestStatusCompleted, f.request(t, req.ID).Status)
	eq, _ = f.store.Equipment.GetByID(ctx, "eq-1")
	assert.Equal(t, ownerOrg, eq.CurrentOrganizationID)

	assert.False(t, tr.PickupDate.After(*tr.DeliveryDate))
	assert.False(t, tr.DeliveryDate.After(*tr.ReturnDate))
	assert.Equal(t, 1, f.store.TransferCount(req.ID))

	// a late cancel from the requester finds a terminal request
	_, err = f.svc.Requests.Cancel(ctx, bob, req.ID)
	assert.True(t, domain.IsInvalidTransition(err))
	_, err = f.svc.Transfers.Cancel(ctx, bob, tr.ID, "changed my mind")
	assert.True(t, domain.IsInvalidTransition(err))

	assert.Equal(t, []domain.EventType{
		domain.EventRequestCreated,
		domain.EventRequestApproved,
		domain.EventTransferCreated,
		domain.EventTransferPickedUp,
		domain.EventTransferInTransit,
		domain.EventTransferDelivered,
		domain.EventTransferReturned,
	}, f.events.Types())
}

func TestDeliveryWithoutReturnCompletesRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := borrowInput()
	in.RequestType = domain.RequestTypePurchase
	req, tr := f.approvedRequest(t, in)
	assert.Nil(t, tr.ReturnScheduledDate)

	f.clock.Set(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	_, err := f.svc.Transfers.MarkPickedUp(ctx, alice, tr.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Transfers.MarkInTransit(ctx, alice, tr.ID, "")
	require.NoError(t, err)
	tr, err = f.svc.Transfers.ConfirmDelivery(ctx, bob, tr.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RequestStatusCompleted, f.request(t, req.ID).Status)
	assert.True(t, tr.IsTerminal())

	_, err = f.svc.Transfers.InitiateReturn(ctx, bob, tr.ID, "")
	assert.True(t, domain.IsInvalidTransition(err))
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("Single day window", func(t *testing.T) {
		in := borrowInput()
		in.EndDate = in.StartDate
		_, err := f.svc.Requests.Create(ctx, in)
		assert.NoError(t, err)
	})

	t.Run("End before start", func(t *testing.T) {
		in := borrowInput()
		in.EndDate = in.StartDate.AddDate(0, 0, -1)
		_, err := f.svc.Requests.Create(ctx, in)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Same organization", func(t *testing.T) {
		in := borrowInput()
		in.OwningOrganizationID = requesterOrg
		_, err := f.svc.Requests.Create(ctx, in)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Equipment owned elsewhere", func(t *testing.T) {
		in := borrowInput()
		in.OwningOrganizationID = strangerOrg
		_, err := f.svc.Requests.Create(ctx, in)
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "owning_organization_id", ve.Field)
	})

	t.Run("Unknown equipment", func(t *testing.T) {
		in := borrowInput()
		in.EquipmentID = "eq-404"
		_, err := f.svc.Requests.Create(ctx, in)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Requester outside requesting organization", func(t *testing.T) {
		in := borrowInput()
		in.RequesterID = carol
		_, err := f.svc.Requests.Create(ctx, in)
		assert.True(t, domain.IsAuthorization(err))
	})

	list, err := f.svc.Requests.List(ctx, bob, repository.RequestFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1, "failed creates leave nothing behind")
}

func TestApproveAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.createRequest(t, borrowInput())

	_, err := f.svc.Requests.Approve(ctx, bob, req.ID, "")
	assert.True(t, domain.IsAuthorization(err))

	_, err = f.svc.Requests.Approve(ctx, alice, req.ID, "")
	require.NoError(t, err)

	// still an authorization failure once the request is no longer pending
	_, err = f.svc.Requests.Approve(ctx, bob, req.ID, "")
	assert.True(t, domain.IsAuthorization(err))

	_, err = f.svc.Requests.Get(ctx, carol, req.ID)
	assert.True(t, domain.IsAuthorization(err))
	_, err = f.svc.Transfers.GetByRequest(ctx, carol, req.ID)
	assert.True(t, domain.IsAuthorization(err))
}

func TestApproveTwiceCreatesOneTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req, _ := f.approvedRequest(t, borrowInput())
	before := f.request(t, req.ID)

	_, err := f.svc.Requests.Approve(ctx, alice, req.ID, "again")
	assert.True(t, domain.IsInvalidTransition(err))
	assert.Equal(t, 1, f.store.TransferCount(req.ID))
	assert.Equal(t, before, f.request(t, req.ID))
}

func TestRejectAndCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("Owner rejects", func(t *testing.T) {
		req := f.createRequest(t, borrowInput())
		_, err := f.svc.Requests.Reject(ctx, bob, req.ID, "")
		assert.True(t, domain.IsAuthorization(err))

		got, err := f.svc.Requests.Reject(ctx, alice, req.ID, "in use that week")
		require.NoError(t, err)
		assert.Equal(t, domain.RequestStatusRejected, got.Status)
		assert.Equal(t, "in use that week", got.ResponseNotes)

		_, err = f.svc.Requests.Cancel(ctx, bob, req.ID)
		assert.True(t, domain.IsInvalidTransition(err))
		assert.Zero(t, f.store.TransferCount(req.ID))
	})

	t.Run("Requester cancels", func(t *testing.T) {
		req := f.createRequest(t, borrowInput())
		_, err := f.svc.Requests.Cancel(ctx, alice, req.ID)
		assert.True(t, domain.IsAuthorization(err))

		got, err := f.svc.Requests.Cancel(ctx, bob, req.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RequestStatusCancelled, got.Status)

		_, err = f.svc.Requests.Approve(ctx, alice, req.ID, "")
		assert.True(t, domain.IsInvalidTransition(err))
	})

	t.Run("Approved request cannot be cancelled directly", func(t *testing.T) {
		req, _ := f.approvedRequest(t, borrowInput())
		_, err := f.svc.Requests.Cancel(ctx, bob, req.ID)
		assert.True(t, domain.IsInvalidTransition(err))
	})
}

func TestTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.createRequest(t, borrowInput())

	for _, target := range []domain.RequestStatus{domain.RequestStatusInTransit, domain.RequestStatusActive, domain.RequestStatusCompleted, domain.RequestStatusPending} {
		_, err := f.svc.Requests.Transition(ctx, alice, req.ID, target, "")
		assert.True(t, domain.IsInvalidTransition(err), target)
	}

	_, err := f.svc.Requests.Transition(ctx, alice, req.ID, "archived", "")
	assert.True(t, domain.IsValidation(err))

	_, err = f.svc.Requests.Transition(ctx, carol, req.ID, domain.RequestStatusCompleted, "")
	assert.True(t, domain.IsAuthorization(err))

	got, err := f.svc.Requests.Transition(ctx, alice, req.ID, domain.RequestStatusApproved, "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusApproved, got.Status)
	assert.Equal(t, 1, f.store.TransferCount(req.ID))
}

func TestTransferCancelPropagatesToRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req, tr := f.approvedRequest(t, borrowInput())

	_, err := f.svc.Transfers.Cancel(ctx, carol, tr.ID, "")
	assert.True(t, domain.IsAuthorization(err))

	got, err := f.svc.Transfers.Cancel(ctx, bob, tr.ID, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCancelled, got.Status)
	assert.Equal(t, "no longer needed", got.CancellationReason)
	assert.Equal(t, domain.RequestStatusCancelled, f.request(t, req.ID).Status)

	evs := f.events.Events()
	last := evs[len(evs)-2:]
	assert.Equal(t, domain.EventRequestCancelled, last[0].Type)
	assert.NotEmpty(t, last[0].Payload[domain.PayloadCause])
	assert.Equal(t, domain.EventTransferCancelled, last[1].Type)
	assert.Equal(t, "no longer needed", last[1].Payload[domain.PayloadReason])
}

func TestTransferRoles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, tr := f.approvedRequest(t, borrowInput())

	_, err := f.svc.Transfers.MarkPickedUp(ctx, bob, tr.ID, "")
	assert.True(t, domain.IsAuthorization(err), "only the lending side hands over")

	_, err = f.svc.Transfers.ConfirmDelivery(ctx, bob, tr.ID)
	assert.True(t, domain.IsInvalidTransition(err), "cannot deliver before pickup")

	_, err = f.svc.Transfers.MarkPickedUp(ctx, alice, tr.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Transfers.MarkInTransit(ctx, carol, tr.ID, "")
	assert.True(t, domain.IsAuthorization(err))
	_, err = f.svc.Transfers.MarkInTransit(ctx, alice, tr.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Transfers.ConfirmDelivery(ctx, alice, tr.ID)
	assert.True(t, domain.IsAuthorization(err))
	_, err = f.svc.Transfers.Cancel(ctx, alice, tr.ID, "")
	assert.True(t, domain.IsInvalidTransition(err), "in_transit cannot be cancelled")

	_, err = f.svc.Transfers.Get(ctx, carol, tr.ID)
	assert.True(t, domain.IsAuthorization(err))
	_, err = f.svc.Transfers.Get(ctx, alice, "missing")
	assert.True(t, domain.IsNotFound(err))
}

func TestTransferLists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.approvedRequest(t, borrowInput())

	mine, err := f.svc.Transfers.List(ctx, alice, repository.TransferFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.svc.Transfers.List(ctx, carol, repository.TransferFilter{})
	require.NoError(t, err)
	assert.Empty(t, theirs)

	owned, err := f.svc.Requests.List(ctx, alice, repository.RequestFilter{Role: repository.RoleOwner})
	require.NoError(t, err)
	assert.Len(t, owned, 1)
	requested, err := f.svc.Requests.List(ctx, alice, repository.RequestFilter{Role: repository.RoleRequester})
	require.NoError(t, err)
	assert.Empty(t, requested)

	_, err = f.svc.Requests.List(ctx, "nobody", repository.RequestFilter{})
	assert.True(t, domain.IsAuthorization(err))
}

// Every request in a derived status has a transfer whose status maps onto it.
func TestDerivedStatusHasMatchingTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, tr := f.approvedRequest(t, borrowInput())
	f.clock.Set(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	steps := []func() error{
		func() error { _, err := f.svc.Transfers.MarkPickedUp(ctx, alice, tr.ID, ""); return err },
		func() error { _, err := f.svc.Transfers.MarkInTransit(ctx, alice, tr.ID, ""); return err },
		func() error { _, err := f.svc.Transfers.ConfirmDelivery(ctx, bob, tr.ID); return err },
		func() error { _, err := f.svc.Transfers.InitiateReturn(ctx, bob, tr.ID, ""); return err },
	}
	for _, step := range steps {
		f.clock.Advance(time.Hour)
		require.NoError(t, step())

		reqs, err := f.svc.Requests.List(ctx, alice, repository.RequestFilter{})
		require.NoError(t, err)
		for _, r := range reqs {
			if !r.Status.Derived() {
				continue
			}
			latest, err := f.svc.Transfers.GetByRequest(ctx, alice, r.ID)
			require.NoError(t, err)
			want, ok := domain.RequestStatusFor(latest)
			require.True(t, ok)
			assert.Equal(t, want, r.Status)
		}
	}
}
