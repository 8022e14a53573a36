package service

import (
	"context"

	"equipshare-backend/internal/authz"
	"equipshare-backend/internal/clock"
	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/events"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/repository"
)

const entityRequest = "request"

type requestService struct {
	requests  repository.RequestRepository
	equipment repository.EquipmentRepository
	transfers *transferService
	guard     *authz.Guard
	clock     clock.Clock
	events    events.Emitter
	metrics   TransitionRecorder
	policy    CallPolicy
	newID     func() string
}

func (s *requestService) Create(ctx context.Context, in CreateRequestInput) (*domain.EquipmentRequest, error) {
	return track(s.metrics, entityRequest, "create", []any{"requesterID", in.RequesterID, "equipmentID", in.EquipmentID},
		func() (*domain.EquipmentRequest, error) { return s.create(ctx, in) })
}

func (s *requestService) create(ctx context.Context, in CreateRequestInput) (*domain.EquipmentRequest, error) {
	now := s.clock.Now()
	req := &domain.EquipmentRequest{
		ID:                       s.newID(),
		EquipmentID:              in.EquipmentID,
		OwningOrganizationID:     in.OwningOrganizationID,
		RequestingOrganizationID: in.RequestingOrganizationID,
		RequesterID:              in.RequesterID,
		RequestType:              in.RequestType,
		Urgency:                  in.Urgency,
		Purpose:                  in.Purpose,
		Notes:                    in.Notes,
		Status:                   domain.RequestStatusPending,
		CreatedAt:                stamp(now),
		UpdatedAt:                stamp(now),
	}
	if req.Urgency == "" {
		req.Urgency = domain.UrgencyNormal
	}
	if !in.StartDate.IsZero() {
		req.StartDate = domain.DateOf(in.StartDate)
	}
	if !in.EndDate.IsZero() {
		req.EndDate = domain.DateOf(in.EndDate)
	}
	if err := req.Validate(now); err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, in.RequesterID, req, authz.ActionCreateRequest); err != nil {
		return nil, err
	}
	if err := s.checkOwnership(ctx, req); err != nil {
		return nil, err
	}

	if err := s.policy.do(ctx, "insert request", func(ctx context.Context) error {
		return s.requests.Create(ctx, req)
	}); err != nil {
		return nil, err
	}
	logger.Info("Equipment request created", "request_id", req.ID, "equipment_id", req.EquipmentID, "owning_org", req.OwningOrganizationID)
	emit(ctx, s.events, s.newID, domain.RequestEvent(domain.EventRequestCreated, req, in.RequesterID, now))
	return req, nil
}

// checkOwnership verifies the equipment exists and belongs to the owning
// organization named on the request.
func (s *requestService) checkOwnership(ctx context.Context, req *domain.EquipmentRequest) error {
	if s.equipment == nil {
		return nil
	}
	eq, err := get(ctx, s.policy, "select equipment", func(ctx context.Context) (*domain.Equipment, error) {
		return s.equipment.GetByID(ctx, req.EquipmentID)
	})
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.NewValidationError("equipment_id", "does not exist")
		}
		return err
	}
	if eq.OwningOrganizationID != req.OwningOrganizationID {
		return domain.NewValidationError("owning_organization_id", "does not own the equipment")
	}
	return nil
}

func (s *requestService) Approve(ctx context.Context, actorID, requestID, responseNotes string) (*domain.EquipmentRequest, error) {
	return track(s.metrics, entityRequest, "approve", []any{"actorID", actorID, "requestID", requestID},
		func() (*domain.EquipmentRequest, error) { return s.approve(ctx, actorID, requestID, responseNotes) })
}

// approve writes the transfer first and the request second. When the request
// write loses, a transfer created here is cancelled again unless a concurrent
// approval took it over. Anything undecided is left for the reconciler.
func (s *requestService) approve(ctx context.Context, actorID, requestID, notes string) (*domain.EquipmentRequest, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, actorID, req, authz.ActionApproveRequest); err != nil {
		return nil, err
	}
	if !req.Status.CanTransitionTo(domain.RequestStatusApproved) {
		return nil, invalidRequestTransition(req, req.Status, domain.RequestStatusApproved)
	}

	transfer, created, err := s.transfers.createFromRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	next := *req
	next.Status = domain.RequestStatusApproved
	next.ResponseNotes = notes
	next.UpdatedAt = domain.NextUpdatedAt(req.UpdatedAt, now)
	if err := s.swap(ctx, &next, req); err != nil {
		if created && s.abandoned(ctx, req.ID) {
			_ = s.transfers.compensate(ctx, transfer, "approval of request "+req.ID+" did not complete")
		}
		return nil, err
	}
	logger.Transition(entityRequest, req.ID, string(req.Status), string(next.Status), "actor_id", actorID, "transfer_id", transfer.ID)

	ev := domain.RequestEvent(domain.EventRequestApproved, &next, actorID, now)
	withNotes(ev, notes)
	emit(ctx, s.events, s.newID, ev)
	s.transfers.announceCreated(ctx, transfer, actorID, now)
	return &next, nil
}

// abandoned reports whether the request is known not to be approved. A
// winning approval reuses the scheduled transfer of the losing one.
func (s *requestService) abandoned(ctx context.Context, requestID string) bool {
	cur, err := s.load(ctx, requestID)
	return err == nil && cur.Status != domain.RequestStatusApproved
}

func (s *requestService) Reject(ctx context.Context, actorID, requestID, responseNotes string) (*domain.EquipmentRequest, error) {
	return track(s.metrics, entityRequest, "reject", []any{"actorID", actorID, "requestID", requestID},
		func() (*domain.EquipmentRequest, error) {
			return s.decide(ctx, actorID, requestID, authz.ActionRejectRequest, domain.RequestStatusRejected, domain.EventRequestRejected, responseNotes)
		})
}

func (s *requestService) Cancel(ctx context.Context, actorID, requestID string) (*domain.EquipmentRequest, error) {
	return track(s.metrics, entityRequest, "cancel", []any{"actorID", actorID, "requestID", requestID},
		func() (*domain.EquipmentRequest, error) {
			return s.decide(ctx, actorID, requestID, authz.ActionCancelRequest, domain.RequestStatusCancelled, domain.EventRequestCancelled, "")
		})
}

// decide applies a single-write transition out of pending.
func (s *requestService) decide(ctx context.Context, actorID, requestID string, action authz.Action, to domain.RequestStatus, typ domain.EventType, notes string) (*domain.EquipmentRequest, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, actorID, req, action); err != nil {
		return nil, err
	}
	if !req.Status.CanTransitionTo(to) {
		return nil, invalidRequestTransition(req, req.Status, to)
	}

	now := s.clock.Now()
	next := *req
	next.Status = to
	if notes != "" {
		next.ResponseNotes = notes
	}
	next.UpdatedAt = domain.NextUpdatedAt(req.UpdatedAt, now)
	if err := s.swap(ctx, &next, req); err != nil {
		return nil, err
	}
	logger.Transition(entityRequest, req.ID, string(req.Status), string(to), "actor_id", actorID)

	ev := domain.RequestEvent(typ, &next, actorID, now)
	withNotes(ev, notes)
	emit(ctx, s.events, s.newID, ev)
	return &next, nil
}

func (s *requestService) Transition(ctx context.Context, actorID, requestID string, target domain.RequestStatus, notes string) (*domain.EquipmentRequest, error) {
	switch target {
	case domain.RequestStatusApproved:
		return s.Approve(ctx, actorID, requestID, notes)
	case domain.RequestStatusRejected:
		return s.Reject(ctx, actorID, requestID, notes)
	case domain.RequestStatusCancelled:
		return s.Cancel(ctx, actorID, requestID)
	}
	return track(s.metrics, entityRequest, "transition", []any{"actorID", actorID, "requestID", requestID, "target", target},
		func() (*domain.EquipmentRequest, error) {
			if !target.Valid() {
				return nil, domain.NewValidationError("status", "unknown request status "+string(target))
			}
			req, err := s.load(ctx, requestID)
			if err != nil {
				return nil, err
			}
			if err := s.guard.Authorize(ctx, actorID, req, authz.ActionViewRequest); err != nil {
				return nil, err
			}
			// Derived statuses only follow the transfer.
			return nil, invalidRequestTransition(req, req.Status, target)
		})
}

// reflectTransferStatus moves the request to the status implied by its
// transfer. It is a no-op when the request already has that status.
func (s *requestService) reflectTransferStatus(ctx context.Context, t *domain.EquipmentTransfer) error {
	target, ok := domain.RequestStatusFor(t)
	if !ok {
		return nil
	}
	for attempt := 0; attempt < 2; attempt++ {
		req, err := s.load(ctx, t.RequestID)
		if err != nil {
			return err
		}
		if req.Status == target {
			return nil
		}
		if req.Status == domain.RequestStatusPending {
			// The transfer belongs to an approval that never completed.
			return nil
		}
		if !req.Status.CanReflectTo(target) {
			return invalidRequestTransition(req, req.Status, target)
		}

		now := s.clock.Now()
		next := *req
		next.Status = target
		next.UpdatedAt = domain.NextUpdatedAt(req.UpdatedAt, now)
		err = s.policy.do(ctx, "reflect request", func(ctx context.Context) error {
			return s.requests.CompareAndSwap(ctx, &next, req.Status, req.UpdatedAt)
		})
		if err == nil {
			logger.Transition(entityRequest, req.ID, string(req.Status), string(target), "transfer_id", t.ID, "transfer_status", t.Status)
			if target == domain.RequestStatusCancelled {
				ev := domain.RequestEvent(domain.EventRequestCancelled, &next, "", now)
				ev.Payload[domain.PayloadCause] = "transfer " + t.ID + " cancelled"
				emit(ctx, s.events, s.newID, ev)
			}
			return nil
		}
		if !domain.IsConflict(err) {
			return err
		}
	}
	return &domain.ConflictError{Entity: entityRequest, ID: t.RequestID}
}

func (s *requestService) Get(ctx context.Context, actorID, requestID string) (*domain.EquipmentRequest, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, actorID, req, authz.ActionViewRequest); err != nil {
		return nil, err
	}
	return req, nil
}

// List returns requests visible to the actor's organization. filter.Role
// narrows to requests where that organization owns or requests the equipment.
func (s *requestService) List(ctx context.Context, actorID string, filter repository.RequestFilter) ([]domain.EquipmentRequest, error) {
	orgID, err := s.guard.ResolveOrganization(ctx, actorID)
	if err != nil {
		return nil, err
	}
	filter.OrganizationID = orgID
	return get(ctx, s.policy, "list requests", func(ctx context.Context) ([]domain.EquipmentRequest, error) {
		return s.requests.List(ctx, filter)
	})
}

func (s *requestService) load(ctx context.Context, id string) (*domain.EquipmentRequest, error) {
	return get(ctx, s.policy, "select request", func(ctx context.Context) (*domain.EquipmentRequest, error) {
		return s.requests.GetByID(ctx, id)
	})
}

// swap writes next if prev is still current. A lost race is reported against
// the status that won it.
func (s *requestService) swap(ctx context.Context, next, prev *domain.EquipmentRequest) error {
	uncertain, err := s.policy.run(ctx, "update request", func(ctx context.Context) error {
		return s.requests.CompareAndSwap(ctx, next, prev.Status, prev.UpdatedAt)
	})
	if err == nil || !domain.IsConflict(err) {
		return err
	}
	cur, lerr := s.load(ctx, prev.ID)
	if lerr != nil {
		return err
	}
	if uncertain && cur.SameWrite(next) {
		// An earlier attempt committed before its response was lost.
		return nil
	}
	if cur.Status != prev.Status && !cur.Status.CanTransitionTo(next.Status) {
		return invalidRequestTransition(cur, cur.Status, next.Status)
	}
	return err
}

func invalidRequestTransition(req *domain.EquipmentRequest, from, to domain.RequestStatus) error {
	return &domain.InvalidTransitionError{Entity: entityRequest, ID: req.ID, From: string(from), To: string(to)}
}

func withNotes(ev domain.Event, notes string) {
	if notes != "" {
		ev.Payload[domain.PayloadNotes] = notes
	}
}
