package service

import (
	"context"
	"time"

	"equipshare-backend/internal/authz"
	"equipshare-backend/internal/clock"
	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/events"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/repository"
)

const entityTransfer = "transfer"

type transferService struct {
	transfers repository.TransferRepository
	requests  repository.RequestRepository
	equipment repository.EquipmentRepository
	reflector *requestService
	guard     *authz.Guard
	clock     clock.Clock
	events    events.Emitter
	metrics   TransitionRecorder
	policy    CallPolicy
	newID     func() string
}

// transferStep describes one externally triggered transfer transition.
type transferStep struct {
	action authz.Action
	to     domain.TransferStatus
	event  domain.EventType
	// check runs after the status check and before anything is written.
	check func(ctx context.Context, t *domain.EquipmentTransfer) error
	apply func(next *domain.EquipmentTransfer, now time.Time)
	// locate names the organization now holding the equipment, if it moved.
	locate  func(t *domain.EquipmentTransfer) string
	payload func(next *domain.EquipmentTransfer) map[string]string
}

// createFromRequest returns the scheduled transfer for an approval. A
// scheduled transfer left behind by an earlier, incomplete approval is reused
// instead of creating a second one; created reports whether a new row was
// written.
func (s *transferService) createFromRequest(ctx context.Context, req *domain.EquipmentRequest) (t *domain.EquipmentTransfer, created bool, err error) {
	existing, err := get(ctx, s.policy, "select active transfer", func(ctx context.Context) (*domain.EquipmentTransfer, error) {
		return s.transfers.GetActiveByRequest(ctx, req.ID)
	})
	switch {
	case err == nil && existing.Status == domain.TransferStatusScheduled:
		logger.Warn("Reusing scheduled transfer from an earlier approval", "request_id", req.ID, "transfer_id", existing.ID)
		return existing, false, nil
	case err == nil:
		return nil, false, &domain.ConflictError{Entity: entityTransfer, ID: existing.ID}
	case !domain.IsNotFound(err):
		return nil, false, err
	}

	now := stamp(s.clock.Now())
	t = &domain.EquipmentTransfer{
		ID:                 s.newID(),
		EquipmentID:        req.EquipmentID,
		RequestID:          req.ID,
		FromOrganizationID: req.OwningOrganizationID,
		ToOrganizationID:   req.RequestingOrganizationID,
		Status:             domain.TransferStatusScheduled,
		ScheduledDate:      req.StartDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.RequestType == domain.RequestTypeBorrow && !req.EndDate.IsZero() {
		end := req.EndDate
		t.ReturnScheduledDate = &end
	}
	if err := s.policy.do(ctx, "insert transfer", func(ctx context.Context) error {
		return s.transfers.Create(ctx, t)
	}); err != nil {
		return nil, false, err
	}
	logger.Info("Transfer scheduled", "transfer_id", t.ID, "request_id", req.ID, "scheduled_date", t.ScheduledDate.Format(time.DateOnly))
	return t, true, nil
}

// announceCreated runs once the approving write has committed.
func (s *transferService) announceCreated(ctx context.Context, t *domain.EquipmentTransfer, actorID string, now time.Time) {
	emit(ctx, s.events, s.newID, domain.TransferEvent(domain.EventTransferCreated, t, actorID, now))
	if err := s.reflector.reflectTransferStatus(ctx, t); err != nil {
		logger.Error("Failed to reflect transfer onto request", "transfer_id", t.ID, "request_id", t.RequestID, "error", err)
	}
}

// compensate cancels a scheduled transfer whose approval never completed.
// No TransferCancelled event is emitted since its creation was never
// announced.
func (s *transferService) compensate(ctx context.Context, t *domain.EquipmentTransfer, reason string) error {
	next := *t
	next.Status = domain.TransferStatusCancelled
	next.CancellationReason = reason
	next.UpdatedAt = domain.NextUpdatedAt(t.UpdatedAt, s.clock.Now())
	err := s.policy.do(ctx, "compensate transfer", func(ctx context.Context) error {
		return s.transfers.CompareAndSwap(ctx, &next, t.Status, t.UpdatedAt)
	})
	if err != nil {
		logger.Error("Failed to cancel orphaned transfer", "transfer_id", t.ID, "request_id", t.RequestID, "error", err)
		return err
	}
	logger.Transition(entityTransfer, t.ID, string(t.Status), string(next.Status), "reason", reason)
	return nil
}

func (s *transferService) MarkPickedUp(ctx context.Context, actorID, transferID, conditionNotes string) (*domain.EquipmentTransfer, error) {
	return s.run(ctx, "pickup", actorID, transferID, transferStep{
		action: authz.ActionPickUpTransfer,
		to:     domain.TransferStatusPickedUp,
		event:  domain.EventTransferPickedUp,
		check:  s.requireApprovedRequest,
		apply: func(next *domain.EquipmentTransfer, now time.Time) {
			next.PickupDate = &now
			next.ConditionOnPickup = conditionNotes
		},
		payload: func(next *domain.EquipmentTransfer) map[string]string {
			return map[string]string{domain.PayloadNotes: next.ConditionOnPickup}
		},
	})
}

func (s *transferService) MarkInTransit(ctx context.Context, actorID, transferID, trackingNumber string) (*domain.EquipmentTransfer, error) {
	return s.run(ctx, "in_transit", actorID, transferID, transferStep{
		action: authz.ActionMarkInTransit,
		to:     domain.TransferStatusInTransit,
		event:  domain.EventTransferInTransit,
		apply: func(next *domain.EquipmentTransfer, _ time.Time) {
			if trackingNumber != "" {
				next.TrackingNumber = trackingNumber
			}
		},
		payload: func(next *domain.EquipmentTransfer) map[string]string {
			return map[string]string{domain.PayloadTrackingNumber: next.TrackingNumber}
		},
	})
}

func (s *transferService) ConfirmDelivery(ctx context.Context, actorID, transferID string) (*domain.EquipmentTransfer, error) {
	return s.run(ctx, "deliver", actorID, transferID, transferStep{
		action: authz.ActionConfirmDelivery,
		to:     domain.TransferStatusDelivered,
		event:  domain.EventTransferDelivered,
		apply: func(next *domain.EquipmentTransfer, now time.Time) {
			next.DeliveryDate = &now
		},
		locate: func(t *domain.EquipmentTransfer) string { return t.ToOrganizationID },
	})
}

func (s *transferService) InitiateReturn(ctx context.Context, actorID, transferID, conditionNotes string) (*domain.EquipmentTransfer, error) {
	return s.run(ctx, "return", actorID, transferID, transferStep{
		action: authz.ActionInitiateReturn,
		to:     domain.TransferStatusReturned,
		event:  domain.EventTransferReturned,
		apply: func(next *domain.EquipmentTransfer, now time.Time) {
			next.ReturnDate = &now
			next.ConditionOnReturn = conditionNotes
		},
		locate: func(t *domain.EquipmentTransfer) string { return t.FromOrganizationID },
		payload: func(next *domain.EquipmentTransfer) map[string]string {
			return map[string]string{domain.PayloadNotes: next.ConditionOnReturn}
		},
	})
}

func (s *transferService) Cancel(ctx context.Context, actorID, transferID, reason string) (*domain.EquipmentTransfer, error) {
	return s.run(ctx, "cancel", actorID, transferID, transferStep{
		action: authz.ActionCancelTransfer,
		to:     domain.TransferStatusCancelled,
		event:  domain.EventTransferCancelled,
		apply: func(next *domain.EquipmentTransfer, _ time.Time) {
			next.CancellationReason = reason
		},
		payload: func(next *domain.EquipmentTransfer) map[string]string {
			return map[string]string{domain.PayloadReason: next.CancellationReason}
		},
	})
}

func (s *transferService) run(ctx context.Context, action, actorID, transferID string, step transferStep) (*domain.EquipmentTransfer, error) {
	return track(s.metrics, entityTransfer, action, []any{"actorID", actorID, "transferID", transferID},
		func() (*domain.EquipmentTransfer, error) { return s.apply(ctx, actorID, transferID, step) })
}

func (s *transferService) apply(ctx context.Context, actorID, transferID string, step transferStep) (*domain.EquipmentTransfer, error) {
	t, err := s.load(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, actorID, t, step.action); err != nil {
		return nil, err
	}
	if !t.CanTransitionTo(step.to) {
		return nil, invalidTransferTransition(t, t.Status, step.to)
	}
	if step.check != nil {
		if err := step.check(ctx, t); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	at := stamp(now)
	next := *t
	next.Status = step.to
	next.UpdatedAt = domain.NextUpdatedAt(t.UpdatedAt, now)
	step.apply(&next, at)
	if err := next.CheckMilestones(); err != nil {
		return nil, err
	}
	if err := s.swap(ctx, &next, t); err != nil {
		return nil, err
	}
	logger.Transition(entityTransfer, t.ID, string(t.Status), string(next.Status), "actor_id", actorID)

	if step.locate != nil {
		s.relocate(ctx, &next, step.locate(&next), at)
	}
	if err := s.reflector.reflectTransferStatus(ctx, &next); err != nil {
		logger.Error("Failed to reflect transfer onto request", "transfer_id", next.ID, "request_id", next.RequestID, "error", err)
	}

	ev := domain.TransferEvent(step.event, &next, actorID, now)
	if step.payload != nil {
		for k, v := range step.payload(&next) {
			if v != "" {
				ev.Payload[k] = v
			}
		}
	}
	emit(ctx, s.events, s.newID, ev)

	next.IsOverdue = next.OverdueAt(now)
	return &next, nil
}

// requireApprovedRequest keeps a transfer scheduled until its request has
// been approved.
func (s *transferService) requireApprovedRequest(ctx context.Context, t *domain.EquipmentTransfer) error {
	req, err := get(ctx, s.policy, "select request", func(ctx context.Context) (*domain.EquipmentRequest, error) {
		return s.requests.GetByID(ctx, t.RequestID)
	})
	if err != nil {
		return err
	}
	if req.Status != domain.RequestStatusApproved {
		return invalidTransferTransition(t, t.Status, domain.TransferStatusPickedUp)
	}
	return nil
}

// relocate records where the equipment now is. The transfer has already
// committed, so a failure here is logged and left for the reconciler.
func (s *transferService) relocate(ctx context.Context, t *domain.EquipmentTransfer, orgID string, at time.Time) {
	if s.equipment == nil || orgID == "" {
		return
	}
	err := s.policy.do(ctx, "update equipment location", func(ctx context.Context) error {
		return s.equipment.UpdateCurrentOrganization(ctx, t.EquipmentID, orgID, at)
	})
	if err != nil {
		logger.Error("Failed to update equipment location", "equipment_id", t.EquipmentID, "organization_id", orgID, "error", err)
		return
	}
	logger.Debug("Equipment relocated", "equipment_id", t.EquipmentID, "organization_id", orgID)
}

func (s *transferService) Get(ctx context.Context, actorID, transferID string) (*domain.EquipmentTransfer, error) {
	t, err := s.load(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, actorID, t, authz.ActionViewTransfer); err != nil {
		return nil, err
	}
	t.IsOverdue = t.OverdueAt(s.clock.Now())
	return t, nil
}

// GetByRequest returns the most recent transfer of a request.
func (s *transferService) GetByRequest(ctx context.Context, actorID, requestID string) (*domain.EquipmentTransfer, error) {
	req, err := s.reflector.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, actorID, req, authz.ActionViewRequest); err != nil {
		return nil, err
	}
	t, err := get(ctx, s.policy, "select transfer by request", func(ctx context.Context) (*domain.EquipmentTransfer, error) {
		return s.transfers.GetLatestByRequest(ctx, requestID)
	})
	if err != nil {
		return nil, err
	}
	t.IsOverdue = t.OverdueAt(s.clock.Now())
	return t, nil
}

func (s *transferService) List(ctx context.Context, actorID string, filter repository.TransferFilter) ([]domain.EquipmentTransfer, error) {
	orgID, err := s.guard.ResolveOrganization(ctx, actorID)
	if err != nil {
		return nil, err
	}
	filter.OrganizationID = orgID
	ts, err := get(ctx, s.policy, "list transfers", func(ctx context.Context) ([]domain.EquipmentTransfer, error) {
		return s.transfers.List(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	markOverdue(ts, s.clock.Now())
	return ts, nil
}

// ListOverdue is a system read for scheduled jobs; it performs no
// authorization.
func (s *transferService) ListOverdue(ctx context.Context) ([]domain.EquipmentTransfer, error) {
	now := s.clock.Now()
	ts, err := get(ctx, s.policy, "list overdue transfers", func(ctx context.Context) ([]domain.EquipmentTransfer, error) {
		return s.transfers.ListOverdue(ctx, domain.DateOf(now))
	})
	if err != nil {
		return nil, err
	}
	markOverdue(ts, now)
	return ts, nil
}

func (s *transferService) load(ctx context.Context, id string) (*domain.EquipmentTransfer, error) {
	return get(ctx, s.policy, "select transfer", func(ctx context.Context) (*domain.EquipmentTransfer, error) {
		return s.transfers.GetByID(ctx, id)
	})
}

func (s *transferService) swap(ctx context.Context, next, prev *domain.EquipmentTransfer) error {
	uncertain, err := s.policy.run(ctx, "update transfer", func(ctx context.Context) error {
		return s.transfers.CompareAndSwap(ctx, next, prev.Status, prev.UpdatedAt)
	})
	if err == nil || !domain.IsConflict(err) {
		return err
	}
	cur, lerr := s.load(ctx, prev.ID)
	if lerr != nil {
		return err
	}
	if uncertain && cur.SameWrite(next) {
		return nil
	}
	if cur.Status != prev.Status && !cur.CanTransitionTo(next.Status) {
		return invalidTransferTransition(cur, cur.Status, next.Status)
	}
	return err
}

func markOverdue(ts []domain.EquipmentTransfer, now time.Time) {
	for i := range ts {
		ts[i].IsOverdue = ts[i].OverdueAt(now)
	}
}

func invalidTransferTransition(t *domain.EquipmentTransfer, from, to domain.TransferStatus) error {
	return &domain.InvalidTransitionError{Entity: entityTransfer, ID: t.ID, From: string(from), To: string(to)}
}
