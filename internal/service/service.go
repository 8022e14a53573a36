package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"equipshare-backend/internal/authz"
	"equipshare-backend/internal/clock"
	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/events"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/repository"
)

// CreateRequestInput carries everything the requesting side supplies.
type CreateRequestInput struct {
	RequesterID              string
	EquipmentID              string
	OwningOrganizationID     string
	RequestingOrganizationID string
	RequestType              domain.RequestType
	StartDate                time.Time
	EndDate                  time.Time
	Purpose                  string
	Notes                    string
	Urgency                  domain.Urgency
}

type RequestService interface {
	Create(ctx context.Context, in CreateRequestInput) (*domain.EquipmentRequest, error)
	Approve(ctx context.Context, actorID, requestID, responseNotes string) (*domain.EquipmentRequest, error)
	Reject(ctx context.Context, actorID, requestID, responseNotes string) (*domain.EquipmentRequest, error)
	Cancel(ctx context.Context, actorID, requestID string) (*domain.EquipmentRequest, error)
	// Transition moves a request to target through the matching operation.
	// Derived statuses (in_transit, active, completed) are always refused.
	Transition(ctx context.Context, actorID, requestID string, target domain.RequestStatus, notes string) (*domain.EquipmentRequest, error)
	Get(ctx context.Context, actorID, requestID string) (*domain.EquipmentRequest, error)
	List(ctx context.Context, actorID string, filter repository.RequestFilter) ([]domain.EquipmentRequest, error)
}

type TransferService interface {
	MarkPickedUp(ctx context.Context, actorID, transferID, conditionNotes string) (*domain.EquipmentTransfer, error)
	MarkInTransit(ctx context.Context, actorID, transferID, trackingNumber string) (*domain.EquipmentTransfer, error)
	ConfirmDelivery(ctx context.Context, actorID, transferID string) (*domain.EquipmentTransfer, error)
	InitiateReturn(ctx context.Context, actorID, transferID, conditionNotes string) (*domain.EquipmentTransfer, error)
	Cancel(ctx context.Context, actorID, transferID, reason string) (*domain.EquipmentTransfer, error)
	Get(ctx context.Context, actorID, transferID string) (*domain.EquipmentTransfer, error)
	GetByRequest(ctx context.Context, actorID, requestID string) (*domain.EquipmentTransfer, error)
	List(ctx context.Context, actorID string, filter repository.TransferFilter) ([]domain.EquipmentTransfer, error)
	ListOverdue(ctx context.Context) ([]domain.EquipmentTransfer, error)
}

// TransitionRecorder receives one observation per lifecycle operation.
type TransitionRecorder interface {
	ObserveTransition(entity, action string, err error)
}

type noopRecorder struct{}

func (noopRecorder) ObserveTransition(string, string, error) {}

type Dependencies struct {
	Requests      repository.RequestRepository
	Transfers     repository.TransferRepository
	Equipment     repository.EquipmentRepository
	Organizations authz.OrganizationResolver
	Clock         clock.Clock
	Events        events.Emitter
	Metrics       TransitionRecorder
	Policy        CallPolicy
	NewID         func() string
}

type Services struct {
	Requests   RequestService
	Transfers  TransferService
	Reconciler *Reconciler
}

// New wires the request and transfer lifecycles to each other: approval
// creates transfers and transfer progress is reflected back onto requests.
func New(d Dependencies) *Services {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Metrics == nil {
		d.Metrics = noopRecorder{}
	}
	if d.Events == nil {
		d.Events = &events.Recorder{}
	}
	if d.Policy.Timeout <= 0 {
		d.Policy = DefaultCallPolicy()
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	guard := authz.NewGuard(d.Organizations)

	rs := &requestService{
		requests:  d.Requests,
		equipment: d.Equipment,
		guard:     guard,
		clock:     d.Clock,
		events:    d.Events,
		metrics:   d.Metrics,
		policy:    d.Policy,
		newID:     d.NewID,
	}
	ts := &transferService{
		transfers: d.Transfers,
		requests:  d.Requests,
		equipment: d.Equipment,
		guard:     guard,
		clock:     d.Clock,
		events:    d.Events,
		metrics:   d.Metrics,
		policy:    d.Policy,
		newID:     d.NewID,
	}
	rs.transfers = ts
	ts.reflector = rs

	return &Services{
		Requests:   rs,
		Transfers:  ts,
		Reconciler: &Reconciler{requests: rs, transfers: ts, clock: d.Clock},
	}
}

// track logs entry and exit of an operation and records its outcome.
func track[T any](rec TransitionRecorder, entity, action string, args []any, fn func() (T, error)) (T, error) {
	method := entity + "." + action
	logger.EnterMethod(method, args...)
	out, err := fn()
	rec.ObserveTransition(entity, action, err)
	if err != nil {
		logger.ExitMethodWithError(method, err)
		return out, err
	}
	logger.ExitMethod(method)
	return out, nil
}

// emit hands ev to the emitter once. The transition is already committed,
// so a sink failure is logged rather than returned.
func emit(ctx context.Context, emitter events.Emitter, newID func() string, ev domain.Event) {
	ev.ID = newID()
	if err := emitter.Emit(context.WithoutCancel(ctx), ev); err != nil {
		logEmitFailure(ev, err)
	}
}

func stamp(now time.Time) time.Time {
	return now.UTC().Truncate(time.Microsecond)
}
