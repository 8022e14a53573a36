package authz

import (
	"context"
	"errors"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/logger"
)

type Action string

const (
	ActionCreateRequest   Action = "request:create"
	ActionViewRequest     Action = "request:view"
	ActionApproveRequest  Action = "request:approve"
	ActionRejectRequest   Action = "request:reject"
	ActionCancelRequest   Action = "request:cancel"
	ActionViewTransfer    Action = "transfer:view"
	ActionPickUpTransfer  Action = "transfer:pickup"
	ActionMarkInTransit   Action = "transfer:in_transit"
	ActionConfirmDelivery Action = "transfer:deliver"
	ActionInitiateReturn  Action = "transfer:return"
	ActionCancelTransfer  Action = "transfer:cancel"
)

// Party selects which side of an entity may act. For requests the owner is
// the owning organization and the counterparty the requesting one; for
// transfers they are the from and to organizations.
type Party uint8

const (
	PartyOwner Party = 1 << iota
	PartyCounterparty

	PartyEither = PartyOwner | PartyCounterparty
)

// capabilities is the single source of truth for who may do what.
var capabilities = map[Action]Party{
	ActionCreateRequest:   PartyCounterparty,
	ActionViewRequest:     PartyEither,
	ActionApproveRequest:  PartyOwner,
	ActionRejectRequest:   PartyOwner,
	ActionCancelRequest:   PartyCounterparty,
	ActionViewTransfer:    PartyEither,
	ActionPickUpTransfer:  PartyOwner,
	ActionMarkInTransit:   PartyEither,
	ActionConfirmDelivery: PartyCounterparty,
	ActionInitiateReturn:  PartyCounterparty,
	ActionCancelTransfer:  PartyEither,
}

// Entity is anything with an owner and a counterparty organization.
type Entity interface {
	OwnerOrgID() string
	CounterpartyOrgID() string
}

// OrganizationResolver maps an actor to the organization it acts for.
type OrganizationResolver interface {
	ResolveOrganization(ctx context.Context, actorID string) (string, error)
}

// Capability returns the party allowed to perform action.
func Capability(action Action) (Party, bool) {
	p, ok := capabilities[action]
	return p, ok
}

// CanPerform answers from the capability table alone. Unknown actions and
// empty organization ids are denied.
func CanPerform(actorOrgID string, entity Entity, action Action) bool {
	party, ok := capabilities[action]
	if !ok || actorOrgID == "" || entity == nil {
		return false
	}
	if party&PartyOwner != 0 && actorOrgID == entity.OwnerOrgID() {
		return true
	}
	if party&PartyCounterparty != 0 && actorOrgID == entity.CounterpartyOrgID() {
		return true
	}
	return false
}

type Guard struct {
	resolver OrganizationResolver
}

func NewGuard(resolver OrganizationResolver) *Guard {
	return &Guard{resolver: resolver}
}

func (g *Guard) CanPerform(actorOrgID string, entity Entity, action Action) bool {
	return CanPerform(actorOrgID, entity, action)
}

// Authorize resolves the actor's organization and checks the capability
// table. An actor without an organization is treated as unauthorized;
// other resolver failures are returned unchanged.
func (g *Guard) Authorize(ctx context.Context, actorID string, entity Entity, action Action) error {
	orgID, err := g.ResolveOrganization(ctx, actorID)
	if err != nil {
		return err
	}
	if !CanPerform(orgID, entity, action) {
		logger.Warn("Authorization denied", "actor_id", actorID, "organization_id", orgID, "action", action)
		return &domain.AuthorizationError{ActorID: actorID, Action: string(action)}
	}
	return nil
}

// ResolveOrganization returns the actor's organization, mapping an unknown
// actor to an AuthorizationError.
func (g *Guard) ResolveOrganization(ctx context.Context, actorID string) (string, error) {
	if actorID == "" {
		return "", &domain.AuthorizationError{Action: "act without identity"}
	}
	orgID, err := g.resolver.ResolveOrganization(ctx, actorID)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return "", &domain.AuthorizationError{ActorID: actorID, Action: "act without an organization"}
		}
		return "", err
	}
	return orgID, nil
}
