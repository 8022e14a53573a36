package domain

import "time"

type EventType string

const (
	EventRequestCreated    EventType = "RequestCreated"
	EventRequestApproved   EventType = "RequestApproved"
	EventRequestRejected   EventType = "RequestRejected"
	EventRequestCancelled  EventType = "RequestCancelled"
	EventTransferCreated   EventType = "TransferCreated"
	EventTransferPickedUp  EventType = "TransferPickedUp"
	EventTransferInTransit EventType = "TransferInTransit"
	EventTransferDelivered EventType = "TransferDelivered"
	EventTransferReturned  EventType = "TransferReturned"
	EventTransferCancelled EventType = "TransferCancelled"
)

// Event is a lifecycle change handed to the notification layer.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	EntityID   string            `json:"entity_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Payload    map[string]string `json:"payload"`
}

// Payload keys shared by producers and sinks.
const (
	PayloadEquipmentID     = "equipment_id"
	PayloadRequestID       = "request_id"
	PayloadOwnerOrgID      = "owner_organization_id"
	PayloadCounterpartyOrg = "counterparty_organization_id"
	PayloadStatus          = "status"
	PayloadActorID         = "actor_id"
	PayloadNotes           = "notes"
	PayloadTrackingNumber  = "tracking_number"
	PayloadReason          = "reason"
	PayloadCause           = "cause"
)

func RequestEvent(typ EventType, r *EquipmentRequest, actorID string, at time.Time) Event {
	return Event{
		Type:       typ,
		EntityID:   r.ID,
		OccurredAt: at,
		Payload: map[string]string{
			PayloadEquipmentID:     r.EquipmentID,
			PayloadRequestID:       r.ID,
			PayloadOwnerOrgID:      r.OwningOrganizationID,
			PayloadCounterpartyOrg: r.RequestingOrganizationID,
			PayloadStatus:          string(r.Status),
			PayloadActorID:         actorID,
		},
	}
}

func TransferEvent(typ EventType, t *EquipmentTransfer, actorID string, at time.Time) Event {
	return Event{
		Type:       typ,
		EntityID:   t.ID,
		OccurredAt: at,
		Payload: map[string]string{
			PayloadEquipmentID:     t.EquipmentID,
			PayloadRequestID:       t.RequestID,
			PayloadOwnerOrgID:      t.FromOrganizationID,
			PayloadCounterpartyOrg: t.ToOrganizationID,
			PayloadStatus:          string(t.Status),
			PayloadActorID:         actorID,
		},
	}
}
