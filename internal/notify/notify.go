// Package notify delivers lifecycle events to the people involved: email to
// an organization's contact and push messages to an organization's topic.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/repository"
)

// OrganizationDirectory looks up contact details for a recipient organization.
type OrganizationDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
}

type audience uint8

const (
	toOwner audience = 1 << iota
	toCounterparty
)

// audiences lists which party hears about each event. The actor's own
// organization already knows what it did, except for cancellations which
// either side may trigger.
var audiences = map[domain.EventType]audience{
	domain.EventRequestCreated:    toOwner,
	domain.EventRequestApproved:   toCounterparty,
	domain.EventRequestRejected:   toCounterparty,
	domain.EventRequestCancelled:  toOwner | toCounterparty,
	domain.EventTransferCreated:   toCounterparty,
	domain.EventTransferPickedUp:  toCounterparty,
	domain.EventTransferInTransit: toCounterparty,
	domain.EventTransferDelivered: toOwner,
	domain.EventTransferReturned:  toOwner,
	domain.EventTransferCancelled: toOwner | toCounterparty,
}

// Recipients returns the organization IDs an event should reach.
func Recipients(ev domain.Event) []string {
	a := audiences[ev.Type]
	var out []string
	if a&toOwner != 0 && ev.Payload[domain.PayloadOwnerOrgID] != "" {
		out = append(out, ev.Payload[domain.PayloadOwnerOrgID])
	}
	if a&toCounterparty != 0 && ev.Payload[domain.PayloadCounterpartyOrg] != "" {
		out = append(out, ev.Payload[domain.PayloadCounterpartyOrg])
	}
	return out
}

// deliverAll sends to every recipient. Failures stay retryable for the bus
// only while nothing has been delivered; after a partial delivery each
// transiently failed recipient is retried once here and the outcome is final,
// so no recipient receives a message twice.
func deliverAll(ctx context.Context, recipients []string, send func(ctx context.Context, orgID string) error) error {
	var errs []error
	var retry []string
	delivered := 0
	for _, orgID := range recipients {
		err := send(ctx, orgID)
		switch {
		case err == nil:
			delivered++
		case repository.IsTransient(err):
			retry = append(retry, orgID)
			errs = append(errs, err)
		default:
			errs = append(errs, err)
		}
	}
	if delivered == 0 || len(errs) == 0 {
		return errors.Join(errs...)
	}

	final := errs[:0]
	for _, err := range errs {
		if !repository.IsTransient(err) {
			final = append(final, err)
		}
	}
	for _, orgID := range retry {
		if err := send(ctx, orgID); err != nil {
			final = append(final, err)
		} else {
			delivered++
		}
	}
	if len(final) == 0 {
		return nil
	}
	return fmt.Errorf("delivered to %d of %d organizations: %v", delivered, len(recipients), errors.Join(final...))
}

// Message is the rendered text of an event.
type Message struct {
	Title string
	Body  string
}

var titles = map[domain.EventType]string{
	domain.EventRequestCreated:    "New equipment request",
	domain.EventRequestApproved:   "Equipment request approved",
	domain.EventRequestRejected:   "Equipment request rejected",
	domain.EventRequestCancelled:  "Equipment request cancelled",
	domain.EventTransferCreated:   "Transfer scheduled",
	domain.EventTransferPickedUp:  "Equipment picked up",
	domain.EventTransferInTransit: "Equipment in transit",
	domain.EventTransferDelivered: "Equipment delivered",
	domain.EventTransferReturned:  "Equipment returned",
	domain.EventTransferCancelled: "Transfer cancelled",
}

func Render(ev domain.Event) Message {
	title, ok := titles[ev.Type]
	if !ok {
		title = string(ev.Type)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s for equipment %s (request %s).", title, ev.Payload[domain.PayloadEquipmentID], ev.Payload[domain.PayloadRequestID])
	if v := ev.Payload[domain.PayloadTrackingNumber]; v != "" {
		fmt.Fprintf(&b, "\nTracking number: %s", v)
	}
	if v := ev.Payload[domain.PayloadNotes]; v != "" {
		fmt.Fprintf(&b, "\nNotes: %s", v)
	}
	if v := ev.Payload[domain.PayloadReason]; v != "" {
		fmt.Fprintf(&b, "\nReason: %s", v)
	}
	if v := ev.Payload[domain.PayloadCause]; v != "" {
		fmt.Fprintf(&b, "\nCause: %s", v)
	}
	return Message{Title: title, Body: b.String()}
}
