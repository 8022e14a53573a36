package domain

import "time"

type TransferStatus string

const (
	TransferStatusScheduled TransferStatus = "scheduled"
	TransferStatusPickedUp  TransferStatus = "picked_up"
	TransferStatusInTransit TransferStatus = "in_transit"
	TransferStatusDelivered TransferStatus = "delivered"
	TransferStatusReturned  TransferStatus = "returned"
	TransferStatusCancelled TransferStatus = "cancelled"
)

// EquipmentTransfer tracks the physical handoff of an approved request.
// From/To organizations are copied from the request at creation and never
// change afterwards.
type EquipmentTransfer struct {
	ID                  string         `json:"id"`
	EquipmentID         string         `json:"equipment_id"`
	RequestID           string         `json:"request_id"`
	FromOrganizationID  string         `json:"from_organization_id"`
	ToOrganizationID    string         `json:"to_organization_id"`
	Status              TransferStatus `json:"status"`
	ScheduledDate       time.Time      `json:"scheduled_date"`
	PickupDate          *time.Time     `json:"pickup_date,omitempty"`
	DeliveryDate        *time.Time     `json:"delivery_date,omitempty"`
	ReturnScheduledDate *time.Time     `json:"return_scheduled_date,omitempty"`
	ReturnDate          *time.Time     `json:"return_date,omitempty"`
	ConditionOnPickup   string         `json:"condition_on_pickup,omitempty"`
	ConditionOnReturn   string         `json:"condition_on_return,omitempty"`
	TrackingNumber      string         `json:"tracking_number,omitempty"`
	CancellationReason  string         `json:"cancellation_reason,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`

	// IsOverdue is computed at read time and never persisted.
	IsOverdue bool `json:"is_overdue"`
}

func (t *EquipmentTransfer) OwnerOrgID() string        { return t.FromOrganizationID }
func (t *EquipmentTransfer) CounterpartyOrgID() string { return t.ToOrganizationID }

// SameWrite reports whether t holds exactly the mutable state of w.
func (t *EquipmentTransfer) SameWrite(w *EquipmentTransfer) bool {
	return t.Status == w.Status &&
		t.ConditionOnPickup == w.ConditionOnPickup &&
		t.ConditionOnReturn == w.ConditionOnReturn &&
		t.TrackingNumber == w.TrackingNumber &&
		t.CancellationReason == w.CancellationReason &&
		sameInstant(t.PickupDate, w.PickupDate) &&
		sameInstant(t.DeliveryDate, w.DeliveryDate) &&
		sameInstant(t.ReturnDate, w.ReturnDate) &&
		t.UpdatedAt.Equal(w.UpdatedAt)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (t *EquipmentTransfer) HasReturnScheduled() bool {
	return t.ReturnScheduledDate != nil
}

// IsTerminal reports whether no further transition is possible. A delivered
// transfer is terminal when no return was scheduled.
func (t *EquipmentTransfer) IsTerminal() bool {
	switch t.Status {
	case TransferStatusReturned, TransferStatusCancelled:
		return true
	case TransferStatusDelivered:
		return !t.HasReturnScheduled()
	}
	return false
}

// OverdueAt reports whether the scheduled return date lies before the
// calendar day of now while the equipment is still out.
func (t *EquipmentTransfer) OverdueAt(now time.Time) bool {
	if t.Status != TransferStatusDelivered || t.ReturnScheduledDate == nil {
		return false
	}
	return DateOf(*t.ReturnScheduledDate).Before(DateOf(now))
}

// CheckMilestones enforces pickup <= delivery <= return for whichever dates
// are set.
func (t *EquipmentTransfer) CheckMilestones() error {
	if t.PickupDate != nil && t.DeliveryDate != nil && t.DeliveryDate.Before(*t.PickupDate) {
		return NewValidationError("delivery_date", "must not precede pickup_date")
	}
	if t.DeliveryDate != nil && t.ReturnDate != nil && t.ReturnDate.Before(*t.DeliveryDate) {
		return NewValidationError("return_date", "must not precede delivery_date")
	}
	if t.PickupDate != nil && t.ReturnDate != nil && t.ReturnDate.Before(*t.PickupDate) {
		return NewValidationError("return_date", "must not precede pickup_date")
	}
	return nil
}
