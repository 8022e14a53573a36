package domain

import "time"

type RequestType string

const (
	RequestTypeBorrow   RequestType = "borrow"
	RequestTypeLease    RequestType = "lease"
	RequestTypePurchase RequestType = "purchase"
)

func (t RequestType) Valid() bool {
	switch t {
	case RequestTypeBorrow, RequestTypeLease, RequestTypePurchase:
		return true
	}
	return false
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
	RequestStatusActive    RequestStatus = "active"
	RequestStatusInTransit RequestStatus = "in_transit"
	RequestStatusCompleted RequestStatus = "completed"
)

// EquipmentRequest is a proposal by the requesting organization to use
// equipment held by the owning organization during [StartDate, EndDate].
type EquipmentRequest struct {
	ID                       string        `json:"id"`
	EquipmentID              string        `json:"equipment_id"`
	OwningOrganizationID     string        `json:"owning_organization_id"`
	RequestingOrganizationID string        `json:"requesting_organization_id"`
	RequesterID              string        `json:"requester_id"`
	RequestType              RequestType   `json:"request_type"`
	StartDate                time.Time     `json:"start_date"`
	EndDate                  time.Time     `json:"end_date"`
	Urgency                  Urgency       `json:"urgency"`
	Purpose                  string        `json:"purpose,omitempty"`
	Notes                    string        `json:"notes,omitempty"`
	Status                   RequestStatus `json:"status"`
	ResponseNotes            string        `json:"response_notes,omitempty"`
	CreatedAt                time.Time     `json:"created_at"`
	UpdatedAt                time.Time     `json:"updated_at"`
}

// OwnerOrgID and CounterpartyOrgID expose the two parties to the
// authorization guard.
func (r *EquipmentRequest) OwnerOrgID() string        { return r.OwningOrganizationID }
func (r *EquipmentRequest) CounterpartyOrgID() string { return r.RequestingOrganizationID }

func (r *EquipmentRequest) IsTerminal() bool {
	return r.Status.Terminal()
}

// SameWrite reports whether r holds exactly the mutable state of w.
func (r *EquipmentRequest) SameWrite(w *EquipmentRequest) bool {
	return r.Status == w.Status &&
		r.ResponseNotes == w.ResponseNotes &&
		r.UpdatedAt.Equal(w.UpdatedAt)
}

// Validate checks the invariants a request must hold when it is created.
// today is the creation date.
func (r *EquipmentRequest) Validate(today time.Time) error {
	if r.EquipmentID == "" {
		return NewValidationError("equipment_id", "is required")
	}
	if r.OwningOrganizationID == "" {
		return NewValidationError("owning_organization_id", "is required")
	}
	if r.RequestingOrganizationID == "" {
		return NewValidationError("requesting_organization_id", "is required")
	}
	if r.OwningOrganizationID == r.RequestingOrganizationID {
		return NewValidationError("requesting_organization_id", "must differ from the owning organization")
	}
	if !r.RequestType.Valid() {
		return NewValidationError("request_type", "must be one of borrow, lease, purchase")
	}
	if !r.Urgency.Valid() {
		return NewValidationError("urgency", "must be one of low, normal, high, critical")
	}
	if r.StartDate.IsZero() {
		return NewValidationError("start_date", "is required")
	}
	if r.EndDate.IsZero() {
		return NewValidationError("end_date", "is required")
	}
	if r.StartDate.After(r.EndDate) {
		return NewValidationError("end_date", "must not be before start_date")
	}
	if r.StartDate.Before(DateOf(today)) {
		return NewValidationError("start_date", "must not be in the past")
	}
	return nil
}
