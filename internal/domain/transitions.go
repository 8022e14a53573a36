package domain

// StatusInfo is the presentation metadata for a status. Both the lifecycle
// services and any UI read it from the same table.
type StatusInfo struct {
	Label    string `json:"label"`
	Color    string `json:"color"`
	Terminal bool   `json:"terminal"`
}

var RequestStatuses = map[RequestStatus]StatusInfo{
	RequestStatusPending:   {Label: "Pending", Color: "yellow"},
	RequestStatusApproved:  {Label: "Approved", Color: "green"},
	RequestStatusRejected:  {Label: "Rejected", Color: "red", Terminal: true},
	RequestStatusCancelled: {Label: "Cancelled", Color: "gray", Terminal: true},
	RequestStatusInTransit: {Label: "In Transit", Color: "blue"},
	RequestStatusActive:    {Label: "Active", Color: "purple"},
	RequestStatusCompleted: {Label: "Completed", Color: "gray", Terminal: true},
}

var TransferStatuses = map[TransferStatus]StatusInfo{
	TransferStatusScheduled: {Label: "Scheduled", Color: "yellow"},
	TransferStatusPickedUp:  {Label: "Picked Up", Color: "blue"},
	TransferStatusInTransit: {Label: "In Transit", Color: "blue"},
	TransferStatusDelivered: {Label: "Delivered", Color: "green"},
	TransferStatusReturned:  {Label: "Returned", Color: "gray", Terminal: true},
	TransferStatusCancelled: {Label: "Cancelled", Color: "gray", Terminal: true},
}

// requestTransitions are the moves a caller may request directly.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending: {RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled},
}

// requestDerivedTransitions are only reachable by reflecting a transfer
// status. approved may jump straight to active/completed when a missed
// reflection is repaired.
var requestDerivedTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusApproved:  {RequestStatusInTransit, RequestStatusActive, RequestStatusCompleted, RequestStatusCancelled},
	RequestStatusInTransit: {RequestStatusActive, RequestStatusCompleted, RequestStatusCancelled},
	RequestStatusActive:    {RequestStatusCompleted},
}

var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferStatusScheduled: {TransferStatusPickedUp, TransferStatusCancelled},
	TransferStatusPickedUp:  {TransferStatusInTransit, TransferStatusCancelled},
	TransferStatusInTransit: {TransferStatusDelivered},
	TransferStatusDelivered: {TransferStatusReturned},
}

func (s RequestStatus) Valid() bool {
	_, ok := RequestStatuses[s]
	return ok
}

func (s RequestStatus) Terminal() bool {
	return RequestStatuses[s].Terminal
}

// Derived reports whether s can only be reached through a transfer.
func (s RequestStatus) Derived() bool {
	switch s {
	case RequestStatusInTransit, RequestStatusActive, RequestStatusCompleted:
		return true
	}
	return false
}

func (s RequestStatus) CanTransitionTo(to RequestStatus) bool {
	return contains(requestTransitions[s], to)
}

func (s RequestStatus) CanReflectTo(to RequestStatus) bool {
	return contains(requestDerivedTransitions[s], to)
}

func (s TransferStatus) Valid() bool {
	_, ok := TransferStatuses[s]
	return ok
}

// CanTransitionTo consults the transfer table; the delivered -> returned
// edge exists only when a return was scheduled.
func (t *EquipmentTransfer) CanTransitionTo(to TransferStatus) bool {
	if t.Status == TransferStatusDelivered && to == TransferStatusReturned && !t.HasReturnScheduled() {
		return false
	}
	return contains(transferTransitions[t.Status], to)
}

// RequestStatusFor maps a transfer's state onto the status its request must
// show. ok is false while the transfer is still scheduled.
func RequestStatusFor(t *EquipmentTransfer) (RequestStatus, bool) {
	switch t.Status {
	case TransferStatusPickedUp, TransferStatusInTransit:
		return RequestStatusInTransit, true
	case TransferStatusDelivered:
		if t.HasReturnScheduled() {
			return RequestStatusActive, true
		}
		return RequestStatusCompleted, true
	case TransferStatusReturned:
		return RequestStatusCompleted, true
	case TransferStatusCancelled:
		return RequestStatusCancelled, true
	}
	return "", false
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
