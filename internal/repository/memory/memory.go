// Package memory is a process-local implementation of the repository
// interfaces with the same compare-and-swap semantics as the Postgres store.
// It backs the dev profile (store.driver: memory) and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/repository"
)

type Store struct {
	mu            sync.RWMutex
	requests      map[string]domain.EquipmentRequest
	transfers     map[string]domain.EquipmentTransfer
	equipment     map[string]domain.Equipment
	organizations map[string]domain.Organization
	members       map[string]string // actor id -> organization id

	Requests      repository.RequestRepository
	Transfers     repository.TransferRepository
	Equipment     repository.EquipmentRepository
	Organizations repository.OrganizationRepository
}

func NewStore() *Store {
	s := &Store{
		requests:      make(map[string]domain.EquipmentRequest),
		transfers:     make(map[string]domain.EquipmentTransfer),
		equipment:     make(map[string]domain.Equipment),
		organizations: make(map[string]domain.Organization),
		members:       make(map[string]string),
	}
	s.Requests = &requestRepo{s}
	s.Transfers = &transferRepo{s}
	s.Equipment = &equipmentRepo{s}
	s.Organizations = &organizationRepo{s}
	return s
}

// AddOrganization registers an organization and the actors acting for it.
func (s *Store) AddOrganization(org domain.Organization, actorIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organizations[org.ID] = org
	for _, id := range actorIDs {
		s.members[id] = org.ID
	}
}

func (s *Store) AddEquipment(eq domain.Equipment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if eq.CurrentOrganizationID == "" {
		eq.CurrentOrganizationID = eq.OwningOrganizationID
	}
	s.equipment[eq.ID] = eq
}

// TransferCount returns how many transfers were ever written for requestID.
func (s *Store) TransferCount(requestID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.transfers {
		if t.RequestID == requestID {
			n++
		}
	}
	return n
}

type requestRepo struct{ s *Store }

func (r *requestRepo) Create(ctx context.Context, req *domain.EquipmentRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.requests[req.ID]; ok {
		return &domain.ConflictError{Entity: "request", ID: req.ID}
	}
	r.s.requests[req.ID] = *req
	return nil
}

func (r *requestRepo) GetByID(ctx context.Context, id string) (*domain.EquipmentRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "request", ID: id}
	}
	return &req, nil
}

func (r *requestRepo) CompareAndSwap(ctx context.Context, req *domain.EquipmentRequest, expectedStatus domain.RequestStatus, expectedUpdatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.requests[req.ID]
	if !ok {
		return &domain.NotFoundError{Entity: "request", ID: req.ID}
	}
	if cur.Status != expectedStatus || !cur.UpdatedAt.Equal(expectedUpdatedAt) {
		return &domain.ConflictError{Entity: "request", ID: req.ID}
	}
	cur.Status = req.Status
	cur.ResponseNotes = req.ResponseNotes
	cur.UpdatedAt = req.UpdatedAt
	r.s.requests[req.ID] = cur
	return nil
}

func (r *requestRepo) List(ctx context.Context, f repository.RequestFilter) ([]domain.EquipmentRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.EquipmentRequest
	for _, req := range r.s.requests {
		if !matchRequest(req, f) {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset), nil
}

func matchRequest(req domain.EquipmentRequest, f repository.RequestFilter) bool {
	if f.OrganizationID != "" {
		isOwner := req.OwningOrganizationID == f.OrganizationID
		isRequester := req.RequestingOrganizationID == f.OrganizationID
		switch f.Role {
		case repository.RoleOwner:
			if !isOwner {
				return false
			}
		case repository.RoleRequester:
			if !isRequester {
				return false
			}
		default:
			if !isOwner && !isRequester {
				return false
			}
		}
	}
	if f.Status != "" && req.Status != f.Status {
		return false
	}
	if f.EquipmentID != "" && req.EquipmentID != f.EquipmentID {
		return false
	}
	return true
}

type transferRepo struct{ s *Store }

func (r *transferRepo) Create(ctx context.Context, t *domain.EquipmentTransfer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.transfers[t.ID]; ok {
		return &domain.ConflictError{Entity: "transfer", ID: t.ID}
	}
	for _, existing := range r.s.transfers {
		if existing.RequestID == t.RequestID && !existing.IsTerminal() {
			return &domain.ConflictError{Entity: "transfer", ID: t.ID}
		}
	}
	r.s.transfers[t.ID] = cloneTransfer(*t)
	return nil
}

func (r *transferRepo) GetByID(ctx context.Context, id string) (*domain.EquipmentTransfer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.transfers[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "transfer", ID: id}
	}
	out := cloneTransfer(t)
	return &out, nil
}

func (r *transferRepo) GetActiveByRequest(ctx context.Context, requestID string) (*domain.EquipmentTransfer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.transfers {
		if t.RequestID == requestID && !t.IsTerminal() {
			out := cloneTransfer(t)
			return &out, nil
		}
	}
	return nil, &domain.NotFoundError{Entity: "transfer", ID: "request:" + requestID}
}

func (r *transferRepo) GetLatestByRequest(ctx context.Context, requestID string) (*domain.EquipmentTransfer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var latest *domain.EquipmentTransfer
	for _, t := range r.s.transfers {
		if t.RequestID != requestID {
			continue
		}
		if latestBefore(latest, &t) {
			c := cloneTransfer(t)
			latest = &c
		}
	}
	if latest == nil {
		return nil, &domain.NotFoundError{Entity: "transfer", ID: "request:" + requestID}
	}
	return latest, nil
}

// latestBefore reports whether t sorts ahead of cur: newer first, then
// non-terminal, then higher id.
func latestBefore(cur, t *domain.EquipmentTransfer) bool {
	switch {
	case cur == nil || t.CreatedAt.After(cur.CreatedAt):
		return true
	case !t.CreatedAt.Equal(cur.CreatedAt):
		return false
	case cur.IsTerminal() != t.IsTerminal():
		return cur.IsTerminal()
	}
	return t.ID > cur.ID
}

func (r *transferRepo) CompareAndSwap(ctx context.Context, t *domain.EquipmentTransfer, expectedStatus domain.TransferStatus, expectedUpdatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.transfers[t.ID]
	if !ok {
		return &domain.NotFoundError{Entity: "transfer", ID: t.ID}
	}
	if cur.Status != expectedStatus || !cur.UpdatedAt.Equal(expectedUpdatedAt) {
		return &domain.ConflictError{Entity: "transfer", ID: t.ID}
	}
	next := cloneTransfer(*t)
	// identity and parties are immutable
	next.EquipmentID = cur.EquipmentID
	next.RequestID = cur.RequestID
	next.FromOrganizationID = cur.FromOrganizationID
	next.ToOrganizationID = cur.ToOrganizationID
	next.CreatedAt = cur.CreatedAt
	next.IsOverdue = false
	r.s.transfers[t.ID] = next
	return nil
}

func (r *transferRepo) List(ctx context.Context, f repository.TransferFilter) ([]domain.EquipmentTransfer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.EquipmentTransfer
	for _, t := range r.s.transfers {
		if f.OrganizationID != "" && t.FromOrganizationID != f.OrganizationID && t.ToOrganizationID != f.OrganizationID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.RequestID != "" && t.RequestID != f.RequestID {
			continue
		}
		out = append(out, cloneTransfer(t))
	}
	sortTransfers(out)
	return page(out, f.Limit, f.Offset), nil
}

func (r *transferRepo) ListOverdue(ctx context.Context, today time.Time) ([]domain.EquipmentTransfer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.EquipmentTransfer
	for _, t := range r.s.transfers {
		if t.OverdueAt(today) {
			out = append(out, cloneTransfer(t))
		}
	}
	sortTransfers(out)
	return out, nil
}

func (r *transferRepo) ListReconcileCandidates(ctx context.Context, since time.Time) ([]domain.EquipmentTransfer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.EquipmentTransfer
	for _, t := range r.s.transfers {
		if !t.UpdatedAt.Before(since) || t.Status == domain.TransferStatusScheduled {
			out = append(out, cloneTransfer(t))
		}
	}
	sortTransfers(out)
	return out, nil
}

type equipmentRepo struct{ s *Store }

func (r *equipmentRepo) GetByID(ctx context.Context, id string) (*domain.Equipment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	eq, ok := r.s.equipment[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "equipment", ID: id}
	}
	return &eq, nil
}

func (r *equipmentRepo) UpdateCurrentOrganization(ctx context.Context, equipmentID, organizationID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	eq, ok := r.s.equipment[equipmentID]
	if !ok {
		return &domain.NotFoundError{Entity: "equipment", ID: equipmentID}
	}
	eq.CurrentOrganizationID = organizationID
	eq.UpdatedAt = at
	r.s.equipment[equipmentID] = eq
	return nil
}

type organizationRepo struct{ s *Store }

func (r *organizationRepo) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	org, ok := r.s.organizations[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "organization", ID: id}
	}
	return &org, nil
}

func (r *organizationRepo) ResolveOrganization(ctx context.Context, actorID string) (string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	orgID, ok := r.s.members[actorID]
	if !ok {
		return "", &domain.NotFoundError{Entity: "member", ID: actorID}
	}
	return orgID, nil
}

func cloneTransfer(t domain.EquipmentTransfer) domain.EquipmentTransfer {
	t.PickupDate = cloneTime(t.PickupDate)
	t.DeliveryDate = cloneTime(t.DeliveryDate)
	t.ReturnScheduledDate = cloneTime(t.ReturnScheduledDate)
	t.ReturnDate = cloneTime(t.ReturnDate)
	return t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func sortTransfers(ts []domain.EquipmentTransfer) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].CreatedAt.After(ts[j].CreatedAt) })
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
