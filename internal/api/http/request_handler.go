package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/repository"
	"equipshare-backend/internal/service"
)

// RequestHandler exposes the request lifecycle over HTTP.
type RequestHandler struct {
	requests  service.RequestService
	transfers service.TransferService
}

func NewRequestHandler(requests service.RequestService, transfers service.TransferService) *RequestHandler {
	return &RequestHandler{requests: requests, transfers: transfers}
}

type createRequestBody struct {
	EquipmentID              string `json:"equipment_id"`
	OwningOrganizationID     string `json:"owning_organization_id"`
	RequestingOrganizationID string `json:"requesting_organization_id"`
	RequestType              string `json:"request_type"`
	StartDate                string `json:"start_date"`
	EndDate                  string `json:"end_date"`
	Purpose                  string `json:"purpose"`
	Notes                    string `json:"notes"`
	Urgency                  string `json:"urgency"`
}

type decisionBody struct {
	Notes string `json:"notes"`
}

type transitionBody struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	start, err := parseDate("start_date", body.StartDate)
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := parseDate("end_date", body.EndDate)
	if err != nil {
		writeError(w, err)
		return
	}

	req, err := h.requests.Create(r.Context(), service.CreateRequestInput{
		RequesterID:              ActorIDFromContext(r.Context()),
		EquipmentID:              body.EquipmentID,
		OwningOrganizationID:     body.OwningOrganizationID,
		RequestingOrganizationID: body.RequestingOrganizationID,
		RequestType:              domain.RequestType(body.RequestType),
		StartDate:                start,
		EndDate:                  end,
		Purpose:                  body.Purpose,
		Notes:                    body.Notes,
		Urgency:                  domain.Urgency(body.Urgency),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.requests.Get(r.Context(), ActorIDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.RequestFilter{
		Role:        q.Get("role"),
		Status:      domain.RequestStatus(q.Get("status")),
		EquipmentID: q.Get("equipment_id"),
	}
	if filter.Role != "" && filter.Role != repository.RoleOwner && filter.Role != repository.RoleRequester {
		writeError(w, domain.NewValidationError("role", "must be owner or requester"))
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, domain.NewValidationError("status", "unknown request status"))
		return
	}
	var err error
	if filter.Limit, filter.Offset, err = paging(r); err != nil {
		writeError(w, err)
		return
	}

	reqs, err := h.requests.List(r.Context(), ActorIDFromContext(r.Context()), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if reqs == nil {
		reqs = []domain.EquipmentRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.requests.Approve)
}

func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.requests.Reject)
}

func (h *RequestHandler) decide(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actorID, requestID, notes string) (*domain.EquipmentRequest, error)) {
	var body decisionBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	req, err := op(r.Context(), ActorIDFromContext(r.Context()), mux.Vars(r)["id"], body.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	req, err := h.requests.Cancel(r.Context(), ActorIDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Transition is the generic status endpoint. Derived statuses are refused by
// the service.
func (h *RequestHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var body transitionBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Status == "" {
		writeError(w, domain.NewValidationError("status", "is required"))
		return
	}
	req, err := h.requests.Transition(r.Context(), ActorIDFromContext(r.Context()), mux.Vars(r)["id"], domain.RequestStatus(body.Status), body.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := h.transfers.GetByRequest(r.Context(), ActorIDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "must be a date formatted as YYYY-MM-DD")
	}
	return t, nil
}

func paging(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, domain.NewValidationError("limit", "must be a non-negative integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, domain.NewValidationError("offset", "must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
