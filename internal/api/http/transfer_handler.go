package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/repository"
	"equipshare-backend/internal/service"
)

// TransferHandler exposes the transfer lifecycle over HTTP.
type TransferHandler struct {
	transfers service.TransferService
}

func NewTransferHandler(transfers service.TransferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

type conditionBody struct {
	ConditionNotes string `json:"condition_notes"`
}

type shipBody struct {
	TrackingNumber string `json:"tracking_number"`
}

type cancelTransferBody struct {
	Reason string `json:"reason"`
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.transfers.Get(r.Context(), ActorIDFromContext(r.Context()), mux.Vars(r)["id"])
	h.respond(w, t, err)
}

func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.TransferFilter{
		Status:    domain.TransferStatus(q.Get("status")),
		RequestID: q.Get("request_id"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, domain.NewValidationError("status", "unknown transfer status"))
		return
	}
	var err error
	if filter.Limit, filter.Offset, err = paging(r); err != nil {
		writeError(w, err)
		return
	}

	ts, err := h.transfers.List(r.Context(), ActorIDFromContext(r.Context()), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if ts == nil {
		ts = []domain.EquipmentTransfer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": ts})
}

func (h *TransferHandler) PickUp(w http.ResponseWriter, r *http.Request) {
	var body conditionBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.transfers.MarkPickedUp(r.Context(), ActorIDFromContext(r.Context()), mux.Vars(r)["id"], body.ConditionNotes)
	h.respond(w, t, err)
}

func (h *TransferHandler) Ship(w http.ResponseWriter, r *http.Request) {
	var body shipBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.transfers.MarkInTransit(r.Context(), ActorIDFromContext(r.Context()), mux.Vars(r)["id"], body.TrackingNumber)
	h.respond(w, t, err)
}

func (h *TransferHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	t, err := h.transfers.ConfirmDelivery(r.Context(), ActorIDFromContext(r.Context()), mux.Vars(r)["id"])
	h.respond(w, t, err)
}

func (h *TransferHandler) Return(w http.ResponseWriter, r *http.Request) {
	var body conditionBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.transfers.InitiateReturn(r.Context(), ActorIDFromContext(r.Context()), mux.Vars(r)["id"], body.ConditionNotes)
	h.respond(w, t, err)
}

func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body cancelTransferBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.transfers.Cancel(r.Context(), ActorIDFromContext(r.Context()), mux.Vars(r)["id"], body.Reason)
	h.respond(w, t, err)
}

func (h *TransferHandler) respond(w http.ResponseWriter, t *domain.EquipmentTransfer, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
