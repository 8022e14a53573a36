package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/security"
	"equipshare-backend/internal/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps carries what the HTTP API needs.
type RouterDeps struct {
	Requests     service.RequestService
	Transfers    service.TransferService
	TokenManager security.TokenManager
	Health       Pinger       // optional
	Metrics      http.Handler // optional
}

// NewRouter registers every API route. Route names key the security table
// in config.
func NewRouter(d RouterDeps) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware)
	router.Use(NewAuthMiddleware(d.TokenManager).Middleware)

	router.HandleFunc("/healthz", healthHandler(d.Health)).Methods(http.MethodGet).Name("healthz")
	if d.Metrics != nil {
		router.Handle("/metrics", d.Metrics).Methods(http.MethodGet).Name("metrics")
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/statuses", statusesHandler).Methods(http.MethodGet).Name("statuses")

	rh := NewRequestHandler(d.Requests, d.Transfers)
	api.HandleFunc("/requests", rh.Create).Methods(http.MethodPost).Name("createRequest")
	api.HandleFunc("/requests", rh.List).Methods(http.MethodGet).Name("listRequests")
	api.HandleFunc("/requests/{id}", rh.Get).Methods(http.MethodGet).Name("getRequest")
	api.HandleFunc("/requests/{id}/approve", rh.Approve).Methods(http.MethodPost).Name("approveRequest")
	api.HandleFunc("/requests/{id}/reject", rh.Reject).Methods(http.MethodPost).Name("rejectRequest")
	api.HandleFunc("/requests/{id}/cancel", rh.Cancel).Methods(http.MethodPost).Name("cancelRequest")
	api.HandleFunc("/requests/{id}/status", rh.Transition).Methods(http.MethodPut).Name("transitionRequest")
	api.HandleFunc("/requests/{id}/transfer", rh.GetTransfer).Methods(http.MethodGet).Name("getRequestTransfer")

	th := NewTransferHandler(d.Transfers)
	api.HandleFunc("/transfers", th.List).Methods(http.MethodGet).Name("listTransfers")
	api.HandleFunc("/transfers/{id}", th.Get).Methods(http.MethodGet).Name("getTransfer")
	api.HandleFunc("/transfers/{id}/pickup", th.PickUp).Methods(http.MethodPost).Name("pickupTransfer")
	api.HandleFunc("/transfers/{id}/in-transit", th.Ship).Methods(http.MethodPost).Name("shipTransfer")
	api.HandleFunc("/transfers/{id}/deliver", th.Deliver).Methods(http.MethodPost).Name("deliverTransfer")
	api.HandleFunc("/transfers/{id}/return", th.Return).Methods(http.MethodPost).Name("returnTransfer")
	api.HandleFunc("/transfers/{id}/cancel", th.Cancel).Methods(http.MethodPost).Name("cancelTransfer")

	return router
}

func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			if err := p.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// statusesHandler serves the status labels from the same tables that drive
// the transitions.
func statusesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"request_statuses":  domain.RequestStatuses,
		"transfer_statuses": domain.TransferStatuses,
	})
}
