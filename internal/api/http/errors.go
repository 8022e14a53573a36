package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/logger"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// statusFor maps a lifecycle error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation_error"
	case domain.IsAuthorization(err):
		return http.StatusForbidden, "authorization_error"
	case domain.IsInvalidTransition(err):
		return http.StatusConflict, "invalid_transition"
	case domain.IsConflict(err):
		return http.StatusConflict, "conflict"
	case domain.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case domain.IsStoreUnavailable(err):
		return http.StatusServiceUnavailable, "store_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	resp := errorResponse{Error: code, Message: err.Error()}
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		resp.Field = validation.Field
	}
	if status == http.StatusInternalServerError {
		logger.Error("Unhandled API error", "error", err)
		resp.Message = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", "malformed JSON: "+err.Error())
	}
	return nil
}
