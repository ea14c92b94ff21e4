package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"chargeshare/backend/services/marketplace-service/internal/repository"
	"chargeshare/backend/services/marketplace-service/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps charge-flow errors to status codes with a single
// human-readable notice. Unknown errors fall through to 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrStationNotFound),
		errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrAlreadyOccupied),
		errors.Is(err, repository.ErrNotReserved),
		errors.Is(err, repository.ErrSessionClosed),
		errors.Is(err, repository.ErrDuplicateActiveSession),
		errors.Is(err, service.ErrDriverBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrTooFar):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrBillingRequired):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
