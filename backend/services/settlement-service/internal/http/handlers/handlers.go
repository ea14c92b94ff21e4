package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"chargeshare/backend/services/settlement-service/internal/models"
	"chargeshare/backend/services/settlement-service/internal/repository"
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

// NewHealthHandler returns liveness handler.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// SettlementViewer exposes a settlement plus its ledger row for support.
type SettlementViewer interface {
	Settlement(ctx context.Context, sessionID string) (*models.SessionBilling, *models.PlatformEarning, error)
}

// NewSettlementHandler returns the support inspection endpoint. It is served
// on the internal listener only and carries no driver-facing auth.
func NewSettlementHandler(viewer SettlementViewer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, "session_id is required")
			return
		}

		billing, earning, err := viewer.Settlement(r.Context(), sessionID)
		if errors.Is(err, repository.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			logger.Error("settlement lookup failed", zap.String("session_id", sessionID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"session":          billing,
			"platform_earning": earning,
		})
	}
}
