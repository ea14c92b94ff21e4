package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"chargeshare/backend/services/marketplace-service/internal/geo"
	"chargeshare/backend/services/marketplace-service/internal/http/middleware"
	"chargeshare/backend/services/marketplace-service/internal/service"
)

// ChargeHandlers exposes the charge flow to the driver app.
type ChargeHandlers struct {
	charges *service.ChargeService
	logger  *zap.Logger
}

// NewChargeHandlers returns handler set.
func NewChargeHandlers(charges *service.ChargeService, logger *zap.Logger) *ChargeHandlers {
	return &ChargeHandlers{charges: charges, logger: logger}
}

func driverID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return id, ok
}

// StartNavigation handles POST /charge/navigate.
func (h *ChargeHandlers) StartNavigation(w http.ResponseWriter, r *http.Request) {
	driver, ok := driverID(w, r)
	if !ok {
		return
	}

	var req struct {
		StationID string `json:"station_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StationID == "" {
		writeError(w, http.StatusBadRequest, "station_id is required")
		return
	}

	result, err := h.charges.StartNavigation(r.Context(), driver, req.StationID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CancelNavigation handles POST /charge/cancel.
func (h *ChargeHandlers) CancelNavigation(w http.ResponseWriter, r *http.Request) {
	driver, ok := driverID(w, r)
	if !ok {
		return
	}

	var req struct {
		StationID string `json:"station_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StationID == "" {
		writeError(w, http.StatusBadRequest, "station_id is required")
		return
	}

	if err := h.charges.CancelNavigation(r.Context(), driver, req.StationID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StartCharge handles POST /charge/start.
func (h *ChargeHandlers) StartCharge(w http.ResponseWriter, r *http.Request) {
	driver, ok := driverID(w, r)
	if !ok {
		return
	}

	var req struct {
		StationID string  `json:"station_id"`
		Lat       float64 `json:"lat"`
		Lon       float64 `json:"lon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StationID == "" {
		writeError(w, http.StatusBadRequest, "station_id is required")
		return
	}

	session, err := h.charges.StartCharge(r.Context(), driver, req.StationID, geo.Point{Lat: req.Lat, Lon: req.Lon})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// EndCharge handles POST /charge/end. The returned cost is provisional; the
// settlement engine persists the authoritative amount.
func (h *ChargeHandlers) EndCharge(w http.ResponseWriter, r *http.Request) {
	driver, ok := driverID(w, r)
	if !ok {
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	cost, err := h.charges.EndCharge(r.Context(), driver, req.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":       req.SessionID,
		"provisional_cost": cost,
	})
}

// ReportLocation handles POST /charge/location.
func (h *ChargeHandlers) ReportLocation(w http.ResponseWriter, r *http.Request) {
	driver, ok := driverID(w, r)
	if !ok {
		return
	}

	var req struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	status, err := h.charges.ReportLocation(r.Context(), driver, geo.Point{Lat: req.Lat, Lon: req.Lon})
	if err != nil {
		h.logger.Error("location report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to evaluate location")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// SessionsMe handles GET /sessions/me.
func (h *ChargeHandlers) SessionsMe(w http.ResponseWriter, r *http.Request) {
	driver, ok := driverID(w, r)
	if !ok {
		return
	}

	sessions, err := h.charges.SessionsForDriver(r.Context(), driver, 50)
	if err != nil {
		h.logger.Error("sessions lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}
