package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"chargeshare/backend/services/marketplace-service/internal/geo"
	"chargeshare/backend/services/marketplace-service/internal/http/middleware"
	"chargeshare/backend/services/marketplace-service/internal/service"
)

// StationsHandlers covers the station catalog endpoints.
type StationsHandlers struct {
	stations *service.StationsService
	logger   *zap.Logger
}

// NewStationsHandlers returns handler set.
func NewStationsHandlers(stations *service.StationsService, logger *zap.Logger) *StationsHandlers {
	return &StationsHandlers{stations: stations, logger: logger}
}

// Nearby handles GET /stations/nearby.
func (h *StationsHandlers) Nearby(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lat, latErr := strconv.ParseFloat(query.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(query.Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	filter := service.StationFilter{
		Adapter:     query.Get("adapter"),
		RateTier:    query.Get("rate_tier"),
		NetworkTier: query.Get("network_tier"),
	}
	if raw := query.Get("radius"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil || radius < 0 {
			writeError(w, http.StatusBadRequest, "invalid radius")
			return
		}
		filter.RadiusMiles = radius
	}

	stations, err := h.stations.Nearby(r.Context(), geo.Point{Lat: lat, Lon: lon}, filter)
	if err != nil {
		h.logger.Error("nearby lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list stations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stations": stations})
}

// Create handles POST /stations.
func (h *StationsHandlers) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		Name          string   `json:"name"`
		Address       string   `json:"address"`
		Lat           float64  `json:"lat"`
		Lon           float64  `json:"lon"`
		RatePerMinute float64  `json:"rate_per_minute"`
		AdapterTypes  []string `json:"adapter_types"`
		NetworkTier   string   `json:"network_tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	station, err := h.stations.CreateStation(r.Context(), service.CreateStationInput{
		OwnerID:       ownerID,
		Name:          req.Name,
		Address:       req.Address,
		Lat:           req.Lat,
		Lon:           req.Lon,
		RatePerMinute: req.RatePerMinute,
		AdapterTypes:  req.AdapterTypes,
		NetworkTier:   req.NetworkTier,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, station)
}

// Mine handles GET /stations/mine.
func (h *StationsHandlers) Mine(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	stations, err := h.stations.StationsByOwner(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("owner stations lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list stations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stations": stations})
}

// SetActive handles POST /stations/active.
func (h *StationsHandlers) SetActive(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		StationID string `json:"station_id"`
		Active    bool   `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StationID == "" {
		writeError(w, http.StatusBadRequest, "station_id is required")
		return
	}

	if err := h.stations.SetStationActive(r.Context(), req.StationID, ownerID, req.Active); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
