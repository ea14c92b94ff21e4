package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"go.uber.org/zap"

	"chargeshare/backend/services/marketplace-service/internal/geo"
	"chargeshare/backend/services/marketplace-service/internal/models"
)

// StationDirectory is the catalog surface used for listing and owner management.
type StationDirectory interface {
	Create(ctx context.Context, station *models.Station) error
	ListActive(ctx context.Context) ([]models.Station, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Station, error)
	SetActive(ctx context.Context, id string, ownerID int64, active bool) error
}

// StationsService covers the catalog: owner CRUD and the nearby finder.
type StationsService struct {
	directory StationDirectory
	logger    *zap.Logger
}

// NewStationsService builds service.
func NewStationsService(directory StationDirectory, logger *zap.Logger) *StationsService {
	return &StationsService{directory: directory, logger: logger}
}

// CreateStationInput is the owner-supplied listing.
type CreateStationInput struct {
	OwnerID       int64
	Name          string
	Address       string
	Lat           float64
	Lon           float64
	RatePerMinute float64
	AdapterTypes  []string
	NetworkTier   string
}

// CreateStation lists a new charger for an owner.
func (s *StationsService) CreateStation(ctx context.Context, input CreateStationInput) (*models.Station, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, errors.New("stations: name required")
	}
	if input.RatePerMinute <= 0 {
		return nil, errors.New("stations: rate must be positive")
	}
	if input.NetworkTier == "" {
		input.NetworkTier = models.NetworkTierStandard
	}

	station := &models.Station{
		ID:            newStationID(),
		OwnerID:       input.OwnerID,
		Name:          input.Name,
		Address:       strings.TrimSpace(input.Address),
		Lat:           input.Lat,
		Lon:           input.Lon,
		RatePerMinute: input.RatePerMinute,
		AdapterTypes:  input.AdapterTypes,
		NetworkTier:   input.NetworkTier,
		Active:        true,
		Status:        models.StationAvailable,
	}
	if err := s.directory.Create(ctx, station); err != nil {
		return nil, err
	}

	s.logger.Info("station listed",
		zap.String("station_id", station.ID),
		zap.Int64("owner_id", input.OwnerID),
	)
	return station, nil
}

// SetStationActive toggles the owner's availability flag.
func (s *StationsService) SetStationActive(ctx context.Context, stationID string, ownerID int64, active bool) error {
	return s.directory.SetActive(ctx, stationID, ownerID, active)
}

// StationsByOwner lists an owner's chargers.
func (s *StationsService) StationsByOwner(ctx context.Context, ownerID int64) ([]models.Station, error) {
	return s.directory.ListByOwner(ctx, ownerID)
}

// Nearby returns active stations matching the filter, nearest first.
func (s *StationsService) Nearby(ctx context.Context, origin geo.Point, filter StationFilter) ([]models.Station, error) {
	stations, err := s.directory.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	matched := FilterStations(stations, origin, filter)
	SortByDistance(matched, origin)
	return matched, nil
}

func newStationID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read only fails when the OS entropy source is broken.
		panic(err)
	}
	return "st-" + hex.EncodeToString(buf)
}
