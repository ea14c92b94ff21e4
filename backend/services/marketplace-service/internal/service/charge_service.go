package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"go.uber.org/zap"

	"chargeshare/backend/services/marketplace-service/internal/geo"
	"chargeshare/backend/services/marketplace-service/internal/models"
	"chargeshare/backend/services/marketplace-service/internal/repository"
)

var (
	// ErrDriverBusy is returned when the driver already holds a station or an
	// active session.
	ErrDriverBusy = errors.New("driver already engaged with a station")
	// ErrTooFar is returned when the driver is outside the start-charge radius.
	ErrTooFar = errors.New("driver too far from station")
	// ErrBillingRequired is returned when no payment method is on file.
	ErrBillingRequired = errors.New("payment method required")
)

const (
	// MaxStartDistanceMiles gates begin-charging and drives the end-charge reminder.
	MaxStartDistanceMiles = 0.5
	// EnRouteTimeout bounds how long a reservation may sit en route before the
	// sweep returns the station to available.
	EnRouteTimeout = 15 * time.Minute
)

// StationStore is the occupancy state machine surface the controller drives.
type StationStore interface {
	GetByID(ctx context.Context, id string) (*models.Station, error)
	Reserve(ctx context.Context, stationID string, driverID int64, now time.Time) (*models.Station, error)
	BeginCharging(ctx context.Context, stationID string, driverID int64) (*models.Station, error)
	Release(ctx context.Context, stationID string) (*models.Station, error)
	ReleaseExpired(ctx context.Context, cutoff time.Time) ([]models.Station, error)
	FindHeldByDriver(ctx context.Context, driverID int64) ([]models.Station, error)
}

// SessionStore persists charge sessions.
type SessionStore interface {
	Create(ctx context.Context, session *models.ChargeSession) error
	Close(ctx context.Context, sessionID string, endTime time.Time, totalCost float64) error
	GetByID(ctx context.Context, id string) (*models.ChargeSession, error)
	ActiveByDriver(ctx context.Context, driverID int64) (*models.ChargeSession, error)
	ListByDriver(ctx context.Context, driverID int64, limit int) ([]models.ChargeSession, error)
}

// BillingDirectory answers whether a driver can be charged.
type BillingDirectory interface {
	PaymentMethod(ctx context.Context, userID int64) (string, error)
}

// EventSink receives lifecycle events for the settlement engine and the live feed.
type EventSink interface {
	SessionOpened(ctx context.Context, session *models.ChargeSession) error
	SessionClosed(ctx context.Context, session *models.ChargeSession, endTime time.Time, totalCost float64) error
	StationChanged(ctx context.Context, station *models.Station)
}

// ReminderLatch is the one-shot end-charge reminder store.
type ReminderLatch interface {
	MarkReminded(ctx context.Context, sessionID string) (bool, error)
	Clear(ctx context.Context, sessionID string) error
}

// ChargeService orchestrates the reserve -> charge -> settle lifecycle on top
// of the atomic station and session stores.
type ChargeService struct {
	stations  StationStore
	sessions  SessionStore
	billing   BillingDirectory
	events    EventSink
	reminders ReminderLatch
	logger    *zap.Logger
	now       func() time.Time
}

// NewChargeService builds the controller.
func NewChargeService(
	stations StationStore,
	sessions SessionStore,
	billing BillingDirectory,
	events EventSink,
	reminders ReminderLatch,
	logger *zap.Logger,
) *ChargeService {
	return &ChargeService{
		stations:  stations,
		sessions:  sessions,
		billing:   billing,
		events:    events,
		reminders: reminders,
		logger:    logger,
		now:       time.Now,
	}
}

// NavigationResult is returned to the client after a successful reservation.
type NavigationResult struct {
	Station       *models.Station `json:"station"`
	DirectionsURL string          `json:"directions_url"`
}

// LocationStatus reports proximity while a session is open.
type LocationStatus struct {
	HasSession      bool    `json:"has_session"`
	SessionID       string  `json:"session_id,omitempty"`
	DistanceMiles   float64 `json:"distance_miles,omitempty"`
	RemindEndCharge bool    `json:"remind_end_charge,omitempty"`
}

// StartNavigation reserves a station for a driver heading to it. A driver may
// hold at most one station at a time.
func (s *ChargeService) StartNavigation(ctx context.Context, driverID int64, stationID string) (*NavigationResult, error) {
	held, err := s.stations.FindHeldByDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if len(held) > 0 {
		return nil, ErrDriverBusy
	}

	station, err := s.stations.Reserve(ctx, stationID, driverID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.events.StationChanged(ctx, station)
	s.logger.Info("station reserved",
		zap.String("station_id", station.ID),
		zap.Int64("driver_id", driverID),
	)

	return &NavigationResult{
		Station:       station,
		DirectionsURL: directionsURL(station),
	}, nil
}

// CancelNavigation releases the driver's own en-route hold.
func (s *ChargeService) CancelNavigation(ctx context.Context, driverID int64, stationID string) error {
	station, err := s.stations.GetByID(ctx, stationID)
	if err != nil {
		return err
	}
	if station.Status != models.StationEnRoute || !station.HeldBy(driverID) {
		return repository.ErrNotReserved
	}

	released, err := s.stations.Release(ctx, stationID)
	if err != nil {
		return err
	}

	s.events.StationChanged(ctx, released)
	s.logger.Info("reservation cancelled",
		zap.String("station_id", stationID),
		zap.Int64("driver_id", driverID),
	)
	return nil
}

// StartCharge begins a charging session at the driver's reserved station.
// Preconditions run in order: no active session, within range, payment method
// on file. Occupancy itself is re-validated atomically by BeginCharging.
func (s *ChargeService) StartCharge(ctx context.Context, driverID int64, stationID string, driverLocation geo.Point) (*models.ChargeSession, error) {
	if _, err := s.sessions.ActiveByDriver(ctx, driverID); err == nil {
		return nil, ErrDriverBusy
	} else if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}

	station, err := s.stations.GetByID(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if geo.Miles(driverLocation, geo.Point{Lat: station.Lat, Lon: station.Lon}) > MaxStartDistanceMiles {
		return nil, ErrTooFar
	}

	paymentMethod, err := s.billing.PaymentMethod(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if paymentMethod == "" {
		return nil, ErrBillingRequired
	}

	station, err = s.stations.BeginCharging(ctx, stationID, driverID)
	if err != nil {
		return nil, err
	}

	start := s.now().UTC()
	session := &models.ChargeSession{
		ID:        models.NewSessionID(driverID, start),
		StationID: stationID,
		DriverID:  driverID,
		Status:    models.SessionPending,
		StartTime: start,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		// The station flipped to charging but no session exists; give the
		// claim back so the station is not stranded.
		if released, relErr := s.stations.Release(ctx, stationID); relErr != nil {
			s.logger.Error("failed to release station after session create failure",
				zap.String("station_id", stationID),
				zap.Error(relErr),
			)
		} else {
			s.events.StationChanged(ctx, released)
		}
		return nil, err
	}

	// Authorization happens out of band; a publish failure must not take the
	// session down, but the settlement engine will never see it, so shout.
	if err := s.events.SessionOpened(ctx, session); err != nil {
		s.logger.Error("failed to publish session-opened event",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}

	s.events.StationChanged(ctx, station)
	s.logger.Info("charging started",
		zap.String("session_id", session.ID),
		zap.String("station_id", stationID),
		zap.Int64("driver_id", driverID),
	)
	return session, nil
}

// EndCharge closes the driver's session, computes the provisional cost from
// elapsed minutes and the station rate at close time, releases the station,
// and hands the session to settlement. The returned cost is provisional; the
// settlement engine persists the authoritative amount.
func (s *ChargeService) EndCharge(ctx context.Context, driverID int64, sessionID string) (float64, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if session.DriverID != driverID {
		return 0, repository.ErrSessionNotFound
	}
	if models.Terminal(session.Status) || session.EndTime != nil {
		return 0, repository.ErrSessionClosed
	}

	station, err := s.stations.GetByID(ctx, session.StationID)
	if err != nil {
		return 0, err
	}

	endTime := s.now().UTC()
	minutes := endTime.Sub(session.StartTime).Minutes()
	totalCost := roundCents(minutes * station.RatePerMinute)

	if err := s.sessions.Close(ctx, sessionID, endTime, totalCost); err != nil {
		return 0, err
	}

	// Physical access is decoupled from billing: release even if the event
	// publish below fails.
	if released, err := s.stations.Release(ctx, session.StationID); err != nil {
		s.logger.Error("failed to release station after session close",
			zap.String("station_id", session.StationID),
			zap.Error(err),
		)
	} else {
		s.events.StationChanged(ctx, released)
	}

	if err := s.events.SessionClosed(ctx, session, endTime, totalCost); err != nil {
		s.logger.Error("failed to publish session-closed event",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	if err := s.reminders.Clear(ctx, sessionID); err != nil {
		s.logger.Warn("failed to clear reminder latch", zap.Error(err))
	}

	s.logger.Info("charging ended",
		zap.String("session_id", sessionID),
		zap.Float64("total_cost", totalCost),
		zap.Float64("minutes", minutes),
	)
	return totalCost, nil
}

// ReportLocation evaluates proximity for the driver's open session and raises
// the end-charge reminder at most once per session.
func (s *ChargeService) ReportLocation(ctx context.Context, driverID int64, location geo.Point) (*LocationStatus, error) {
	session, err := s.sessions.ActiveByDriver(ctx, driverID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return &LocationStatus{}, nil
		}
		return nil, err
	}

	station, err := s.stations.GetByID(ctx, session.StationID)
	if err != nil {
		return nil, err
	}

	distance := geo.Miles(location, geo.Point{Lat: station.Lat, Lon: station.Lon})
	status := &LocationStatus{
		HasSession:    true,
		SessionID:     session.ID,
		DistanceMiles: distance,
	}

	if distance > MaxStartDistanceMiles {
		first, err := s.reminders.MarkReminded(ctx, session.ID)
		if err != nil {
			s.logger.Warn("reminder latch unavailable", zap.Error(err))
		} else if first {
			status.RemindEndCharge = true
		}
	}

	return status, nil
}

// SessionsForDriver returns recent session history.
func (s *ChargeService) SessionsForDriver(ctx context.Context, driverID int64, limit int) ([]models.ChargeSession, error) {
	return s.sessions.ListByDriver(ctx, driverID, limit)
}

// ReleaseExpiredReservations frees stale en-route holds. Invoked by the
// background sweep; every auto-release is logged for audit.
func (s *ChargeService) ReleaseExpiredReservations(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-EnRouteTimeout)
	released, err := s.stations.ReleaseExpired(ctx, cutoff)
	if err != nil {
		return err
	}
	for i := range released {
		station := &released[i]
		s.events.StationChanged(ctx, station)
		s.logger.Info("en-route reservation timed out",
			zap.String("station_id", station.ID),
		)
	}
	return nil
}

func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

func directionsURL(station *models.Station) string {
	destination := station.Address
	if destination == "" {
		destination = fmt.Sprintf("%f,%f", station.Lat, station.Lon)
	}
	return "https://www.google.com/maps/dir/?api=1&destination=" + url.QueryEscape(destination)
}
