package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"chargeshare/backend/services/marketplace-service/internal/geo"
	"chargeshare/backend/services/marketplace-service/internal/models"
	"chargeshare/backend/services/marketplace-service/internal/repository"
)

type fakeStationStore struct {
	mu       sync.Mutex
	stations map[string]*models.Station
}

func newFakeStationStore(stations ...*models.Station) *fakeStationStore {
	store := &fakeStationStore{stations: make(map[string]*models.Station)}
	for _, s := range stations {
		store.stations[s.ID] = s
	}
	return store
}

func (f *fakeStationStore) get(id string) (*models.Station, error) {
	station, ok := f.stations[id]
	if !ok {
		return nil, repository.ErrStationNotFound
	}
	return station, nil
}

func (f *fakeStationStore) clone(s *models.Station) *models.Station {
	copied := *s
	if s.DriverID != nil {
		d := *s.DriverID
		copied.DriverID = &d
	}
	if s.EnRouteAt != nil {
		t := *s.EnRouteAt
		copied.EnRouteAt = &t
	}
	return &copied
}

func (f *fakeStationStore) GetByID(_ context.Context, id string) (*models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	station, err := f.get(id)
	if err != nil {
		return nil, err
	}
	return f.clone(station), nil
}

func (f *fakeStationStore) Reserve(_ context.Context, stationID string, driverID int64, now time.Time) (*models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	station, err := f.get(stationID)
	if err != nil {
		return nil, err
	}
	if !station.Active || station.Status != models.StationAvailable {
		return nil, repository.ErrAlreadyOccupied
	}
	station.Status = models.StationEnRoute
	station.DriverID = &driverID
	station.EnRouteAt = &now
	return f.clone(station), nil
}

func (f *fakeStationStore) BeginCharging(_ context.Context, stationID string, driverID int64) (*models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	station, err := f.get(stationID)
	if err != nil {
		return nil, err
	}
	if station.Status != models.StationEnRoute || station.DriverID == nil || *station.DriverID != driverID {
		return nil, repository.ErrNotReserved
	}
	station.Status = models.StationCharging
	return f.clone(station), nil
}

func (f *fakeStationStore) Release(_ context.Context, stationID string) (*models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	station, err := f.get(stationID)
	if err != nil {
		return nil, err
	}
	station.Status = models.StationAvailable
	station.DriverID = nil
	station.EnRouteAt = nil
	return f.clone(station), nil
}

func (f *fakeStationStore) ReleaseExpired(_ context.Context, cutoff time.Time) ([]models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var released []models.Station
	for _, station := range f.stations {
		if station.Status == models.StationEnRoute && station.EnRouteAt != nil && station.EnRouteAt.Before(cutoff) {
			station.Status = models.StationAvailable
			station.DriverID = nil
			station.EnRouteAt = nil
			released = append(released, *f.clone(station))
		}
	}
	return released, nil
}

func (f *fakeStationStore) FindHeldByDriver(_ context.Context, driverID int64) ([]models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var held []models.Station
	for _, station := range f.stations {
		if station.DriverID != nil && *station.DriverID == driverID && station.Status != models.StationAvailable {
			held = append(held, *f.clone(station))
		}
	}
	return held, nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.ChargeSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*models.ChargeSession)}
}

func (f *fakeSessionStore) Create(_ context.Context, session *models.ChargeSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.DriverID == session.DriverID && !models.Terminal(existing.Status) {
			return repository.ErrDuplicateActiveSession
		}
	}
	session.Status = models.SessionPending
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessionStore) Close(_ context.Context, sessionID string, endTime time.Time, totalCost float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if session.EndTime != nil || models.Terminal(session.Status) {
		return repository.ErrSessionClosed
	}
	session.EndTime = &endTime
	session.TotalCost = &totalCost
	return nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, id string) (*models.ChargeSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionStore) ActiveByDriver(_ context.Context, driverID int64) (*models.ChargeSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, session := range f.sessions {
		if session.DriverID == driverID && !models.Terminal(session.Status) && session.EndTime == nil {
			copied := *session
			return &copied, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeSessionStore) ListByDriver(_ context.Context, driverID int64, _ int) ([]models.ChargeSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sessions []models.ChargeSession
	for _, session := range f.sessions {
		if session.DriverID == driverID {
			sessions = append(sessions, *session)
		}
	}
	return sessions, nil
}

type fakeBilling struct {
	methods map[int64]string
}

func (f *fakeBilling) PaymentMethod(_ context.Context, userID int64) (string, error) {
	return f.methods[userID], nil
}

type fakeEvents struct {
	mu       sync.Mutex
	opened   []string
	closed   []string
	changed  int
	openErr  error
	closeErr error
}

func (f *fakeEvents) SessionOpened(_ context.Context, session *models.ChargeSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = append(f.opened, session.ID)
	return nil
}

func (f *fakeEvents) SessionClosed(_ context.Context, session *models.ChargeSession, _ time.Time, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closed = append(f.closed, session.ID)
	return nil
}

func (f *fakeEvents) StationChanged(_ context.Context, _ *models.Station) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed++
}

type fakeReminders struct {
	mu     sync.Mutex
	marked map[string]bool
}

func newFakeReminders() *fakeReminders {
	return &fakeReminders{marked: make(map[string]bool)}
}

func (f *fakeReminders) MarkReminded(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marked[sessionID] {
		return false, nil
	}
	f.marked[sessionID] = true
	return true, nil
}

func (f *fakeReminders) Clear(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.marked, sessionID)
	return nil
}

type fixture struct {
	svc       *ChargeService
	stations  *fakeStationStore
	sessions  *fakeSessionStore
	billing   *fakeBilling
	events    *fakeEvents
	reminders *fakeReminders
}

func newFixture(stations ...*models.Station) *fixture {
	f := &fixture{
		stations:  newFakeStationStore(stations...),
		sessions:  newFakeSessionStore(),
		billing:   &fakeBilling{methods: map[int64]string{}},
		events:    &fakeEvents{},
		reminders: newFakeReminders(),
	}
	f.svc = NewChargeService(f.stations, f.sessions, f.billing, f.events, f.reminders, zap.NewNop())
	return f
}

func availableStation(id string) *models.Station {
	return &models.Station{
		ID:            id,
		OwnerID:       100,
		Name:          "Garage " + id,
		Address:       "1 Main St",
		Lat:           37.7749,
		Lon:           -122.4194,
		RatePerMinute: 2.00,
		Active:        true,
		Status:        models.StationAvailable,
	}
}

var nearStation = geo.Point{Lat: 37.7749, Lon: -122.4194}

func TestStartNavigationReservesStation(t *testing.T) {
	f := newFixture(availableStation("st-1"))

	result, err := f.svc.StartNavigation(context.Background(), 1, "st-1")
	if err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}
	if result.Station.Status != models.StationEnRoute {
		t.Errorf("status = %s, want en_route", result.Station.Status)
	}
	if result.Station.DriverID == nil || *result.Station.DriverID != 1 {
		t.Error("occupying driver not recorded")
	}
	if result.DirectionsURL == "" {
		t.Error("missing directions deep link")
	}
}

func TestStartNavigationRejectsBusyDriver(t *testing.T) {
	f := newFixture(availableStation("st-1"), availableStation("st-2"))

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("first reservation: %v", err)
	}
	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-2"); !errors.Is(err, ErrDriverBusy) {
		t.Fatalf("err = %v, want ErrDriverBusy", err)
	}
}

func TestReserveLosesRaceToFirstDriver(t *testing.T) {
	f := newFixture(availableStation("st-1"))

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("first driver: %v", err)
	}
	if _, err := f.svc.StartNavigation(context.Background(), 2, "st-1"); !errors.Is(err, repository.ErrAlreadyOccupied) {
		t.Fatalf("err = %v, want ErrAlreadyOccupied", err)
	}

	station, _ := f.stations.GetByID(context.Background(), "st-1")
	if station.DriverID == nil || *station.DriverID != 1 {
		t.Error("station no longer held by the first driver")
	}
}

func TestStartChargeHappyPath(t *testing.T) {
	f := newFixture(availableStation("st-1"))
	f.billing.methods[1] = "pm_123"

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}
	session, err := f.svc.StartCharge(context.Background(), 1, "st-1", nearStation)
	if err != nil {
		t.Fatalf("StartCharge: %v", err)
	}
	if session.Status != models.SessionPending {
		t.Errorf("session status = %s, want pending", session.Status)
	}
	if want := models.NewSessionID(1, session.StartTime); session.ID != want {
		t.Errorf("session id = %s, want %s", session.ID, want)
	}

	station, _ := f.stations.GetByID(context.Background(), "st-1")
	if station.Status != models.StationCharging {
		t.Errorf("station status = %s, want charging", station.Status)
	}
	if len(f.events.opened) != 1 || f.events.opened[0] != session.ID {
		t.Error("session-opened event not published")
	}
}

func TestStartChargeTooFar(t *testing.T) {
	f := newFixture(availableStation("st-1"))
	f.billing.methods[1] = "pm_123"

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}
	farAway := geo.Point{Lat: 37.8044, Lon: -122.2712} // Oakland, ~8 miles out
	if _, err := f.svc.StartCharge(context.Background(), 1, "st-1", farAway); !errors.Is(err, ErrTooFar) {
		t.Fatalf("err = %v, want ErrTooFar", err)
	}
}

func TestStartChargeWithoutPaymentMethod(t *testing.T) {
	f := newFixture(availableStation("st-1"))

	_, err := f.svc.StartCharge(context.Background(), 1, "st-1", nearStation)
	if !errors.Is(err, ErrBillingRequired) {
		t.Fatalf("err = %v, want ErrBillingRequired", err)
	}

	station, _ := f.stations.GetByID(context.Background(), "st-1")
	if station.Status != models.StationAvailable {
		t.Errorf("station status = %s, want available (unchanged)", station.Status)
	}
	if len(f.sessions.sessions) != 0 {
		t.Error("no session should have been created")
	}
}

func TestStartChargeRejectsDriverWithActiveSession(t *testing.T) {
	f := newFixture(availableStation("st-1"), availableStation("st-2"))
	f.billing.methods[1] = "pm_123"

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}
	if _, err := f.svc.StartCharge(context.Background(), 1, "st-1", nearStation); err != nil {
		t.Fatalf("StartCharge: %v", err)
	}

	if _, err := f.svc.StartCharge(context.Background(), 1, "st-2", nearStation); !errors.Is(err, ErrDriverBusy) {
		t.Fatalf("err = %v, want ErrDriverBusy", err)
	}
	if len(f.sessions.sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(f.sessions.sessions))
	}
	station, _ := f.stations.GetByID(context.Background(), "st-2")
	if station.Status != models.StationAvailable {
		t.Errorf("second station status = %s, want available (unchanged)", station.Status)
	}
}

func TestStartChargeDuplicateSessionRaceReleasesStation(t *testing.T) {
	f := newFixture(availableStation("st-1"))
	f.billing.methods[1] = "pm_123"

	// A closed-but-unsettled session still counts against the one-active
	// guard at create time even though the active lookup no longer sees it.
	end := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f.sessions.sessions["1-old"] = &models.ChargeSession{
		ID:        "1-old",
		StationID: "st-1",
		DriverID:  1,
		Status:    models.SessionPending,
		StartTime: end.Add(-time.Hour),
		EndTime:   &end,
	}

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}
	if _, err := f.svc.StartCharge(context.Background(), 1, "st-1", nearStation); !errors.Is(err, repository.ErrDuplicateActiveSession) {
		t.Fatalf("err = %v, want ErrDuplicateActiveSession", err)
	}

	station, _ := f.stations.GetByID(context.Background(), "st-1")
	if station.Status != models.StationAvailable || station.DriverID != nil {
		t.Error("station must be released when session create loses the guard")
	}
	if len(f.sessions.sessions) != 1 {
		t.Errorf("sessions = %d, want only the pre-existing one", len(f.sessions.sessions))
	}
}

func TestEndChargeComputesCost(t *testing.T) {
	f := newFixture(availableStation("st-1"))
	f.billing.methods[1] = "pm_123"

	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return start }

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}
	session, err := f.svc.StartCharge(context.Background(), 1, "st-1", nearStation)
	if err != nil {
		t.Fatalf("StartCharge: %v", err)
	}

	// 90 seconds at $2.00/min must bill exactly $3.00.
	f.svc.now = func() time.Time { return start.Add(90 * time.Second) }

	cost, err := f.svc.EndCharge(context.Background(), 1, session.ID)
	if err != nil {
		t.Fatalf("EndCharge: %v", err)
	}
	if cost != 3.00 {
		t.Errorf("cost = %v, want 3.00", cost)
	}

	station, _ := f.stations.GetByID(context.Background(), "st-1")
	if station.Status != models.StationAvailable {
		t.Errorf("station status = %s, want available", station.Status)
	}
	if len(f.events.closed) != 1 {
		t.Error("session-closed event not published")
	}
}

func TestEndChargeRejectsOtherDriver(t *testing.T) {
	f := newFixture(availableStation("st-1"))
	f.billing.methods[1] = "pm_123"

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}
	session, err := f.svc.StartCharge(context.Background(), 1, "st-1", nearStation)
	if err != nil {
		t.Fatalf("StartCharge: %v", err)
	}

	if _, err := f.svc.EndCharge(context.Background(), 2, session.ID); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestEndChargeIsOneShot(t *testing.T) {
	f := newFixture(availableStation("st-1"))
	f.billing.methods[1] = "pm_123"

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}
	session, err := f.svc.StartCharge(context.Background(), 1, "st-1", nearStation)
	if err != nil {
		t.Fatalf("StartCharge: %v", err)
	}
	if _, err := f.svc.EndCharge(context.Background(), 1, session.ID); err != nil {
		t.Fatalf("first EndCharge: %v", err)
	}
	if _, err := f.svc.EndCharge(context.Background(), 1, session.ID); !errors.Is(err, repository.ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
}

func TestCancelNavigation(t *testing.T) {
	f := newFixture(availableStation("st-1"))

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}
	if err := f.svc.CancelNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("CancelNavigation: %v", err)
	}

	station, _ := f.stations.GetByID(context.Background(), "st-1")
	if station.Status != models.StationAvailable || station.DriverID != nil {
		t.Error("station not returned to available")
	}
}

func TestCancelNavigationRequiresOwnHold(t *testing.T) {
	f := newFixture(availableStation("st-1"))

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}
	if err := f.svc.CancelNavigation(context.Background(), 2, "st-1"); !errors.Is(err, repository.ErrNotReserved) {
		t.Fatalf("err = %v, want ErrNotReserved", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := newFixture(availableStation("st-1"))

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}

	first, err := f.stations.Release(context.Background(), "st-1")
	if err != nil {
		t.Fatalf("first release: %v", err)
	}
	second, err := f.stations.Release(context.Background(), "st-1")
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if first.Status != second.Status || second.DriverID != nil || second.EnRouteAt != nil {
		t.Error("second release changed the outcome")
	}
}

func TestSweepReleasesExpiredReservations(t *testing.T) {
	f := newFixture(availableStation("st-1"), availableStation("st-2"))

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now.Add(-20 * time.Minute) }
	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}

	// Second reservation is fresh and must survive the sweep.
	f.svc.now = func() time.Time { return now }
	if _, err := f.svc.StartNavigation(context.Background(), 2, "st-2"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}

	if err := f.svc.ReleaseExpiredReservations(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	stale, _ := f.stations.GetByID(context.Background(), "st-1")
	if stale.Status != models.StationAvailable || stale.DriverID != nil {
		t.Error("stale reservation not released")
	}
	fresh, _ := f.stations.GetByID(context.Background(), "st-2")
	if fresh.Status != models.StationEnRoute {
		t.Error("fresh reservation incorrectly released")
	}
}

func TestProximityReminderFiresOnce(t *testing.T) {
	f := newFixture(availableStation("st-1"))
	f.billing.methods[1] = "pm_123"

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}
	if _, err := f.svc.StartCharge(context.Background(), 1, "st-1", nearStation); err != nil {
		t.Fatalf("StartCharge: %v", err)
	}

	farAway := geo.Point{Lat: 37.8044, Lon: -122.2712}
	first, err := f.svc.ReportLocation(context.Background(), 1, farAway)
	if err != nil {
		t.Fatalf("first report: %v", err)
	}
	if !first.RemindEndCharge {
		t.Error("first out-of-range report must raise the reminder")
	}

	second, err := f.svc.ReportLocation(context.Background(), 1, farAway)
	if err != nil {
		t.Fatalf("second report: %v", err)
	}
	if second.RemindEndCharge {
		t.Error("reminder must fire at most once per session")
	}
}

func TestReportLocationWithoutSession(t *testing.T) {
	f := newFixture(availableStation("st-1"))

	status, err := f.svc.ReportLocation(context.Background(), 1, nearStation)
	if err != nil {
		t.Fatalf("ReportLocation: %v", err)
	}
	if status.HasSession {
		t.Error("no session expected")
	}
}

func TestStartChargePublishFailureDoesNotBlock(t *testing.T) {
	f := newFixture(availableStation("st-1"))
	f.billing.methods[1] = "pm_123"
	f.events.openErr = errors.New("stream down")

	if _, err := f.svc.StartNavigation(context.Background(), 1, "st-1"); err != nil {
		t.Fatalf("StartNavigation: %v", err)
	}
	session, err := f.svc.StartCharge(context.Background(), 1, "st-1", nearStation)
	if err != nil {
		t.Fatalf("StartCharge must tolerate publish failure: %v", err)
	}
	if session == nil || session.Status != models.SessionPending {
		t.Error("session must remain usable for timing")
	}
}
