package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"chargeshare/backend/services/marketplace-service/internal/models"
)

var (
	// ErrStationNotFound indicates a missing station row.
	ErrStationNotFound = errors.New("station not found")
	// ErrAlreadyOccupied is returned when a reservation loses the occupancy race.
	ErrAlreadyOccupied = errors.New("station already occupied")
	// ErrNotReserved is returned when begin-charging finds no matching en-route hold.
	ErrNotReserved = errors.New("station not reserved by driver")
)

const stationColumns = `id, owner_id, name, address, lat, lon, rate_per_minute, adapter_types, network_tier, active, status, driver_id, en_route_at, created_at, updated_at`

// StationRepository owns station rows and their occupancy transitions. Every
// transition is a single conditional UPDATE, so a losing writer observes zero
// affected rows instead of silently overwriting.
type StationRepository struct {
	db *sql.DB
}

// NewStationRepository returns repository.
func NewStationRepository(db *sql.DB) *StationRepository {
	return &StationRepository{db: db}
}

// Create inserts a new station owned by an owner, initially available.
func (r *StationRepository) Create(ctx context.Context, station *models.Station) error {
	const query = `
		INSERT INTO stations (id, owner_id, name, address, lat, lon, rate_per_minute, adapter_types, network_tier, active, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, 'available', NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		station.ID,
		station.OwnerID,
		station.Name,
		station.Address,
		station.Lat,
		station.Lon,
		station.RatePerMinute,
		joinAdapters(station.AdapterTypes),
		station.NetworkTier,
	).Scan(&station.CreatedAt, &station.UpdatedAt)
}

// GetByID fetches one station.
func (r *StationRepository) GetByID(ctx context.Context, id string) (*models.Station, error) {
	const query = `SELECT ` + stationColumns + ` FROM stations WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// ListActive returns all stations still listed by their owners.
func (r *StationRepository) ListActive(ctx context.Context) ([]models.Station, error) {
	const query = `SELECT ` + stationColumns + ` FROM stations WHERE active ORDER BY created_at`
	return r.scanMany(ctx, query)
}

// ListByOwner returns an owner's stations, listed or not.
func (r *StationRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.Station, error) {
	const query = `SELECT ` + stationColumns + ` FROM stations WHERE owner_id = $1 ORDER BY created_at`
	return r.scanMany(ctx, query, ownerID)
}

// FindHeldByDriver returns stations currently occupied by the driver.
func (r *StationRepository) FindHeldByDriver(ctx context.Context, driverID int64) ([]models.Station, error) {
	const query = `SELECT ` + stationColumns + ` FROM stations WHERE driver_id = $1 AND status IN ('en_route', 'charging')`
	return r.scanMany(ctx, query, driverID)
}

// SetActive toggles the owner's availability flag. Occupied stations keep
// their occupancy; the flag only gates new reservations.
func (r *StationRepository) SetActive(ctx context.Context, id string, ownerID int64, active bool) error {
	const query = `UPDATE stations SET active = $3, updated_at = NOW() WHERE id = $1 AND owner_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID, active)
	if err != nil {
		return err
	}
	return requireRow(result, ErrStationNotFound)
}

// Reserve atomically claims an available station for a driver en route.
func (r *StationRepository) Reserve(ctx context.Context, stationID string, driverID int64, now time.Time) (*models.Station, error) {
	const query = `
		UPDATE stations
		SET status = 'en_route', driver_id = $2, en_route_at = $3, updated_at = NOW()
		WHERE id = $1 AND active AND status = 'available'
		RETURNING ` + stationColumns
	station, err := r.scanOne(r.db.QueryRowContext(ctx, query, stationID, driverID, now.UTC()))
	if errors.Is(err, ErrStationNotFound) {
		return nil, r.classifyConflict(ctx, stationID, ErrAlreadyOccupied)
	}
	return station, err
}

// BeginCharging moves the driver's own en-route hold to charging. The
// occupancy check happens inside the UPDATE, so a reservation stolen by a
// later release/reserve pair is rejected here.
func (r *StationRepository) BeginCharging(ctx context.Context, stationID string, driverID int64) (*models.Station, error) {
	const query = `
		UPDATE stations
		SET status = 'charging', updated_at = NOW()
		WHERE id = $1 AND status = 'en_route' AND driver_id = $2
		RETURNING ` + stationColumns
	station, err := r.scanOne(r.db.QueryRowContext(ctx, query, stationID, driverID))
	if errors.Is(err, ErrStationNotFound) {
		return nil, r.classifyConflict(ctx, stationID, ErrNotReserved)
	}
	return station, err
}

// Release returns a station to available. Idempotent: releasing an already
// available station is a no-op that still returns the row.
func (r *StationRepository) Release(ctx context.Context, stationID string) (*models.Station, error) {
	const query = `
		UPDATE stations
		SET status = 'available', driver_id = NULL, en_route_at = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + stationColumns
	return r.scanOne(r.db.QueryRowContext(ctx, query, stationID))
}

// ReleaseExpired frees every en-route hold older than the cutoff and returns
// the released stations for audit logging.
func (r *StationRepository) ReleaseExpired(ctx context.Context, cutoff time.Time) ([]models.Station, error) {
	const query = `
		UPDATE stations
		SET status = 'available', driver_id = NULL, en_route_at = NULL, updated_at = NOW()
		WHERE status = 'en_route' AND en_route_at < $1
		RETURNING ` + stationColumns
	rows, err := r.db.QueryContext(ctx, query, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// classifyConflict distinguishes a missing station from a lost occupancy race.
func (r *StationRepository) classifyConflict(ctx context.Context, stationID string, conflict error) error {
	if _, err := r.GetByID(ctx, stationID); err != nil {
		return err
	}
	return conflict
}

func (r *StationRepository) scanMany(ctx context.Context, query string, args ...interface{}) ([]models.Station, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *StationRepository) scanOne(row *sql.Row) (*models.Station, error) {
	station, err := scanStation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStationNotFound
		}
		return nil, err
	}
	return station, nil
}

func collect(rows *sql.Rows) ([]models.Station, error) {
	var stations []models.Station
	for rows.Next() {
		station, err := scanStation(rows.Scan)
		if err != nil {
			return nil, err
		}
		stations = append(stations, *station)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stations, nil
}

func scanStation(scan func(...interface{}) error) (*models.Station, error) {
	var s models.Station
	var adapters string
	var driverID sql.NullInt64
	var enRouteAt sql.NullTime
	if err := scan(
		&s.ID,
		&s.OwnerID,
		&s.Name,
		&s.Address,
		&s.Lat,
		&s.Lon,
		&s.RatePerMinute,
		&adapters,
		&s.NetworkTier,
		&s.Active,
		&s.Status,
		&driverID,
		&enRouteAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.AdapterTypes = splitAdapters(adapters)
	if driverID.Valid {
		s.DriverID = &driverID.Int64
	}
	if enRouteAt.Valid {
		t := enRouteAt.Time
		s.EnRouteAt = &t
	}
	return &s, nil
}

func requireRow(result sql.Result, missing error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return missing
	}
	return nil
}

func joinAdapters(adapters []string) string {
	return strings.Join(adapters, ",")
}

func splitAdapters(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
