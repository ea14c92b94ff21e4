package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chargeshare/backend/services/marketplace-service/internal/models"
)

var (
	// ErrSessionNotFound indicates a missing session row.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned when closing a session that already has an end time.
	ErrSessionClosed = errors.New("session already closed")
	// ErrDuplicateActiveSession is returned when the driver already has a
	// pending or authorized session.
	ErrDuplicateActiveSession = errors.New("driver already has an active session")
)

const sessionColumns = `id, station_id, driver_id, status, start_time, end_time, total_cost, auth_ref, failure_reason, created_at, updated_at`

// SessionRepository owns charge session rows. Creation and closing are both
// guarded single statements; the same-driver create race is also closed by the
// partial unique index on (driver_id) for non-terminal statuses.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new pending session unless the driver already has a
// non-terminal one.
func (r *SessionRepository) Create(ctx context.Context, session *models.ChargeSession) error {
	const query = `
		INSERT INTO charge_sessions (id, station_id, driver_id, status, start_time, created_at, updated_at)
		SELECT $1, $2, $3, 'pending', $4, NOW(), NOW()
		WHERE NOT EXISTS (
			SELECT 1 FROM charge_sessions
			WHERE driver_id = $3 AND status IN ('pending', 'authorized')
		)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		session.ID,
		session.StationID,
		session.DriverID,
		session.StartTime.UTC(),
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDuplicateActiveSession
	}
	if err != nil {
		return err
	}
	session.Status = models.SessionPending
	return nil
}

// Close records end time and total cost exactly once. Status is left for the
// settlement engine to finalize.
func (r *SessionRepository) Close(ctx context.Context, sessionID string, endTime time.Time, totalCost float64) error {
	const query = `
		UPDATE charge_sessions
		SET end_time = $2, total_cost = $3, updated_at = NOW()
		WHERE id = $1 AND end_time IS NULL AND status IN ('pending', 'authorized')
	`
	result, err := r.db.ExecContext(ctx, query, sessionID, endTime.UTC(), totalCost)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, sessionID); err != nil {
			return err
		}
		return ErrSessionClosed
	}
	return nil
}

// GetByID fetches one session.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.ChargeSession, error) {
	const query = `SELECT ` + sessionColumns + ` FROM charge_sessions WHERE id = $1`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// ActiveByDriver returns the driver's current non-terminal session, or
// ErrSessionNotFound when there is none.
func (r *SessionRepository) ActiveByDriver(ctx context.Context, driverID int64) (*models.ChargeSession, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM charge_sessions
		WHERE driver_id = $1 AND status IN ('pending', 'authorized')
		LIMIT 1
	`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, driverID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// ListByDriver returns the driver's most recent sessions.
func (r *SessionRepository) ListByDriver(ctx context.Context, driverID int64, limit int) ([]models.ChargeSession, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT ` + sessionColumns + `
		FROM charge_sessions
		WHERE driver_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, driverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.ChargeSession
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func scanSession(scan func(...interface{}) error) (*models.ChargeSession, error) {
	var s models.ChargeSession
	var endTime sql.NullTime
	var totalCost sql.NullFloat64
	if err := scan(
		&s.ID,
		&s.StationID,
		&s.DriverID,
		&s.Status,
		&s.StartTime,
		&endTime,
		&totalCost,
		&s.AuthRef,
		&s.FailureReason,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if endTime.Valid {
		t := endTime.Time
		s.EndTime = &t
	}
	if totalCost.Valid {
		c := totalCost.Float64
		s.TotalCost = &c
	}
	return &s, nil
}
