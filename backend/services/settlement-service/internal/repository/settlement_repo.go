package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chargeshare/backend/services/settlement-service/internal/models"
)

var (
	// ErrSessionNotFound is returned when no session matches the id.
	ErrSessionNotFound = errors.New("session not found")
)

// SettlementRepository reads and transitions charge sessions during
// settlement. All transitions are status-guarded so duplicate event
// deliveries become no-ops at the database.
type SettlementRepository struct {
	db *sql.DB
}

// NewSettlementRepository creates repository with db connection.
func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// GetForSettlement loads the session joined with the station owner and the
// billing profiles of both parties. auth_ref, failure_reason and the profile
// ids are NOT NULL DEFAULT '' text columns, scanned straight into strings as
// everywhere else.
func (r *SettlementRepository) GetForSettlement(ctx context.Context, sessionID string) (*models.SessionBilling, error) {
	query := `
		SELECT s.id, s.driver_id, s.station_id, st.owner_id, s.status,
		       s.start_time, s.end_time, s.total_cost,
		       s.auth_ref, s.failure_reason,
		       d.payment_method_id, o.payout_account_id
		FROM charge_sessions s
		JOIN stations st ON st.id = s.station_id
		JOIN users d ON d.id = s.driver_id
		JOIN users o ON o.id = st.owner_id
		WHERE s.id = $1`

	var (
		b         models.SessionBilling
		endTime   sql.NullTime
		totalCost sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&b.SessionID, &b.DriverID, &b.StationID, &b.OwnerID, &b.Status,
		&b.StartTime, &endTime, &totalCost,
		&b.AuthRef, &b.FailureReason,
		&b.PaymentMethodID, &b.PayoutAccountID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		b.EndTime = &endTime.Time
	}
	if totalCost.Valid {
		b.TotalCost = &totalCost.Float64
	}
	return &b, nil
}

// MarkAuthorized records the hold reference on a still-pending session.
// Returns false when the session already left pending.
func (r *SettlementRepository) MarkAuthorized(ctx context.Context, sessionID, authRef string) (bool, error) {
	query := `
		UPDATE charge_sessions
		SET status = $2, auth_ref = $3
		WHERE id = $1 AND status = $4`

	res, err := r.db.ExecContext(ctx, query, sessionID, models.SessionAuthorized, authRef, models.SessionPending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// MarkCompleted moves an authorized session to completed. Returns false when
// the session is not in authorized state anymore.
func (r *SettlementRepository) MarkCompleted(ctx context.Context, sessionID string) (bool, error) {
	query := `
		UPDATE charge_sessions
		SET status = $2
		WHERE id = $1 AND status = $3`

	res, err := r.db.ExecContext(ctx, query, sessionID, models.SessionCompleted, models.SessionAuthorized)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// MarkFailed records a terminal failure with its reason. Already-terminal
// sessions are left untouched.
func (r *SettlementRepository) MarkFailed(ctx context.Context, sessionID, reason string) error {
	query := `
		UPDATE charge_sessions
		SET status = $2, failure_reason = $3
		WHERE id = $1 AND status IN ($4, $5)`

	_, err := r.db.ExecContext(ctx, query, sessionID, models.SessionFailed, reason,
		models.SessionPending, models.SessionAuthorized)
	return err
}

// EarningBySession returns the ledger row for a session, if one exists.
func (r *SettlementRepository) EarningBySession(ctx context.Context, sessionID string) (*models.PlatformEarning, error) {
	query := `
		SELECT session_id, amount_cents, created_at
		FROM platform_earnings
		WHERE session_id = $1`

	var e models.PlatformEarning
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&e.SessionID, &e.AmountCents, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// RecordEarning appends the platform share for a session. The primary key on
// session_id makes redelivered closes write at most one row.
func (r *SettlementRepository) RecordEarning(ctx context.Context, sessionID string, amountCents int64, at time.Time) error {
	query := `
		INSERT INTO platform_earnings (session_id, amount_cents, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, sessionID, amountCents, at)
	return err
}

// CreditWallet adds the owner share to the wallet balance in one statement.
func (r *SettlementRepository) CreditWallet(ctx context.Context, ownerID int64, amount float64) error {
	query := `
		UPDATE users
		SET wallet_balance = wallet_balance + $2
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, ownerID, amount)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.New("wallet owner not found")
	}
	return nil
}
