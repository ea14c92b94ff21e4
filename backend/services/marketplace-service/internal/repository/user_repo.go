package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"chargeshare/backend/services/marketplace-service/internal/models"
)

// ErrUserNotFound represents missing user rows.
var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, email, password_hash, role, payment_method_id, payout_account_id, wallet_balance, created_at, updated_at`

// UserRepository handles users, their billing profile and wallet balance.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository returns repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	const query = `
		INSERT INTO users (email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query, user.Email, user.PasswordHash, user.Role).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

// GetByEmail fetches a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

// GetByID fetches a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// SetPaymentMethod stores the tokenized payment method reference.
func (r *UserRepository) SetPaymentMethod(ctx context.Context, userID int64, paymentMethodID string) error {
	const query = `UPDATE users SET payment_method_id = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, userID, paymentMethodID)
	if err != nil {
		return err
	}
	return requireRow(result, ErrUserNotFound)
}

// SetPayoutAccount links the owner's payout destination.
func (r *UserRepository) SetPayoutAccount(ctx context.Context, userID int64, payoutAccountID string) error {
	const query = `UPDATE users SET payout_account_id = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, userID, payoutAccountID)
	if err != nil {
		return err
	}
	return requireRow(result, ErrUserNotFound)
}

// PaymentMethod returns the user's stored payment method reference, empty when
// none is on file.
func (r *UserRepository) PaymentMethod(ctx context.Context, userID int64) (string, error) {
	const query = `SELECT payment_method_id FROM users WHERE id = $1`
	var paymentMethodID string
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&paymentMethodID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return paymentMethodID, nil
}

func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.PaymentMethodID,
		&u.PayoutAccountID,
		&u.WalletBalance,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
