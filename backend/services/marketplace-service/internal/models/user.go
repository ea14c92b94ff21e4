package models

import "time"

// User roles.
const (
	RoleDriver = "driver"
	RoleOwner  = "owner"
)

// User is a driver or station owner. PaymentMethodID is the tokenized card
// reference charged for sessions; PayoutAccountID is the owner's linked payout
// destination. WalletBalance accumulates owner shares when no payout
// destination is linked.
type User struct {
	ID              int64     `db:"id" json:"id"`
	Email           string    `db:"email" json:"email"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	Role            string    `db:"role" json:"role"`
	PaymentMethodID string    `db:"payment_method_id" json:"payment_method_id,omitempty"`
	PayoutAccountID string    `db:"payout_account_id" json:"payout_account_id,omitempty"`
	WalletBalance   float64   `db:"wallet_balance" json:"wallet_balance"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
