package models

import "time"

// Session statuses as seen by the settlement engine.
const (
	SessionPending    = "pending"
	SessionAuthorized = "authorized"
	SessionCompleted  = "completed"
	SessionFailed     = "failed"
)

// Failure reasons recorded on terminal-failed sessions.
const (
	ReasonNoPaymentMethod = "no_payment_method"
	ReasonAuthorization   = "authorization_failed"
	ReasonCapture         = "capture_failed"
	ReasonTransfer        = "transfer_failed"
	ReasonWalletCredit    = "wallet_credit_failed"
)

// SessionBilling is the settlement view of a charge session joined with the
// station owner and the driver's billing profile.
type SessionBilling struct {
	SessionID       string     `db:"session_id" json:"session_id"`
	DriverID        int64      `db:"driver_id" json:"driver_id"`
	StationID       string     `db:"station_id" json:"station_id"`
	OwnerID         int64      `db:"owner_id" json:"owner_id"`
	Status          string     `db:"status" json:"status"`
	StartTime       time.Time  `db:"start_time" json:"start_time"`
	EndTime         *time.Time `db:"end_time" json:"end_time,omitempty"`
	TotalCost       *float64   `db:"total_cost" json:"total_cost,omitempty"`
	AuthRef         string     `db:"auth_ref" json:"auth_ref,omitempty"`
	FailureReason   string     `db:"failure_reason" json:"failure_reason,omitempty"`
	PaymentMethodID string     `db:"payment_method_id" json:"-"`
	PayoutAccountID string     `db:"payout_account_id" json:"-"`
}

// Closed reports whether the session carries its end time and total cost.
func (s *SessionBilling) Closed() bool {
	return s.EndTime != nil && s.TotalCost != nil
}

// PlatformEarning is one append-only ledger row per completed session.
type PlatformEarning struct {
	SessionID   string    `db:"session_id" json:"session_id"`
	AmountCents int64     `db:"amount_cents" json:"amount_cents"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
