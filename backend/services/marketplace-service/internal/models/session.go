package models

import (
	"fmt"
	"time"
)

// Charge session statuses. pending and authorized are the non-terminal
// states; a session becomes terminal exactly once.
const (
	SessionPending    = "pending"
	SessionAuthorized = "authorized"
	SessionCompleted  = "completed"
	SessionFailed     = "failed"
)

// ChargeSession is one charging engagement from plug-in to completion,
// billed by elapsed minutes times the station rate captured at close.
type ChargeSession struct {
	ID            string     `db:"id" json:"id"`
	StationID     string     `db:"station_id" json:"station_id"`
	DriverID      int64      `db:"driver_id" json:"driver_id"`
	Status        string     `db:"status" json:"status"`
	StartTime     time.Time  `db:"start_time" json:"start_time"`
	EndTime       *time.Time `db:"end_time" json:"end_time,omitempty"`
	TotalCost     *float64   `db:"total_cost" json:"total_cost,omitempty"`
	AuthRef       string     `db:"auth_ref" json:"auth_ref,omitempty"`
	FailureReason string     `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// NewSessionID derives the session id from the driver and the start instant,
// unique per driver per millisecond.
func NewSessionID(driverID int64, start time.Time) string {
	return fmt.Sprintf("%d-%d", driverID, start.UnixMilli())
}

// Terminal reports whether the status is completed or failed.
func Terminal(status string) bool {
	return status == SessionCompleted || status == SessionFailed
}
