package models

import "time"

// Station occupancy states. Transitions are driven only by the charge flow
// and the en-route timeout sweep.
const (
	StationAvailable = "available"
	StationEnRoute   = "en_route"
	StationCharging  = "charging"
)

// Network tiers a host can list a charger under.
const (
	NetworkTierStandard = "standard"
	NetworkTierPremium  = "premium"
)

// Station is a privately owned charger listed on the marketplace.
// Status and DriverID move together: available means no occupying driver,
// en_route/charging mean DriverID holds the claim.
type Station struct {
	ID            string     `db:"id" json:"id"`
	OwnerID       int64      `db:"owner_id" json:"owner_id"`
	Name          string     `db:"name" json:"name"`
	Address       string     `db:"address" json:"address"`
	Lat           float64    `db:"lat" json:"lat"`
	Lon           float64    `db:"lon" json:"lon"`
	RatePerMinute float64    `db:"rate_per_minute" json:"rate_per_minute"`
	AdapterTypes  []string   `db:"adapter_types" json:"adapter_types"`
	NetworkTier   string     `db:"network_tier" json:"network_tier"`
	Active        bool       `db:"active" json:"active"`
	Status        string     `db:"status" json:"status"`
	DriverID      *int64     `db:"driver_id" json:"driver_id,omitempty"`
	EnRouteAt     *time.Time `db:"en_route_at" json:"en_route_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// HeldBy reports whether the given driver currently occupies the station.
func (s *Station) HeldBy(driverID int64) bool {
	return s.DriverID != nil && *s.DriverID == driverID && s.Status != StationAvailable
}
