package service

import (
	"sort"

	"chargeshare/backend/services/marketplace-service/internal/geo"
	"chargeshare/backend/services/marketplace-service/internal/models"
)

// Rate tiers bucket stations by per-minute price for client-side filtering.
const (
	RateTierEconomy  = "economy"
	RateTierStandard = "standard"
	RateTierPremium  = "premium"
)

const (
	economyRateCeiling  = 0.15
	standardRateCeiling = 0.40
)

// RateTier classifies a per-minute rate.
func RateTier(ratePerMinute float64) string {
	switch {
	case ratePerMinute < economyRateCeiling:
		return RateTierEconomy
	case ratePerMinute < standardRateCeiling:
		return RateTierStandard
	default:
		return RateTierPremium
	}
}

// StationFilter narrows a station list. Zero values mean "no constraint".
type StationFilter struct {
	Adapter     string
	RateTier    string
	NetworkTier string
	RadiusMiles float64
}

// FilterStations returns the stations matching the filter, measured from origin.
func FilterStations(stations []models.Station, origin geo.Point, filter StationFilter) []models.Station {
	var matched []models.Station
	for _, station := range stations {
		if filter.Adapter != "" && !hasAdapter(station.AdapterTypes, filter.Adapter) {
			continue
		}
		if filter.RateTier != "" && RateTier(station.RatePerMinute) != filter.RateTier {
			continue
		}
		if filter.NetworkTier != "" && station.NetworkTier != filter.NetworkTier {
			continue
		}
		if filter.RadiusMiles > 0 {
			if geo.Miles(origin, geo.Point{Lat: station.Lat, Lon: station.Lon}) > filter.RadiusMiles {
				continue
			}
		}
		matched = append(matched, station)
	}
	return matched
}

// SortByDistance orders stations nearest-first from origin.
func SortByDistance(stations []models.Station, origin geo.Point) {
	sort.SliceStable(stations, func(i, j int) bool {
		di := geo.Miles(origin, geo.Point{Lat: stations[i].Lat, Lon: stations[i].Lon})
		dj := geo.Miles(origin, geo.Point{Lat: stations[j].Lat, Lon: stations[j].Lon})
		return di < dj
	})
}

func hasAdapter(adapters []string, wanted string) bool {
	for _, adapter := range adapters {
		if adapter == wanted {
			return true
		}
	}
	return false
}
