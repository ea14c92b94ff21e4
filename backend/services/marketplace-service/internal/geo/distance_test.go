package geo

import (
	"math"
	"testing"
)

func TestMilesZeroForSamePoint(t *testing.T) {
	points := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 37.7749, Lon: -122.4194},
		{Lat: -33.8688, Lon: 151.2093},
	}
	for _, p := range points {
		if d := Miles(p, p); d != 0 {
			t.Errorf("Miles(%v, %v) = %v, want 0", p, p, d)
		}
	}
}

func TestMilesSymmetry(t *testing.T) {
	a := Point{Lat: 37.7749, Lon: -122.4194}
	b := Point{Lat: 34.0522, Lon: -118.2437}
	if d1, d2 := Miles(a, b), Miles(b, a); d1 != d2 {
		t.Fatalf("asymmetric distance: %v vs %v", d1, d2)
	}
}

func TestMilesKnownDistance(t *testing.T) {
	// San Francisco to Los Angeles, roughly 347 miles great-circle.
	sf := Point{Lat: 37.7749, Lon: -122.4194}
	la := Point{Lat: 34.0522, Lon: -118.2437}
	d := Miles(sf, la)
	if d < 340 || d > 355 {
		t.Fatalf("SF-LA distance = %v, want ~347", d)
	}
}

func TestMilesShortRange(t *testing.T) {
	// Two points about 0.43 miles apart; must pass the 0.5 mi gate.
	a := Point{Lat: 40.7580, Lon: -73.9855}
	b := Point{Lat: 40.7527, Lon: -73.9772}
	d := Miles(a, b)
	if d <= 0.3 || d >= 0.5 {
		t.Fatalf("short range distance = %v, want within (0.3, 0.5)", d)
	}
}

func TestMilesNaNPropagates(t *testing.T) {
	a := Point{Lat: math.NaN(), Lon: 0}
	b := Point{Lat: 0, Lon: 0}
	if d := Miles(a, b); !math.IsNaN(d) {
		t.Fatalf("Miles with NaN input = %v, want NaN", d)
	}
}
