package geo

import (
	"math"
	"testing"
)

// TestDistanceIdenticalPoints verifies the zero-distance identity for a few
// representative coordinates, including the poles where trigonometry tends to
// misbehave.
func TestDistanceIdenticalPoints(t *testing.T) {
	points := [][2]float64{
		{0, 0},
		{39.9042, 116.4074},  // Beijing
		{22.5431, 114.0579},  // Shenzhen
		{-33.8688, 151.2093}, // Sydney
		{90, 0},
		{-90, 180},
	}
	for _, p := range points {
		if d := DistanceMeters(p[0], p[1], p[0], p[1]); d != 0 {
			t.Errorf("DistanceMeters(%v,%v, same) = %f, want 0", p[0], p[1], d)
		}
	}
}

// TestDistanceSymmetry checks DistanceMeters(a,b) == DistanceMeters(b,a)
// within floating-point tolerance.
func TestDistanceSymmetry(t *testing.T) {
	tests := []struct {
		lat1, lon1, lat2, lon2 float64
	}{
		{39.9042, 116.4074, 31.2304, 121.4737}, // Beijing - Shanghai
		{0, 0, 1, 0},
		{-45, 170, 45, -170},
	}
	for _, tc := range tests {
		ab := DistanceMeters(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
		ba := DistanceMeters(tc.lat2, tc.lon2, tc.lat1, tc.lon1)
		if math.Abs(ab-ba) > 1e-6 {
			t.Errorf("asymmetric distance: %f vs %f", ab, ba)
		}
	}
}

// TestDistanceOneDegreeLatitude pins the scale of the formula: one degree of
// latitude at the equator is roughly 111.0 to 111.3 km.
func TestDistanceOneDegreeLatitude(t *testing.T) {
	d := DistanceMeters(0, 0, 1, 0)
	if d < 111000 || d > 111300 {
		t.Fatalf("1 degree latitude = %f m, want within [111000, 111300]", d)
	}
}
