package profile

import (
	"testing"

	"race-photo-map/pkg/track"
)

// syntheticTrack builds n points, one every 10 s and 50 m, with elevation
// everywhere and heart rate on even points only.
func syntheticTrack(n int) track.Track {
	tr := make(track.Track, 0, n)
	for i := 0; i < n; i++ {
		pt := track.Trackpoint{
			Lat:            30 + float64(i)*0.0001,
			Lon:            120,
			TimeUTCMs:      int64(i) * 10_000,
			DistanceM:      float64(i) * 50,
			Elevation:      100 + float64(i%7),
			ElevationValid: true,
		}
		if i%2 == 0 {
			pt.HeartRate = 140 + i%20
			pt.HeartRateValid = true
		}
		tr = append(tr, pt)
	}
	return tr
}

func TestBuildTooShort(t *testing.T) {
	if _, ok := Build(nil, DefaultMaxSamples); ok {
		t.Error("empty track should not build a profile")
	}
	if _, ok := Build(syntheticTrack(1), DefaultMaxSamples); ok {
		t.Error("single-point track should not build a profile")
	}
}

// TestBuildKeepsFinalPoint uses a 1000-point track with maxSamples=500: the
// stride is 2, the last index 999 does not land on it, and the final point
// must still close the series.
func TestBuildKeepsFinalPoint(t *testing.T) {
	tr := syntheticTrack(1000)
	p, ok := Build(tr, 500)
	if !ok {
		t.Fatal("profile should build")
	}

	want := 501 // 500 stride hits plus the appended tail
	if len(p.TimeLabels) != want {
		t.Fatalf("got %d samples, want %d", len(p.TimeLabels), want)
	}

	lastLabel := p.DistanceLabels[len(p.DistanceLabels)-1]
	if lastLabel != "49.95" {
		t.Errorf("final distance label = %q, want the track's last point (49.95)", lastLabel)
	}
}

func TestBuildParallelSeriesLengths(t *testing.T) {
	p, ok := Build(syntheticTrack(37), 10)
	if !ok {
		t.Fatal("profile should build")
	}
	n := len(p.TimeLabels)
	if len(p.DistanceLabels) != n || len(p.Elevation) != n || len(p.Pace) != n || len(p.HeartRate) != n {
		t.Fatalf("series lengths diverge: time=%d dist=%d ele=%d pace=%d hr=%d",
			n, len(p.DistanceLabels), len(p.Elevation), len(p.Pace), len(p.HeartRate))
	}
}

func TestBuildHeartRateSentinels(t *testing.T) {
	// Stride 1 keeps every point, so odd indices must carry nil heart rate.
	p, ok := Build(syntheticTrack(10), 100)
	if !ok {
		t.Fatal("profile should build")
	}
	if !p.HasHeartRate {
		t.Error("HasHeartRate should be true when any sample has a reading")
	}
	if p.HeartRate[1] != nil {
		t.Errorf("odd point heart rate = %v, want nil sentinel", *p.HeartRate[1])
	}
	if p.HeartRate[2] == nil {
		t.Error("even point heart rate missing")
	}

	// A track with no readings at all must not set the flag.
	bare := syntheticTrack(10)
	for i := range bare {
		bare[i].HeartRateValid = false
	}
	bp, _ := Build(bare, 100)
	if bp.HasHeartRate {
		t.Error("HasHeartRate set for a track with no readings")
	}
}

// TestBuildPaceUsesFullTrack verifies the stride does not distort pace: the
// same instant must yield the same pace whether sampled densely or sparsely.
func TestBuildPaceUsesFullTrack(t *testing.T) {
	tr := syntheticTrack(100)

	dense, _ := Build(tr, 1000) // stride 1
	sparse, _ := Build(tr, 10)  // stride 10

	// Dense index 50 and sparse index 5 address the same trackpoint.
	dp, sp := dense.Pace[50], sparse.Pace[5]
	if dp == nil || sp == nil {
		t.Fatal("expected valid pace at a mid-track point")
	}
	if *dp != *sp {
		t.Errorf("stride changed pace: dense %f vs sparse %f", *dp, *sp)
	}
}
