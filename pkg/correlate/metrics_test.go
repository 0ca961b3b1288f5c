package correlate

import (
	"math"
	"testing"

	"race-photo-map/pkg/track"
)

func TestSampleMetricsSteadyPace(t *testing.T) {
	// Two points one kilometer apart over exactly five minutes.
	tr := track.Track{
		{Lat: 30, Lon: 120, TimeUTCMs: 0, DistanceM: 0},
		{Lat: 30.01, Lon: 120, TimeUTCMs: 300_000, DistanceM: 1000},
	}
	got := SampleMetrics(tr, 300_000)
	if !got.PaceValid {
		t.Fatal("steady movement should produce a valid pace")
	}
	if math.Abs(got.PaceMinPerKm-5.0) > 1e-9 {
		t.Errorf("pace = %f min/km, want 5.0", got.PaceMinPerKm)
	}
}

func TestSampleMetricsStationary(t *testing.T) {
	// Near-zero movement over a non-zero interval: no estimate, not zero,
	// not infinity.
	tr := track.Track{
		{Lat: 30, Lon: 120, TimeUTCMs: 0, DistanceM: 0},
		{Lat: 30, Lon: 120, TimeUTCMs: 60_000, DistanceM: 0.5},
	}
	if got := SampleMetrics(tr, 60_000); got.PaceValid {
		t.Errorf("stationary interval produced pace %f, want invalid", got.PaceMinPerKm)
	}
}

func TestSampleMetricsImplausiblySlow(t *testing.T) {
	// 100 m in 30 minutes computes to 300 min/km — treated as a stop.
	tr := track.Track{
		{Lat: 30, Lon: 120, TimeUTCMs: 0, DistanceM: 0},
		{Lat: 30.001, Lon: 120, TimeUTCMs: 1_800_000, DistanceM: 100},
	}
	if got := SampleMetrics(tr, 1_800_000); got.PaceValid {
		t.Errorf("implausible pace %f reported as valid", got.PaceMinPerKm)
	}
}

func TestSampleMetricsWindowSelection(t *testing.T) {
	// Points every 10 s.  At t=60s the trailing window must reach back to
	// t=30s (the most recent point at least 30 s earlier), not just one
	// segment.
	tr := track.Track{}
	for i := 0; i <= 6; i++ {
		tr = append(tr, track.Trackpoint{
			Lat: 30, Lon: 120,
			TimeUTCMs: int64(i) * 10_000,
			DistanceM: float64(i) * 50, // 50 m per 10 s = 3:20 min/km
		})
	}
	got := SampleMetrics(tr, 60_000)
	if !got.PaceValid {
		t.Fatal("want a valid pace")
	}
	// Window: t=30s..60s, 150 m in 0.5 min → 3.333 min/km.
	want := 0.5 / 0.15
	if math.Abs(got.PaceMinPerKm-want) > 1e-9 {
		t.Errorf("pace = %f, want %f", got.PaceMinPerKm, want)
	}
}

func TestSampleMetricsWindowFallbackNearStart(t *testing.T) {
	// Only 10 s of history: the immediate predecessor serves as the window.
	tr := track.Track{
		{Lat: 30, Lon: 120, TimeUTCMs: 0, DistanceM: 0},
		{Lat: 30.0005, Lon: 120, TimeUTCMs: 10_000, DistanceM: 50},
	}
	got := SampleMetrics(tr, 10_000)
	if !got.PaceValid {
		t.Fatal("fallback window should still produce a pace")
	}
	want := (10_000.0 / 60_000.0) / 0.05
	if math.Abs(got.PaceMinPerKm-want) > 1e-9 {
		t.Errorf("pace = %f, want %f", got.PaceMinPerKm, want)
	}
}

func TestSampleMetricsHeartRate(t *testing.T) {
	tr := track.Track{
		{Lat: 30, Lon: 120, TimeUTCMs: 0, DistanceM: 0},
		{Lat: 30.001, Lon: 120, TimeUTCMs: 60_000, DistanceM: 100},
		{Lat: 30.002, Lon: 120, TimeUTCMs: 120_000, DistanceM: 200, HeartRate: 161, HeartRateValid: true},
	}

	// The located point has no reading; the next one does.
	got := SampleMetrics(tr, 60_000)
	if !got.HeartRateValid || got.HeartRateBpm != 161 {
		t.Errorf("heart rate fallback = %+v, want 161 from the next point", got)
	}

	// No reading at or after the instant anywhere: invalid.
	bare := track.Track{
		{Lat: 30, Lon: 120, TimeUTCMs: 0, DistanceM: 0},
		{Lat: 30.001, Lon: 120, TimeUTCMs: 60_000, DistanceM: 100},
	}
	if got := SampleMetrics(bare, 30_000); got.HeartRateValid {
		t.Errorf("phantom heart rate: %+v", got)
	}
}

func TestSampleMetricsEmptyTrack(t *testing.T) {
	got := SampleMetrics(nil, 1000)
	if got.PaceValid || got.HeartRateValid {
		t.Errorf("empty track produced estimates: %+v", got)
	}
}
