package track

import (
	"math"
	"testing"
)

func validPoint(lat, lon float64, timeMs int64) RawPoint {
	return RawPoint{Lat: lat, Lon: lon, PositionValid: true, TimeUTCMs: timeMs, TimeValid: true}
}

// TestParseTrackSkipsInvalidPoints verifies that exactly the points lacking a
// timestamp or a position are dropped and that the survivors keep their
// input order.
func TestParseTrackSkipsInvalidPoints(t *testing.T) {
	raw := []RawPoint{
		validPoint(39.0, 116.0, 1000),
		{Lat: 39.1, Lon: 116.1, PositionValid: true}, // no timestamp
		validPoint(39.2, 116.2, 3000),
		{TimeUTCMs: 4000, TimeValid: true}, // no position
		validPoint(39.3, 116.3, 5000),
	}

	got := ParseTrack(raw)
	if len(got) != 3 {
		t.Fatalf("ParseTrack kept %d points, want 3", len(got))
	}
	wantTimes := []int64{1000, 3000, 5000}
	for i, ts := range wantTimes {
		if got[i].TimeUTCMs != ts {
			t.Errorf("point %d time = %d, want %d", i, got[i].TimeUTCMs, ts)
		}
	}
}

// TestParseTrackCumulativeDistance checks that distance starts at zero, only
// grows, and bridges gaps left by skipped points: the distance between the
// two survivors around a skipped sample is measured directly between them.
func TestParseTrackCumulativeDistance(t *testing.T) {
	raw := []RawPoint{
		validPoint(0.00, 0, 0),
		{Lat: 50, Lon: 50, PositionValid: true}, // skipped: must not affect distance
		validPoint(0.01, 0, 60000),
		validPoint(0.02, 0, 120000),
	}

	got := ParseTrack(raw)
	if len(got) != 3 {
		t.Fatalf("kept %d points, want 3", len(got))
	}
	if got[0].DistanceM != 0 {
		t.Errorf("first point distance = %f, want 0", got[0].DistanceM)
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistanceM < got[i-1].DistanceM {
			t.Errorf("distance decreased at point %d: %f < %f", i, got[i].DistanceM, got[i-1].DistanceM)
		}
	}
	// 0.01 degrees of latitude is roughly 1.11 km; the bridged segment must
	// match that, not the detour through the skipped point.
	seg := got[1].DistanceM - got[0].DistanceM
	if seg < 1100 || seg > 1120 {
		t.Errorf("bridged segment = %f m, want about 1111 m", seg)
	}
}

// TestParseTrackCarriesOptionalFields confirms elevation and heart rate pass
// through with their validity flags instead of being defaulted to zero.
func TestParseTrackCarriesOptionalFields(t *testing.T) {
	withExtras := validPoint(10, 20, 1000)
	withExtras.Elevation = 0 // a real zero-meter reading
	withExtras.ElevationValid = true
	withExtras.HeartRate = 152
	withExtras.HeartRateValid = true

	bare := validPoint(10.001, 20, 2000)

	got := ParseTrack([]RawPoint{withExtras, bare})
	if len(got) != 2 {
		t.Fatalf("kept %d points, want 2", len(got))
	}
	if !got[0].ElevationValid || got[0].Elevation != 0 {
		t.Errorf("zero elevation reading lost: valid=%v value=%f", got[0].ElevationValid, got[0].Elevation)
	}
	if !got[0].HeartRateValid || got[0].HeartRate != 152 {
		t.Errorf("heart rate lost: valid=%v value=%d", got[0].HeartRateValid, got[0].HeartRate)
	}
	if got[1].ElevationValid || got[1].HeartRateValid {
		t.Errorf("bare point grew phantom readings: %+v", got[1])
	}
}

func TestParseTrackEmptyInput(t *testing.T) {
	if got := ParseTrack(nil); len(got) != 0 {
		t.Fatalf("ParseTrack(nil) = %d points, want 0", len(got))
	}
}

func TestTrackAccessors(t *testing.T) {
	tr := ParseTrack([]RawPoint{
		validPoint(0, 0, 1000),
		validPoint(0.01, 0, 2000),
	})
	if tr.Start() != 1000 || tr.End() != 2000 {
		t.Errorf("Start/End = %d/%d, want 1000/2000", tr.Start(), tr.End())
	}
	if math.Abs(tr.TotalDistanceM()-tr[1].DistanceM) > 1e-9 {
		t.Errorf("TotalDistanceM = %f, want %f", tr.TotalDistanceM(), tr[1].DistanceM)
	}

	var empty Track
	if empty.Start() != 0 || empty.End() != 0 || empty.TotalDistanceM() != 0 {
		t.Error("empty track accessors should all return 0")
	}
}
