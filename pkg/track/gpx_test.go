package track

import (
	"strings"
	"testing"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx xmlns="http://www.topografix.com/GPX/1/1" xmlns:gpxtpx="http://www.garmin.com/xmlschemas/TrackPointExtension/v1" version="1.1" creator="Strava">
  <trk>
    <name>morning race</name>
    <trkseg>
      <trkpt lat="39.9042" lon="116.4074">
        <ele>43.6</ele>
        <time>2024-01-21T00:30:00Z</time>
        <extensions>
          <gpxtpx:TrackPointExtension>
            <gpxtpx:hr>148</gpxtpx:hr>
          </gpxtpx:TrackPointExtension>
        </extensions>
      </trkpt>
      <trkpt lat="39.9050" lon="116.4080">
        <time>2024-01-21T00:30:05Z</time>
      </trkpt>
      <trkpt lat="not-a-number" lon="116.4090">
        <time>2024-01-21T00:30:10Z</time>
      </trkpt>
      <trkpt lat="39.9060" lon="116.4095">
        <ele>44.1</ele>
      </trkpt>
    </trkseg>
  </trk>
</gpx>`

func TestDecodeGPX(t *testing.T) {
	raw, err := DecodeGPX(strings.NewReader(sampleGPX))
	if err != nil {
		t.Fatalf("DecodeGPX: %v", err)
	}
	if len(raw) != 4 {
		t.Fatalf("decoded %d raw points, want 4", len(raw))
	}

	first := raw[0]
	if !first.PositionValid || first.Lat != 39.9042 || first.Lon != 116.4074 {
		t.Errorf("first point position wrong: %+v", first)
	}
	if !first.TimeValid {
		t.Error("first point lost its timestamp")
	}
	if !first.ElevationValid || first.Elevation != 43.6 {
		t.Errorf("first point elevation wrong: %+v", first)
	}
	if !first.HeartRateValid || first.HeartRate != 148 {
		t.Errorf("first point heart rate wrong: %+v", first)
	}

	if raw[1].ElevationValid || raw[1].HeartRateValid {
		t.Errorf("second point grew phantom readings: %+v", raw[1])
	}
	if raw[2].PositionValid {
		t.Error("non-numeric latitude should leave PositionValid false")
	}
	if raw[3].TimeValid {
		t.Error("missing <time> should leave TimeValid false")
	}
}

// TestDecodeGPXThenParse runs the full ingestion path: the two bad samples
// above must vanish while cumulative distance covers the survivors.
func TestDecodeGPXThenParse(t *testing.T) {
	raw, err := DecodeGPX(strings.NewReader(sampleGPX))
	if err != nil {
		t.Fatalf("DecodeGPX: %v", err)
	}
	tr := ParseTrack(raw)
	if len(tr) != 2 {
		t.Fatalf("track has %d points, want 2", len(tr))
	}
	if tr[0].DistanceM != 0 {
		t.Errorf("first distance = %f, want 0", tr[0].DistanceM)
	}
	if tr[1].DistanceM <= 0 {
		t.Errorf("second distance = %f, want > 0", tr[1].DistanceM)
	}
}

func TestDecodeGPXRejectsGarbage(t *testing.T) {
	if _, err := DecodeGPX(strings.NewReader("{not xml}")); err == nil {
		t.Fatal("DecodeGPX on non-XML input should fail")
	}
}
