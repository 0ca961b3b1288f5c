package correlate

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"race-photo-map/pkg/track"
)

// trackBaseUTCMs anchors test tracks at 2024-01-21 08:00:00 UTC+8 so event
// timestamps can be written as the wall-clock strings the photo platforms
// emit.
var trackBaseUTCMs = time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC).UnixMilli()

// localStamp renders an offset from trackBaseUTCMs as a platform timestamp.
func localStamp(offsetMs int64) string {
	return FormatLocalTime(trackBaseUTCMs+offsetMs, "2006-01-02 15:04:05")
}

// raceTrack spans two minutes at one kilometer per minute.
func raceTrack() track.Track {
	return track.Track{
		{Lat: 30.00, Lon: 120.00, TimeUTCMs: trackBaseUTCMs, DistanceM: 0},
		{Lat: 30.01, Lon: 120.01, TimeUTCMs: trackBaseUTCMs + 60_000, DistanceM: 1000},
		{Lat: 30.02, Lon: 120.02, TimeUTCMs: trackBaseUTCMs + 120_000, DistanceM: 2000},
	}
}

func TestParseLocalTimestamp(t *testing.T) {
	// 08:00 on the UTC+8 wall clock is midnight UTC.
	ms, ok := ParseLocalTimestamp("2024-01-21 08:00:00")
	if !ok {
		t.Fatal("valid timestamp rejected")
	}
	if ms != trackBaseUTCMs {
		t.Errorf("parsed %d, want %d", ms, trackBaseUTCMs)
	}

	for _, bad := range []string{"", "yesterday", "2024-01-21T08:00:00Z", "2024-13-40 99:00:00"} {
		if _, ok := ParseLocalTimestamp(bad); ok {
			t.Errorf("ParseLocalTimestamp(%q) accepted", bad)
		}
	}
}

// TestCorrelateMergesBurstIntoOneGroup folds three shots taken seconds apart
// into a single stop and checks the group position against an explicitly
// computed average of the member interpolations.
func TestCorrelateMergesBurstIntoOneGroup(t *testing.T) {
	tr := raceTrack()
	offsets := []int64{30_000, 33_000, 39_000}

	events := make([]TimedEvent, len(offsets))
	var wantLat, wantLon, wantDist float64
	for i, off := range offsets {
		events[i] = TimedEvent{URL: "p" + string(rune('1'+i)) + ".jpg", Timestamp: localStamp(off)}
		pos, ok := Interpolate(tr, trackBaseUTCMs+off)
		if !ok {
			t.Fatalf("fixture offset %d not placeable", off)
		}
		wantLat += pos.Lat
		wantLon += pos.Lon
		wantDist += pos.DistanceM
	}
	wantLat /= float64(len(offsets))
	wantLon /= float64(len(offsets))
	wantDist /= float64(len(offsets))

	res := Correlate(tr, events, DefaultMergeWindowMs)
	if len(res.Groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(res.Groups))
	}
	g := res.Groups[0]
	if len(g.Events) != 3 {
		t.Fatalf("group holds %d events, want 3", len(g.Events))
	}
	if math.Abs(g.Lat-wantLat) > 1e-9 || math.Abs(g.Lon-wantLon) > 1e-9 || math.Abs(g.DistanceM-wantDist) > 1e-6 {
		t.Errorf("group mean (%f,%f,%f), want (%f,%f,%f)", g.Lat, g.Lon, g.DistanceM, wantLat, wantLon, wantDist)
	}
	if g.AnchorTimeUTCMs != trackBaseUTCMs+39_000 {
		t.Errorf("anchor = %d, want the latest member's time", g.AnchorTimeUTCMs)
	}
}

// TestCorrelateMergeBoundary pins the tie-break policy: an event whose gap
// from the previous accepted event equals the window exactly still joins the
// earlier group; one millisecond more opens a new group.  Millisecond-level
// gaps cannot be written as wall-clock strings, so the boundary is probed at
// whole-second resolution with a one-second merge window.
func TestCorrelateMergeBoundary(t *testing.T) {
	tr := raceTrack()
	const windowMs = 1000

	atBoundary := Correlate(tr, []TimedEvent{
		{URL: "a.jpg", Timestamp: localStamp(30_000)},
		{URL: "b.jpg", Timestamp: localStamp(31_000)},
	}, windowMs)
	if len(atBoundary.Groups) != 1 {
		t.Fatalf("boundary event opened a new group: %d groups, want 1", len(atBoundary.Groups))
	}

	pastBoundary := Correlate(tr, []TimedEvent{
		{URL: "a.jpg", Timestamp: localStamp(30_000)},
		{URL: "b.jpg", Timestamp: localStamp(32_000)},
	}, windowMs)
	if len(pastBoundary.Groups) != 2 {
		t.Fatalf("past-boundary event stayed in the group: %d groups, want 2", len(pastBoundary.Groups))
	}
}

// TestCorrelateUnsortedFeed merges two "sources" whose combined feed is out
// of order and checks events never leak between buckets.
func TestCorrelateUnsortedFeed(t *testing.T) {
	tr := raceTrack()
	events := []TimedEvent{
		{URL: "late.jpg", Timestamp: localStamp(90_000)},
		{URL: "untimed.jpg"},
		{URL: "early.jpg", Timestamp: localStamp(10_000)},
		{URL: "way-after.jpg", Timestamp: localStamp(300_000)},
	}

	res := Correlate(tr, events, DefaultMergeWindowMs)

	if len(res.Groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(res.Groups))
	}
	if res.Groups[0].Events[0].URL != "early.jpg" || res.Groups[1].Events[0].URL != "late.jpg" {
		t.Errorf("groups out of order: %v / %v", res.Groups[0].Events, res.Groups[1].Events)
	}

	wantUntimed := []TimedEvent{{URL: "untimed.jpg"}}
	if diff := cmp.Diff(wantUntimed, res.Untimed); diff != "" {
		t.Errorf("untimed bucket mismatch (-want +got):\n%s", diff)
	}

	if len(res.OutOfRange) != 1 || res.OutOfRange[0].Events[0].URL != "way-after.jpg" {
		t.Errorf("out-of-range bucket wrong: %+v", res.OutOfRange)
	}
}

// TestCorrelateEndToEnd is the scenario from the engine's acceptance list:
// a three-point track with a mid-segment photo and a photo past tolerance.
func TestCorrelateEndToEnd(t *testing.T) {
	tr := raceTrack()
	res := Correlate(tr, []TimedEvent{
		{URL: "mid.jpg", Timestamp: localStamp(30_000)},
		{URL: "finish-party.jpg", Timestamp: localStamp(200_000)},
	}, DefaultMergeWindowMs)

	if len(res.Groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(res.Groups))
	}
	g := res.Groups[0]
	if math.Abs(g.DistanceM-500) > 1e-6 {
		t.Errorf("mid photo distance = %f, want 500", g.DistanceM)
	}
	if math.Abs(g.Lat-30.005) > 1e-9 || math.Abs(g.Lon-120.005) > 1e-9 {
		t.Errorf("mid photo position = (%f, %f), want (30.005, 120.005)", g.Lat, g.Lon)
	}

	if len(res.OutOfRange) != 1 {
		t.Fatalf("got %d out-of-range groups, want 1", len(res.OutOfRange))
	}
	if res.OutOfRange[0].Events[0].URL != "finish-party.jpg" {
		t.Errorf("wrong event out of range: %+v", res.OutOfRange[0])
	}
	if len(res.Untimed) != 0 {
		t.Errorf("unexpected untimed events: %+v", res.Untimed)
	}
}

// TestCorrelateGroupMetrics checks each in-range group carries one
// representative metrics sample computed at its anchor time.
func TestCorrelateGroupMetrics(t *testing.T) {
	tr := raceTrack()
	res := Correlate(tr, []TimedEvent{
		{URL: "p.jpg", Timestamp: localStamp(60_000)},
	}, DefaultMergeWindowMs)

	if len(res.Groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(res.Groups))
	}
	want := SampleMetrics(tr, trackBaseUTCMs+60_000)
	if diff := cmp.Diff(want, res.Groups[0].Metrics); diff != "" {
		t.Errorf("group metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestCorrelateEmptyTrack(t *testing.T) {
	res := Correlate(nil, []TimedEvent{
		{URL: "p.jpg", Timestamp: localStamp(0)},
		{URL: "q.jpg"},
	}, DefaultMergeWindowMs)
	if len(res.Groups) != 0 {
		t.Errorf("empty track produced groups: %+v", res.Groups)
	}
	if len(res.OutOfRange) != 1 || len(res.Untimed) != 1 {
		t.Errorf("empty track partition wrong: %+v", res)
	}
}
