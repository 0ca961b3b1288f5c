// Package correlate places independently-timestamped events (race photos,
// videos) onto a GPS track: position interpolation, windowed pace/heart-rate
// estimation, and time-proximity clustering of events into discrete stops.
//
// Every function here is a pure, synchronous function of its inputs.  No
// shared state, no I/O — the overview map and the detail view can call into
// this package concurrently with the same track and never observe each
// other.
package correlate

import (
	"sort"

	"race-photo-map/pkg/track"
)

// ToleranceMs is the slack allowed beyond track coverage before an event is
// deemed unplaceable.  Photos taken moments before the watch started (or
// after it stopped) still clamp onto the nearest endpoint; anything further
// out is reported as out-of-range instead of being silently stretched onto
// the track.  The 30 s figure is inherited policy, kept as-is because
// changing it changes observable grouping.
const ToleranceMs = 30_000

// PositionEstimate is a derived location on the track: interpolated
// coordinates plus cumulative distance from the start.  Recomputed per
// query, never stored.
type PositionEstimate struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	DistanceM float64 `json:"distanceM"`
}

// Interpolate estimates where on the track a given UTC instant falls.  The
// second return value is false when the track is empty or the instant lies
// more than ToleranceMs outside the recording.
//
// Instants within tolerance of an endpoint clamp to that endpoint rather
// than extrapolating: the runner was standing near the start/finish, not
// running an imaginary segment.
func Interpolate(t track.Track, timeUTCMs int64) (PositionEstimate, bool) {
	if len(t) == 0 {
		return PositionEstimate{}, false
	}

	first, last := t[0], t[len(t)-1]
	if timeUTCMs < first.TimeUTCMs-ToleranceMs || timeUTCMs > last.TimeUTCMs+ToleranceMs {
		return PositionEstimate{}, false
	}
	if timeUTCMs <= first.TimeUTCMs {
		return pointEstimate(first), true
	}
	if timeUTCMs >= last.TimeUTCMs {
		return pointEstimate(last), true
	}

	// Binary search over monotonic time for the first point at or after the
	// requested instant.
	idx := sort.Search(len(t), func(i int) bool { return t[i].TimeUTCMs >= timeUTCMs })
	b := t[idx]
	if b.TimeUTCMs == timeUTCMs {
		return pointEstimate(b), true
	}
	a := t[idx-1]

	// Ties in time can only occur where distance is also unchanged, which
	// makes the ratio meaningless; snap to the earlier point instead of
	// dividing by zero.
	if b.TimeUTCMs == a.TimeUTCMs {
		return pointEstimate(a), true
	}

	ratio := float64(timeUTCMs-a.TimeUTCMs) / float64(b.TimeUTCMs-a.TimeUTCMs)
	return PositionEstimate{
		Lat:       a.Lat + (b.Lat-a.Lat)*ratio,
		Lon:       a.Lon + (b.Lon-a.Lon)*ratio,
		DistanceM: a.DistanceM + (b.DistanceM-a.DistanceM)*ratio,
	}, true
}

func pointEstimate(p track.Trackpoint) PositionEstimate {
	return PositionEstimate{Lat: p.Lat, Lon: p.Lon, DistanceM: p.DistanceM}
}
