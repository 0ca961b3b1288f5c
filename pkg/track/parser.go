package track

import "race-photo-map/pkg/geo"

// ParseTrack validates raw points and annotates the survivors with
// cumulative distance.  A raw point missing a parseable timestamp or a
// numeric position is skipped silently: partial tracks are routine (device
// dropouts at race starts, tunnels), so one bad sample must never poison the
// whole recording.  Distance for each accepted point is measured against the
// previous *accepted* point, which bridges gaps left by skipped samples.
//
// The source document is assumed already time-ordered; we keep input order
// and do not re-sort.
func ParseTrack(raw []RawPoint) Track {
	out := make(Track, 0, len(raw))

	for _, p := range raw {
		if !p.TimeValid || !p.PositionValid {
			continue
		}

		tp := Trackpoint{
			Lat:            p.Lat,
			Lon:            p.Lon,
			TimeUTCMs:      p.TimeUTCMs,
			Elevation:      p.Elevation,
			ElevationValid: p.ElevationValid,
			HeartRate:      p.HeartRate,
			HeartRateValid: p.HeartRateValid,
		}

		if len(out) > 0 {
			prev := out[len(out)-1]
			tp.DistanceM = prev.DistanceM + geo.DistanceMeters(prev.Lat, prev.Lon, tp.Lat, tp.Lon)
		}

		out = append(out, tp)
	}

	return out
}
