// Package track turns raw GPS documents into ordered, distance-annotated
// point sequences.  Everything downstream (correlation, profiles, the map
// API) consumes the Track type produced here and never re-reads the source
// document.
package track

// Trackpoint is one accepted GPS sample.  DistanceM is cumulative along the
// track, so the first point always carries 0.  Elevation and heart rate keep
// explicit validity flags because a missing reading must stay
// distinguishable from a genuine zero.
type Trackpoint struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	TimeUTCMs      int64   `json:"timeUtcMs"`
	DistanceM      float64 `json:"distanceM"`
	Elevation      float64 `json:"-"`
	ElevationValid bool    `json:"-"`
	HeartRate      int     `json:"-"`
	HeartRateValid bool    `json:"-"`
}

// Track is an ordered sequence of accepted trackpoints.  An empty track is
// valid and simply means no correlation is possible.
type Track []Trackpoint

// RawPoint is one record from a source document before validation.  Fields
// travel with validity flags instead of pointers so a half-parsed GPX sample
// stays cheap to copy around.
type RawPoint struct {
	Lat            float64
	Lon            float64
	PositionValid  bool
	TimeUTCMs      int64
	TimeValid      bool
	Elevation      float64
	ElevationValid bool
	HeartRate      int
	HeartRateValid bool
}

// Start returns the first point's UTC time in ms, or 0 for an empty track.
func (t Track) Start() int64 {
	if len(t) == 0 {
		return 0
	}
	return t[0].TimeUTCMs
}

// End returns the last point's UTC time in ms, or 0 for an empty track.
func (t Track) End() int64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].TimeUTCMs
}

// TotalDistanceM returns the cumulative distance at the last point.
func (t Track) TotalDistanceM() float64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].DistanceM
}
