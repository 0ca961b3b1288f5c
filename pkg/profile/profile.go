// Package profile down-samples a track into chart-ready series: elevation,
// pace, and heart rate over two alternative x-axes (wall-clock time and
// cumulative distance).  The consumer switches axes by swapping label
// arrays; series values are shared and never recomputed.
package profile

import (
	"fmt"

	"race-photo-map/pkg/correlate"
	"race-photo-map/pkg/track"
)

// DefaultMaxSamples bounds the number of chart points.  More than a few
// hundred samples stops adding visual information and only bloats the
// payload.
const DefaultMaxSamples = 500

// timeLabelLayout renders sample times on the regional wall clock so the
// chart axis matches photo timestamps.
const timeLabelLayout = "15:04"

// Profile holds parallel series for one track.  Elevation and heart-rate
// entries are nil where the device reported nothing — a sentinel the chart
// renders as a gap, never as zero.
type Profile struct {
	TimeLabels     []string   `json:"timeLabels"`
	DistanceLabels []string   `json:"distanceLabels"`
	Elevation      []*float64 `json:"elevation"`
	Pace           []*float64 `json:"pace"`
	HeartRate      []*int     `json:"heartRate,omitempty"`
	HasHeartRate   bool       `json:"hasHeartRate"`
}

// Build down-samples the track into a Profile.  The second return value is
// false for tracks shorter than two points, where no series can be drawn.
// maxSamples <= 0 selects the default.
//
// The stride keeps every n-th point plus, always, the final point — the
// finish line must not vanish just because the track length does not divide
// evenly.  Pace is computed with the correlator's trailing-window estimator
// against the full track, so the display stride never distorts the value.
func Build(t track.Track, maxSamples int) (Profile, bool) {
	if len(t) < 2 {
		return Profile{}, false
	}
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}

	stride := len(t) / maxSamples
	if stride < 1 {
		stride = 1
	}

	var p Profile
	for i := 0; i < len(t); i += stride {
		appendSample(&p, t, i)
	}
	if last := len(t) - 1; last%stride != 0 {
		appendSample(&p, t, last)
	}

	return p, true
}

func appendSample(p *Profile, t track.Track, i int) {
	pt := t[i]

	p.TimeLabels = append(p.TimeLabels, correlate.FormatLocalTime(pt.TimeUTCMs, timeLabelLayout))
	p.DistanceLabels = append(p.DistanceLabels, fmt.Sprintf("%.2f", pt.DistanceM/1000))

	if pt.ElevationValid {
		ele := pt.Elevation
		p.Elevation = append(p.Elevation, &ele)
	} else {
		p.Elevation = append(p.Elevation, nil)
	}

	if pt.HeartRateValid {
		hr := pt.HeartRate
		p.HeartRate = append(p.HeartRate, &hr)
		p.HasHeartRate = true
	} else {
		p.HeartRate = append(p.HeartRate, nil)
	}

	if m := correlate.SampleMetrics(t, pt.TimeUTCMs); m.PaceValid {
		pace := m.PaceMinPerKm
		p.Pace = append(p.Pace, &pace)
	} else {
		p.Pace = append(p.Pace, nil)
	}
}
