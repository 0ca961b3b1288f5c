package correlate

import (
	"sort"

	"race-photo-map/pkg/track"
)

// PaceWindowMs is the trailing window over which instantaneous pace is
// estimated.  A single GPS segment is too noisy; thirty seconds of trailing
// movement smooths jitter without hiding genuine surges.
const PaceWindowMs = 30_000

// MaxPaceMinPerKm caps reportable pace.  Anything slower is a stationary
// interval (queueing at a photo point, tying a shoe), not a running pace,
// and is reported as "no estimate".  Inherited policy constant.
const MaxPaceMinPerKm = 15.0

// minPaceDistanceKm guards the pace division: below one meter of movement
// the ratio is dominated by GPS noise.
const minPaceDistanceKm = 0.001

// MetricsSample carries a pace and heart-rate estimate for one instant.
// Invalid means "no reliable estimate", which consumers render as a dash —
// never as zero or infinity.
type MetricsSample struct {
	PaceMinPerKm   float64 `json:"paceMinPerKm,omitempty"`
	PaceValid      bool    `json:"paceValid"`
	HeartRateBpm   int     `json:"heartRateBpm,omitempty"`
	HeartRateValid bool    `json:"heartRateValid"`
}

// SampleMetrics estimates pace and heart rate at a UTC instant.
//
// Heart rate is taken from the nearest point at or after the instant, or
// from the point after that — the device reports discrete samples and
// interpolating between them would fabricate precision.
//
// Pace walks backward from the located point until the trailing window is
// satisfied, falling back to the immediately preceding point near the track
// start.  Degenerate windows (near-zero distance or non-positive duration)
// and implausibly slow results yield an invalid sample.
func SampleMetrics(t track.Track, timeUTCMs int64) MetricsSample {
	if len(t) == 0 {
		return MetricsSample{}
	}

	idx := sort.Search(len(t), func(i int) bool { return t[i].TimeUTCMs >= timeUTCMs })
	if idx >= len(t) {
		idx = len(t) - 1
	}
	p := t[idx]

	var sample MetricsSample
	if p.HeartRateValid {
		sample.HeartRateBpm = p.HeartRate
		sample.HeartRateValid = true
	} else if idx+1 < len(t) && t[idx+1].HeartRateValid {
		sample.HeartRateBpm = t[idx+1].HeartRate
		sample.HeartRateValid = true
	}

	if idx == 0 {
		return sample
	}

	// Most recent earlier point that satisfies the trailing window; when the
	// track is too young for a full window, the immediate predecessor serves.
	prevIdx := -1
	for j := idx - 1; j >= 0; j-- {
		if p.TimeUTCMs-t[j].TimeUTCMs >= PaceWindowMs {
			prevIdx = j
			break
		}
	}
	if prevIdx < 0 {
		prevIdx = idx - 1
	}
	prev := t[prevIdx]

	timeDiffMin := float64(p.TimeUTCMs-prev.TimeUTCMs) / 60_000.0
	distDiffKm := (p.DistanceM - prev.DistanceM) / 1000.0
	if distDiffKm <= minPaceDistanceKm || timeDiffMin <= 0 {
		return sample
	}

	pace := timeDiffMin / distDiffKm
	if pace > MaxPaceMinPerKm {
		return sample
	}

	sample.PaceMinPerKm = pace
	sample.PaceValid = true
	return sample
}
