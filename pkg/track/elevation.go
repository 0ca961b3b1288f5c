package track

import (
	"math"
	"sort"
)

// ElevationOutlierThresholdM is the maximum deviation from the track's
// median elevation a reading may have and still count as stable.
const ElevationOutlierThresholdM = 50.0

// RepairLeadingElevation fixes barometric altimeter calibration errors at
// the start of a recording.  Some GPS watches need time to settle the
// barometer and report wildly wrong elevations for the first points.  The
// repair compares every reading against the median elevation of the whole
// recording, finds the first stable one, and overwrites the leading outliers
// with that stable value.  Points are modified in place; the return value is
// how many readings were rewritten.
//
// Only the leading run is touched: outliers later in the recording are left
// alone, because mid-track spikes come from a different failure mode and
// blindly flattening them would erase real terrain.
func RepairLeadingElevation(raw []RawPoint) int {
	if len(raw) < 2 {
		return 0
	}

	valid := make([]float64, 0, len(raw))
	for _, p := range raw {
		if p.ElevationValid {
			valid = append(valid, p.Elevation)
		}
	}
	if len(valid) == 0 {
		return 0
	}
	median := medianOf(valid)

	// First reading within the threshold of the median.  The median itself is
	// always one of the readings, so a stable index exists whenever any
	// reading does; index 0 means the start was already fine.
	firstStable := -1
	for i, p := range raw {
		if p.ElevationValid && math.Abs(p.Elevation-median) < ElevationOutlierThresholdM {
			firstStable = i
			break
		}
	}
	if firstStable <= 0 {
		return 0
	}

	stable := raw[firstStable].Elevation
	fixed := 0
	for i := 0; i < firstStable; i++ {
		if raw[i].ElevationValid {
			raw[i].Elevation = stable
			fixed++
		}
	}
	return fixed
}

// medianOf returns the upper median without mutating the caller's slice.
func medianOf(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}
