package correlate

import (
	"sort"

	"race-photo-map/pkg/track"
)

// DefaultMergeWindowMs is the largest time gap between consecutive events
// that still lands them in the same stop.  Burst shots and multi-camera
// coverage of one photo point arrive seconds apart; ten seconds of silence
// means the runner moved on.
const DefaultMergeWindowMs = 10_000

// TimedEvent is an externally-supplied photo or video.  Timestamp, when
// present, is the platform's local "YYYY-MM-DD HH:MM:SS" string (UTC+8).
type TimedEvent struct {
	URL       string `json:"url"`
	Name      string `json:"name,omitempty"`
	Source    string `json:"source,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// EventGroup is one clustered stop on the track.  Lat/Lon/DistanceM hold the
// running arithmetic mean of the member positions; AnchorTimeUTCMs is the
// latest member's time and is what downstream metrics lookups use.
type EventGroup struct {
	Lat             float64       `json:"lat"`
	Lon             float64       `json:"lon"`
	DistanceM       float64       `json:"distanceM"`
	AnchorTimeUTCMs int64         `json:"anchorTimeUtcMs"`
	Events          []TimedEvent  `json:"events"`
	Metrics         MetricsSample `json:"metrics"`
}

// TimeGroup clusters events that happened outside track coverage.  They are
// presentable ("this happened, sometime before the start") but carry no
// position, distance, or metrics.
type TimeGroup struct {
	AnchorTimeUTCMs int64        `json:"anchorTimeUtcMs"`
	Events          []TimedEvent `json:"events"`
}

// Result partitions a photo feed against one track.
type Result struct {
	Groups     []EventGroup `json:"groups"`
	OutOfRange []TimeGroup  `json:"outOfRange"`
	Untimed    []TimedEvent `json:"untimed"`
}

type candidate struct {
	event  TimedEvent
	timeMs int64
	pos    PositionEstimate
}

// Correlate maps a set of events onto the track.  Events without a parseable
// timestamp go straight to the untimed bucket and never touch the track.
// Timed events either interpolate to a position (then cluster into groups
// with a streaming-mean position) or fall outside coverage (then cluster by
// the identical time rule, positionless).  mergeWindowMs <= 0 selects the
// default.
//
// The source feed is not guaranteed pre-sorted — several photo platforms are
// merged together — so both partitions are sorted by UTC time before
// folding.
func Correlate(t track.Track, events []TimedEvent, mergeWindowMs int64) Result {
	if mergeWindowMs <= 0 {
		mergeWindowMs = DefaultMergeWindowMs
	}

	res := Result{
		Groups:     []EventGroup{},
		OutOfRange: []TimeGroup{},
		Untimed:    []TimedEvent{},
	}

	var placed []candidate
	var unplaced []candidate

	for _, ev := range events {
		ts, ok := ParseLocalTimestamp(ev.Timestamp)
		if !ok {
			res.Untimed = append(res.Untimed, ev)
			continue
		}
		if pos, ok := Interpolate(t, ts); ok {
			placed = append(placed, candidate{event: ev, timeMs: ts, pos: pos})
		} else {
			unplaced = append(unplaced, candidate{event: ev, timeMs: ts})
		}
	}

	sort.SliceStable(placed, func(i, j int) bool { return placed[i].timeMs < placed[j].timeMs })
	sort.SliceStable(unplaced, func(i, j int) bool { return unplaced[i].timeMs < unplaced[j].timeMs })

	for _, c := range placed {
		n := len(res.Groups)
		// A gap strictly beyond the merge window opens a new stop; an event
		// landing exactly on the boundary still belongs to the previous one.
		if n == 0 || c.timeMs-res.Groups[n-1].AnchorTimeUTCMs > mergeWindowMs {
			res.Groups = append(res.Groups, EventGroup{})
			n++
		}
		g := &res.Groups[n-1]
		g.Events = append(g.Events, c.event)

		// Incremental mean keeps the running position numerically stable as
		// groups grow, without re-summing prior members.
		count := float64(len(g.Events))
		g.Lat += (c.pos.Lat - g.Lat) / count
		g.Lon += (c.pos.Lon - g.Lon) / count
		g.DistanceM += (c.pos.DistanceM - g.DistanceM) / count
		g.AnchorTimeUTCMs = c.timeMs
	}

	for i := range res.Groups {
		res.Groups[i].Metrics = SampleMetrics(t, res.Groups[i].AnchorTimeUTCMs)
	}

	for _, c := range unplaced {
		n := len(res.OutOfRange)
		if n == 0 || c.timeMs-res.OutOfRange[n-1].AnchorTimeUTCMs > mergeWindowMs {
			res.OutOfRange = append(res.OutOfRange, TimeGroup{})
			n++
		}
		g := &res.OutOfRange[n-1]
		g.Events = append(g.Events, c.event)
		g.AnchorTimeUTCMs = c.timeMs
	}

	return res
}
