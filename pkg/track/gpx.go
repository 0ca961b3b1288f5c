package track

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"
)

// GPX decoding for the strava-style documents the downloaders produce: one
// <trkpt> per sample with lat/lon attributes, an ISO-8601 <time>, optional
// <ele> and an optional gpxtpx:hr heart-rate extension.  Coordinates are
// declared as string attributes on purpose — a malformed value becomes a
// skipped point instead of a decode error for the whole file.

type gpxFile struct {
	XMLName xml.Name   `xml:"gpx"`
	Tracks  []gpxTrack `xml:"trk"`
}

type gpxTrack struct {
	Name     string       `xml:"name"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat        string        `xml:"lat,attr"`
	Lon        string        `xml:"lon,attr"`
	Elevation  *float64      `xml:"ele"`
	Time       string        `xml:"time"`
	Extensions gpxExtensions `xml:"extensions"`
}

type gpxExtensions struct {
	TrackPointExtension gpxTrackPointExtension `xml:"TrackPointExtension"`
}

type gpxTrackPointExtension struct {
	HeartRate *int `xml:"hr"`
}

// DecodeGPX parses a GPX document into raw points, flattening all tracks and
// segments in document order.  Validation happens later in ParseTrack; this
// stage only records what each sample actually carried.
func DecodeGPX(r io.Reader) ([]RawPoint, error) {
	var doc gpxFile
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode gpx: %w", err)
	}

	var out []RawPoint
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				out = append(out, rawPointFromGPX(p))
			}
		}
	}
	return out, nil
}

func rawPointFromGPX(p gpxPoint) RawPoint {
	var raw RawPoint

	lat, latErr := strconv.ParseFloat(p.Lat, 64)
	lon, lonErr := strconv.ParseFloat(p.Lon, 64)
	if latErr == nil && lonErr == nil {
		raw.Lat = lat
		raw.Lon = lon
		raw.PositionValid = true
	}

	if p.Time != "" {
		if ts, err := time.Parse(time.RFC3339, p.Time); err == nil {
			raw.TimeUTCMs = ts.UnixMilli()
			raw.TimeValid = true
		}
	}

	if p.Elevation != nil {
		raw.Elevation = *p.Elevation
		raw.ElevationValid = true
	}
	if p.Extensions.TrackPointExtension.HeartRate != nil {
		raw.HeartRate = *p.Extensions.TrackPointExtension.HeartRate
		raw.HeartRateValid = true
	}

	return raw
}
