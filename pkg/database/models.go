package database

// RaceRecord is one event in the gallery: a stable name (the directory name
// on disk) plus its date in YYYY-MM-DD form.
type RaceRecord struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Date      string `json:"date"`
	CreatedAt int64  `json:"createdAt"` // UNIX seconds of first import
}

// PhotoRecord is one gallery image as stored in the database.  ShootTime is
// UTC epoch milliseconds; photos without EXIF metadata carry
// ShootTimeValid=false and end up in the untimed bucket.  A few platforms
// geotag their exports, hence the optional position.
type PhotoRecord struct {
	ID             int64   `json:"id"`
	Race           string  `json:"race"`
	Source         string  `json:"source"`
	URL            string  `json:"url"`
	Name           string  `json:"name"`
	ShootTime      int64   `json:"shootTime,omitempty"`
	ShootTimeValid bool    `json:"shootTimeValid"`
	Lat            float64 `json:"lat,omitempty"`
	Lon            float64 `json:"lon,omitempty"`
	PositionValid  bool    `json:"positionValid"`
}

// TrackPointRecord is one GPS fix of a race track.  Distance is the
// cumulative meters from the start, precomputed at import time so queries
// never re-walk the whole track.
type TrackPointRecord struct {
	ID             int64   `json:"id"`
	Race           string  `json:"race"`
	TimeUTCMs      int64   `json:"time"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	DistanceM      float64 `json:"distance"`
	Elevation      float64 `json:"elevation,omitempty"`
	ElevationValid bool    `json:"elevationValid"`
	HeartRate      int     `json:"heartRate,omitempty"`
	HeartRateValid bool    `json:"heartRateValid"`
}

// RaceSummary aggregates one race for list pages: counts instead of rows so
// the front page stays cheap even with years of data behind it.
type RaceSummary struct {
	Name       string `json:"name"`
	Date       string `json:"date"`
	PhotoCount int64  `json:"photoCount"`
	PointCount int64  `json:"pointCount"`
}
