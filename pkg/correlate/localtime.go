package correlate

import "time"

// Photo platforms in this gallery's region stamp shots with a bare local
// wall-clock string and no zone marker.  The regional convention is fixed
// UTC+8; no other locale is recognized.
const localTimestampLayout = "2006-01-02 15:04:05"

var eventZone = time.FixedZone("UTC+8", 8*60*60)

// ParseLocalTimestamp converts a "YYYY-MM-DD HH:MM:SS" local timestamp into
// UTC milliseconds.  The second return value is false for empty or
// malformed input, which routes the event into the untimed bucket.
func ParseLocalTimestamp(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	t, err := time.ParseInLocation(localTimestampLayout, s, eventZone)
	if err != nil {
		return 0, false
	}
	return t.UnixMilli(), true
}

// FormatLocalTime renders a UTC instant back into the regional wall clock,
// used for chart axis labels so they match what the photo platforms show.
func FormatLocalTime(utcMs int64, layout string) string {
	return time.UnixMilli(utcMs).In(eventZone).Format(layout)
}
