// Package timezone converts device timestamps between UTC and named civil
// zones. Device firmware is inconsistent about timestamp formats, so parsing
// is deliberately tolerant.
package timezone

import (
	"errors"
	"time"
)

// ErrInvalidTimestamp marks a timestamp string no known layout matched.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// DisplayLayout is the wall-clock format shown to users.
const DisplayLayout = "2006-01-02 15:04:05"

// Layouts observed in the field, offset-carrying first so an explicit zone
// wins over the assumed one.
var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-1-2 15:04:05",
	"2006-1-2T15:04:05",
}

// parseIn parses ts trying each layout; offset-less layouts are interpreted
// in loc.
func parseIn(ts string, loc *time.Location) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, ts, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

// Parse parses a device timestamp, assuming UTC when the string carries no
// offset.
func Parse(ts string) (time.Time, error) {
	t, err := parseIn(ts, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// UTCToLocal renders a UTC timestamp as wall-clock time in the named zone.
// This is best-effort display enrichment: on any parse or zone failure the
// original string comes back unchanged with ok=false, and callers must not
// treat that as fatal.
func UTCToLocal(ts, zone string) (string, bool) {
	t, err := Parse(ts)
	if err != nil {
		return ts, false
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return ts, false
	}
	return t.In(loc).Format(DisplayLayout), true
}

// LocalToUTC parses a wall-clock timestamp in the named zone and returns the
// UTC instant. Unlike UTCToLocal this fails hard: it parses user-supplied
// query bounds, which must be well-formed.
func LocalToUTC(ts, zone string) (time.Time, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, ErrInvalidTimestamp
	}
	t, err := parseIn(ts, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
