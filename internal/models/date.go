package models

import (
	"strings"
	"time"
)

var dateFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// ParseDate reads the ISO-ish date strings stored on articles and passed in
// filters. Values without an offset are taken as UTC.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, f := range dateFormats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
