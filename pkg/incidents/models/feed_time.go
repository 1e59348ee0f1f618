package models

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // Europe/London without system zoneinfo
)

// FeedLocation is assumed for feed timestamps that carry no offset
var FeedLocation = loadFeedLocation()

func loadFeedLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseFeedTime parses an ISO-8601 feed timestamp and returns it in UTC.
// Timestamps without a zone are read as UK local time.
func ParseFeedTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	zoned := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999Z0700",
	}
	for _, layout := range zoned {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	local := []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	var parseErr error
	for _, layout := range local {
		t, err := time.ParseInLocation(layout, s, FeedLocation)
		if err == nil {
			return t.UTC(), nil
		}
		parseErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time %q: %w", s, parseErr)
}
