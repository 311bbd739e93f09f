package sources

import (
	"strings"
	"time"
)

// Layouts seen on listing pages. Zone-less layouts are read in the city's zone.
var whenLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"Monday 2 January 2006 3:04pm",
	"Mon 2 Jan 2006 3:04pm",
	"Mon, 2 Jan 2006 15:04",
	"2 January 2006 3:04pm",
	"2 January 2006",
	"2 Jan 2006",
	"Monday 2 January 2006",
	"Mon 2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// parseWhen reads a start or end time. Text that matches no known layout
// yields nil rather than an error.
func parseWhen(s string, loc *time.Location) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range whenLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t
		}
	}
	return nil
}

// LoadLocation returns the named zone, falling back to a fixed AEST offset
// when the zone database is unavailable.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = "Australia/Sydney"
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone("AEST", 10*60*60)
}
