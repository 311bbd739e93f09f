// Package fingerprint derives the change-detection hash of an event.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"eventhub/internal/domain"
)

// Fields are the salient inputs of the hash. Category and tags are not among them.
type Fields struct {
	Title        string
	StartTime    *time.Time
	VenueName    string
	VenueAddress string
	Description  string
}

// Compute joins the fields with "|", lower-cases and trims the result and returns
// its MD5 hex digest. Absent values contribute an empty segment, so an empty
// venue name and a missing one hash the same.
func Compute(f Fields) string {
	start := ""
	if f.StartTime != nil {
		start = f.StartTime.UTC().Format(time.RFC3339)
	}
	joined := strings.Join([]string{f.Title, start, f.VenueName, f.VenueAddress, f.Description}, "|")
	sum := md5.Sum([]byte(strings.TrimSpace(strings.ToLower(joined))))
	return hex.EncodeToString(sum[:])
}

// Of hashes a normalized record.
func Of(ev domain.NormalizedEvent) string {
	return Compute(Fields{
		Title:        ev.Title,
		StartTime:    ev.StartTime,
		VenueName:    ev.VenueName,
		VenueAddress: ev.VenueAddress,
		Description:  ev.Description,
	})
}
