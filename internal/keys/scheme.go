// Package keys implements the deterministic storage key scheme for alarm
// artifacts. Every artifact pair lives under a day folder computed in one
// canonical timezone:
//
//	{YYYY-MM-DD}/{eventId}_{device}_{timestamp}.json
//	{YYYY-MM-DD}/{eventId}_{device}_{timestamp}.mp4
//
// Metadata and video keys share an identical stem, so either can be derived
// from the other by extension substitution. Derivation is a pure function of
// (eventId, device, timestamp); reprocessing the same alarm always lands on
// the same keys, which is what makes at-least-once delivery safe.
package keys

import (
	"strconv"
	"strings"
	"time"
)

// Artifact extensions. The shared stem plus these two extensions is the
// entire storage contract between the processor and the finders.
const (
	MetadataExt = ".json"
	VideoExt    = ".mp4"
)

// dayFolderLayout is the object key prefix format, one folder per calendar
// day in the scheme's timezone.
const dayFolderLayout = "2006-01-02"

// Pair holds the derived storage keys for one alarm occurrence.
// Derived, never persisted on its own.
type Pair struct {
	MetadataKey string
	VideoKey    string
}

// Scheme derives storage keys. The location fixes the day-folder bucketing
// policy; all derivation and all backward scans must use the same Scheme so
// midnight-boundary events bucket consistently.
type Scheme struct {
	loc *time.Location
}

// NewScheme creates a Scheme bucketing days in the given location.
func NewScheme(loc *time.Location) *Scheme {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheme{loc: loc}
}

// Location returns the scheme's canonical timezone.
func (s *Scheme) Location() *time.Location {
	return s.loc
}

// DayFolder returns the day-folder prefix (without trailing slash) for an
// epoch-millisecond timestamp.
func (s *Scheme) DayFolder(tsMillis int64) string {
	return time.UnixMilli(tsMillis).In(s.loc).Format(dayFolderLayout)
}

// DayFolderAt returns the day-folder prefix for an absolute time. Used by
// the finders when stepping backward from "today".
func (s *Scheme) DayFolderAt(t time.Time) string {
	return t.In(s.loc).Format(dayFolderLayout)
}

// Derive maps (eventId, device, timestamp) to its storage key pair.
func (s *Scheme) Derive(eventID, device string, tsMillis int64) Pair {
	stem := s.DayFolder(tsMillis) + "/" + eventID + "_" + device + "_" + strconv.FormatInt(tsMillis, 10)
	return Pair{
		MetadataKey: stem + MetadataExt,
		VideoKey:    stem + VideoExt,
	}
}

// EventPrefix returns the listing prefix that matches every artifact for one
// event within one day folder.
func EventPrefix(dayFolder, eventID string) string {
	return dayFolder + "/" + eventID + "_"
}

// VideoKeyFor substitutes the video extension onto a metadata key.
func VideoKeyFor(metadataKey string) string {
	return strings.TrimSuffix(metadataKey, MetadataExt) + VideoExt
}

// MetadataKeyFor substitutes the metadata extension onto a video key.
func MetadataKeyFor(videoKey string) string {
	return strings.TrimSuffix(videoKey, VideoExt) + MetadataExt
}

// Timestamp extracts the epoch-millisecond suffix embedded in a key stem.
// Returns false for keys that do not follow the scheme. Device identifiers
// may contain underscores, so the timestamp is always the segment after the
// last underscore.
func Timestamp(key string) (int64, bool) {
	stem := key
	if idx := strings.LastIndexByte(stem, '.'); idx >= 0 {
		stem = stem[:idx]
	}
	idx := strings.LastIndexByte(stem, '_')
	if idx < 0 || idx == len(stem)-1 {
		return 0, false
	}
	ts, err := strconv.ParseInt(stem[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// Filename returns the last path segment of a key, the name a client should
// use when saving a downloaded artifact.
func Filename(key string) string {
	if idx := strings.LastIndexByte(key, '/'); idx >= 0 {
		return key[idx+1:]
	}
	return key
}
