package keys

import (
	"testing"
	"time"
)

// newYork is the canonical bucketing zone used across these tests.
func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading location: %v", err)
	}
	return loc
}

func TestDerive_IsDeterministic(t *testing.T) {
	s := NewScheme(newYork(t))

	a := s.Derive("evt1", "AA:BB", 1700000000000)
	b := s.Derive("evt1", "AA:BB", 1700000000000)

	if a != b {
		t.Fatalf("expected identical pairs, got %+v and %+v", a, b)
	}
}

func TestDerive_KeyLayout(t *testing.T) {
	s := NewScheme(newYork(t))

	// 1700000000000 ms = 2023-11-14 17:13:20 EST.
	pair := s.Derive("evt1", "AA:BB", 1700000000000)

	wantMeta := "2023-11-14/evt1_AA:BB_1700000000000.json"
	wantVideo := "2023-11-14/evt1_AA:BB_1700000000000.mp4"
	if pair.MetadataKey != wantMeta {
		t.Errorf("metadata key = %q, want %q", pair.MetadataKey, wantMeta)
	}
	if pair.VideoKey != wantVideo {
		t.Errorf("video key = %q, want %q", pair.VideoKey, wantVideo)
	}
}

func TestDerive_MidnightBoundaryUsesSchemeZone(t *testing.T) {
	s := NewScheme(newYork(t))

	// 2023-11-15 02:00 UTC is still 2023-11-14 in New York.
	ts := time.Date(2023, 11, 15, 2, 0, 0, 0, time.UTC).UnixMilli()
	if got := s.DayFolder(ts); got != "2023-11-14" {
		t.Errorf("day folder = %q, want 2023-11-14", got)
	}
}

func TestExtensionSubstitution_RoundTrips(t *testing.T) {
	meta := "2023-11-14/evt1_AA:BB_1700000000000.json"
	video := VideoKeyFor(meta)

	if video != "2023-11-14/evt1_AA:BB_1700000000000.mp4" {
		t.Fatalf("video key = %q", video)
	}
	if got := MetadataKeyFor(video); got != meta {
		t.Errorf("metadata key = %q, want %q", got, meta)
	}
}

func TestTimestamp_ExtractsSuffix(t *testing.T) {
	tests := []struct {
		key    string
		want   int64
		wantOK bool
	}{
		{"2023-11-14/evt1_AA:BB_1700000000000.mp4", 1700000000000, true},
		{"2023-11-14/evt_with_underscores_dev_42.json", 42, true},
		{"2023-11-14/garbage.mp4", 0, false},
		{"2023-11-14/trailing_.mp4", 0, false},
	}

	for _, tt := range tests {
		got, ok := Timestamp(tt.key)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Timestamp(%q) = (%d, %v), want (%d, %v)", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestEventPrefix(t *testing.T) {
	if got := EventPrefix("2023-11-14", "evt1"); got != "2023-11-14/evt1_" {
		t.Errorf("EventPrefix = %q", got)
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("2023-11-14/evt1_AA:BB_1700000000000.mp4"); got != "evt1_AA:BB_1700000000000.mp4" {
		t.Errorf("Filename = %q", got)
	}
	if got := Filename("bare.mp4"); got != "bare.mp4" {
		t.Errorf("Filename = %q", got)
	}
}
