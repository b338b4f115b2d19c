package month

import (
	"testing"
	"time"
)

func mustLoadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, errLoad := time.LoadLocation(name)
	if errLoad != nil {
		t.Fatalf("load location %s: %v", name, errLoad)
	}
	return loc
}

func TestStartTruncatesToFirstOfMonth(t *testing.T) {
	loc := mustLoadLocation(t, "Asia/Bangkok")
	now := time.Date(2025, time.August, 17, 14, 30, 45, 123, loc)

	got := Start(now, loc)
	want := time.Date(2025, time.August, 1, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("Start = %s, want %s", got, want)
	}
}

func TestStartRespectsLocation(t *testing.T) {
	loc := mustLoadLocation(t, "Asia/Bangkok")
	// 2025-08-31 23:00 UTC is already 2025-09-01 06:00 in Bangkok.
	now := time.Date(2025, time.August, 31, 23, 0, 0, 0, time.UTC)

	got := Start(now, loc)
	want := time.Date(2025, time.September, 1, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("Start = %s, want %s", got, want)
	}
}

func TestNextStartDecemberRollsToJanuary(t *testing.T) {
	loc := mustLoadLocation(t, "Asia/Bangkok")
	now := time.Date(2025, time.December, 15, 8, 0, 0, 0, loc)

	got := NextStart(now, loc)
	want := time.Date(2026, time.January, 1, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("NextStart = %s, want %s", got, want)
	}
}

func TestSecondsUntilEnd(t *testing.T) {
	loc := mustLoadLocation(t, "Asia/Bangkok")
	now := time.Date(2025, time.August, 31, 23, 59, 0, 0, loc)

	if got := SecondsUntilEnd(now, loc); got != 60 {
		t.Fatalf("SecondsUntilEnd = %d, want 60", got)
	}
}

func TestSecondsUntilEndAlwaysPositiveDuringMonth(t *testing.T) {
	loc := mustLoadLocation(t, "Asia/Bangkok")
	now := time.Date(2025, time.August, 1, 0, 0, 1, 0, loc)

	if got := SecondsUntilEnd(now, loc); got <= 0 {
		t.Fatalf("SecondsUntilEnd = %d, want > 0", got)
	}
}

func TestKey(t *testing.T) {
	loc := mustLoadLocation(t, "Asia/Bangkok")

	cases := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2025, time.August, 17, 12, 0, 0, 0, loc), "202508"},
		{time.Date(2025, time.January, 1, 0, 0, 0, 0, loc), "202501"},
		{time.Date(2025, time.December, 31, 23, 59, 59, 0, loc), "202512"},
	}
	for _, tc := range cases {
		if got := Key(tc.now, loc); got != tc.want {
			t.Fatalf("Key(%s) = %s, want %s", tc.now, got, tc.want)
		}
	}
}

func TestKeyDeterministicAcrossZonesOfSameInstant(t *testing.T) {
	loc := mustLoadLocation(t, "Asia/Bangkok")
	instant := time.Date(2025, time.August, 31, 20, 0, 0, 0, time.UTC)

	// The instant is September in Bangkok regardless of the zone it arrives in.
	if got := Key(instant, loc); got != "202509" {
		t.Fatalf("Key = %s, want 202509", got)
	}
	if got := Key(instant.In(loc), loc); got != "202509" {
		t.Fatalf("Key (converted) = %s, want 202509", got)
	}
}
