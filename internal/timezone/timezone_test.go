package timezone

import (
	"errors"
	"testing"
	"time"
)

func TestParse_AcceptedLayouts(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2025-01-01T10:00:00Z", "2025-01-01T10:00:00Z"},
		{"2025-01-01T10:00:00", "2025-01-01T10:00:00Z"},
		{"2025-01-01 10:00:00", "2025-01-01T10:00:00Z"},
		{"2025-1-2 09:04:05", "2025-01-02T09:04:05Z"},
		{"2025-01-01T10:00:00+02:00", "2025-01-01T08:00:00Z"},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.in, err)
		}
		if got.Format(time.RFC3339) != c.want {
			t.Fatalf("Parse(%q) = %s, want %s", c.in, got.Format(time.RFC3339), c.want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("yesterday-ish"); !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestUTCToLocal(t *testing.T) {
	got, ok := UTCToLocal("2025-01-01T10:00:00Z", "America/New_York")
	if !ok {
		t.Fatal("expected ok")
	}
	if got != "2025-01-01 05:00:00" {
		t.Fatalf("got %q", got)
	}
}

func TestUTCToLocal_FailureEchoesInput(t *testing.T) {
	in := "not a timestamp"
	got, ok := UTCToLocal(in, "UTC")
	if ok || got != in {
		t.Fatalf("got (%q, %v), want (%q, false)", got, ok, in)
	}

	got, ok = UTCToLocal("2025-01-01T10:00:00Z", "Mars/Olympus_Mons")
	if ok || got != "2025-01-01T10:00:00Z" {
		t.Fatalf("bad zone: got (%q, %v)", got, ok)
	}
}

func TestLocalToUTC(t *testing.T) {
	got, err := LocalToUTC("2025-06-15 12:30:00", "Europe/Berlin")
	if err != nil {
		t.Fatalf("LocalToUTC: %v", err)
	}
	want := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLocalToUTC_Invalid(t *testing.T) {
	if _, err := LocalToUTC("nope", "UTC"); !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
	if _, err := LocalToUTC("2025-06-15 12:30:00", "Nowhere/Zone"); !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp for bad zone, got %v", err)
	}
}

// Round-trip for zone-unambiguous instants: local -> UTC -> local reproduces
// the wall clock.
func TestRoundTrip(t *testing.T) {
	const zone = "Europe/Berlin"
	const wallClock = "2025-06-15 12:30:00"

	utc, err := LocalToUTC(wallClock, zone)
	if err != nil {
		t.Fatalf("LocalToUTC: %v", err)
	}
	back, ok := UTCToLocal(utc.Format(time.RFC3339), zone)
	if !ok {
		t.Fatal("expected ok")
	}
	if back != wallClock {
		t.Fatalf("round trip: got %q, want %q", back, wallClock)
	}
}
