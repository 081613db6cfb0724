package store

import (
	"testing"
	"time"
)

func f(v float64) *float64 { return &v }

func TestFilterRange_InclusiveBoundsAndSort(t *testing.T) {
	docs := []ShipmentDocument{
		{TrackerID: 42, Data: []Observation{
			{DT: "2025-01-01T12:00:00Z", Lat: f(1), Lng: f(1)},
			{DT: "2025-01-01T10:00:00Z", Lat: f(2), Lng: f(2)},
		}},
		{TrackerID: 42, Batt: f(50), Data: []Observation{
			{DT: "2025-01-01T11:00:00Z", Lat: f(3), Lng: f(3)},
			{DT: "garbage", Lat: f(4), Lng: f(4)},
		}},
	}

	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	got := FilterRange(docs, start, end)

	// Boundary-equal observations are in; the unparsable one is dropped;
	// order is by instant, not arrival.
	if len(got) != 3 {
		t.Fatalf("got %d observations, want 3", len(got))
	}
	want := []string{"2025-01-01T10:00:00Z", "2025-01-01T11:00:00Z", "2025-01-01T12:00:00Z"}
	for i, w := range want {
		if got[i].DT != w {
			t.Fatalf("index %d: got %q, want %q", i, got[i].DT, w)
		}
	}

	// Document-level battery rides along with observations from that doc.
	if got[1].DocBatt == nil || *got[1].DocBatt != 50 {
		t.Fatalf("expected DocBatt=50 on middle observation, got %v", got[1].DocBatt)
	}
	if got[0].DocBatt != nil {
		t.Fatalf("expected no DocBatt on first observation, got %v", *got[0].DocBatt)
	}
}

func TestFilterRange_OutsideBounds(t *testing.T) {
	docs := []ShipmentDocument{
		{TrackerID: 42, Data: []Observation{
			{DT: "2025-01-01T09:59:59Z"},
			{DT: "2025-01-01T12:00:01Z"},
		}},
	}
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := FilterRange(docs, start, end); len(got) != 0 {
		t.Fatalf("got %d observations, want 0", len(got))
	}
}
