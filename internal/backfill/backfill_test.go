package backfill

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"tracker-service/internal/realtime"
	"tracker-service/internal/store"
	"tracker-service/internal/store/storetest"
)

func f(v float64) *float64 { return &v }

type memSink struct {
	mu   sync.Mutex
	sets map[int64][]byte
}

func (m *memSink) Set(_ context.Context, trackerID int64, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets == nil {
		m.sets = map[int64][]byte{}
	}
	m.sets[trackerID] = payload
	return nil
}

func TestRunOnce_SeedsLatestRecordPerTracker(t *testing.T) {
	fake := storetest.New()
	ctx := context.Background()

	_ = fake.InsertTracker(ctx, &store.Tracker{TrackerID: "42", TrackerName: "Truck A"})
	_ = fake.InsertTracker(ctx, &store.Tracker{TrackerID: "not-numeric", TrackerName: "Odd"})
	_ = fake.InsertTracker(ctx, &store.Tracker{TrackerID: "7", TrackerName: "No telemetry"})
	fake.SeedDocument(store.ShipmentDocument{
		TrackerID: 42,
		Data: []store.Observation{
			{DT: "2025-01-01T10:00:00Z", Lat: f(40.0), Lng: f(-74.0)},
			{DT: "2025-01-01T11:00:00Z", Lat: f(40.1), Lng: f(-74.1), Batt: f(78)},
		},
	})

	sink := &memSink{}
	seeded, err := RunOnce(ctx, fake, sink, "UTC")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if seeded != 1 {
		t.Fatalf("seeded: got %d, want 1", seeded)
	}

	payload := sink.sets[42]
	if payload == nil {
		t.Fatal("expected a cached record for tracker 42")
	}
	var n realtime.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// Newest in append order.
	if n.NewRecord.DT != "2025-01-01T11:00:00Z" {
		t.Fatalf("cached record: got %q", n.NewRecord.DT)
	}
	if n.TrackerID != 42 {
		t.Fatalf("tracker id: got %d", n.TrackerID)
	}
}
