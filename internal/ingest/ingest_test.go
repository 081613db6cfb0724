package ingest

import (
	"context"
	"testing"
	"time"

	"tracker-service/internal/notifier"
	"tracker-service/internal/realtime"
	"tracker-service/internal/store/storetest"
)

func TestHandleMessage_AppendsBatch(t *testing.T) {
	fake := storetest.New()
	b := &Bridge{store: fake}
	ctx := context.Background()

	payload := []byte(`{"data":[
		{"DT":"2025-01-01T10:00:00Z","Lat":40.0,"Lng":-74.0,"Batt":80},
		{"DT":"2025-01-01T11:00:00Z","Lat":40.1,"Lng":-74.1,"Batt":78}
	]}`)
	b.handleMessage(ctx, "shipment/telemetry/42", payload)

	docs, err := fake.FindShipmentDocuments(ctx, 42)
	if err != nil {
		t.Fatalf("find documents: %v", err)
	}
	if len(docs) != 1 || len(docs[0].Data) != 2 {
		t.Fatalf("expected 1 document with 2 observations, got %+v", docs)
	}
	if docs[0].Data[0].DT != "2025-01-01T10:00:00Z" {
		t.Fatalf("order not preserved: %q", docs[0].Data[0].DT)
	}
}

func TestHandleMessage_AcceptsSingleObservation(t *testing.T) {
	fake := storetest.New()
	b := &Bridge{store: fake}
	ctx := context.Background()

	b.handleMessage(ctx, "shipment/telemetry/7", []byte(`{"DT":"2025-01-01T10:00:00Z","Lat":1.0,"Lng":2.0}`))

	docs, _ := fake.FindShipmentDocuments(ctx, 7)
	if len(docs) != 1 || len(docs[0].Data) != 1 {
		t.Fatalf("expected 1 document with 1 observation, got %+v", docs)
	}
}

type recordingHub struct {
	ch chan realtime.Notification
}

func (r *recordingHub) Broadcast(n realtime.Notification) { r.ch <- n }

// Every ingested message must surface on the change feed, not just the one
// that creates a tracker's first document.
func TestHandleMessage_EveryMessageReachesSubscribers(t *testing.T) {
	fake := storetest.New()
	b := &Bridge{store: fake}
	hub := &recordingHub{ch: make(chan realtime.Notification, 8)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		notifier.New(fake, hub, nil, "UTC").Run(ctx)
	}()
	deadline := time.Now().Add(3 * time.Second)
	for fake.FeedCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("notifier never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	b.handleMessage(ctx, "shipment/telemetry/42", []byte(`{"DT":"2025-01-01T10:00:00Z","Lat":40.0,"Lng":-74.0}`))
	b.handleMessage(ctx, "shipment/telemetry/42", []byte(`{"DT":"2025-01-01T11:00:00Z","Lat":40.1,"Lng":-74.1}`))

	for i, want := range []string{"2025-01-01T10:00:00Z", "2025-01-01T11:00:00Z"} {
		select {
		case n := <-hub.ch:
			if n.TrackerID != 42 || n.NewRecord.DT != want {
				t.Fatalf("notification %d: got tracker %d DT %q, want 42 %q", i, n.TrackerID, n.NewRecord.DT, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("notification %d never broadcast", i)
		}
	}

	if docs, _ := fake.FindShipmentDocuments(ctx, 42); len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}

	cancel()
	<-done
}

func TestHandleMessage_DropsGarbage(t *testing.T) {
	fake := storetest.New()
	b := &Bridge{store: fake}
	ctx := context.Background()

	b.handleMessage(ctx, "shipment/telemetry/not-a-number", []byte(`{"DT":"2025-01-01T10:00:00Z"}`))
	b.handleMessage(ctx, "shipment/telemetry/42", []byte(`{{{`))
	b.handleMessage(ctx, "shipment/telemetry/42", []byte(`{}`))
	b.handleMessage(ctx, "shipment/telemetry/42", nil)

	if docs, _ := fake.FindShipmentDocuments(ctx, 42); len(docs) != 0 {
		t.Fatalf("expected nothing appended, got %+v", docs)
	}
}
