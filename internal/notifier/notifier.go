// Package notifier consumes the store's change feed and turns newly inserted
// telemetry into canonical notifications for the broadcast hub.
package notifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"tracker-service/internal/realtime"
	"tracker-service/internal/store"
	"tracker-service/internal/timezone"
)

// Broadcaster fans a notification out to live subscribers.
type Broadcaster interface {
	Broadcast(realtime.Notification)
}

// LiveSink persists the latest record per tracker. Optional.
type LiveSink interface {
	Set(ctx context.Context, trackerID int64, payload []byte) error
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	// After this many consecutive subscribe failures the notifier reports
	// unhealthy; it keeps retrying regardless.
	unhealthyAfter = 5
)

type Notifier struct {
	store store.Store
	hub   Broadcaster
	live  LiveSink
	zone  string
}

// New builds a notifier. zone is the display zone for best-effort local-time
// enrichment; empty disables it. live may be nil.
func New(s store.Store, hub Broadcaster, live LiveSink, zone string) *Notifier {
	return &Notifier{store: s, hub: hub, live: live, zone: zone}
}

// Run consumes the change feed until ctx is cancelled. A dropped or failed
// feed is re-subscribed with exponential backoff; a single bad event is
// logged and skipped, never fatal.
func (n *Notifier) Run(ctx context.Context) {
	backoff := initialBackoff
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		feed, err := n.store.WatchInserts(ctx)
		if err != nil {
			failures++
			if failures == unhealthyAfter {
				slog.Error("change feed unavailable", "attempts", failures, "error", err)
			} else {
				slog.Warn("change feed subscribe failed, retrying", "backoff", backoff, "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff
		failures = 0
		slog.Info("change feed subscribed")

		for feed.Next(ctx) {
			n.handle(ctx, feed.Event())
		}
		err = feed.Err()

		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = feed.Close(closeCtx)
		cancel()

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("change feed terminated", "error", err)
		}
	}
}

func (n *Notifier) handle(ctx context.Context, ev store.ChangeEvent) {
	if ev.OperationType != "insert" {
		return
	}
	doc := ev.FullDocument
	if doc.TrackerID == 0 {
		slog.Warn("malformed change event: missing trackerID, skipping")
		return
	}
	if len(doc.Data) == 0 {
		slog.Warn("malformed change event: no observations, skipping", "tracker_id", doc.TrackerID)
		return
	}

	// One write may carry several observations; each becomes its own
	// notification, in array order, so subscribers can replay the timeline.
	for _, obs := range doc.Data {
		rec := realtime.Record{Observation: obs}
		if n.zone != "" {
			if local, ok := timezone.UTCToLocal(obs.DT, n.zone); ok {
				rec.DTLocal = local
				rec.Zone = n.zone
			}
		}

		notif := realtime.Notification{
			OperationType: "insert",
			TrackerID:     doc.TrackerID,
			NewRecord:     rec,
			Geolocation:   realtime.Geolocation{Lat: obs.Lat, Lng: obs.Lng},
		}

		if n.live != nil {
			if payload, err := json.Marshal(notif); err == nil {
				if err := n.live.Set(ctx, doc.TrackerID, payload); err != nil {
					slog.Warn("live cache write failed", "tracker_id", doc.TrackerID, "error", err)
				}
			}
		}

		n.hub.Broadcast(notif)
	}
}
