// Package backfill warms the live-record cache from the store at startup so
// live reads work before the first change event arrives.
package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"tracker-service/internal/notifier"
	"tracker-service/internal/realtime"
	"tracker-service/internal/store"
	"tracker-service/internal/timezone"
)

// RunOnce walks the registered trackers and seeds the live cache with each
// one's newest observation (append order, matching the aggregator's "latest"
// rule). Best-effort: per-tracker failures are logged and skipped.
//
// Returns how many trackers were seeded.
func RunOnce(ctx context.Context, st store.Store, live notifier.LiveSink, zone string) (int, error) {
	if st == nil {
		return 0, errors.New("store is required")
	}
	if live == nil {
		return 0, errors.New("live sink is required")
	}

	trackers, err := st.ListTrackers(ctx)
	if err != nil {
		return 0, err
	}

	seeded := 0
	for _, t := range trackers {
		num, err := strconv.ParseInt(t.TrackerID, 10, 64)
		if err != nil {
			// Non-numeric registration ids can never have telemetry.
			continue
		}
		docs, err := st.FindShipmentDocuments(ctx, num)
		if err != nil {
			slog.Warn("backfill: load documents failed", "tracker_id", t.TrackerID, "error", err)
			continue
		}
		if len(docs) == 0 {
			continue
		}
		last := docs[len(docs)-1]
		if len(last.Data) == 0 {
			continue
		}
		obs := last.Data[len(last.Data)-1]

		rec := realtime.Record{Observation: obs}
		if zone != "" {
			if local, ok := timezone.UTCToLocal(obs.DT, zone); ok {
				rec.DTLocal = local
				rec.Zone = zone
			}
		}
		payload, err := json.Marshal(realtime.Notification{
			OperationType: "insert",
			TrackerID:     num,
			NewRecord:     rec,
			Geolocation:   realtime.Geolocation{Lat: obs.Lat, Lng: obs.Lng},
		})
		if err != nil {
			continue
		}
		if err := live.Set(ctx, num, payload); err != nil {
			slog.Warn("backfill: cache write failed", "tracker_id", t.TrackerID, "error", err)
			continue
		}
		seeded++
	}
	return seeded, nil
}
