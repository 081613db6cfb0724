// Package tracker merges device registrations with their telemetry history
// into the combined read model served to clients, and answers bounded
// time-range queries.
package tracker

import (
	"context"
	"fmt"
	"strconv"

	"tracker-service/internal/store"
	"tracker-service/internal/timezone"
)

// Service is the telemetry aggregator. BatteryPerObservation controls where
// range-query records read battery from: document-level summary by default,
// per-observation (with document fallback) when set. Historical writers
// disagree on which is authoritative, so it stays configurable.
type Service struct {
	store store.Store

	BatteryPerObservation bool
}

func New(s store.Store) *Service {
	return &Service{store: s}
}

// HistoryEntry is one location-bearing observation in a combined view.
type HistoryEntry struct {
	Timestamp      string   `json:"timestamp"`
	LocalTimestamp string   `json:"local_timestamp,omitempty"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	Temperature    *float64 `json:"temperature,omitempty"`
	Humidity       *float64 `json:"humidity,omitempty"`
	Speed          *float64 `json:"speed,omitempty"`
}

// CombinedView joins a registration with the device's telemetry. It is a
// derived read model and is never persisted.
type CombinedView struct {
	TrackerID        string         `json:"tracker_id"`
	TrackerName      string         `json:"tracker_name"`
	DeviceType       string         `json:"device_type"`
	ModelNumber      string         `json:"model_number"`
	BatteryLevel     *float64       `json:"batteryLevel"`
	LastConnected    string         `json:"lastConnected"`
	LastConnectedUTC string         `json:"lastConnectedUTC"`
	Location         string         `json:"location"`
	Timezone         string         `json:"timezone"`
	Data             []HistoryEntry `json:"data"`
}

// RangeRecord is one observation inside a range-query result, rendered in
// both UTC and the requested zone.
type RangeRecord struct {
	Timestamp      string   `json:"timestamp"`
	LocalTimestamp string   `json:"local_timestamp"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Temperature    *float64 `json:"temperature,omitempty"`
	Humidity       *float64 `json:"humidity,omitempty"`
	Speed          *float64 `json:"speed,omitempty"`
	BatteryLevel   *float64 `json:"batteryLevel,omitempty"`
}

// CombinedView builds the combined read model for one tracker, or returns
// (nil, nil) when the join cannot produce one. The join is all-or-nothing:
// no registration means no view, and a registration with zero telemetry
// documents means no view either.
func (s *Service) CombinedView(ctx context.Context, trackerID, zone string) (*CombinedView, error) {
	reg, err := s.store.FindTracker(ctx, trackerID)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, nil
	}

	// Registrations are keyed by an opaque string, telemetry by a numeric
	// device key. A registration whose id does not parse can never match
	// any telemetry, so it yields no view. Intentional, not a bug.
	num, err := strconv.ParseInt(trackerID, 10, 64)
	if err != nil {
		return nil, nil
	}

	docs, err := s.store.FindShipmentDocuments(ctx, num)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	// Flatten document arrays in arrival order, keeping only observations
	// with a fix. The projection is deliberately lossy: history is a track
	// on a map, and a sample with no coordinates has nowhere to go.
	var history []HistoryEntry
	totalObs := 0
	for _, doc := range docs {
		totalObs += len(doc.Data)
		for _, obs := range doc.Data {
			if obs.Lat == nil || obs.Lng == nil {
				continue
			}
			entry := HistoryEntry{
				Timestamp:   obs.DT,
				Latitude:    *obs.Lat,
				Longitude:   *obs.Lng,
				Temperature: obs.Temp,
				Humidity:    obs.Hum,
				Speed:       obs.Speed,
			}
			if local, ok := timezone.UTCToLocal(obs.DT, zone); ok {
				entry.LocalTimestamp = local
			}
			history = append(history, entry)
		}
	}

	// Documents without a single observation don't count as telemetry; the
	// join stays all-or-nothing.
	if totalObs == 0 {
		return nil, nil
	}

	// "Latest" is append order: the last element of the most recently
	// appended document's array, not the maximum timestamp. Callers that
	// need timestamp order use Range instead.
	last := docs[len(docs)-1]
	var latest *store.Observation
	if len(last.Data) > 0 {
		latest = &last.Data[len(last.Data)-1]
	}

	battery := last.Batt
	lastConnected := last.DT
	lat, lng := last.Lat, last.Lng
	if latest != nil {
		if latest.Batt != nil {
			battery = latest.Batt
		}
		if latest.DT != "" {
			lastConnected = latest.DT
		}
		if latest.Lat != nil && latest.Lng != nil {
			lat, lng = latest.Lat, latest.Lng
		}
	}

	view := &CombinedView{
		TrackerID:        reg.TrackerID,
		TrackerName:      reg.TrackerName,
		DeviceType:       reg.DeviceType,
		ModelNumber:      reg.ModelNumber,
		BatteryLevel:     battery,
		LastConnectedUTC: lastConnected,
		Location:         formatLocation(lat, lng),
		Timezone:         zone,
		Data:             history,
	}
	// Best-effort: an unparsable timestamp is echoed as-is.
	view.LastConnected, _ = timezone.UTCToLocal(lastConnected, zone)
	return view, nil
}

// Range returns the device's observations between start and end, bounds
// inclusive, interpreted as wall-clock time in zone unless they carry an
// explicit offset. Results are sorted ascending by UTC instant.
func (s *Service) Range(ctx context.Context, trackerID int64, start, end, zone string) ([]RangeRecord, error) {
	startUTC, err := timezone.LocalToUTC(start, zone)
	if err != nil {
		return nil, fmt.Errorf("start bound: %w", err)
	}
	endUTC, err := timezone.LocalToUTC(end, zone)
	if err != nil {
		return nil, fmt.Errorf("end bound: %w", err)
	}

	obs, err := s.store.FindObservationsInRange(ctx, trackerID, startUTC, endUTC)
	if err != nil {
		return nil, err
	}

	out := make([]RangeRecord, 0, len(obs))
	for _, o := range obs {
		rec := RangeRecord{
			Latitude:     o.Lat,
			Longitude:    o.Lng,
			Temperature:  o.Temp,
			Humidity:     o.Hum,
			Speed:        o.Speed,
			BatteryLevel: o.DocBatt,
		}
		if s.BatteryPerObservation && o.Batt != nil {
			rec.BatteryLevel = o.Batt
		}
		if at, err := timezone.Parse(o.DT); err == nil {
			rec.Timestamp = at.UTC().Format(timezone.DisplayLayout)
		} else {
			rec.Timestamp = o.DT
		}
		rec.LocalTimestamp, _ = timezone.UTCToLocal(o.DT, zone)
		out = append(out, rec)
	}
	return out, nil
}

func formatLocation(lat, lng *float64) string {
	if lat == nil || lng == nil {
		return ""
	}
	return fmt.Sprintf("%v, %v", *lat, *lng)
}
