package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps any failure to reach or decode from the document
	// store. The adapter never retries; retry policy belongs to the caller.
	ErrUnavailable = errors.New("telemetry store unavailable")

	// ErrNotFound marks lookups of documents that do not exist. Most read
	// paths translate it to an absent result rather than surfacing it.
	ErrNotFound = errors.New("not found")
)

// ChangeFeed is a live, ordered stream of insert events on the shipment data
// collection. Next blocks until an event arrives, the feed fails, or ctx is
// cancelled. A feed is not restartable; callers re-subscribe after Close.
type ChangeFeed interface {
	Next(ctx context.Context) bool
	Event() ChangeEvent
	Err() error
	Close(ctx context.Context) error
}

// Store is the telemetry store adapter contract. Reads are safe to run
// concurrently with each other and with a feed consumer.
type Store interface {
	InsertTracker(ctx context.Context, t *Tracker) error
	// FindTracker returns (nil, nil) when no registration exists.
	FindTracker(ctx context.Context, trackerID string) (*Tracker, error)
	ListTrackers(ctx context.Context) ([]Tracker, error)
	DeleteTracker(ctx context.Context, trackerID string) (int64, error)

	// AppendObservation pushes one observation into the device's current
	// document, creating the document if the device has none (upsert).
	// Appends to an existing document are updates the insert feed does not
	// carry; writers that must be seen by feed consumers use
	// InsertShipmentDocument instead.
	AppendObservation(ctx context.Context, trackerID int64, obs Observation) error
	// InsertShipmentDocument writes a new shipment document. Every call is
	// an insert on the collection, so each one surfaces on the change feed.
	InsertShipmentDocument(ctx context.Context, doc *ShipmentDocument) error
	// FindShipmentDocuments returns every document for the device in
	// arrival order. An empty slice means the device has no telemetry.
	FindShipmentDocuments(ctx context.Context, trackerID int64) ([]ShipmentDocument, error)
	// FindObservationsInRange returns observations whose parsed UTC instant
	// lies in [start, end], sorted ascending by instant. Observations with
	// unparsable timestamps are skipped, not errors.
	FindObservationsInRange(ctx context.Context, trackerID int64, start, end time.Time) ([]RangeObservation, error)

	InsertShipmentMeta(ctx context.Context, doc ShipmentMeta) (string, error)

	// WatchInserts opens a change feed covering inserts on the shipment
	// data collection. The returned feed stays open until Close or ctx
	// cancellation.
	WatchInserts(ctx context.Context) (ChangeFeed, error)
}
