// Package storetest provides an in-memory store.Store for tests, playing the
// role sqlite-in-memory plays for the relational services: same contract, no
// external process.
package storetest

import (
	"context"
	"sync"
	"time"

	"tracker-service/internal/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Fake struct {
	mu       sync.Mutex
	trackers []store.Tracker
	docs     []store.ShipmentDocument
	meta     []store.ShipmentMeta
	feeds    []chan store.ChangeEvent

	// WatchErrs is popped on each WatchInserts call; a non-nil entry is
	// returned as the subscribe error. Lets tests exercise retry paths.
	WatchErrs []error
}

func New() *Fake { return &Fake{} }

func (f *Fake) InsertTracker(_ context.Context, t *store.Tracker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	f.trackers = append(f.trackers, *t)
	return nil
}

func (f *Fake) FindTracker(_ context.Context, trackerID string) (*store.Tracker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.trackers {
		if f.trackers[i].TrackerID == trackerID {
			t := f.trackers[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (f *Fake) ListTrackers(_ context.Context) ([]store.Tracker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Tracker, len(f.trackers))
	copy(out, f.trackers)
	return out, nil
}

func (f *Fake) DeleteTracker(_ context.Context, trackerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []store.Tracker
	var removed int64
	for _, t := range f.trackers {
		if t.TrackerID == trackerID {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	f.trackers = kept
	return removed, nil
}

func (f *Fake) AppendObservation(_ context.Context, trackerID int64, obs store.Observation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.docs {
		if f.docs[i].TrackerID == trackerID {
			f.docs[i].Data = append(f.docs[i].Data, obs)
			// Update to an existing document; the insert-only feed
			// stays quiet, mirroring the change stream filter.
			return nil
		}
	}
	doc := store.ShipmentDocument{
		ID:        primitive.NewObjectID(),
		TrackerID: trackerID,
		Data:      []store.Observation{obs},
	}
	f.docs = append(f.docs, doc)
	f.emitLocked(store.ChangeEvent{OperationType: "insert", FullDocument: doc})
	return nil
}

func (f *Fake) InsertShipmentDocument(_ context.Context, doc *store.ShipmentDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	f.docs = append(f.docs, *doc)
	f.emitLocked(store.ChangeEvent{OperationType: "insert", FullDocument: *doc})
	return nil
}

// SeedDocument inserts a full shipment document and emits the matching
// insert change event, the way an external writer would.
func (f *Fake) SeedDocument(doc store.ShipmentDocument) {
	_ = f.InsertShipmentDocument(context.Background(), &doc)
}

// Emit pushes a raw change event to all open feeds. Tests use it for
// malformed or non-insert events that a real stream could deliver.
func (f *Fake) Emit(ev store.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitLocked(ev)
}

func (f *Fake) emitLocked(ev store.ChangeEvent) {
	for _, ch := range f.feeds {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (f *Fake) FindShipmentDocuments(_ context.Context, trackerID int64) ([]store.ShipmentDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ShipmentDocument
	for _, d := range f.docs {
		if d.TrackerID == trackerID {
			cp := d
			cp.Data = append([]store.Observation(nil), d.Data...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (f *Fake) FindObservationsInRange(ctx context.Context, trackerID int64, start, end time.Time) ([]store.RangeObservation, error) {
	docs, err := f.FindShipmentDocuments(ctx, trackerID)
	if err != nil {
		return nil, err
	}
	return store.FilterRange(docs, start, end), nil
}

func (f *Fake) InsertShipmentMeta(_ context.Context, doc store.ShipmentMeta) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta = append(f.meta, doc)
	return primitive.NewObjectID().Hex(), nil
}

// FeedCount reports how many change feeds are open; tests use it to wait for
// a consumer's subscription before emitting events.
func (f *Fake) FeedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.feeds)
}

func (f *Fake) MetaCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.meta)
}

func (f *Fake) WatchInserts(_ context.Context) (store.ChangeFeed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.WatchErrs) > 0 {
		err := f.WatchErrs[0]
		f.WatchErrs = f.WatchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	ch := make(chan store.ChangeEvent, 64)
	f.feeds = append(f.feeds, ch)
	return &fakeFeed{fake: f, ch: ch}, nil
}

type fakeFeed struct {
	fake *Fake
	ch   chan store.ChangeEvent
	ev   store.ChangeEvent
	once sync.Once
}

func (f *fakeFeed) Next(ctx context.Context) bool {
	select {
	case ev, ok := <-f.ch:
		if !ok {
			return false
		}
		f.ev = ev
		return true
	case <-ctx.Done():
		return false
	}
}

func (f *fakeFeed) Event() store.ChangeEvent { return f.ev }

func (f *fakeFeed) Err() error { return nil }

func (f *fakeFeed) Close(_ context.Context) error {
	f.once.Do(func() {
		f.fake.mu.Lock()
		defer f.fake.mu.Unlock()
		for i, ch := range f.fake.feeds {
			if ch == f.ch {
				f.fake.feeds = append(f.fake.feeds[:i], f.fake.feeds[i+1:]...)
				break
			}
		}
	})
	return nil
}

var _ store.Store = (*Fake)(nil)
