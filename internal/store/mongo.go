package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tracker-service/internal/timezone"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	trackersCollection  = "registered_trackers"
	shipmentsCollection = "Shipment_Data"
	metaCollection      = "Shipment_Meta"
)

// Repo is the MongoDB-backed Store.
type Repo struct {
	trackers  *mongo.Collection
	shipments *mongo.Collection
	meta      *mongo.Collection
}

// Connect dials the document store and pings it once so misconfiguration
// fails at startup instead of on first use.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, unavailable(err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, unavailable(err)
	}
	return client, nil
}

func NewRepo(client *mongo.Client, dbName string) *Repo {
	db := client.Database(dbName)
	return &Repo{
		trackers:  db.Collection(trackersCollection),
		shipments: db.Collection(shipmentsCollection),
		meta:      db.Collection(metaCollection),
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r *Repo) InsertTracker(ctx context.Context, t *Tracker) error {
	if _, err := r.trackers.InsertOne(ctx, t); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Repo) FindTracker(ctx context.Context, trackerID string) (*Tracker, error) {
	var t Tracker
	err := r.trackers.FindOne(ctx, bson.M{"tracker_id": trackerID}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &t, nil
}

func (r *Repo) ListTrackers(ctx context.Context) ([]Tracker, error) {
	cur, err := r.trackers.Find(ctx, bson.M{})
	if err != nil {
		return nil, unavailable(err)
	}
	var out []Tracker
	if err := cur.All(ctx, &out); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (r *Repo) DeleteTracker(ctx context.Context, trackerID string) (int64, error) {
	res, err := r.trackers.DeleteMany(ctx, bson.M{"tracker_id": trackerID})
	if err != nil {
		return 0, unavailable(err)
	}
	return res.DeletedCount, nil
}

func (r *Repo) AppendObservation(ctx context.Context, trackerID int64, obs Observation) error {
	_, err := r.shipments.UpdateOne(ctx,
		bson.M{"trackerID": trackerID},
		bson.M{"$push": bson.M{"data": obs}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Repo) InsertShipmentDocument(ctx context.Context, doc *ShipmentDocument) error {
	res, err := r.shipments.InsertOne(ctx, doc)
	if err != nil {
		return unavailable(err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = id
	}
	return nil
}

func (r *Repo) FindShipmentDocuments(ctx context.Context, trackerID int64) ([]ShipmentDocument, error) {
	// Natural order is arrival order, which the aggregator's "latest" rule
	// depends on.
	cur, err := r.shipments.Find(ctx, bson.M{"trackerID": trackerID})
	if err != nil {
		return nil, unavailable(err)
	}
	var out []ShipmentDocument
	if err := cur.All(ctx, &out); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (r *Repo) FindObservationsInRange(ctx context.Context, trackerID int64, start, end time.Time) ([]RangeObservation, error) {
	docs, err := r.FindShipmentDocuments(ctx, trackerID)
	if err != nil {
		return nil, err
	}
	return FilterRange(docs, start, end), nil
}

// FilterRange selects observations whose parsed UTC instant lies in
// [start, end] inclusive and sorts them ascending by that instant. The
// filter runs on parsed instants, never on string comparison; observations
// with unparsable timestamps are dropped. Shared with the in-memory fake so
// both stores honor the same range contract.
func FilterRange(docs []ShipmentDocument, start, end time.Time) []RangeObservation {
	type keyed struct {
		at  time.Time
		obs RangeObservation
	}
	var hits []keyed
	for _, doc := range docs {
		for _, obs := range doc.Data {
			at, err := timezone.Parse(obs.DT)
			if err != nil {
				continue
			}
			if at.Before(start) || at.After(end) {
				continue
			}
			hits = append(hits, keyed{at: at, obs: RangeObservation{Observation: obs, DocBatt: doc.Batt}})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at.Before(hits[j].at) })
	out := make([]RangeObservation, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.obs)
	}
	return out
}

func (r *Repo) InsertShipmentMeta(ctx context.Context, doc ShipmentMeta) (string, error) {
	res, err := r.meta.InsertOne(ctx, doc)
	if err != nil {
		return "", unavailable(err)
	}
	return fmt.Sprintf("%v", res.InsertedID), nil
}

func (r *Repo) WatchInserts(ctx context.Context) (ChangeFeed, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}},
	}
	cs, err := r.shipments.Watch(ctx, pipeline)
	if err != nil {
		return nil, unavailable(err)
	}
	return &changeStreamFeed{cs: cs}, nil
}

type changeStreamFeed struct {
	cs        *mongo.ChangeStream
	ev        ChangeEvent
	decodeErr error
}

func (f *changeStreamFeed) Next(ctx context.Context) bool {
	if !f.cs.Next(ctx) {
		return false
	}
	var ev ChangeEvent
	if err := f.cs.Decode(&ev); err != nil {
		f.decodeErr = unavailable(err)
		return false
	}
	f.ev = ev
	return true
}

func (f *changeStreamFeed) Event() ChangeEvent { return f.ev }

func (f *changeStreamFeed) Err() error {
	if f.decodeErr != nil {
		return f.decodeErr
	}
	err := f.cs.Err()
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	return unavailable(err)
}

func (f *changeStreamFeed) Close(ctx context.Context) error {
	return f.cs.Close(ctx)
}

var _ Store = (*Repo)(nil)
