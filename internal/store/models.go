package store

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tracker is a device registration. Registrations are keyed by the
// caller-supplied tracker_id string and are immutable after creation.
type Tracker struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	TrackerID   string             `bson:"tracker_id" json:"tracker_id"`
	TrackerName string             `bson:"tracker_name" json:"tracker_name"`
	DeviceType  string             `bson:"device_type" json:"device_type"`
	ModelNumber string             `bson:"model_number" json:"model_number"`
}

// Observation is one telemetry sample. Every field except DT is optional:
// devices report whatever subset of sensors they carry.
type Observation struct {
	DT    string   `bson:"DT,omitempty" json:"DT,omitempty"`
	Lat   *float64 `bson:"Lat,omitempty" json:"Lat,omitempty"`
	Lng   *float64 `bson:"Lng,omitempty" json:"Lng,omitempty"`
	Temp  *float64 `bson:"Temp,omitempty" json:"Temp,omitempty"`
	Hum   *float64 `bson:"Hum,omitempty" json:"Hum,omitempty"`
	Speed *float64 `bson:"Speed,omitempty" json:"Speed,omitempty"`
	Batt  *float64 `bson:"Batt,omitempty" json:"Batt,omitempty"`
}

// ShipmentDocument is the per-device container observations are appended
// into. A device accumulates documents over time; the union of their Data
// arrays, in arrival order, is the device's full history. Batt/DT/Lat/Lng at
// the document level are legacy writers' summary fields and serve only as
// fallbacks when the newest observation lacks them.
type ShipmentDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	TrackerID int64              `bson:"trackerID" json:"trackerID"`
	Data      []Observation      `bson:"data" json:"data"`
	Batt      *float64           `bson:"Batt,omitempty" json:"Batt,omitempty"`
	DT        string             `bson:"DT,omitempty" json:"DT,omitempty"`
	Lat       *float64           `bson:"Lat,omitempty" json:"Lat,omitempty"`
	Lng       *float64           `bson:"Lng,omitempty" json:"Lng,omitempty"`
}

// RangeObservation pairs an observation with the battery summary of the
// document it was read from, so range results can fall back to the
// document-level value.
type RangeObservation struct {
	Observation
	DocBatt *float64
}

// ShipmentMeta is a free-form shipment-leg metadata document. The service
// stores it verbatim; validation belongs to the route layer's callers.
type ShipmentMeta map[string]any

// ChangeEvent is one raw change-feed event. Only inserts on the shipment
// data collection are subscribed to, but OperationType is kept so consumers
// can re-check.
type ChangeEvent struct {
	OperationType string           `bson:"operationType"`
	FullDocument  ShipmentDocument `bson:"fullDocument"`
}
