// Package ingest bridges device telemetry arriving over MQTT into the
// document store. Each message becomes a new shipment document, so every
// write surfaces on the insert feed; the bridge never talks to the hub
// directly.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"tracker-service/internal/mqtt"
	"tracker-service/internal/store"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const telemetryPrefix = "shipment/telemetry/"

type Bridge struct {
	store store.Store
}

// payload accepts either a single observation or a batch; devices in the
// field publish both shapes.
type payload struct {
	Data []store.Observation `json:"data"`
	store.Observation
}

func (b *Bridge) handleMessage(ctx context.Context, topic string, raw []byte) {
	if len(raw) == 0 {
		return
	}

	id := strings.TrimPrefix(topic, telemetryPrefix)
	trackerID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		slog.Warn("ingest: non-numeric tracker topic, dropping", "topic", topic)
		return
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Warn("ingest: malformed payload, dropping", "tracker_id", trackerID, "error", err)
		return
	}
	batch := p.Data
	if len(batch) == 0 {
		if p.Observation.DT == "" {
			slog.Warn("ingest: empty payload, dropping", "tracker_id", trackerID)
			return
		}
		batch = []store.Observation{p.Observation}
	}

	msgCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	// One document per message, not an append: appends to an existing
	// document are updates the insert feed never carries, so telemetry
	// written that way would stop reaching subscribers after the first
	// message.
	doc := store.ShipmentDocument{TrackerID: trackerID, Data: batch}
	if err := b.store.InsertShipmentDocument(msgCtx, &doc); err != nil {
		slog.Warn("ingest: insert failed", "tracker_id", trackerID, "error", err)
		return
	}
	slog.Info("ingest: stored observations", "tracker_id", trackerID, "count", len(batch))
}

// Start connects to the broker and subscribes to the telemetry topics. The
// subscription is torn down when ctx is cancelled.
func Start(ctx context.Context, st store.Store, brokerURL string) (*Bridge, error) {
	cli, err := mqtt.Connect(brokerURL, "tracker-ingest")
	if err != nil {
		return nil, err
	}
	b := &Bridge{store: st}

	h := func(_ paho.Client, msg mqtt.Message) {
		b.handleMessage(ctx, msg.Topic(), msg.Payload())
	}
	if err := cli.Subscribe(telemetryPrefix+"+", h); err != nil {
		cli.Disconnect(250)
		return nil, err
	}

	go func() {
		<-ctx.Done()
		cli.Disconnect(250)
	}()

	return b, nil
}
