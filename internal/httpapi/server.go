package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tracker-service/internal/realtime"
	"tracker-service/internal/store"
	"tracker-service/internal/timezone"
	"tracker-service/internal/tracker"

	"github.com/go-chi/chi/v5"
)

// LiveReader reads the cached latest record for a tracker. Optional.
type LiveReader interface {
	Get(ctx context.Context, trackerID int64) ([]byte, error)
}

type Server struct {
	store store.Store
	svc   *tracker.Service
	hub   *realtime.Hub
	live  LiveReader
}

func NewServer(st store.Store, svc *tracker.Service, hub *realtime.Hub, live LiveReader) *Server {
	return &Server{store: st, svc: svc, hub: hub, live: live}
}

func (s *Server) Register(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.ServeHTTP)
	}

	r.Post("/register_tracker", s.handleRegisterTracker)
	r.Route("/trackers", func(r chi.Router) {
		r.Get("/", s.handleTrackersList)
		r.Get("/{tracker_id}", s.handleTrackerGet)
		r.Delete("/{tracker_id}", s.handleTrackerDelete)
		r.Get("/{tracker_id}/range", s.handleTrackerRange)
		r.Get("/{tracker_id}/live", s.handleTrackerLive)
	})
	r.Post("/shipment_meta", s.handleShipmentMeta)
}

type jsonErr struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, jsonErr{Error: msg, Code: status})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "telemetry store unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func zoneParam(r *http.Request) string {
	if tz := strings.TrimSpace(r.URL.Query().Get("tz")); tz != "" {
		return tz
	}
	return "UTC"
}

func (s *Server) handleRegisterTracker(w http.ResponseWriter, r *http.Request) {
	var t store.Tracker
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t.TrackerID = strings.TrimSpace(t.TrackerID)
	t.TrackerName = strings.TrimSpace(t.TrackerName)
	if t.TrackerID == "" || t.TrackerName == "" {
		writeError(w, http.StatusBadRequest, "tracker_id and tracker_name are required")
		return
	}

	if err := s.store.InsertTracker(r.Context(), &t); err != nil {
		writeStoreError(w, err)
		return
	}
	slog.Info("tracker registered", "tracker_id", t.TrackerID)

	// The view is absent until the tracker has telemetry; register still
	// succeeds and the announcement is skipped, matching the all-or-nothing
	// join.
	view, err := s.svc.CombinedView(r.Context(), t.TrackerID, zoneParam(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if view != nil && s.hub != nil {
		if b, err := json.Marshal(map[string]any{"operationType": "insert", "data": view}); err == nil {
			s.hub.BroadcastRaw(b)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Tracker registered successfully",
		"tracker": view,
	})
}

func (s *Server) handleTrackersList(w http.ResponseWriter, r *http.Request) {
	zone := zoneParam(r)
	regs, err := s.store.ListTrackers(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	views := make([]*tracker.CombinedView, 0, len(regs))
	for _, reg := range regs {
		view, err := s.svc.CombinedView(r.Context(), reg.TrackerID, zone)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if view == nil {
			// Registered but no telemetry yet.
			continue
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleTrackerGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "tracker_id"))
	view, err := s.svc.CombinedView(r.Context(), id, zoneParam(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if view == nil {
		writeError(w, http.StatusNotFound, "tracker not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTrackerDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "tracker_id"))
	count, err := s.store.DeleteTracker(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if count == 0 {
		writeError(w, http.StatusNotFound, "tracker not found")
		return
	}
	slog.Info("tracker deleted", "tracker_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": count})
}

func (s *Server) handleTrackerRange(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "tracker_id")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "tracker_id must be numeric")
		return
	}
	start := strings.TrimSpace(r.URL.Query().Get("start"))
	end := strings.TrimSpace(r.URL.Query().Get("end"))
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "start and end are required")
		return
	}

	records, err := s.svc.Range(r.Context(), id, start, end, zoneParam(r))
	if err != nil {
		if errors.Is(err, timezone.ErrInvalidTimestamp) {
			writeError(w, http.StatusBadRequest, "invalid start or end timestamp")
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleTrackerLive(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		writeError(w, http.StatusNotFound, "live cache not configured")
		return
	}
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "tracker_id")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "tracker_id must be numeric")
		return
	}
	b, err := s.live.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "live cache unavailable")
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "no live record")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) handleShipmentMeta(w http.ResponseWriter, r *http.Request) {
	var doc store.ShipmentMeta
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil || len(doc) == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := s.store.InsertShipmentMeta(r.Context(), doc)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Shipment data inserted successfully",
		"id":      id,
	})
}
