package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/engine/fleet"
	"github.com/WessleyAI/transit-mvp/pkg/metrics"
	"github.com/WessleyAI/transit-mvp/pkg/mid"
)

type answerer interface {
	Answer(ctx context.Context, query string) *domain.Answer
}

type busReader interface {
	Bus(ctx context.Context, busID string) (fleet.Bus, error)
}

type locationUpdater interface {
	UpdateLocation(busID string, lat, lon float64) (fleet.Bus, error)
}

// server holds the HTTP handlers. locations and recent may be nil.
type server struct {
	answers   answerer
	buses     busReader
	locations locationUpdater
	recent    func() []domain.NotificationEvent
	metrics   *metrics.Registry
	logger    *slog.Logger
}

// handler builds the routed, middleware-wrapped handler. The /api routes
// share limit.
func (s *server) handler(corsOrigin string, limit mid.Allower) http.Handler {
	limited := mid.RateLimit(limit)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("POST /api/ask", limited(http.HandlerFunc(s.handleAsk)))
	mux.Handle("POST /api/driver/location", limited(http.HandlerFunc(s.handleDriverLocation)))
	mux.HandleFunc("POST /internal/ask", s.handleInternalAsk)
	mux.HandleFunc("GET /internal/notifications", s.handleNotifications)
	mux.HandleFunc("GET /bus/status", s.handleBusStatus)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mws := []mid.Middleware{
		mid.Recover(s.logger),
		mid.Logger(s.logger),
		mid.OTel("transit-api"),
		mid.CORS(corsOrigin),
	}
	if s.metrics != nil {
		mws = append(mws, mid.Metrics(s.metrics))
	}
	return mid.Chain(mux, mws...)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AskRequest is the JSON body for POST /api/ask and /internal/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the public answer shape.
type AskResponse struct {
	Answer string `json:"answer"`
}

func (s *server) readQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	return req.Question, true
}

func (s *server) handleAsk(w http.ResponseWriter, r *http.Request) {
	q, ok := s.readQuestion(w, r)
	if !ok {
		return
	}
	ans := s.answers.Answer(r.Context(), q)
	writeJSON(w, http.StatusOK, AskResponse{Answer: ans.Answer})
}

func (s *server) handleInternalAsk(w http.ResponseWriter, r *http.Request) {
	q, ok := s.readQuestion(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.answers.Answer(r.Context(), q))
}

// BusStatus is the wire format of GET /bus/status. The live position
// provider reads the same shape.
type BusStatus struct {
	BusID         string  `json:"bus_id"`
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	RouteID       string  `json:"route_id,omitempty"`
	SpeedKmph     float64 `json:"speed_kmph"`
	Status        string  `json:"status,omitempty"`
	StatusMessage string  `json:"status_message,omitempty"`
}

func busStatus(id string, b fleet.Bus) BusStatus {
	return BusStatus{
		BusID:         id,
		Lat:           b.Lat,
		Lon:           b.Lon,
		RouteID:       b.RouteID,
		SpeedKmph:     b.Speed(),
		Status:        b.Status,
		StatusMessage: b.StatusMessage,
	}
}

func (s *server) handleBusStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("bus_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bus_id is required")
		return
	}
	b, err := s.buses.Bus(r.Context(), id)
	if errors.Is(err, fleet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown bus "+id)
		return
	}
	if err != nil {
		s.logger.Error("bus status", "bus_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeOK(w, busStatus(id, b))
}

// LocationUpdate is the JSON body for POST /api/driver/location.
type LocationUpdate struct {
	BusID string   `json:"bus_id"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
}

func (s *server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	if s.locations == nil {
		writeError(w, http.StatusNotImplemented, "location updates need the memory fleet backend")
		return
	}
	var req LocationUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BusID == "" || req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "bus_id, lat and lon are required")
		return
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lon < -180 || *req.Lon > 180 {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}
	b, err := s.locations.UpdateLocation(req.BusID, *req.Lat, *req.Lon)
	if errors.Is(err, fleet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown bus "+req.BusID)
		return
	}
	if err != nil {
		s.logger.Error("driver location", "bus_id", req.BusID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.logger.Debug("driver location updated", "bus_id", req.BusID, "lat", *req.Lat, "lon", *req.Lon)
	writeOK(w, busStatus(req.BusID, b))
}

func (s *server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	events := []domain.NotificationEvent{}
	if s.recent != nil {
		events = append(events, s.recent()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": events})
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
