// Package ops exposes the tracker's operations over HTTP and gRPC health.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signalsfoundry/antenna-tracker/internal/logging"
	"github.com/signalsfoundry/antenna-tracker/model"
	"github.com/signalsfoundry/antenna-tracker/orbit"
	"github.com/signalsfoundry/antenna-tracker/telemetry"
	"github.com/signalsfoundry/antenna-tracker/tracking"
)

// Tracking is the subset of tracking.Tracker the handlers drive.
type Tracking interface {
	BeginTracking(ctx context.Context, req model.TrackRequest) error
	CancelTracking() error
	Point(elevation, azimuth float64) error
	State() tracking.State
	Current() (tracking.SessionInfo, bool)
}

// Telemetry is the subset of telemetry.Receiver the handlers drive.
type Telemetry interface {
	Get() (telemetry.Message, bool)
	Restart()
	Running() bool
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	tracker   Tracking
	telemetry Telemetry
	observer  model.Location
	log       logging.Logger
}

// NewRouter builds the chi router. observer is used when a track request
// omits its own location. A nil metrics handler leaves /metrics unrouted.
func NewRouter(tracker Tracking, telem Telemetry, observer model.Location, metrics http.Handler, log logging.Logger) http.Handler {
	h := &Handlers{
		tracker:   tracker,
		telemetry: telem,
		observer:  observer,
		log:       logging.OrNoop(log).With(logging.String("component", "ops_http")),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.requestLog)

	r.Get("/healthz", h.healthz)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/tracking", func(r chi.Router) {
		r.Get("/", h.getTracking)
		r.Post("/", h.beginTracking)
		r.Delete("/", h.cancelTracking)
		r.Post("/point", h.point)
	})

	r.Get("/telemetry", h.getTelemetry)
	r.Post("/telemetry/restart", h.restartTelemetry)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, requestID := logging.EnsureRequestID(r.Context())
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		h.log.Debug(ctx, "http request",
			logging.String("request_id", requestID),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

type healthResponse struct {
	Status           string `json:"status"`
	TelemetryRunning bool   `json:"telemetry_running"`
	TrackingState    string `json:"tracking_state"`
}

func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		TelemetryRunning: h.telemetry.Running(),
		TrackingState:    h.tracker.State().String(),
	})
}

type trackingResponse struct {
	State   string                `json:"state"`
	Session *tracking.SessionInfo `json:"session,omitempty"`
}

func (h *Handlers) trackingStatus() trackingResponse {
	resp := trackingResponse{State: h.tracker.State().String()}
	if info, ok := h.tracker.Current(); ok {
		resp.Session = &info
	}
	return resp
}

func (h *Handlers) getTracking(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.trackingStatus())
}

type beginRequest struct {
	TargetID string          `json:"target_id"`
	Observer *model.Location `json:"observer,omitempty"`
}

func (h *Handlers) beginTracking(w http.ResponseWriter, r *http.Request) {
	var body beginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	observer := h.observer
	if body.Observer != nil {
		observer = *body.Observer
	}
	req, err := model.NewTrackRequest(body.TargetID, observer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tracker.BeginTracking(r.Context(), req); err != nil {
		writeError(w, statusForTrackingError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, h.trackingStatus())
}

func (h *Handlers) cancelTracking(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.CancelTracking(); err != nil {
		writeError(w, statusForTrackingError(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pointRequest struct {
	Elevation *float64 `json:"elevation"`
	Azimuth   *float64 `json:"azimuth"`
}

func (h *Handlers) point(w http.ResponseWriter, r *http.Request) {
	var body pointRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Elevation == nil || body.Azimuth == nil {
		writeError(w, http.StatusBadRequest, "elevation and azimuth are required")
		return
	}
	if err := h.tracker.Point(*body.Elevation, *body.Azimuth); err != nil {
		writeError(w, statusForTrackingError(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusForTrackingError maps domain errors to HTTP status codes.
func statusForTrackingError(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, orbit.ErrNoOrbitalData), errors.Is(err, tracking.ErrNotTracking):
		return http.StatusNotFound
	case errors.Is(err, tracking.ErrNotVisible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tracking.ErrTrackingActive):
		return http.StatusConflict
	case errors.Is(err, orbit.ErrFetch), errors.Is(err, orbit.ErrParse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type telemetryResponse struct {
	Seq        uint64          `json:"seq"`
	Source     string          `json:"source"`
	ReceivedAt time.Time       `json:"received_at"`
	Data       json.RawMessage `json:"data"`
}

func (h *Handlers) getTelemetry(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.telemetry.Get()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, telemetryResponse{
		Seq:        msg.Seq,
		Source:     msg.Source,
		ReceivedAt: msg.ReceivedAt,
		Data:       msg.Raw,
	})
}

func (h *Handlers) restartTelemetry(w http.ResponseWriter, r *http.Request) {
	h.telemetry.Restart()
	h.log.Info(r.Context(), "telemetry receiver restarted")
	writeJSON(w, http.StatusOK, map[string]bool{"running": h.telemetry.Running()})
}
