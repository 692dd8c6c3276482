package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/antenna-tracker/internal/logging"
	"github.com/signalsfoundry/antenna-tracker/model"
	"github.com/signalsfoundry/antenna-tracker/orbit"
)

var (
	// ErrNotVisible means the target is below the observer's horizon, so no
	// control loop was started.
	ErrNotVisible = errors.New("target not visible from observer location")
	// ErrNotTracking is returned by CancelTracking when no session is active.
	ErrNotTracking = errors.New("no active tracking session")
	// ErrTrackingActive is returned by Point while a session owns the actuator.
	ErrTrackingActive = errors.New("tracking session active")
)

// State is the tracker lifecycle position.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateActive
	StateCancelled
	StateVisibilityFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateActive:
		return "active"
	case StateCancelled:
		return "cancelled"
	case StateVisibilityFailed:
		return "visibility_failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Resolver turns a track request into an observer. orbit.Bridge is the
// production implementation.
type Resolver interface {
	Resolve(ctx context.Context, req model.TrackRequest) (orbit.Observer, error)
}

// Session outcomes reported to a SessionRecorder.
const (
	OutcomeStarted       = "started"
	OutcomeNotVisible    = "not_visible"
	OutcomeResolveFailed = "resolve_failed"
	OutcomeCancelled     = "cancelled"
)

// SessionRecorder observes tracker lifecycle transitions.
type SessionRecorder interface {
	SessionOutcome(outcome string)
	SetTrackingActive(active bool)
}

type nopSessionRecorder struct{}

func (nopSessionRecorder) SessionOutcome(string)  {}
func (nopSessionRecorder) SetTrackingActive(bool) {}

// Tracker is the caller-owned handle for antenna tracking. It runs at most
// one Session at a time.
//
// lifecycle serializes BeginTracking, CancelTracking, Point and Close and is
// held while an old session is joined, so two loops never command the
// actuator at once. mu guards state and session for readers; it is always
// taken after lifecycle.
type Tracker struct {
	lifecycle sync.Mutex

	mu      sync.RWMutex
	state   State
	session *Session

	resolver Resolver
	actuator Actuator
	period   time.Duration
	log      logging.Logger
	recorder SessionRecorder
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithPeriod sets the control loop cadence. Non-positive values are ignored.
func WithPeriod(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.period = d
		}
	}
}

// WithSessionRecorder attaches a metrics recorder.
func WithSessionRecorder(r SessionRecorder) Option {
	return func(t *Tracker) {
		if r != nil {
			t.recorder = r
		}
	}
}

// NewTracker builds an idle tracker.
func NewTracker(resolver Resolver, actuator Actuator, log logging.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		state:    StateIdle,
		resolver: resolver,
		actuator: actuator,
		period:   DefaultPeriod,
		log:      logging.OrNoop(log).With(logging.String("component", "tracker")),
		recorder: nopSessionRecorder{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BeginTracking cancels and joins any active session, resolves req and, if
// the target is visible, starts a new control loop. Resolve errors are
// returned as-is. An invisible target passes through StateVisibilityFailed,
// ends in StateStopped and yields ErrNotVisible; no loop is started.
func (t *Tracker) BeginTracking(ctx context.Context, req model.TrackRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.currentSession() != nil {
		t.log.Info(ctx, "replacing active tracking session")
		t.cancelLocked(ctx)
	}

	t.setState(StateResolving)
	observer, err := t.resolver.Resolve(ctx, req)
	if err != nil {
		t.setState(StateIdle)
		t.recorder.SessionOutcome(OutcomeResolveFailed)
		return err
	}

	if !observer.Visible() {
		t.setState(StateVisibilityFailed)
		t.recorder.SessionOutcome(OutcomeNotVisible)
		t.log.Info(ctx, "target not visible",
			logging.String("target_id", req.TargetID),
			logging.String("observer", req.Observer.String()),
		)
		t.setState(StateStopped)
		return fmt.Errorf("%w: %s from %s", ErrNotVisible, observer.TargetName(), req.Observer)
	}

	session := startSession(req, observer, t.actuator, t.period, t.log)
	t.mu.Lock()
	t.session = session
	t.state = StateActive
	t.mu.Unlock()
	t.recorder.SessionOutcome(OutcomeStarted)
	t.recorder.SetTrackingActive(true)

	t.log.Info(ctx, "tracking started",
		logging.String("session_id", session.ID()),
		logging.String("target_id", req.TargetID),
		logging.String("target_name", observer.TargetName()),
	)
	return nil
}

// CancelTracking stops the active session and waits for its loop to exit.
// It returns ErrNotTracking if nothing is being tracked.
func (t *Tracker) CancelTracking() error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.currentSession() == nil {
		return ErrNotTracking
	}
	t.cancelLocked(context.Background())
	return nil
}

// Point commands a fixed position. It is refused while a session owns the
// actuator.
func (t *Tracker) Point(elevation, azimuth float64) error {
	if !finite(elevation) || !finite(azimuth) {
		return fmt.Errorf("%w: non-finite pointing angle", model.ErrInvalidRequest)
	}

	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.currentSession() != nil {
		return ErrTrackingActive
	}
	t.actuator.SetElevation(elevation)
	t.actuator.SetAzimuth(azimuth)
	t.log.Info(context.Background(), "antenna pointed",
		logging.Float64("elevation_deg", elevation),
		logging.Float64("azimuth_deg", azimuth),
	)
	return nil
}

// Close cancels any active session. It is safe to call when idle.
func (t *Tracker) Close() {
	if err := t.CancelTracking(); err != nil && !errors.Is(err, ErrNotTracking) {
		t.log.Warn(context.Background(), "closing tracker", logging.Err(err))
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Current returns a snapshot of the active session, if any.
func (t *Tracker) Current() (SessionInfo, bool) {
	s := t.currentSession()
	if s == nil {
		return SessionInfo{}, false
	}
	return s.Info(), true
}

func (t *Tracker) currentSession() *Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Tracker) cancelLocked(ctx context.Context) {
	t.mu.Lock()
	session := t.session
	t.state = StateCancelled
	t.mu.Unlock()

	session.Cancel()
	session.Wait()

	t.mu.Lock()
	t.session = nil
	t.state = StateStopped
	t.mu.Unlock()
	t.recorder.SessionOutcome(OutcomeCancelled)
	t.recorder.SetTrackingActive(false)

	info := session.Info()
	t.log.Info(ctx, "tracking stopped",
		logging.String("session_id", info.ID),
		logging.Int("ticks", int(info.Ticks)),
	)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
