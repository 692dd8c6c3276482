package tracking

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/antenna-tracker/internal/logging"
	"github.com/signalsfoundry/antenna-tracker/model"
	"github.com/signalsfoundry/antenna-tracker/orbit"
)

// DefaultPeriod is the control loop cadence.
const DefaultPeriod = 2 * time.Second

// SessionInfo is a snapshot of a running session.
type SessionInfo struct {
	ID         string         `json:"id"`
	TargetID   string         `json:"target_id"`
	TargetName string         `json:"target_name"`
	Observer   model.Location `json:"observer"`
	StartedAt  time.Time      `json:"started_at"`
	Ticks      uint64         `json:"ticks"`
	Last       *orbit.Stats   `json:"last,omitempty"`
}

// Session owns one control loop goroutine. Each cycle it reads the observer
// and commands the actuator, then sleeps for the rest of the period.
// Cancellation is cooperative: the loop notices it at the next cycle boundary,
// so an in-progress actuator call is never interrupted.
type Session struct {
	id       uuid.UUID
	request  model.TrackRequest
	observer orbit.Observer
	actuator Actuator
	period   time.Duration
	log      logging.Logger
	started  time.Time

	mu      sync.Mutex
	running bool
	ticks   uint64
	last    *orbit.Stats

	wake       chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
}

func startSession(req model.TrackRequest, observer orbit.Observer, actuator Actuator, period time.Duration, log logging.Logger) *Session {
	id := uuid.New()
	s := &Session{
		id:       id,
		request:  req,
		observer: observer,
		actuator: actuator,
		period:   period,
		log: logging.OrNoop(log).With(
			logging.String("session_id", id.String()),
			logging.String("target_id", req.TargetID),
		),
		started: time.Now(),
		running: true,
		wake:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id.String() }

// Cancel clears the running flag and wakes the loop if it is sleeping. It
// does not wait; use Wait to join.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.cancelOnce.Do(func() { close(s.wake) })
}

// Wait blocks until the loop goroutine has exited.
func (s *Session) Wait() { <-s.done }

// Done is closed when the loop goroutine exits.
func (s *Session) Done() <-chan struct{} { return s.done }

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{
		ID:         s.id.String(),
		TargetID:   s.request.TargetID,
		TargetName: s.observer.TargetName(),
		Observer:   s.request.Observer,
		StartedAt:  s.started,
		Ticks:      s.ticks,
	}
	if s.last != nil {
		last := *s.last
		info.Last = &last
	}
	return info
}

func (s *Session) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) run() {
	defer close(s.done)
	ctx := context.Background()
	s.log.Info(ctx, "tracking loop started", logging.Duration("period", s.period))

	for s.isRunning() {
		cycleStart := time.Now()
		s.tick(ctx)

		remaining := s.period - time.Since(cycleStart)
		if remaining <= 0 {
			continue
		}
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		}
	}
	s.log.Info(ctx, "tracking loop stopped")
}

func (s *Session) tick(ctx context.Context) {
	stats := s.observer.CurrentStats()
	if math.IsNaN(stats.ElevationDeg) || math.IsNaN(stats.AzimuthDeg) {
		s.log.Warn(ctx, "skipping cycle with unusable look angles")
		return
	}

	s.actuator.SetElevation(stats.ElevationDeg)
	s.actuator.SetAzimuth(stats.AzimuthDeg)

	s.mu.Lock()
	s.ticks++
	s.last = &stats
	s.mu.Unlock()

	s.log.Debug(ctx, "antenna commanded",
		logging.Float64("elevation_deg", stats.ElevationDeg),
		logging.Float64("azimuth_deg", stats.AzimuthDeg),
		logging.Float64("distance_km", stats.DistanceKm),
	)
}
