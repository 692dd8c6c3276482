package tracking

import (
	"context"
	"sync"

	"github.com/signalsfoundry/antenna-tracker/internal/logging"
)

// Actuator repositions the antenna. Commands are fire-and-forget: any
// failure is the actuator's own concern. The tracker never issues two
// commands to the same actuator concurrently.
type Actuator interface {
	SetElevation(degrees float64)
	SetAzimuth(degrees float64)
}

// Axis labels used when recording actuator commands.
const (
	AxisElevation = "elevation"
	AxisAzimuth   = "azimuth"
)

// ActuatorRecorder observes commands sent to the antenna.
type ActuatorRecorder interface {
	ActuatorCommand(axis string, degrees float64)
}

// LogActuator logs every command instead of moving hardware. It is the
// default actuator for dry runs and remembers the last position commanded.
type LogActuator struct {
	log logging.Logger

	mu        sync.Mutex
	elevation float64
	azimuth   float64
}

// NewLogActuator returns an actuator that writes commands to log.
func NewLogActuator(log logging.Logger) *LogActuator {
	return &LogActuator{log: logging.OrNoop(log).With(logging.String("component", "actuator"))}
}

func (a *LogActuator) SetElevation(degrees float64) {
	a.mu.Lock()
	a.elevation = degrees
	a.mu.Unlock()
	a.log.Info(context.Background(), "set elevation", logging.Float64("degrees", degrees))
}

func (a *LogActuator) SetAzimuth(degrees float64) {
	a.mu.Lock()
	a.azimuth = degrees
	a.mu.Unlock()
	a.log.Info(context.Background(), "set azimuth", logging.Float64("degrees", degrees))
}

// Position returns the last commanded elevation and azimuth.
func (a *LogActuator) Position() (elevation, azimuth float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.elevation, a.azimuth
}

// InstrumentedActuator forwards commands to an inner actuator and reports
// each one to a recorder.
type InstrumentedActuator struct {
	inner    Actuator
	recorder ActuatorRecorder
}

// Instrument wraps inner. A nil recorder returns inner unchanged.
func Instrument(inner Actuator, recorder ActuatorRecorder) Actuator {
	if recorder == nil {
		return inner
	}
	return &InstrumentedActuator{inner: inner, recorder: recorder}
}

func (a *InstrumentedActuator) SetElevation(degrees float64) {
	a.inner.SetElevation(degrees)
	a.recorder.ActuatorCommand(AxisElevation, degrees)
}

func (a *InstrumentedActuator) SetAzimuth(degrees float64) {
	a.inner.SetAzimuth(degrees)
	a.recorder.ActuatorCommand(AxisAzimuth, degrees)
}
