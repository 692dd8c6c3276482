package orbit

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/antenna-tracker/model"
	"github.com/signalsfoundry/antenna-tracker/timectrl"
)

// DefaultMinElevationDeg is the geometric horizon.
const DefaultMinElevationDeg = 0.0

// Stats is the target's sky position as seen from the observer.
type Stats struct {
	ElevationDeg float64
	AzimuthDeg   float64
	DistanceKm   float64
}

// Observer reports where a target is relative to a fixed ground location.
// An Observer is used by one tracking session at a time.
type Observer interface {
	CurrentStats() Stats
	Visible() bool
	TargetName() string
}

// SGP4Observer propagates a TLE with SGP4 and converts the result to look
// angles for the observer location.
type SGP4Observer struct {
	sat             satellite.Satellite
	set             ElementSet
	location        model.Location
	clock           timectrl.Clock
	minElevationDeg float64
}

// ObserverOption customises an SGP4Observer.
type ObserverOption func(*SGP4Observer)

// WithClock sets the clock used by CurrentStats. Defaults to wall time.
func WithClock(c timectrl.Clock) ObserverOption {
	return func(o *SGP4Observer) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMinElevation sets the elevation (degrees) at or above which the target
// counts as visible.
func WithMinElevation(deg float64) ObserverOption {
	return func(o *SGP4Observer) { o.minElevationDeg = deg }
}

// NewSGP4Observer validates set and initialises the propagator for the given
// location.
func NewSGP4Observer(location model.Location, set ElementSet, opts ...ObserverOption) (*SGP4Observer, error) {
	if err := location.Validate(); err != nil {
		return nil, err
	}
	// go-satellite aborts the process on unparsable columns, so the lines are
	// re-validated here even if they came from ParseDocument.
	checked, err := NewElementSet(set.Name, set.Line1, set.Line2)
	if err != nil {
		return nil, err
	}

	o := &SGP4Observer{
		sat:             satellite.TLEToSat(checked.Line1, checked.Line2, satellite.GravityWGS72),
		set:             checked,
		location:        location,
		clock:           timectrl.Wall(),
		minElevationDeg: DefaultMinElevationDeg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// TargetName returns the element set name.
func (o *SGP4Observer) TargetName() string { return o.set.Name }

// ElementSet returns the record the observer was built from.
func (o *SGP4Observer) ElementSet() ElementSet { return o.set }

// CurrentStats evaluates the target position at the observer clock's now.
func (o *SGP4Observer) CurrentStats() Stats {
	return o.StatsAt(o.clock.Now())
}

// Visible reports whether the target is currently at or above the minimum
// elevation. A propagation failure (NaN angles) counts as not visible.
func (o *SGP4Observer) Visible() bool {
	el := o.CurrentStats().ElevationDeg
	return !math.IsNaN(el) && el >= o.minElevationDeg
}

// StatsAt evaluates the target position at t.
func (o *SGP4Observer) StatsAt(t time.Time) Stats {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(o.sat, year, int(month), day, hour, min, sec)
	jday := satellite.JDay(year, int(month), day, hour, min, sec)

	obs := satellite.LatLong{
		Latitude:  o.location.Latitude * degToRad,
		Longitude: o.location.Longitude * degToRad,
	}
	look := satellite.ECIToLookAngles(posECI, obs, o.location.AltitudeKm, jday)

	return Stats{
		ElevationDeg: look.El * radToDeg,
		AzimuthDeg:   normalizeAzimuth(look.Az * radToDeg),
		DistanceKm:   look.Rg,
	}
}

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

func normalizeAzimuth(deg float64) float64 {
	if math.IsNaN(deg) {
		return deg
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
