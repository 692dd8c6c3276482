package orbit

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/antenna-tracker/model"
	"github.com/signalsfoundry/antenna-tracker/timectrl"
)

var (
	newYork  = model.Location{Latitude: 40.0, Longitude: -73.0}
	issEpoch = time.Date(2025, time.May, 18, 9, 0, 0, 0, time.UTC)
)

func issSet(t *testing.T) ElementSet {
	t.Helper()
	set, err := NewElementSet(issName, issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewElementSet: %v", err)
	}
	return set
}

func TestSGP4ObserverStatsAreWellFormed(t *testing.T) {
	clock := timectrl.NewManualClock(issEpoch)
	obs, err := NewSGP4Observer(newYork, issSet(t), WithClock(clock))
	if err != nil {
		t.Fatalf("NewSGP4Observer: %v", err)
	}

	for i := 0; i < 12; i++ {
		s := obs.CurrentStats()
		if math.IsNaN(s.ElevationDeg) || math.IsNaN(s.AzimuthDeg) || math.IsNaN(s.DistanceKm) {
			t.Fatalf("stats at %v contain NaN: %+v", clock.Now(), s)
		}
		if s.ElevationDeg < -90 || s.ElevationDeg > 90 {
			t.Fatalf("elevation = %v, want within [-90, 90]", s.ElevationDeg)
		}
		if s.AzimuthDeg < 0 || s.AzimuthDeg >= 360 {
			t.Fatalf("azimuth = %v, want within [0, 360)", s.AzimuthDeg)
		}
		// Low Earth orbit: never closer than the orbit altitude nor farther
		// than the far side of the Earth.
		if s.DistanceKm < 300 || s.DistanceKm > 14000 {
			t.Fatalf("distance = %v km, want within [300, 14000]", s.DistanceKm)
		}
		clock.Advance(10 * time.Minute)
	}
}

func TestSGP4ObserverStatsFollowClock(t *testing.T) {
	clock := timectrl.NewManualClock(issEpoch)
	obs, err := NewSGP4Observer(newYork, issSet(t), WithClock(clock))
	if err != nil {
		t.Fatalf("NewSGP4Observer: %v", err)
	}

	first := obs.CurrentStats()
	if again := obs.CurrentStats(); again != first {
		t.Fatalf("stats changed with a frozen clock: %+v vs %+v", first, again)
	}
	if want := obs.StatsAt(issEpoch); want != first {
		t.Fatalf("CurrentStats() = %+v, want StatsAt(epoch) %+v", first, want)
	}

	clock.Advance(time.Minute)
	if moved := obs.CurrentStats(); moved == first {
		t.Fatalf("stats did not change after advancing the clock")
	}
}

func TestSGP4ObserverVisibilityThreshold(t *testing.T) {
	clock := timectrl.NewManualClock(issEpoch)

	always, err := NewSGP4Observer(newYork, issSet(t), WithClock(clock), WithMinElevation(-90))
	if err != nil {
		t.Fatalf("NewSGP4Observer: %v", err)
	}
	never, err := NewSGP4Observer(newYork, issSet(t), WithClock(clock), WithMinElevation(90.5))
	if err != nil {
		t.Fatalf("NewSGP4Observer: %v", err)
	}

	for i := 0; i < 6; i++ {
		if !always.Visible() {
			t.Fatalf("Visible() = false with a -90 deg mask at %v", clock.Now())
		}
		if never.Visible() {
			t.Fatalf("Visible() = true with a 90.5 deg mask at %v", clock.Now())
		}
		clock.Advance(15 * time.Minute)
	}

	horizon, err := NewSGP4Observer(newYork, issSet(t), WithClock(clock))
	if err != nil {
		t.Fatalf("NewSGP4Observer: %v", err)
	}
	want := horizon.CurrentStats().ElevationDeg >= DefaultMinElevationDeg
	if got := horizon.Visible(); got != want {
		t.Fatalf("Visible() = %v, want %v for elevation %v", got, want, horizon.CurrentStats().ElevationDeg)
	}
}

func TestNewSGP4ObserverRejectsBadInput(t *testing.T) {
	if _, err := NewSGP4Observer(model.Location{Latitude: 100}, issSet(t)); !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("bad location error = %v, want ErrInvalidRequest", err)
	}
	bad := ElementSet{Name: "STALE", Line1: staleLine1, Line2: staleLine2}
	if _, err := NewSGP4Observer(newYork, bad); !errors.Is(err, ErrInvalidElementSet) {
		t.Fatalf("bad element set error = %v, want ErrInvalidElementSet", err)
	}

	// Checksum-valid but unparsable second derivative: must be an error, not
	// a process exit inside the propagator.
	corrupt := ElementSet{Name: issName, CatalogNumber: "25544", Line1: patched(issLine1, 45, "xxxxx"), Line2: issLine2}
	if _, err := NewSGP4Observer(newYork, corrupt); !errors.Is(err, ErrInvalidElementSet) {
		t.Fatalf("corrupt second derivative error = %v, want ErrInvalidElementSet", err)
	}
}

func TestNormalizeAzimuth(t *testing.T) {
	tests := map[float64]float64{
		0:    0,
		359:  359,
		360:  0,
		-90:  270,
		725:  5,
		-360: 0,
	}
	for in, want := range tests {
		if got := normalizeAzimuth(in); math.Abs(got-want) > 1e-9 {
			t.Fatalf("normalizeAzimuth(%v) = %v, want %v", in, got, want)
		}
	}
}
