package orbit

import (
	"context"
	"errors"

	"github.com/signalsfoundry/antenna-tracker/model"
	"github.com/signalsfoundry/antenna-tracker/timectrl"
)

// Predictor turns orbital element data into an Observer. FetchElementSets is
// the only operation that performs I/O; Parse and BuildObserver are pure.
type Predictor interface {
	FetchElementSets(ctx context.Context) ([]byte, error)
	Parse(doc []byte) ([]ElementSet, error)
	BuildObserver(location model.Location, targetID string, set ElementSet) (Observer, error)
}

// SGP4Predictor is the go-satellite backed Predictor.
type SGP4Predictor struct {
	Fetcher         Fetcher
	Clock           timectrl.Clock
	MinElevationDeg float64
}

// FetchElementSets delegates to the configured Fetcher.
func (p *SGP4Predictor) FetchElementSets(ctx context.Context) ([]byte, error) {
	if p.Fetcher == nil {
		return nil, errors.Join(ErrFetch, errors.New("no fetcher configured"))
	}
	return p.Fetcher.Fetch(ctx)
}

// Parse decodes a TLE document.
func (p *SGP4Predictor) Parse(doc []byte) ([]ElementSet, error) {
	return ParseDocument(doc)
}

// BuildObserver creates an SGP4Observer for set. targetID is kept as the
// observer name when the element set has only a catalog number.
func (p *SGP4Predictor) BuildObserver(location model.Location, targetID string, set ElementSet) (Observer, error) {
	if set.Name == "" {
		set.Name = targetID
	}
	obs, err := NewSGP4Observer(location, set,
		WithClock(p.Clock),
		WithMinElevation(p.MinElevationDeg),
	)
	if err != nil {
		return nil, err
	}
	return obs, nil
}
