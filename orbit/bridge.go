package orbit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/antenna-tracker/internal/logging"
	"github.com/signalsfoundry/antenna-tracker/model"
)

const tracerName = "github.com/signalsfoundry/antenna-tracker/orbit"

// ResolveRecorder observes the outcome and latency of each Resolve call.
type ResolveRecorder interface {
	ObserveResolve(outcome string, d time.Duration)
}

// Resolve outcomes reported to a ResolveRecorder.
const (
	OutcomeResolved     = "resolved"
	OutcomeFetchFailed  = "fetch_failed"
	OutcomeParseFailed  = "parse_failed"
	OutcomeNoData       = "no_data"
	OutcomeBuildFailed  = "build_failed"
	OutcomeInvalidInput = "invalid_request"
)

// Bridge performs the one-shot orbital data retrieval for a track request and
// hands back a ready Observer. Calls are serialized; each one runs to
// completion (success or failure) before the next starts, and no partially
// built Observer is ever returned.
type Bridge struct {
	mu        sync.Mutex
	predictor Predictor
	log       logging.Logger
	recorder  ResolveRecorder
}

// BridgeOption customises a Bridge.
type BridgeOption func(*Bridge)

// WithResolveRecorder attaches a metrics recorder.
func WithResolveRecorder(r ResolveRecorder) BridgeOption {
	return func(b *Bridge) { b.recorder = r }
}

// NewBridge wraps predictor.
func NewBridge(predictor Predictor, log logging.Logger, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		predictor: predictor,
		log:       logging.OrNoop(log),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Resolve fetches, parses and selects the element set for req.TargetID and
// builds an Observer at req.Observer. Errors wrap ErrFetch, ErrParse,
// ErrNoOrbitalData or model.ErrInvalidRequest.
func (b *Bridge) Resolve(ctx context.Context, req model.TrackRequest) (Observer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "orbit.Resolve",
		trace.WithAttributes(
			attribute.String("target_id", req.TargetID),
			attribute.Float64("observer.latitude", req.Observer.Latitude),
			attribute.Float64("observer.longitude", req.Observer.Longitude),
		),
	)
	defer span.End()

	start := time.Now()
	obs, outcome, err := b.resolve(ctx, req)
	if b.recorder != nil {
		b.recorder.ObserveResolve(outcome, time.Since(start))
	}

	log := b.log.With(logging.String("target_id", req.TargetID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Warn(ctx, "orbit resolve failed", logging.String("outcome", outcome), logging.Err(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("target_name", obs.TargetName()))
	log.Info(ctx, "orbit resolved",
		logging.String("target_name", obs.TargetName()),
		logging.Duration("elapsed", time.Since(start)),
	)
	return obs, nil
}

func (b *Bridge) resolve(ctx context.Context, req model.TrackRequest) (Observer, string, error) {
	if err := req.Validate(); err != nil {
		return nil, OutcomeInvalidInput, err
	}

	doc, err := b.predictor.FetchElementSets(ctx)
	if err != nil {
		if !errors.Is(err, ErrFetch) {
			err = fmt.Errorf("%w: %v", ErrFetch, err)
		}
		return nil, OutcomeFetchFailed, err
	}

	sets, err := b.predictor.Parse(doc)
	if err != nil {
		if !errors.Is(err, ErrParse) {
			err = fmt.Errorf("%w: %v", ErrParse, err)
		}
		return nil, OutcomeParseFailed, err
	}

	set, err := Select(sets, req.TargetID)
	if err != nil {
		return nil, OutcomeNoData, err
	}

	obs, err := b.predictor.BuildObserver(req.Observer, req.TargetID, set)
	if err != nil {
		return nil, OutcomeBuildFailed, fmt.Errorf("build observer for %q: %w", req.TargetID, err)
	}
	if obs == nil {
		return nil, OutcomeBuildFailed, fmt.Errorf("build observer for %q: predictor returned nil", req.TargetID)
	}
	return obs, OutcomeResolved, nil
}
