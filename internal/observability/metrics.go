package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Label values for telemetry_datagrams_total.
const (
	DatagramReceived  = "received"
	DatagramMalformed = "malformed"
	DatagramTransport = "transport_error"
)

// TrackerCollector bundles the Prometheus metrics for the antenna tracker.
// It satisfies telemetry.Recorder, orbit.ResolveRecorder,
// tracking.ActuatorRecorder and tracking.SessionRecorder. All methods are
// safe on a nil receiver.
type TrackerCollector struct {
	gatherer prometheus.Gatherer

	TelemetryDatagrams *prometheus.CounterVec
	ActuatorCommands   *prometheus.CounterVec
	ActuatorPosition   *prometheus.GaugeVec
	TrackingSessions   *prometheus.CounterVec
	TrackingActive     prometheus.Gauge
	ResolveDurations   *prometheus.HistogramVec

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewTrackerCollector registers tracker metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewTrackerCollector(reg prometheus.Registerer) (*TrackerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	datagrams, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_datagrams_total",
		Help: "Telemetry datagrams handled by the receive pump, labeled by result.",
	}, []string{"result"}), "telemetry_datagrams_total")
	if err != nil {
		return nil, err
	}

	commands, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "actuator_commands_total",
		Help: "Positioning commands sent to the antenna actuator, labeled by axis.",
	}, []string{"axis"}), "actuator_commands_total")
	if err != nil {
		return nil, err
	}

	position, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "actuator_position_degrees",
		Help: "Last angle commanded on each actuator axis.",
	}, []string{"axis"}), "actuator_position_degrees")
	if err != nil {
		return nil, err
	}

	sessions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_sessions_total",
		Help: "Tracking lifecycle transitions, labeled by outcome.",
	}, []string{"outcome"}), "tracking_sessions_total")
	if err != nil {
		return nil, err
	}

	active, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracking_active",
		Help: "1 while a tracking control loop is running.",
	}), "tracking_active")
	if err != nil {
		return nil, err
	}

	resolve, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orbit_resolve_duration_seconds",
		Help:    "Latency of orbital element fetch and observer construction.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"outcome"}), "orbit_resolve_duration_seconds")
	if err != nil {
		return nil, err
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grpc_requests_total",
		Help: "Total number of handled ops gRPC calls, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "grpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grpc_request_duration_seconds",
		Help:    "Ops gRPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"service", "method"}), "grpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &TrackerCollector{
		gatherer:           gatherer,
		TelemetryDatagrams: datagrams,
		ActuatorCommands:   commands,
		ActuatorPosition:   position,
		TrackingSessions:   sessions,
		TrackingActive:     active,
		ResolveDurations:   resolve,
		RPCRequests:        requests,
		RPCDurations:       durations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TrackerCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *TrackerCollector) DatagramReceived()  { c.datagram(DatagramReceived) }
func (c *TrackerCollector) DatagramMalformed() { c.datagram(DatagramMalformed) }
func (c *TrackerCollector) TransportError()    { c.datagram(DatagramTransport) }

func (c *TrackerCollector) datagram(result string) {
	if c == nil || c.TelemetryDatagrams == nil {
		return
	}
	c.TelemetryDatagrams.WithLabelValues(result).Inc()
}

// ActuatorCommand counts a command and records the commanded angle.
func (c *TrackerCollector) ActuatorCommand(axis string, degrees float64) {
	if c == nil {
		return
	}
	if c.ActuatorCommands != nil {
		c.ActuatorCommands.WithLabelValues(axis).Inc()
	}
	if c.ActuatorPosition != nil {
		c.ActuatorPosition.WithLabelValues(axis).Set(degrees)
	}
}

func (c *TrackerCollector) SessionOutcome(outcome string) {
	if c == nil || c.TrackingSessions == nil {
		return
	}
	c.TrackingSessions.WithLabelValues(outcome).Inc()
}

func (c *TrackerCollector) SetTrackingActive(active bool) {
	if c == nil || c.TrackingActive == nil {
		return
	}
	if active {
		c.TrackingActive.Set(1)
	} else {
		c.TrackingActive.Set(0)
	}
}

// ObserveResolve records one orbit resolve.
func (c *TrackerCollector) ObserveResolve(outcome string, d time.Duration) {
	if c == nil || c.ResolveDurations == nil {
		return
	}
	c.ResolveDurations.WithLabelValues(outcome).Observe(d.Seconds())
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *TrackerCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}
		return resp, err
	}
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components, returning "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	parts := strings.Split(strings.TrimPrefix(fullMethod, "/"), "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
