package ops

import (
	"context"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/antenna-tracker/internal/logging"
)

// TelemetryHealthService is the health service name that reflects the
// telemetry pump.
const TelemetryHealthService = "antenna.telemetry"

const defaultHealthInterval = time.Second

// TelemetryStatus reports whether the telemetry pump is running.
type TelemetryStatus interface {
	Running() bool
}

// GRPCServer serves grpc.health.v1. The overall service ("") is SERVING
// while the server is up; TelemetryHealthService follows the pump.
type GRPCServer struct {
	server    *grpc.Server
	health    *health.Server
	telemetry TelemetryStatus
	interval  time.Duration
	log       logging.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewGRPCServer builds a health server. Extra options (for example a metrics
// interceptor) are appended after the otelgrpc stats handler.
func NewGRPCServer(telem TelemetryStatus, log logging.Logger, opts ...grpc.ServerOption) *GRPCServer {
	serverOpts := append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := &GRPCServer{
		server:    grpc.NewServer(serverOpts...),
		health:    health.NewServer(),
		telemetry: telem,
		interval:  defaultHealthInterval,
		log:       logging.OrNoop(log).With(logging.String("component", "ops_grpc")),
		stop:      make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.sync()
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.wg.Add(1)
	go s.watch()
	s.log.Info(context.Background(), "serving gRPC health", logging.String("addr", lis.Addr().String()))
	return s.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *GRPCServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		s.health.Shutdown()
		s.server.GracefulStop()
	})
}

func (s *GRPCServer) watch() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sync()
		}
	}
}

func (s *GRPCServer) sync() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.telemetry != nil && s.telemetry.Running() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(TelemetryHealthService, status)
}
