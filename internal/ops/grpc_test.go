package ops

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type switchStatus struct{ running atomic.Bool }

func (s *switchStatus) Running() bool { return s.running.Load() }

func startHealthServer(t *testing.T, status TelemetryStatus) (*GRPCServer, healthpb.HealthClient) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewGRPCServer(status, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return srv, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestGRPCHealthFollowsTelemetry(t *testing.T) {
	status := &switchStatus{}
	srv, client := startHealthServer(t, status)

	if got := check(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall status = %v, want SERVING", got)
	}
	if got := check(t, client, TelemetryHealthService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("telemetry status = %v, want NOT_SERVING", got)
	}

	status.running.Store(true)
	srv.sync()
	if got := check(t, client, TelemetryHealthService); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("telemetry status = %v, want SERVING", got)
	}
}

func TestGRPCServerStopIsIdempotent(t *testing.T) {
	srv := NewGRPCServer(nil, nil)
	srv.Stop()
	srv.Stop()
}
