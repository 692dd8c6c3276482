package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/antenna-tracker/internal/config"
	"github.com/signalsfoundry/antenna-tracker/internal/logging"
	"github.com/signalsfoundry/antenna-tracker/internal/observability"
	"github.com/signalsfoundry/antenna-tracker/internal/ops"
	"github.com/signalsfoundry/antenna-tracker/model"
	"github.com/signalsfoundry/antenna-tracker/orbit"
	"github.com/signalsfoundry/antenna-tracker/telemetry"
	"github.com/signalsfoundry/antenna-tracker/timectrl"
	"github.com/signalsfoundry/antenna-tracker/tracking"
)

type flags struct {
	configPath    string
	logLevel      string
	logFormat     string
	logFile       string
	httpAddr      string
	grpcAddr      string
	telemetryPort int
	tleFile       string
	target        string
	writeConfig   string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("antennad", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "antennad.yaml", "Path to the YAML config file (missing file means defaults)")
	fs.StringVar(&f.logLevel, "log-level", os.Getenv("LOG_LEVEL"), "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", os.Getenv("LOG_FORMAT"), "Log format: text or json")
	fs.StringVar(&f.logFile, "log-file", os.Getenv("LOG_FILE"), "Write logs to this rotated file instead of stdout")
	fs.StringVar(&f.httpAddr, "http-addr", "", "Override ops.http_addr")
	fs.StringVar(&f.grpcAddr, "grpc-addr", "", "Override ops.grpc_addr")
	fs.IntVar(&f.telemetryPort, "telemetry-port", 0, "Override telemetry.port")
	fs.StringVar(&f.tleFile, "tle-file", "", "Read element sets from this file instead of the network")
	fs.StringVar(&f.target, "track", "", `Begin tracking this target at startup: a name ("ISS" or "ISS (ZARYA)") or a NORAD catalog number ("25544")`)
	fs.StringVar(&f.writeConfig, "write-config", "", "Write the effective config (file plus flag overrides) to this path and exit")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	return f, nil
}

func (f flags) apply(cfg *config.Config) {
	if f.httpAddr != "" {
		cfg.Ops.HTTPAddr = f.httpAddr
	}
	if f.grpcAddr != "" {
		cfg.Ops.GRPCAddr = f.grpcAddr
	}
	if f.telemetryPort != 0 {
		cfg.Telemetry.Port = f.telemetryPort
	}
	if f.tleFile != "" {
		cfg.Orbit.TLEFile = f.tleFile
	}
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	log := logging.New(logging.Config{
		Level:     f.logLevel,
		Format:    f.logFormat,
		File:      f.logFile,
		AddSource: true,
	})
	ctx := context.Background()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.String("path", f.configPath), logging.Err(err))
		os.Exit(1)
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}

	if f.writeConfig != "" {
		if err := writeConfig(cfg, f.writeConfig); err != nil {
			log.Error(ctx, "failed to write config", logging.String("path", f.writeConfig), logging.Err(err))
			os.Exit(1)
		}
		log.Info(ctx, "wrote effective config", logging.String("path", f.writeConfig))
		return
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, f.target, log); err != nil {
		log.Error(ctx, "antennad exited", logging.Err(err))
		os.Exit(1)
	}
}

func writeConfig(cfg *config.Config, path string) error {
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("save config %s: %w", path, err)
	}
	return nil
}

// run wires the receiver, tracker and ops listeners and blocks until ctx is
// cancelled.
func run(ctx context.Context, cfg *config.Config, target string, log logging.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv("antennad").WithStation(cfg.Observer), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := observability.NewTrackerCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	receiver, err := telemetry.NewReceiver(cfg.LinkConfig(), log, collector)
	if err != nil {
		return err
	}
	defer receiver.Close()
	if cfg.Telemetry.Autostart {
		receiver.Start()
	}

	predictor := &orbit.SGP4Predictor{
		Fetcher:         cfg.Fetcher(),
		Clock:           timectrl.Shifted(cfg.Tracking.TimeOffset),
		MinElevationDeg: cfg.Tracking.MinElevationDeg,
	}
	bridge := orbit.NewBridge(predictor, log, orbit.WithResolveRecorder(collector))
	actuator := tracking.Instrument(tracking.NewLogActuator(log), collector)
	tracker := tracking.NewTracker(bridge, actuator, log,
		tracking.WithPeriod(cfg.Tracking.Period),
		tracking.WithSessionRecorder(collector),
	)
	defer tracker.Close()

	httpSrv, err := serveHTTP(cfg.Ops.HTTPAddr, ops.NewRouter(tracker, receiver, cfg.Observer, collector.Handler(), log), log)
	if err != nil {
		return err
	}
	grpcSrv, err := serveGRPC(cfg.Ops.GRPCAddr, receiver, collector, log)
	if err != nil {
		shutdownHTTP(httpSrv, log)
		return err
	}

	if target != "" {
		beginAtStartup(ctx, tracker, target, cfg.Observer, log)
	}

	<-ctx.Done()
	log.Info(context.Background(), "shutting down antennad")

	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	shutdownHTTP(httpSrv, log)
	return nil
}

func beginAtStartup(ctx context.Context, tracker *tracking.Tracker, target string, observer model.Location, log logging.Logger) {
	req, err := model.NewTrackRequest(target, observer)
	if err == nil {
		err = tracker.BeginTracking(ctx, req)
	}
	switch {
	case err == nil:
	case errors.Is(err, tracking.ErrNotVisible):
		log.Warn(ctx, "startup target is below the horizon", logging.String("target_id", target))
	default:
		log.Warn(ctx, "startup tracking failed", logging.String("target_id", target), logging.Err(err))
	}
}

func serveHTTP(addr string, handler http.Handler, log logging.Logger) (*http.Server, error) {
	if addr == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen http %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "http server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "serving ops http", logging.String("addr", lis.Addr().String()))
	return srv, nil
}

func shutdownHTTP(srv *http.Server, log logging.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn(ctx, "http shutdown failed", logging.Err(err))
	}
}

func serveGRPC(addr string, status ops.TelemetryStatus, collector *observability.TrackerCollector, log logging.Logger) (*ops.GRPCServer, error) {
	if addr == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen grpc %s: %w", addr, err)
	}
	srv := ops.NewGRPCServer(status, log, grpc.ChainUnaryInterceptor(collector.UnaryServerInterceptor()))
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Warn(context.Background(), "grpc server exited", logging.Err(err))
		}
	}()
	return srv, nil
}
