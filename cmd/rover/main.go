package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/cargo-rover-sim/core"
	"github.com/signalsfoundry/cargo-rover-sim/internal/config"
	"github.com/signalsfoundry/cargo-rover-sim/internal/logging"
	"github.com/signalsfoundry/cargo-rover-sim/internal/observability"
	"github.com/signalsfoundry/cargo-rover-sim/internal/onboard"
	"github.com/signalsfoundry/cargo-rover-sim/internal/telemetry"
)

type options struct {
	configPath  string
	mission     string
	metricsAddr string
	duration    time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "configs/rover.yaml", "Path to the YAML configuration file (empty for built-in defaults)")
	flag.StringVar(&opts.mission, "mission", "", "Catalog mission to dispatch, overriding the config")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "HTTP address for /metrics and the telemetry websocket, overriding the config")
	flag.DurationVar(&opts.duration, "duration", 0, "Simulated time to run before stopping (0 runs until interrupted)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "rover: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.mission != "" {
		cfg.Mission = opts.mission
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	busMetrics, err := observability.NewBusCollector(reg)
	if err != nil {
		return fmt.Errorf("init bus metrics: %w", err)
	}
	vehicleMetrics, err := observability.NewVehicleCollector(reg)
	if err != nil {
		return fmt.Errorf("init vehicle metrics: %w", err)
	}

	// Sinks live until the vehicle has stopped so the final records land.
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()
	var background sync.WaitGroup

	sinks, hub := buildSinks(ctx, cfg.Telemetry, log)
	if hub != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			hub.Run(sinkCtx)
		}()
	}
	publisher := telemetry.NewPublisher(cfg.Telemetry.Buffer, log, vehicleMetrics, sinks...)
	background.Add(1)
	go func() {
		defer background.Done()
		publisher.Run(sinkCtx)
	}()

	catalog := cfg.Catalog()
	start := catalog[cfg.Mission].Home
	if cfg.Sim.Start != nil {
		start = cfg.Sim.Start.Point()
	}

	vehicle, err := onboard.NewVehicle(onboard.VehicleConfig{
		VehicleID:   cfg.VehicleID,
		Start:       start,
		Tick:        cfg.Sim.Tick,
		Step:        cfg.Sim.Step,
		Accelerated: cfg.Sim.Accelerated(),
		Duration:    opts.duration,
		Limits: core.MotionLimits{
			MaxAccelKmhPerSec:    cfg.Sim.MaxAccelKmhPerSec,
			MaxDecelKmhPerSec:    cfg.Sim.MaxDecelKmhPerSec,
			MaxTurnRateDegPerSec: cfg.Sim.MaxTurnRateDegPerSec,
		},
		ArrivalThresholdM: cfg.Sim.ArrivalThresholdM,
		QueueCapacity:     cfg.Sim.QueueCapacity,
		Catalog:           catalog,
		Telemetry:         publisher,
		Log:               log,
		BusMetrics:        busMetrics,
		VehicleMetrics:    vehicleMetrics,
	})
	if err != nil {
		return fmt.Errorf("assemble vehicle: %w", err)
	}

	httpSrv := serveHTTP(cfg, busMetrics, hub, log)

	vehicle.Start(ctx)
	if cfg.Mission != "" {
		if err := vehicle.Planner().SelectMission(ctx, cfg.Mission); err != nil {
			vehicle.Stop()
			_ = vehicle.Wait()
			return fmt.Errorf("dispatch mission: %w", err)
		}
		log.Info(ctx, "mission dispatched", logging.String("mission", cfg.Mission))
	}

	runErr := vehicle.Wait()

	status := vehicle.Control().Status()
	state := vehicle.Physics().State()
	log.Info(context.Background(), "vehicle stopped",
		logging.String("vehicle_id", cfg.VehicleID),
		logging.String("guidance_state", status.State.String()),
		logging.Int("active_waypoint", status.ActiveWaypoint),
		logging.Float("latitude", state.Position.Lat),
		logging.Float("longitude", state.Position.Lon),
		logging.Bool("cargo_locked", vehicle.Cargo().Locked()),
	)

	stopSinks()
	background.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func buildSinks(ctx context.Context, cfg config.TelemetryConfig, log logging.Logger) ([]telemetry.Sink, *telemetry.Hub) {
	var sinks []telemetry.Sink
	if cfg.FilePath != "" {
		sinks = append(sinks, telemetry.NewFileSink(cfg.FilePath))
	}
	if cfg.Redis.Enabled {
		rs, err := telemetry.NewRedisSink(ctx, telemetry.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			History:  cfg.Redis.History,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			// Telemetry is best-effort; the vehicle runs without it.
			log.Warn(ctx, "redis telemetry disabled", logging.String("addr", cfg.Redis.Addr), logging.Err(err))
		} else {
			sinks = append(sinks, rs)
		}
	}
	var hub *telemetry.Hub
	if cfg.WebSocket.Enabled {
		hub = telemetry.NewHub(cfg.WebSocket.ClientBuffer, log)
		sinks = append(sinks, hub)
	}
	return sinks, hub
}

func serveHTTP(cfg config.Config, collector *observability.BusCollector, hub *telemetry.Hub, log logging.Logger) *http.Server {
	if cfg.Metrics.Addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	if hub != nil {
		mux.Handle(cfg.Telemetry.WebSocket.Path, hub)
	}

	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "http server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving metrics", logging.String("addr", cfg.Metrics.Addr))
	return srv
}
