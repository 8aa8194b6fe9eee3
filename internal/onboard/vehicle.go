package onboard

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/cargo-rover-sim/core"
	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
	"github.com/signalsfoundry/cargo-rover-sim/internal/logging"
	"github.com/signalsfoundry/cargo-rover-sim/internal/observability"
	"github.com/signalsfoundry/cargo-rover-sim/model"
	"github.com/signalsfoundry/cargo-rover-sim/timectrl"
)

// VehicleConfig is everything needed to assemble one simulated vehicle.
type VehicleConfig struct {
	VehicleID string
	Start     model.GeoPoint

	Tick        time.Duration
	Step        time.Duration
	Accelerated bool
	// Duration stops the physics loop after this much simulated time; zero
	// runs until the context is cancelled.
	Duration time.Duration

	Limits            core.MotionLimits
	ArrivalThresholdM float64
	QueueCapacity     int

	Catalog   map[string]model.Mission
	Estimator Estimator
	Telemetry TelemetryPublisher

	Log            logging.Logger
	BusMetrics     *observability.BusCollector
	VehicleMetrics *observability.VehicleCollector
	// Observers see every send through the directory, after BusMetrics.
	Observers []bus.Observer
}

// Vehicle owns the directory and every onboard component.
type Vehicle struct {
	dir   *bus.Directory
	clock *timectrl.TimeController
	log   logging.Logger

	planner    *MissionPlanner
	gateway    *CommunicationGateway
	control    *ControlSystem
	navigation *NavigationSystem
	servos     *ServoSystem
	cargo      *CargoBay
	sitl       *PhysicsIntegrator

	duration time.Duration

	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	sitlErr error
}

// NewVehicle builds the directory and registers every component. Wiring
// mistakes surface here as bus.ErrConfiguration.
func NewVehicle(cfg VehicleConfig) (*Vehicle, error) {
	log := cfg.Log
	if log == nil {
		log = logging.Noop()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}

	dirOpts := []bus.DirectoryOption{}
	if cfg.BusMetrics != nil {
		dirOpts = append(dirOpts, bus.WithObserver(cfg.BusMetrics))
	}
	for _, o := range cfg.Observers {
		dirOpts = append(dirOpts, bus.WithObserver(o))
	}
	dir := bus.NewDirectory(dirOpts...)

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	clock := timectrl.NewTimeController(time.Now().UTC(), cfg.Tick, mode)
	if cfg.Step > 0 {
		clock.Step = cfg.Step
	}

	opts := []Option{
		WithLogger(log.With(logging.String("vehicle_id", cfg.VehicleID))),
		WithBusMetrics(cfg.BusMetrics),
		WithVehicleMetrics(cfg.VehicleMetrics),
		WithQueueCapacity(cfg.QueueCapacity),
	}

	v := &Vehicle{dir: dir, clock: clock, log: log, duration: cfg.Duration}
	var err error
	if v.planner, err = NewMissionPlanner(dir, cfg.Catalog, opts...); err != nil {
		return nil, err
	}
	if v.gateway, err = NewCommunicationGateway(dir, opts...); err != nil {
		return nil, err
	}
	if v.control, err = NewControlSystem(dir, cfg.ArrivalThresholdM, opts...); err != nil {
		return nil, err
	}
	if v.navigation, err = NewNavigationSystem(dir, cfg.Estimator, opts...); err != nil {
		return nil, err
	}
	if v.servos, err = NewServoSystem(dir, opts...); err != nil {
		return nil, err
	}
	if v.cargo, err = NewCargoBay(dir, opts...); err != nil {
		return nil, err
	}
	v.sitl, err = NewPhysicsIntegrator(dir, clock, SITLConfig{
		VehicleID: cfg.VehicleID,
		Start:     cfg.Start,
		Limits:    cfg.Limits,
	}, cfg.Telemetry, opts...)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Start launches every component. Cancel ctx (or call Stop) to shut down.
func (v *Vehicle) Start(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.started {
		return
	}
	v.started = true
	ctx, v.cancel = context.WithCancel(ctx)

	for _, run := range []func(context.Context){
		v.planner.Run,
		v.gateway.Run,
		v.control.Run,
		v.navigation.Run,
		v.servos.Run,
		v.cargo.Run,
	} {
		v.wg.Add(1)
		go func(run func(context.Context)) {
			defer v.wg.Done()
			run(ctx)
		}(run)
	}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if err := v.sitl.Run(ctx, v.duration); err != nil {
			v.mu.Lock()
			v.sitlErr = err
			v.mu.Unlock()
		}
		// The physics loop ending means the simulation is over.
		v.cancel()
	}()
	v.log.Info(ctx, "vehicle started", logging.Any("queues", v.dir.Names()))
}

// Stop cancels every component.
func (v *Vehicle) Stop() {
	v.mu.Lock()
	cancel := v.cancel
	v.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until every component has drained and stopped.
func (v *Vehicle) Wait() error {
	v.wg.Wait()
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sitlErr
}

func (v *Vehicle) Directory() *bus.Directory       { return v.dir }
func (v *Vehicle) Clock() *timectrl.TimeController { return v.clock }
func (v *Vehicle) Planner() *MissionPlanner        { return v.planner }
func (v *Vehicle) Control() *ControlSystem         { return v.control }
func (v *Vehicle) Servos() *ServoSystem            { return v.servos }
func (v *Vehicle) Cargo() *CargoBay                { return v.cargo }
func (v *Vehicle) Physics() *PhysicsIntegrator     { return v.sitl }
func (v *Vehicle) Navigation() *NavigationSystem   { return v.navigation }
func (v *Vehicle) Gateway() *CommunicationGateway  { return v.gateway }
