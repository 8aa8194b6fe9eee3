package onboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/cargo-rover-sim/core"
	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
	"github.com/signalsfoundry/cargo-rover-sim/internal/telemetry"
	"github.com/signalsfoundry/cargo-rover-sim/model"
	"github.com/signalsfoundry/cargo-rover-sim/timectrl"
)

// TelemetryPublisher accepts records without blocking.
type TelemetryPublisher interface {
	Publish(r telemetry.Record)
}

type nopPublisher struct{}

func (nopPublisher) Publish(telemetry.Record) {}

// SITLConfig configures the physics integrator.
type SITLConfig struct {
	VehicleID string
	Start     model.GeoPoint
	Limits    core.MotionLimits
}

// PhysicsIntegrator is the software-in-the-loop vehicle: it applies actuator
// setpoints, integrates motion on every tick and reports the new position.
type PhysicsIntegrator struct {
	base
	vehicleID string
	clock     *timectrl.TimeController
	motion    core.MotionModel
	telemetry TelemetryPublisher

	mu    sync.RWMutex
	state model.VehicleState
}

// NewPhysicsIntegrator registers the sitl queue and subscribes to clock
// ticks. A nil publisher discards telemetry.
func NewPhysicsIntegrator(dir *bus.Directory, clock *timectrl.TimeController, cfg SITLConfig, pub TelemetryPublisher, opts ...Option) (*PhysicsIntegrator, error) {
	if clock == nil {
		return nil, fmt.Errorf("%w: sitl: nil clock", bus.ErrConfiguration)
	}
	if err := cfg.Start.Validate(); err != nil {
		return nil, fmt.Errorf("%w: sitl start: %v", bus.ErrConfiguration, err)
	}
	b, err := newBase(SITL, dir, bus.SourcePolicy{
		bus.OpSetSpeed:     {Servos},
		bus.OpSetDirection: {Servos},
	}, buildSettings(opts))
	if err != nil {
		return nil, err
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	s := &PhysicsIntegrator{
		base:      b,
		vehicleID: cfg.VehicleID,
		clock:     clock,
		motion:    core.NewKinematicMotionModel(cfg.Limits),
		telemetry: pub,
		state:     model.VehicleState{Position: cfg.Start},
	}
	return s, nil
}

// State returns a copy of the current kinematic state.
func (s *PhysicsIntegrator) State() model.VehicleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Run drives the clock until ctx is done or, when duration is positive,
// until that much simulated time has passed. Call it once.
func (s *PhysicsIntegrator) Run(ctx context.Context, duration time.Duration) error {
	defer s.shutdown()
	s.log.Debug(ctx, "component started")
	s.clock.AddListener(func(_ time.Time, dt time.Duration) {
		if ctx.Err() == nil {
			s.Step(ctx, dt)
		}
	})
	err := s.clock.Run(ctx, duration)
	if err == context.Canceled {
		return nil
	}
	return err
}

// Step applies pending commands, advances the vehicle by dt and publishes
// the result.
func (s *PhysicsIntegrator) Step(ctx context.Context, dt time.Duration) {
	start := time.Now()
	for {
		ev, ok := s.queue.TryGet()
		if !ok {
			break
		}
		s.process(ctx, ev, s.apply)
	}

	s.mu.Lock()
	s.motion.Advance(dt, &s.state)
	snapshot := s.state
	s.mu.Unlock()

	s.vehicle.SetKinematics(snapshot.SpeedKmh, snapshot.HeadingDeg)
	s.telemetry.Publish(telemetry.Record{
		VehicleID:    s.vehicleID,
		Timestamp:    s.clock.Now(),
		Position:     snapshot.Position,
		SpeedKmh:     snapshot.SpeedKmh,
		DirectionDeg: snapshot.HeadingDeg,
	})
	_ = s.emit(ctx, Navigation, bus.PositionUpdate{
		Position:   snapshot.Position,
		HeadingDeg: snapshot.HeadingDeg,
		SpeedKmh:   snapshot.SpeedKmh,
	})
	s.vehicle.ObserveTick(time.Since(start))
}

func (s *PhysicsIntegrator) apply(_ context.Context, ev bus.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p := ev.Payload().(type) {
	case bus.SetSpeed:
		s.state.TargetSpeedKmh = p.SpeedKmh
	case bus.SetDirection:
		s.state.TargetHeadingDeg = p.HeadingDeg
	default:
		return fmt.Errorf("%w: %s", bus.ErrUnsupportedOperation, ev.Operation())
	}
	return nil
}
