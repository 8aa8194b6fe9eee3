package onboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/cargo-rover-sim/core"
	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
	"github.com/signalsfoundry/cargo-rover-sim/internal/logging"
	"github.com/signalsfoundry/cargo-rover-sim/model"
)

// DefaultArrivalThresholdM is the distance at which a waypoint counts as
// reached.
const DefaultArrivalThresholdM = 20.0

// GuidanceState is the control system's mission state.
type GuidanceState int

const (
	StateIdle GuidanceState = iota
	StateEnRoute
	StateArrived
)

func (s GuidanceState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnRoute:
		return "en_route"
	case StateArrived:
		return "arrived"
	default:
		return fmt.Sprintf("GuidanceState(%d)", int(s))
	}
}

// ControlStatus is a read-only snapshot of the control system.
type ControlStatus struct {
	State GuidanceState
	// ActiveWaypoint indexes the mission's waypoint list. Index 0 is the
	// origin, so guidance starts at 1.
	ActiveWaypoint int
	HasMission     bool
	Mission        model.Mission
}

// ControlSystem turns the installed mission and position fixes into speed
// and heading commands, and latches cargo at mission boundaries.
type ControlSystem struct {
	base
	thresholdM float64

	mu      sync.RWMutex
	mission *model.Mission
	state   GuidanceState
	active  int
}

// NewControlSystem registers the control queue. A non-positive threshold
// uses DefaultArrivalThresholdM.
func NewControlSystem(dir *bus.Directory, arrivalThresholdM float64, opts ...Option) (*ControlSystem, error) {
	b, err := newBase(Control, dir, bus.SourcePolicy{
		bus.OpSetMission:     {Gateway},
		bus.OpPositionUpdate: {Navigation},
	}, buildSettings(opts))
	if err != nil {
		return nil, err
	}
	if arrivalThresholdM <= 0 {
		arrivalThresholdM = DefaultArrivalThresholdM
	}
	c := &ControlSystem{base: b, thresholdM: arrivalThresholdM}
	c.vehicle.SetGuidance(StateIdle.String(), 0)
	return c, nil
}

// Run consumes missions and position fixes until ctx is done.
func (c *ControlSystem) Run(ctx context.Context) { c.loop(ctx, c.handle) }

// Status returns a snapshot for tests and metrics.
func (c *ControlSystem) Status() ControlStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := ControlStatus{State: c.state, ActiveWaypoint: c.active}
	if c.mission != nil {
		st.HasMission = true
		st.Mission = c.mission.Clone()
	}
	return st
}

func (c *ControlSystem) handle(ctx context.Context, ev bus.Event) error {
	switch p := ev.Payload().(type) {
	case bus.SetMission:
		return c.installMission(ctx, p.Mission)
	case bus.PositionUpdate:
		return c.onPosition(ctx, p.Position)
	default:
		return fmt.Errorf("%w: %s", bus.ErrUnsupportedOperation, ev.Operation())
	}
}

// installMission replaces any current mission atomically. A mission that
// fails validation leaves the current one in force.
func (c *ControlSystem) installMission(ctx context.Context, m model.Mission) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %w", bus.ErrProtocol, err)
	}

	c.mu.Lock()
	prev := c.state
	replaced := c.mission != nil
	c.mission = &m
	if !m.Armed {
		c.state = StateIdle
		c.active = 0
	} else {
		c.state = StateEnRoute
		c.active = 1
	}
	state, active := c.state, c.active
	c.mu.Unlock()
	c.vehicle.SetGuidance(state.String(), active)

	fields := []logging.Field{
		logging.Int("waypoints", len(m.Waypoints)),
		logging.Bool("armed", m.Armed),
		logging.String("previous_state", prev.String()),
	}
	if replaced && prev == StateEnRoute {
		c.log.Info(ctx, "mission replaced while en route", fields...)
	} else {
		c.log.Info(ctx, "mission installed", fields...)
	}

	if !m.Armed {
		if prev == StateEnRoute {
			return c.emit(ctx, Servos, bus.SetSpeed{SpeedKmh: 0})
		}
		return nil
	}

	if err := c.emit(ctx, Cargo, bus.LockCargo{}); err != nil {
		return err
	}
	if active > len(m.Waypoints)-1 {
		return c.arrive(ctx)
	}
	return nil
}

// onPosition advances at most one waypoint per fix and commands the next
// leg.
func (c *ControlSystem) onPosition(ctx context.Context, pos model.GeoPoint) error {
	c.mu.Lock()
	if c.state != StateEnRoute || c.mission == nil {
		state := c.state
		c.mu.Unlock()
		c.log.Debug(ctx, "position update ignored", logging.String("state", state.String()))
		return nil
	}

	m := c.mission
	last := len(m.Waypoints) - 1
	dist := core.DistanceMeters(pos, m.Waypoints[c.active])
	if dist <= c.thresholdM {
		c.active++
		c.log.Info(ctx, "waypoint reached",
			logging.Int("waypoint", c.active-1),
			logging.Float("distance_m", dist),
		)
		if c.active > last {
			c.active = last
			c.state = StateArrived
			c.mu.Unlock()
			c.vehicle.SetGuidance(StateArrived.String(), last)
			return c.arrive(ctx)
		}
	}

	active := c.active
	target := m.Waypoints[active]
	limit, err := m.SpeedLimitFor(active - 1)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: segment %d: %v", bus.ErrState, active-1, err)
	}
	c.vehicle.SetGuidance(StateEnRoute.String(), active)

	heading := core.BearingDegrees(pos, target)
	if err := c.emit(ctx, Servos, bus.SetSpeed{SpeedKmh: limit}); err != nil {
		return err
	}
	return c.emit(ctx, Servos, bus.SetDirection{HeadingDeg: heading})
}

func (c *ControlSystem) arrive(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateArrived
	if c.mission != nil {
		c.active = len(c.mission.Waypoints) - 1
	}
	active := c.active
	c.mu.Unlock()
	c.vehicle.SetGuidance(StateArrived.String(), active)

	c.log.Info(ctx, "mission complete")
	if err := c.emit(ctx, Servos, bus.SetSpeed{SpeedKmh: 0}); err != nil {
		return err
	}
	return c.emit(ctx, Cargo, bus.ReleaseCargo{})
}
