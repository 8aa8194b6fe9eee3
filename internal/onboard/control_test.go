package onboard

import (
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/cargo-rover-sim/core"
	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
	"github.com/signalsfoundry/cargo-rover-sim/internal/observability"
	"github.com/signalsfoundry/cargo-rover-sim/model"
)

type controlHarness struct {
	ctrl   *ControlSystem
	servos *bus.Queue
	cargo  *bus.Queue
}

func newControlHarness(t *testing.T, opts ...Option) controlHarness {
	t.Helper()
	dir := bus.NewDirectory()
	servos := sinkQueue(t, dir, Servos, bus.OpSetSpeed, bus.OpSetDirection)
	cargo := sinkQueue(t, dir, Cargo, bus.OpLockCargo, bus.OpReleaseCargo)
	ctrl, err := NewControlSystem(dir, 20, opts...)
	if err != nil {
		t.Fatalf("NewControlSystem: %v", err)
	}
	return controlHarness{ctrl: ctrl, servos: servos, cargo: cargo}
}

func (h controlHarness) mission(t *testing.T, m model.Mission) {
	t.Helper()
	deliver(t, &h.ctrl.base, h.ctrl.handle, Gateway, bus.SetMission{Mission: m})
}

func (h controlHarness) position(t *testing.T, p model.GeoPoint) {
	t.Helper()
	deliver(t, &h.ctrl.base, h.ctrl.handle, Navigation, bus.PositionUpdate{Position: p})
}

func TestControlInstallsArmedMission(t *testing.T) {
	h := newControlHarness(t)
	h.mission(t, threeLegMission())

	st := h.ctrl.Status()
	if st.State != StateEnRoute || st.ActiveWaypoint != 1 || !st.HasMission {
		t.Fatalf("status = %+v, want en_route at waypoint 1", st)
	}
	if ops := operations(h.cargo.Drain()); len(ops) != 1 || ops[0] != bus.OpLockCargo {
		t.Fatalf("cargo events = %v, want [lock_cargo]", ops)
	}
}

func TestControlRejectsMissionFromUntrustedSource(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewBusCollector(reg)
	if err != nil {
		t.Fatalf("NewBusCollector: %v", err)
	}
	h := newControlHarness(t, WithBusMetrics(metrics))
	deliver(t, &h.ctrl.base, h.ctrl.handle, Planner, bus.SetMission{Mission: threeLegMission()})

	if st := h.ctrl.Status(); st.State != StateIdle || st.HasMission {
		t.Fatalf("status = %+v, want untouched idle", st)
	}
	if h.cargo.Len() != 0 {
		t.Fatalf("untrusted mission produced cargo events")
	}
	if got := testutil.ToFloat64(metrics.EventsRefused.WithLabelValues(Control, "set_mission", "protocol")); got != 1 {
		t.Fatalf("component_events_refused_total = %v, want 1", got)
	}
}

func TestControlSteersTowardActiveWaypoint(t *testing.T) {
	h := newControlHarness(t)
	h.mission(t, threeLegMission())

	h.position(t, home)
	evs := h.servos.Drain()
	if len(evs) != 2 {
		t.Fatalf("servo events = %v, want speed and direction", operations(evs))
	}
	if s := evs[0].Payload().(bus.SetSpeed); s.SpeedKmh != 30 {
		t.Fatalf("set_speed = %v, want 30", s.SpeedKmh)
	}
	want := core.BearingDegrees(home, wpA)
	if d := evs[1].Payload().(bus.SetDirection); math.Abs(d.HeadingDeg-want) > 1e-9 {
		t.Fatalf("set_direction = %v, want %v", d.HeadingDeg, want)
	}
}

func TestControlAdvancesAndFallsBackToPreviousLimit(t *testing.T) {
	h := newControlHarness(t)
	h.mission(t, threeLegMission())

	h.position(t, wpA)
	if st := h.ctrl.Status(); st.ActiveWaypoint != 2 {
		t.Fatalf("active waypoint = %d, want 2", st.ActiveWaypoint)
	}
	// Segment 1 has no entry; segment 0's limit applies.
	if got := speeds(h.servos.Drain()); len(got) != 1 || got[0] != 30 {
		t.Fatalf("speeds = %v, want [30]", got)
	}

	h.position(t, wpB)
	if got := speeds(h.servos.Drain()); len(got) != 1 || got[0] != 90 {
		t.Fatalf("speeds = %v, want [90]", got)
	}
}

func TestControlDuplicatePositionUpdateIsIdempotent(t *testing.T) {
	h := newControlHarness(t)
	h.mission(t, threeLegMission())

	h.position(t, wpA)
	h.position(t, wpA)
	if st := h.ctrl.Status(); st.ActiveWaypoint != 2 {
		t.Fatalf("active waypoint = %d after duplicate fix, want 2", st.ActiveWaypoint)
	}
}

func TestControlWaypointsNeverSkippedOrRevisited(t *testing.T) {
	h := newControlHarness(t)
	h.mission(t, threeLegMission())

	// Reaching C before B must not advance past B.
	h.position(t, wpA)
	h.position(t, wpC)
	if st := h.ctrl.Status(); st.ActiveWaypoint != 2 {
		t.Fatalf("active waypoint = %d, want 2", st.ActiveWaypoint)
	}
	// Returning to A must not move the index back.
	h.position(t, wpA)
	if st := h.ctrl.Status(); st.ActiveWaypoint != 2 {
		t.Fatalf("active waypoint = %d, want 2", st.ActiveWaypoint)
	}
}

func TestControlArrivesAtFinalWaypoint(t *testing.T) {
	h := newControlHarness(t)
	h.mission(t, threeLegMission())
	h.cargo.Drain()

	for _, p := range []model.GeoPoint{wpA, wpB, wpC} {
		h.position(t, p)
	}
	st := h.ctrl.Status()
	if st.State != StateArrived || st.ActiveWaypoint != 3 {
		t.Fatalf("status = %+v, want arrived at 3", st)
	}
	got := speeds(h.servos.Drain())
	if got[len(got)-1] != 0 {
		t.Fatalf("final speed = %v, want 0", got[len(got)-1])
	}
	if ops := operations(h.cargo.Drain()); len(ops) != 1 || ops[0] != bus.OpReleaseCargo {
		t.Fatalf("cargo events = %v, want [release_cargo]", ops)
	}

	// Further fixes are ignored once arrived.
	h.position(t, wpC)
	if h.servos.Len() != 0 || h.cargo.Len() != 0 {
		t.Fatalf("arrived control system kept commanding")
	}
}

func TestControlSingleWaypointArrivesImmediately(t *testing.T) {
	h := newControlHarness(t)
	h.mission(t, model.Mission{Home: home, Waypoints: []model.GeoPoint{home}, Armed: true})

	if st := h.ctrl.Status(); st.State != StateArrived || st.ActiveWaypoint != 0 {
		t.Fatalf("status = %+v, want arrived at 0", st)
	}
	for _, s := range speeds(h.servos.Drain()) {
		if s != 0 {
			t.Fatalf("single waypoint mission commanded speed %v", s)
		}
	}
	ops := operations(h.cargo.Drain())
	if len(ops) != 2 || ops[0] != bus.OpLockCargo || ops[1] != bus.OpReleaseCargo {
		t.Fatalf("cargo events = %v, want [lock_cargo release_cargo]", ops)
	}
}

func TestControlUnarmedMissionStopsVehicle(t *testing.T) {
	h := newControlHarness(t)
	h.mission(t, threeLegMission())
	h.position(t, home)
	h.servos.Drain()
	h.cargo.Drain()

	unarmed := threeLegMission()
	unarmed.Armed = false
	h.mission(t, unarmed)

	if st := h.ctrl.Status(); st.State != StateIdle {
		t.Fatalf("state = %v, want idle", st.State)
	}
	if got := speeds(h.servos.Drain()); len(got) != 1 || got[0] != 0 {
		t.Fatalf("speeds = %v, want [0]", got)
	}
	if h.cargo.Len() != 0 {
		t.Fatalf("unarmed mission touched cargo")
	}
	h.position(t, wpA)
	if h.servos.Len() != 0 {
		t.Fatalf("idle control system commanded servos")
	}
}

func TestControlReplacesMissionAtomically(t *testing.T) {
	h := newControlHarness(t)
	h.mission(t, threeLegMission())
	h.position(t, wpA)

	next := model.Mission{
		Home:        wpA,
		Waypoints:   []model.GeoPoint{wpA, wpC},
		SpeedLimits: []model.SpeedLimit{{Segment: 0, LimitKmh: 45}},
		Armed:       true,
	}
	h.mission(t, next)
	st := h.ctrl.Status()
	if st.ActiveWaypoint != 1 || len(st.Mission.Waypoints) != 2 || st.Mission.Waypoints[1] != wpC {
		t.Fatalf("status = %+v, want replaced mission at waypoint 1", st)
	}
	h.servos.Drain()
	h.position(t, wpA)
	if got := speeds(h.servos.Drain()); len(got) != 1 || got[0] != 45 {
		t.Fatalf("speeds = %v, want [45] from the new mission", got)
	}
}

func TestControlKeepsMissionWhenReplacementInvalid(t *testing.T) {
	h := newControlHarness(t)
	h.mission(t, threeLegMission())

	bad := threeLegMission()
	bad.SpeedLimits = []model.SpeedLimit{{Segment: 1, LimitKmh: 10}}
	err := h.ctrl.installMission(t.Context(), bad)
	if !errors.Is(err, bus.ErrProtocol) || !errors.Is(err, model.ErrNoSpeedLimit) {
		t.Fatalf("installMission error = %v, want ErrProtocol wrapping ErrNoSpeedLimit", err)
	}
	st := h.ctrl.Status()
	if st.State != StateEnRoute || len(st.Mission.SpeedLimits) != 2 {
		t.Fatalf("status = %+v, want original mission in force", st)
	}
}

func TestGuidanceStateString(t *testing.T) {
	for state, want := range map[GuidanceState]string{StateIdle: "idle", StateEnRoute: "en_route", StateArrived: "arrived"} {
		if state.String() != want {
			t.Fatalf("%d.String() = %q, want %q", int(state), state.String(), want)
		}
	}
}
