package bus

import (
	"context"
	"errors"
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/signalsfoundry/cargo-rover-sim/model"
)

func TestRegisterDuplicateQueue(t *testing.T) {
	d := NewDirectory()
	if err := d.Register(NewQueue("control", 1, OpSetMission)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := d.Register(NewQueue("control", 1, OpSetMission))
	if !errors.Is(err, ErrDuplicateQueue) || !errors.Is(err, ErrConfiguration) {
		t.Fatalf("duplicate Register error = %v, want ErrDuplicateQueue/ErrConfiguration", err)
	}
}

func TestLookupUnknownQueue(t *testing.T) {
	d := NewDirectory()
	q, err := d.Queue("nope")
	if q != nil {
		t.Fatalf("Queue returned non-nil queue for unknown name")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Queue error = %v, want ErrConfiguration", err)
	}
}

func TestSendDeliversInOrder(t *testing.T) {
	rec := NewRecorder()
	d := NewDirectory(WithObserver(rec))
	q := NewQueue("servos", 8, OpSetSpeed, OpSetDirection)
	if err := d.Register(q); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	for _, p := range []Payload{SetSpeed{SpeedKmh: 10}, SetDirection{HeadingDeg: 370}, SetSpeed{SpeedKmh: 20}} {
		if err := d.Emit(ctx, "control", "servos", p); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	got := q.Drain()
	if len(got) != 3 {
		t.Fatalf("drained %d events, want 3", len(got))
	}
	if s, ok := got[0].Payload().(SetSpeed); !ok || s.SpeedKmh != 10 {
		t.Fatalf("first event = %v", got[0])
	}
	if dir, ok := got[1].Payload().(SetDirection); !ok || dir.HeadingDeg != 10 {
		t.Fatalf("heading not normalised: %v", got[1].Payload())
	}
	if s, ok := got[2].Payload().(SetSpeed); !ok || s.SpeedKmh != 20 {
		t.Fatalf("third event = %v", got[2])
	}
	if n := len(rec.Events("servos")); n != 3 {
		t.Fatalf("recorder saw %d deliveries, want 3", n)
	}
}

func TestRecorderEntriesKeepGlobalOrder(t *testing.T) {
	rec := NewRecorder()
	d := NewDirectory(WithObserver(rec))
	for _, q := range []*Queue{NewQueue("cargo", 4, OpLockCargo), NewQueue("servos", 4, OpSetSpeed)} {
		if err := d.Register(q); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	ctx := context.Background()
	if err := d.Emit(ctx, "control", "cargo", LockCargo{}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := d.Emit(ctx, "control", "servos", SetSpeed{SpeedKmh: 30}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	cargo, servos := rec.Entries("cargo"), rec.Entries("servos")
	if len(cargo) != 1 || len(servos) != 1 {
		t.Fatalf("entries cargo=%d servos=%d, want 1 each", len(cargo), len(servos))
	}
	if cargo[0].Seq != 1 || servos[0].Seq != 2 {
		t.Fatalf("seq cargo=%d servos=%d, want 1 and 2", cargo[0].Seq, servos[0].Seq)
	}
	if all := rec.Entries(""); len(all) != 2 || all[1].Event.Operation() != OpSetSpeed {
		t.Fatalf("unfiltered entries = %v", all)
	}
}

func TestSendRejectsUnsupportedOperation(t *testing.T) {
	rec := NewRecorder()
	d := NewDirectory(WithObserver(rec))
	if err := d.Register(NewQueue("cargo", 1, OpLockCargo, OpReleaseCargo)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := d.Emit(context.Background(), "control", "cargo", SetSpeed{SpeedKmh: 5})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Emit error = %v, want ErrProtocol", err)
	}
	if len(rec.Rejections()) != 1 {
		t.Fatalf("expected one rejection, got %d", len(rec.Rejections()))
	}
}

func TestSendToUnknownDestination(t *testing.T) {
	d := NewDirectory()
	err := d.Emit(context.Background(), "control", "ghost", LockCargo{})
	if !errors.Is(err, ErrUnknownQueue) {
		t.Fatalf("Emit error = %v, want ErrUnknownQueue", err)
	}
}

func TestNewEventValidation(t *testing.T) {
	cases := []struct {
		name string
		src  string
		dst  string
		p    Payload
	}{
		{"empty source", "", "sitl", SetSpeed{}},
		{"empty destination", "servos", "", SetSpeed{}},
		{"nil payload", "servos", "sitl", nil},
		{"negative speed", "servos", "sitl", SetSpeed{SpeedKmh: -1}},
		{"nan heading", "servos", "sitl", SetDirection{HeadingDeg: math.NaN()}},
		{"bad position", "sitl", "navigation", PositionUpdate{Position: model.GeoPoint{Lat: 100}}},
		{"negative fix speed", "sitl", "navigation", PositionUpdate{SpeedKmh: -3}},
		{"inf fix heading", "sitl", "navigation", PositionUpdate{HeadingDeg: math.Inf(1)}},
	}
	for _, tc := range cases {
		if _, err := NewEvent(tc.src, tc.dst, tc.p); !errors.Is(err, ErrProtocol) {
			t.Fatalf("%s: NewEvent error = %v, want ErrProtocol", tc.name, err)
		}
	}
}

func TestPositionUpdateHeadingIsNormalized(t *testing.T) {
	ev, err := NewEvent("sitl", "navigation", PositionUpdate{
		Position:   model.GeoPoint{Lat: 1, Lon: 2},
		HeadingDeg: -90,
		SpeedKmh:   12,
	})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	p := ev.Payload().(PositionUpdate)
	if p.HeadingDeg != 270 || p.SpeedKmh != 12 {
		t.Fatalf("fix = %+v, want heading 270 speed 12", p)
	}
}

func TestEventMissionIsCopied(t *testing.T) {
	m := model.Mission{
		Home:        model.GeoPoint{Lat: 1, Lon: 1},
		Waypoints:   []model.GeoPoint{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}},
		SpeedLimits: []model.SpeedLimit{{Segment: 0, LimitKmh: 10}},
		Armed:       true,
	}
	ev, err := NewEvent("planner", "gateway", SetMission{Mission: m})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	m.Waypoints[1].Lat = 50

	got, ok := ev.Mission()
	if !ok {
		t.Fatalf("Mission() not ok for set_mission")
	}
	if got.Waypoints[1].Lat != 2 {
		t.Fatalf("event mission aliased sender's slice")
	}
	got.Waypoints[1].Lat = 70
	again, _ := ev.Mission()
	if again.Waypoints[1].Lat != 2 {
		t.Fatalf("event mission aliased receiver's slice")
	}
	if ev.ID() == "" || ev.Operation() != OpSetMission {
		t.Fatalf("unexpected envelope %v", ev)
	}
}

func TestQueuePutAfterClose(t *testing.T) {
	q := NewQueue("sitl", 1, OpSetSpeed)
	q.Close()
	q.Close()
	ev, _ := NewEvent("servos", "sitl", SetSpeed{SpeedKmh: 1})
	if err := q.Put(context.Background(), ev); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Put after Close = %v, want ErrQueueClosed", err)
	}
}

func TestQueuePutBlocksUntilContextDone(t *testing.T) {
	q := NewQueue("sitl", 1, OpSetSpeed)
	ev, _ := NewEvent("servos", "sitl", SetSpeed{SpeedKmh: 1})
	if err := q.Put(context.Background(), ev); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Put(ctx, ev); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Put on full queue = %v, want deadline exceeded", err)
	}
}

// An event accepted by Put while the owner is closing must show up in the
// owner's Drain; an event that is not drained must have been refused.
func TestQueueConcurrentPutIsDrainedOrRefused(t *testing.T) {
	for i := 0; i < 2000; i++ {
		q := NewQueue("cargo", 4, OpLockCargo)
		ev, err := NewEvent("control", "cargo", LockCargo{})
		if err != nil {
			t.Fatalf("NewEvent: %v", err)
		}

		result := make(chan error, 1)
		go func() {
			runtime.Gosched()
			result <- q.Put(context.Background(), ev)
		}()
		if i%2 == 0 {
			runtime.Gosched()
		}
		q.Close()
		drained := q.Drain()
		putErr := <-result

		found := false
		for _, d := range drained {
			if d.ID() == ev.ID() {
				found = true
			}
		}
		switch {
		case putErr == nil && !found:
			t.Fatalf("iteration %d: Put succeeded but the event was not drained", i)
		case putErr != nil && found:
			t.Fatalf("iteration %d: Put failed with %v but the event was drained", i, putErr)
		case putErr != nil && !errors.Is(putErr, ErrQueueClosed):
			t.Fatalf("iteration %d: Put error = %v, want ErrQueueClosed", i, putErr)
		}
		if q.Len() != 0 {
			t.Fatalf("iteration %d: %d events left after Drain", i, q.Len())
		}
	}
}

func TestSourcePolicy(t *testing.T) {
	policy := SourcePolicy{OpSetMission: {"gateway"}}
	good, _ := NewEvent("gateway", "control", SetMission{})
	bad, _ := NewEvent("planner", "control", SetMission{})
	other, _ := NewEvent("gateway", "control", LockCargo{})

	if err := policy.Authorize(good); err != nil {
		t.Fatalf("Authorize(good) = %v", err)
	}
	if err := policy.Authorize(bad); !errors.Is(err, ErrUnauthorizedSource) {
		t.Fatalf("Authorize(bad) = %v, want ErrUnauthorizedSource", err)
	}
	if err := policy.Authorize(other); !errors.Is(err, ErrProtocol) {
		t.Fatalf("Authorize(unlisted op) = %v, want ErrProtocol", err)
	}
}
