package onboard

import (
	"context"
	"testing"

	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
	"github.com/signalsfoundry/cargo-rover-sim/model"
)

// sinkQueue registers a bare queue standing in for a component under test's
// peer, so emitted events can be inspected with Drain.
func sinkQueue(t *testing.T, dir *bus.Directory, name string, ops ...bus.Operation) *bus.Queue {
	t.Helper()
	q := bus.NewQueue(name, 128, ops...)
	if err := dir.Register(q); err != nil {
		t.Fatalf("Register(%s): %v", name, err)
	}
	return q
}

func mustEvent(t *testing.T, src, dst string, p bus.Payload) bus.Event {
	t.Helper()
	ev, err := bus.NewEvent(src, dst, p)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return ev
}

// deliver runs one event through b's authorisation and handler
// synchronously.
func deliver(t *testing.T, b *base, handle handlerFunc, src string, p bus.Payload) {
	t.Helper()
	b.process(context.Background(), mustEvent(t, src, b.name, p), handle)
}

func speeds(evs []bus.Event) []float64 {
	var out []float64
	for _, ev := range evs {
		if s, ok := ev.Payload().(bus.SetSpeed); ok {
			out = append(out, s.SpeedKmh)
		}
	}
	return out
}

func operations(evs []bus.Event) []bus.Operation {
	out := make([]bus.Operation, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Operation())
	}
	return out
}

var (
	home = model.GeoPoint{Lat: 59.939032, Lon: 30.315827}
	wpA  = model.GeoPoint{Lat: 59.9386, Lon: 30.3149}
	wpB  = model.GeoPoint{Lat: 59.9386, Lon: 30.3121}
	wpC  = model.GeoPoint{Lat: 59.940041, Lon: 30.309788}
)

func threeLegMission() model.Mission {
	return model.Mission{
		Home:      home,
		Waypoints: []model.GeoPoint{home, wpA, wpB, wpC},
		SpeedLimits: []model.SpeedLimit{
			{Segment: 0, LimitKmh: 30},
			{Segment: 2, LimitKmh: 90},
		},
		Armed: true,
	}
}
