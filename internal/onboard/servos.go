package onboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
)

// ServoSystem holds the latest speed and direction commands and relays each
// one to the physics integrator. The two channels are independent: a
// direction change never touches the speed setpoint.
type ServoSystem struct {
	base

	mu         sync.RWMutex
	speedKmh   float64
	headingDeg float64
}

// NewServoSystem registers the servos queue.
func NewServoSystem(dir *bus.Directory, opts ...Option) (*ServoSystem, error) {
	b, err := newBase(Servos, dir, bus.SourcePolicy{
		bus.OpSetSpeed:     {Control},
		bus.OpSetDirection: {Control},
	}, buildSettings(opts))
	if err != nil {
		return nil, err
	}
	return &ServoSystem{base: b}, nil
}

// Run consumes actuator commands until ctx is done.
func (s *ServoSystem) Run(ctx context.Context) { s.loop(ctx, s.handle) }

// Setpoints returns the latest commanded speed and heading.
func (s *ServoSystem) Setpoints() (speedKmh, headingDeg float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speedKmh, s.headingDeg
}

func (s *ServoSystem) handle(ctx context.Context, ev bus.Event) error {
	switch p := ev.Payload().(type) {
	case bus.SetSpeed:
		s.mu.Lock()
		s.speedKmh = p.SpeedKmh
		s.mu.Unlock()
		return s.emit(ctx, SITL, p)
	case bus.SetDirection:
		s.mu.Lock()
		s.headingDeg = p.HeadingDeg
		s.mu.Unlock()
		return s.emit(ctx, SITL, p)
	default:
		return fmt.Errorf("%w: %s", bus.ErrUnsupportedOperation, ev.Operation())
	}
}
