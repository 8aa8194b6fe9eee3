package onboard

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
)

// Estimator refines a raw fix of position, heading and speed. It is the
// hook for sensor fusion.
type Estimator interface {
	Estimate(raw bus.PositionUpdate) bus.PositionUpdate
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(bus.PositionUpdate) bus.PositionUpdate

func (f EstimatorFunc) Estimate(p bus.PositionUpdate) bus.PositionUpdate { return f(p) }

// PassThrough returns fixes unchanged.
var PassThrough Estimator = EstimatorFunc(func(p bus.PositionUpdate) bus.PositionUpdate { return p })

// NavigationSystem relays position fixes from the physics integrator to the
// control system through an Estimator.
type NavigationSystem struct {
	base
	estimator Estimator
}

// NewNavigationSystem registers the navigation queue. A nil estimator means
// PassThrough.
func NewNavigationSystem(dir *bus.Directory, estimator Estimator, opts ...Option) (*NavigationSystem, error) {
	b, err := newBase(Navigation, dir, bus.SourcePolicy{
		bus.OpPositionUpdate: {SITL},
	}, buildSettings(opts))
	if err != nil {
		return nil, err
	}
	if estimator == nil {
		estimator = PassThrough
	}
	return &NavigationSystem{base: b, estimator: estimator}, nil
}

// Run consumes position updates until ctx is done.
func (n *NavigationSystem) Run(ctx context.Context) { n.loop(ctx, n.handle) }

func (n *NavigationSystem) handle(ctx context.Context, ev bus.Event) error {
	p, ok := ev.Payload().(bus.PositionUpdate)
	if !ok {
		return fmt.Errorf("%w: %s", bus.ErrUnsupportedOperation, ev.Operation())
	}
	return n.emit(ctx, Control, n.estimator.Estimate(p))
}
