package onboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
)

// CargoBay latches the cargo compartment on command from the control system.
type CargoBay struct {
	base

	mu     sync.RWMutex
	locked bool
}

// NewCargoBay registers the cargo queue. The bay starts unlocked.
func NewCargoBay(dir *bus.Directory, opts ...Option) (*CargoBay, error) {
	b, err := newBase(Cargo, dir, bus.SourcePolicy{
		bus.OpLockCargo:    {Control},
		bus.OpReleaseCargo: {Control},
	}, buildSettings(opts))
	if err != nil {
		return nil, err
	}
	return &CargoBay{base: b}, nil
}

// Run consumes latch commands until ctx is done.
func (c *CargoBay) Run(ctx context.Context) { c.loop(ctx, c.handle) }

// Locked reports the latch state.
func (c *CargoBay) Locked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locked
}

func (c *CargoBay) handle(ctx context.Context, ev bus.Event) error {
	var want bool
	switch ev.Payload().(type) {
	case bus.LockCargo:
		want = true
	case bus.ReleaseCargo:
		want = false
	default:
		return fmt.Errorf("%w: %s", bus.ErrUnsupportedOperation, ev.Operation())
	}

	c.mu.Lock()
	changed := c.locked != want
	c.locked = want
	c.mu.Unlock()

	c.vehicle.SetCargoLocked(want)
	if !changed {
		c.log.Debug(ctx, "cargo latch unchanged")
		return nil
	}
	if want {
		c.log.Info(ctx, "cargo locked")
	} else {
		c.log.Info(ctx, "cargo released")
	}
	return nil
}
