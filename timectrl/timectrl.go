package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances simulation time by Tick on every wall-clock Tick.
	RealTime Mode = iota
	// Accelerated advances simulation time by Step on every wall-clock Tick.
	Accelerated
)

// Listener is invoked once per tick with the new simulation time and the
// simulated interval that elapsed since the previous tick.
type Listener func(simTime time.Time, dt time.Duration)

// TimeController drives simulation time and notifies registered listeners.
// Listeners run on the controller goroutine, one after another.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Step      time.Duration
	Mode      Mode

	currentTime time.Time

	listeners []Listener
}

// NewTimeController constructs a controller. Step defaults to Tick; set it
// explicitly for Accelerated mode.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Step:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime overrides the current simulation time.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn Listener) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// SimStep is the simulated interval covered by one tick in the current mode.
func (tc *TimeController) SimStep() time.Duration {
	if tc.Mode == Accelerated && tc.Step > 0 {
		return tc.Step
	}
	return tc.Tick
}

// Run advances time until ctx is cancelled or, when duration is positive,
// until duration of simulation time has elapsed. It returns ctx.Err() on
// cancellation and nil otherwise.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration) error {
	step := tc.SimStep()

	tc.mu.Lock()
	simTime := tc.StartTime
	tc.currentTime = simTime
	tc.mu.Unlock()

	elapsed := time.Duration(0)

	ticker := time.NewTicker(tc.Tick)
	defer ticker.Stop()

	for {
		if duration > 0 && elapsed >= duration {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		simTime = simTime.Add(step)
		elapsed += step

		tc.mu.Lock()
		tc.currentTime = simTime
		listeners := append([]Listener(nil), tc.listeners...)
		tc.mu.Unlock()

		for _, fn := range listeners {
			fn(simTime, step)
		}
	}
}
