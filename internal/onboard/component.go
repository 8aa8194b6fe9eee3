package onboard

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
	"github.com/signalsfoundry/cargo-rover-sim/internal/logging"
	"github.com/signalsfoundry/cargo-rover-sim/internal/observability"
)

// Component queue names. Dispatch is the operator outside the vehicle and
// owns no queue.
const (
	Dispatch   = "dispatch"
	Planner    = "planner"
	Gateway    = "gateway"
	Control    = "control"
	Navigation = "navigation"
	Servos     = "servos"
	SITL       = "sitl"
	Cargo      = "cargo"
)

// Option configures a component.
type Option func(*settings)

type settings struct {
	log           logging.Logger
	busMetrics    *observability.BusCollector
	vehicle       *observability.VehicleCollector
	queueCapacity int
}

// WithLogger sets the base logger; the component scopes it by name.
func WithLogger(l logging.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithBusMetrics counts refused and undelivered events.
func WithBusMetrics(c *observability.BusCollector) Option {
	return func(s *settings) { s.busMetrics = c }
}

// WithVehicleMetrics exports guidance, kinematic and cargo gauges.
func WithVehicleMetrics(c *observability.VehicleCollector) Option {
	return func(s *settings) { s.vehicle = c }
}

// WithQueueCapacity bounds the component's inbound queue.
func WithQueueCapacity(n int) Option {
	return func(s *settings) { s.queueCapacity = n }
}

func buildSettings(opts []Option) settings {
	s := settings{queueCapacity: bus.DefaultQueueCapacity}
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = logging.Noop()
	}
	return s
}

// handlerFunc acts on one authorised event.
type handlerFunc func(ctx context.Context, ev bus.Event) error

// base is the plumbing shared by every component: its own queue, the
// directory to reach others, and the trust policy for inbound events.
type base struct {
	name    string
	dir     *bus.Directory
	queue   *bus.Queue
	policy  bus.SourcePolicy
	log     logging.Logger
	metrics *observability.BusCollector
	vehicle *observability.VehicleCollector
}

func newBase(name string, dir *bus.Directory, policy bus.SourcePolicy, s settings) (base, error) {
	if dir == nil {
		return base{}, fmt.Errorf("%w: %s: nil directory", bus.ErrConfiguration, name)
	}
	ops := make([]bus.Operation, 0, len(policy))
	for op := range policy {
		ops = append(ops, op)
	}
	q := bus.NewQueue(name, s.queueCapacity, ops...)
	if err := dir.Register(q); err != nil {
		return base{}, err
	}
	return base{
		name:    name,
		dir:     dir,
		queue:   q,
		policy:  policy,
		log:     logging.Component(s.log, name),
		metrics: s.busMetrics,
		vehicle: s.vehicle,
	}, nil
}

// Name returns the component's queue name.
func (b *base) Name() string { return b.name }

// loop consumes the queue until ctx is cancelled or the queue is closed,
// then drains and reports anything left unprocessed.
func (b *base) loop(ctx context.Context, handle handlerFunc) {
	b.log.Debug(ctx, "component started")
	defer b.shutdown()
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-b.queue.Done():
			return
		case ev := <-b.queue.Events():
			b.process(ctx, ev, handle)
		}
	}
}

// process authorises ev, runs handle inside a span and reports failures.
// Errors never escape: a bad event must not stop the component.
func (b *base) process(ctx context.Context, ev bus.Event, handle handlerFunc) {
	ctx = logging.ContextWithEventID(ctx, ev.ID())
	ctx, span := observability.StartEventSpan(ctx, b.name, ev)
	defer span.End()

	err := b.policy.Authorize(ev)
	if err == nil {
		err = handle(ctx, ev)
	}
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	b.metrics.IncRefused(b.name, ev.Operation(), err)

	fields := []logging.Field{
		logging.String("operation", string(ev.Operation())),
		logging.String("source", ev.Source()),
		logging.String("reason", observability.Reason(err)),
		logging.Err(err),
	}
	if errors.Is(err, bus.ErrState) {
		b.log.Info(ctx, "event conflicts with current state", fields...)
		return
	}
	b.log.Warn(ctx, "event rejected", fields...)
}

// shutdown closes the queue and logs every event nobody will handle.
func (b *base) shutdown() {
	b.queue.Close()
	ctx := context.Background()
	for _, ev := range b.queue.Drain() {
		b.metrics.IncUndelivered(b.name, ev.Operation())
		b.log.Warn(logging.ContextWithEventID(ctx, ev.ID()), "event undelivered at shutdown",
			logging.String("operation", string(ev.Operation())),
			logging.String("source", ev.Source()),
		)
	}
	b.log.Debug(ctx, "component stopped")
}

// emit sends p to dest, logging failures. The error is returned so callers
// can abort a multi-event sequence.
func (b *base) emit(ctx context.Context, dest string, p bus.Payload) error {
	if err := b.dir.Emit(ctx, b.name, dest, p); err != nil {
		if ctx.Err() == nil {
			b.log.Error(ctx, "send failed",
				logging.String("destination", dest),
				logging.String("operation", string(p.Operation())),
				logging.Err(err),
			)
		}
		return err
	}
	return nil
}
