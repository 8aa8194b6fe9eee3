package telemetry

import (
	"context"
	"sync"

	"github.com/signalsfoundry/cargo-rover-sim/internal/logging"
	"github.com/signalsfoundry/cargo-rover-sim/internal/observability"
)

// Publisher decouples the physics loop from telemetry sinks. Publish never
// blocks; records that do not fit the buffer are counted and dropped.
type Publisher struct {
	ch      chan Record
	sinks   []Sink
	log     logging.Logger
	metrics *observability.VehicleCollector

	mu     sync.RWMutex
	latest Record
	seen   bool
}

// NewPublisher constructs a publisher fanning out to sinks.
func NewPublisher(buffer int, log logging.Logger, metrics *observability.VehicleCollector, sinks ...Sink) *Publisher {
	if buffer < 1 {
		buffer = 1
	}
	return &Publisher{
		ch:      make(chan Record, buffer),
		sinks:   sinks,
		log:     logging.Component(log, "telemetry"),
		metrics: metrics,
	}
}

// Publish offers r to the sinks.
func (p *Publisher) Publish(r Record) {
	p.mu.Lock()
	p.latest = r
	p.seen = true
	p.mu.Unlock()

	select {
	case p.ch <- r:
	default:
		p.metrics.IncTelemetryDropped()
		p.log.Debug(context.Background(), "telemetry buffer full, dropping record")
	}
}

// Latest returns the most recently published record.
func (p *Publisher) Latest() (Record, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.seen
}

// Run writes buffered records to every sink until ctx is done, then flushes
// what is left and closes the sinks.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			p.closeSinks()
			return
		case r := <-p.ch:
			p.write(ctx, r)
		}
	}
}

func (p *Publisher) flush() {
	ctx := context.Background()
	for {
		select {
		case r := <-p.ch:
			p.write(ctx, r)
		default:
			return
		}
	}
}

func (p *Publisher) write(ctx context.Context, r Record) {
	for _, s := range p.sinks {
		if err := s.Write(ctx, r); err != nil {
			p.metrics.IncSinkError(s.Name())
			p.log.Warn(ctx, "telemetry write failed", logging.String("sink", s.Name()), logging.Err(err))
		}
	}
}

func (p *Publisher) closeSinks() {
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			p.log.Warn(context.Background(), "telemetry sink close failed", logging.String("sink", s.Name()), logging.Err(err))
		}
	}
}
