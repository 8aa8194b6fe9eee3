package observability

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
)

// BusCollector bundles Prometheus metrics for traffic through the queue
// directory. It satisfies bus.Observer so it can be attached with
// bus.WithObserver.
type BusCollector struct {
	gatherer prometheus.Gatherer

	EventsDelivered   *prometheus.CounterVec
	EventsRejected    *prometheus.CounterVec
	EventsUndelivered *prometheus.CounterVec
	EventsRefused     *prometheus.CounterVec
}

// NewBusCollector registers bus metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewBusCollector(reg prometheus.Registerer) (*BusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	delivered, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_events_delivered_total",
		Help: "Events enqueued on a component queue, labeled by source, destination and operation.",
	}, []string{"source", "destination", "operation"}), "bus_events_delivered_total")
	if err != nil {
		return nil, err
	}

	rejected, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_events_rejected_total",
		Help: "Sends refused by the directory, labeled by destination, operation and error class.",
	}, []string{"destination", "operation", "reason"}), "bus_events_rejected_total")
	if err != nil {
		return nil, err
	}

	undelivered, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_events_undelivered_total",
		Help: "Events still queued when their consumer shut down.",
	}, []string{"queue", "operation"}), "bus_events_undelivered_total")
	if err != nil {
		return nil, err
	}

	refused, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "component_events_refused_total",
		Help: "Events dequeued but refused by the receiving component, labeled by error class.",
	}, []string{"component", "operation", "reason"}), "component_events_refused_total")
	if err != nil {
		return nil, err
	}

	return &BusCollector{
		gatherer:          gatherer,
		EventsDelivered:   delivered,
		EventsRejected:    rejected,
		EventsUndelivered: undelivered,
		EventsRefused:     refused,
	}, nil
}

// Delivered implements bus.Observer.
func (c *BusCollector) Delivered(ev bus.Event) {
	if c == nil || c.EventsDelivered == nil {
		return
	}
	c.EventsDelivered.WithLabelValues(ev.Source(), ev.Destination(), string(ev.Operation())).Inc()
}

// Rejected implements bus.Observer.
func (c *BusCollector) Rejected(ev bus.Event, err error) {
	if c == nil || c.EventsRejected == nil {
		return
	}
	c.EventsRejected.WithLabelValues(ev.Destination(), string(ev.Operation()), Reason(err)).Inc()
}

// IncUndelivered counts an event dropped at shutdown.
func (c *BusCollector) IncUndelivered(queue string, op bus.Operation) {
	if c == nil || c.EventsUndelivered == nil {
		return
	}
	c.EventsUndelivered.WithLabelValues(queue, string(op)).Inc()
}

// IncRefused counts an event a component dequeued but would not act on.
func (c *BusCollector) IncRefused(component string, op bus.Operation, err error) {
	if c == nil || c.EventsRefused == nil {
		return
	}
	c.EventsRefused.WithLabelValues(component, string(op), Reason(err)).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *BusCollector) Handler() http.Handler {
	var gatherer prometheus.Gatherer
	if c != nil {
		gatherer = c.gatherer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Reason maps an error onto a low-cardinality label value.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, bus.ErrConfiguration):
		return "configuration"
	case errors.Is(err, bus.ErrProtocol):
		return "protocol"
	case errors.Is(err, bus.ErrState):
		return "state"
	case errors.Is(err, bus.ErrQueueClosed):
		return "closed"
	default:
		return "other"
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
