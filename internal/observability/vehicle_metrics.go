package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GuidanceStates lists the label values used by the guidance_state gauge.
var GuidanceStates = []string{"idle", "en_route", "arrived"}

// VehicleCollector exposes kinematic, guidance and telemetry metrics.
type VehicleCollector struct {
	gatherer prometheus.Gatherer

	SpeedKmh         prometheus.Gauge
	HeadingDegrees   prometheus.Gauge
	ActiveWaypoint   prometheus.Gauge
	GuidanceState    *prometheus.GaugeVec
	CargoLocked      prometheus.Gauge
	TickDuration     prometheus.Histogram
	TelemetryDropped prometheus.Counter
	SinkErrors       *prometheus.CounterVec
}

// NewVehicleCollector registers vehicle metrics against the provided registerer.
func NewVehicleCollector(reg prometheus.Registerer) (*VehicleCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	speed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vehicle_speed_kmh",
		Help: "Current simulated ground speed.",
	}), "vehicle_speed_kmh")
	if err != nil {
		return nil, err
	}
	heading, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vehicle_heading_degrees",
		Help: "Current simulated heading, clockwise from north.",
	}), "vehicle_heading_degrees")
	if err != nil {
		return nil, err
	}
	waypoint, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "guidance_active_waypoint",
		Help: "Index of the waypoint the control system is steering to.",
	}), "guidance_active_waypoint")
	if err != nil {
		return nil, err
	}
	state, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "guidance_state",
		Help: "1 for the control system's current state, 0 otherwise.",
	}, []string{"state"}), "guidance_state")
	if err != nil {
		return nil, err
	}
	cargo, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cargo_locked",
		Help: "1 while the cargo bay is locked.",
	}), "cargo_locked")
	if err != nil {
		return nil, err
	}

	tick, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sitl_tick_duration_seconds",
		Help:    "Wall-clock time spent integrating one physics tick.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "sitl_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	dropped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_records_dropped_total",
		Help: "Telemetry records discarded because the publisher buffer was full.",
	}), "telemetry_records_dropped_total")
	if err != nil {
		return nil, err
	}
	sinkErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_sink_errors_total",
		Help: "Failed telemetry writes, labeled by sink.",
	}, []string{"sink"}), "telemetry_sink_errors_total")
	if err != nil {
		return nil, err
	}

	return &VehicleCollector{
		gatherer:         gatherer,
		SpeedKmh:         speed,
		HeadingDegrees:   heading,
		ActiveWaypoint:   waypoint,
		GuidanceState:    state,
		CargoLocked:      cargo,
		TickDuration:     tick,
		TelemetryDropped: dropped,
		SinkErrors:       sinkErrors,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *VehicleCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetKinematics updates the speed and heading gauges.
func (c *VehicleCollector) SetKinematics(speedKmh, headingDeg float64) {
	if c == nil {
		return
	}
	if c.SpeedKmh != nil {
		c.SpeedKmh.Set(speedKmh)
	}
	if c.HeadingDegrees != nil {
		c.HeadingDegrees.Set(headingDeg)
	}
}

// SetGuidance records the control system state and active waypoint.
func (c *VehicleCollector) SetGuidance(state string, waypoint int) {
	if c == nil {
		return
	}
	if c.GuidanceState != nil {
		for _, s := range GuidanceStates {
			v := 0.0
			if s == state {
				v = 1
			}
			c.GuidanceState.WithLabelValues(s).Set(v)
		}
	}
	if c.ActiveWaypoint != nil {
		c.ActiveWaypoint.Set(float64(waypoint))
	}
}

// SetCargoLocked mirrors the cargo bay latch.
func (c *VehicleCollector) SetCargoLocked(locked bool) {
	if c == nil || c.CargoLocked == nil {
		return
	}
	if locked {
		c.CargoLocked.Set(1)
		return
	}
	c.CargoLocked.Set(0)
}

// ObserveTick records the wall-clock cost of one physics tick.
func (c *VehicleCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// IncTelemetryDropped counts a record the publisher could not buffer.
func (c *VehicleCollector) IncTelemetryDropped() {
	if c == nil || c.TelemetryDropped == nil {
		return
	}
	c.TelemetryDropped.Inc()
}

// IncSinkError counts a failed write to the named sink.
func (c *VehicleCollector) IncSinkError(sink string) {
	if c == nil || c.SinkErrors == nil {
		return
	}
	c.SinkErrors.WithLabelValues(sink).Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
