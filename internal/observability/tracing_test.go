package observability

import (
	"context"
	"testing"

	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
	"github.com/signalsfoundry/cargo-rover-sim/internal/logging"
)

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), DefaultTracingConfig(), logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	ev, err := bus.NewEvent("servos", "sitl", bus.SetSpeed{SpeedKmh: 3})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	_, span := StartEventSpan(context.Background(), "sitl", ev)
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Exporter = "carrier-pigeon"
	if _, err := InitTracing(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

func TestTracingApplyEnv(t *testing.T) {
	t.Setenv("ROVER_TRACING_ENABLED", "true")
	t.Setenv("ROVER_TRACING_EXPORTER", "OTLP")
	t.Setenv("ROVER_TRACING_SAMPLE_RATIO", "0.25")
	cfg := DefaultTracingConfig().ApplyEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.SampleRatio != 0.25 {
		t.Fatalf("ApplyEnv = %+v", cfg)
	}
}
