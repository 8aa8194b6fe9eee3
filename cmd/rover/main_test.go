package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
	"github.com/signalsfoundry/cargo-rover-sim/internal/telemetry"
)

const testConfig = `
vehicle_id: test-rover
log:
  level: error
sim:
  tick: 1ms
  step: 500ms
  mode: accelerated
telemetry:
  file_path: %s
metrics:
  addr: ""
tracing:
  enabled: false
mission: hop
missions:
  hop:
    home: {lat: 59.939032, lon: 30.315827}
    waypoints:
      - {lat: 59.939032, lon: 30.315827}
      - {lat: 59.9395, lon: 30.315827}
    speed_limits:
      - {segment: 0, kmh: 20}
    armed: true
`

func writeConfig(t *testing.T, telemetryPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rover.yaml")
	doc := []byte(fmt.Sprintf(testConfig, telemetryPath))
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestRunWritesTelemetry drives a short accelerated mission through the
// full command wiring.
func TestRunWritesTelemetry(t *testing.T) {
	telemetryPath := filepath.Join(t.TempDir(), "telemetry.json")
	cfgPath := writeConfig(t, telemetryPath)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := run(ctx, options{configPath: cfgPath, duration: 30 * time.Second}); err != nil {
		t.Fatalf("run: %v", err)
	}

	rec, err := telemetry.ReadFile(telemetryPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if rec.VehicleID != "test-rover" {
		t.Fatalf("vehicle_id = %q, want test-rover", rec.VehicleID)
	}
	if rec.Position.Lat <= 59.939032 {
		t.Fatalf("vehicle never moved north: %+v", rec.Position)
	}
}

func TestRunRejectsUnknownMission(t *testing.T) {
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "telemetry.json"))
	err := run(context.Background(), options{configPath: cfgPath, mission: "missing"})
	if !errors.Is(err, bus.ErrConfiguration) {
		t.Fatalf("run error = %v, want ErrConfiguration", err)
	}
}

func TestRunRejectsMissingConfig(t *testing.T) {
	err := run(context.Background(), options{configPath: filepath.Join(t.TempDir(), "nope.yaml")})
	if !errors.Is(err, bus.ErrConfiguration) {
		t.Fatalf("run error = %v, want ErrConfiguration", err)
	}
}
