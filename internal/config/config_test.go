package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "rover.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mission != "palace-square" {
		t.Fatalf("Mission = %q, want palace-square", cfg.Mission)
	}
	if !cfg.Sim.Accelerated() || cfg.Sim.Step != time.Second {
		t.Fatalf("unexpected sim config: %+v", cfg.Sim)
	}
	m := cfg.Catalog()["palace-square"]
	if len(m.Waypoints) != 5 || len(m.SpeedLimits) != 4 || !m.Armed {
		t.Fatalf("palace-square mission = %+v", m)
	}
	if _, ok := cfg.Missions["demo"]; ok {
		t.Fatalf("file catalog should replace the built-in demo mission")
	}
}

func TestParseKeepsDefaultsForOmittedSections(t *testing.T) {
	cfg, err := Parse([]byte("vehicle_id: r2\nsim:\n  tick: 50ms\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.VehicleID != "r2" || cfg.Sim.Tick != 50*time.Millisecond {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Sim.ArrivalThresholdM != 20 || cfg.Telemetry.FilePath != "telemetry.json" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Mission != "demo" {
		t.Fatalf("Mission = %q, want demo", cfg.Mission)
	}
}

func TestParseRejectsInvalidMission(t *testing.T) {
	doc := `
mission: broken
missions:
  broken:
    home: {lat: 1, lon: 1}
    waypoints:
      - {lat: 1, lon: 1}
      - {lat: 2, lon: 2}
    speed_limits:
      - {segment: 1, kmh: 10}
    armed: true
`
	_, err := Parse([]byte(doc))
	if !errors.Is(err, ErrInvalidConfig) || !errors.Is(err, bus.ErrConfiguration) {
		t.Fatalf("Parse error = %v, want ErrInvalidConfig", err)
	}
}

func TestParseRejectsUnknownSelectedMission(t *testing.T) {
	if _, err := Parse([]byte("mission: nowhere\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Parse error = %v, want ErrInvalidConfig", err)
	}
}

func TestParseRejectsBadMode(t *testing.T) {
	if _, err := Parse([]byte("sim:\n  mode: warp\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Parse error = %v, want ErrInvalidConfig", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ROVER_VEHICLE_ID", "env-rover")
	t.Setenv("ROVER_SIM_TICK", "10ms")
	t.Setenv("ROVER_REDIS_ENABLED", "true")
	t.Setenv("ROVER_METRICS_ADDR", ":0")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VehicleID != "env-rover" || cfg.Sim.Tick != 10*time.Millisecond || !cfg.Telemetry.Redis.Enabled || cfg.Metrics.Addr != ":0" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load error = %v, want ErrInvalidConfig", err)
	}
}

func TestMissionSpecRoundTrip(t *testing.T) {
	m := DemoMission()
	back := MissionSpecFrom(m).Mission()
	if len(back.Waypoints) != len(m.Waypoints) || back.Waypoints[4] != m.Waypoints[4] || back.SpeedLimits[2] != m.SpeedLimits[2] || back.Home != m.Home {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestLoadMinimalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rover.yaml")
	if err := os.WriteFile(path, []byte("vehicle_id: x\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if cfg, err := Load(path); err != nil || cfg.VehicleID != "x" {
		t.Fatalf("Load: %v", err)
	}
}
