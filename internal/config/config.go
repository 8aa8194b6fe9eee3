package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
	"github.com/signalsfoundry/cargo-rover-sim/internal/observability"
	"github.com/signalsfoundry/cargo-rover-sim/model"
)

// ErrInvalidConfig is returned for configuration that cannot start a vehicle.
var ErrInvalidConfig = fmt.Errorf("%w: invalid config", bus.ErrConfiguration)

// Config is the complete runtime configuration of the rover simulator.
type Config struct {
	VehicleID string                      `yaml:"vehicle_id"`
	Log       LogConfig                   `yaml:"log"`
	Sim       SimConfig                   `yaml:"sim"`
	Telemetry TelemetryConfig             `yaml:"telemetry"`
	Metrics   MetricsConfig               `yaml:"metrics"`
	Tracing   observability.TracingConfig `yaml:"tracing"`

	// Mission names the catalog entry dispatched at startup.
	Mission  string                 `yaml:"mission"`
	Missions map[string]MissionSpec `yaml:"missions"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SimConfig tunes the physics integrator and the guidance loop.
type SimConfig struct {
	Tick time.Duration `yaml:"tick"`
	// Step is the simulated time per tick in accelerated mode.
	Step time.Duration `yaml:"step"`
	Mode string        `yaml:"mode"` // realtime | accelerated

	MaxAccelKmhPerSec    float64 `yaml:"max_accel_kmh_per_sec"`
	MaxDecelKmhPerSec    float64 `yaml:"max_decel_kmh_per_sec"`
	MaxTurnRateDegPerSec float64 `yaml:"max_turn_rate_deg_per_sec"`
	ArrivalThresholdM    float64 `yaml:"arrival_threshold_m"`

	QueueCapacity int `yaml:"queue_capacity"`

	// Start overrides the initial vehicle position; the dispatched
	// mission's home is used otherwise.
	Start *PointSpec `yaml:"start,omitempty"`
}

type TelemetryConfig struct {
	FilePath  string          `yaml:"file_path"`
	Buffer    int             `yaml:"buffer"`
	Redis     RedisConfig     `yaml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	History  int           `yaml:"history"`
	TTL      time.Duration `yaml:"ttl"`
}

type WebSocketConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	ClientBuffer int    `yaml:"client_buffer"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type PointSpec struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

type SpeedLimitSpec struct {
	Segment int     `yaml:"segment"`
	Kmh     float64 `yaml:"kmh"`
}

// MissionSpec is the YAML form of model.Mission.
type MissionSpec struct {
	Home        PointSpec        `yaml:"home"`
	Waypoints   []PointSpec      `yaml:"waypoints"`
	SpeedLimits []SpeedLimitSpec `yaml:"speed_limits"`
	Armed       bool             `yaml:"armed"`
}

func (p PointSpec) Point() model.GeoPoint { return model.GeoPoint{Lat: p.Lat, Lon: p.Lon} }

// Mission converts the YAML form to the domain type.
func (m MissionSpec) Mission() model.Mission {
	out := model.Mission{Home: m.Home.Point(), Armed: m.Armed}
	for _, wp := range m.Waypoints {
		out.Waypoints = append(out.Waypoints, wp.Point())
	}
	for _, sl := range m.SpeedLimits {
		out.SpeedLimits = append(out.SpeedLimits, model.SpeedLimit{Segment: sl.Segment, LimitKmh: sl.Kmh})
	}
	return out
}

// MissionSpecFrom converts a domain mission to its YAML form.
func MissionSpecFrom(m model.Mission) MissionSpec {
	out := MissionSpec{Home: PointSpec{Lat: m.Home.Lat, Lon: m.Home.Lon}, Armed: m.Armed}
	for _, wp := range m.Waypoints {
		out.Waypoints = append(out.Waypoints, PointSpec{Lat: wp.Lat, Lon: wp.Lon})
	}
	for _, sl := range m.SpeedLimits {
		out.SpeedLimits = append(out.SpeedLimits, SpeedLimitSpec{Segment: sl.Segment, Kmh: sl.LimitKmh})
	}
	return out
}

// Default returns a configuration that runs the built-in demo route.
func Default() Config {
	return Config{
		VehicleID: "m1",
		Log:       LogConfig{Level: "info", Format: "text"},
		Sim: SimConfig{
			Tick:                 100 * time.Millisecond,
			Step:                 100 * time.Millisecond,
			Mode:                 "realtime",
			MaxAccelKmhPerSec:    15,
			MaxDecelKmhPerSec:    30,
			MaxTurnRateDegPerSec: 90,
			ArrivalThresholdM:    20,
			QueueCapacity:        bus.DefaultQueueCapacity,
		},
		Telemetry: TelemetryConfig{
			FilePath: "telemetry.json",
			Buffer:   256,
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Key:     "rover:telemetry",
				History: 1000,
				TTL:     time.Hour,
			},
			WebSocket: WebSocketConfig{Path: "/telemetry/ws", ClientBuffer: 32},
		},
		Metrics:  MetricsConfig{Addr: ":9090"},
		Tracing:  observability.DefaultTracingConfig(),
		Mission:  "demo",
		Missions: map[string]MissionSpec{"demo": MissionSpecFrom(DemoMission())},
	}
}

// DemoMission is the Palace Square loop in Saint Petersburg.
func DemoMission() model.Mission {
	home := model.GeoPoint{Lat: 59.939032, Lon: 30.315827}
	return model.Mission{
		Home: home,
		Waypoints: []model.GeoPoint{
			home,
			{Lat: 59.9386, Lon: 30.3149},
			{Lat: 59.9386, Lon: 30.3121},
			{Lat: 59.940041, Lon: 30.309788},
			{Lat: 59.94139, Lon: 30.31231},
		},
		SpeedLimits: []model.SpeedLimit{
			{Segment: 0, LimitKmh: 30},
			{Segment: 1, LimitKmh: 60},
			{Segment: 2, LimitKmh: 90},
			{Segment: 3, LimitKmh: 30},
		},
		Armed: true,
	}
}

// Load reads a YAML file over the defaults, applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default().ApplyEnv()
		return cfg, cfg.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	// A file that declares missions replaces the demo catalog.
	cfg.Missions = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode yaml: %v", ErrInvalidConfig, err)
	}
	if cfg.Missions == nil {
		cfg.Missions = Default().Missions
	}
	cfg = cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg.
func (c Config) ApplyEnv() Config {
	c.VehicleID = getEnv("ROVER_VEHICLE_ID", c.VehicleID)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Sim.Tick = getDurationEnv("ROVER_SIM_TICK", c.Sim.Tick)
	c.Sim.Step = getDurationEnv("ROVER_SIM_STEP", c.Sim.Step)
	c.Sim.Mode = getEnv("ROVER_SIM_MODE", c.Sim.Mode)
	c.Sim.ArrivalThresholdM = getFloatEnv("ROVER_ARRIVAL_THRESHOLD_M", c.Sim.ArrivalThresholdM)

	c.Telemetry.FilePath = getEnv("ROVER_TELEMETRY_FILE", c.Telemetry.FilePath)
	c.Telemetry.Redis.Enabled = getBoolEnv("ROVER_REDIS_ENABLED", c.Telemetry.Redis.Enabled)
	c.Telemetry.Redis.Addr = getEnv("ROVER_REDIS_ADDR", c.Telemetry.Redis.Addr)
	c.Telemetry.Redis.Password = getEnv("ROVER_REDIS_PASSWORD", c.Telemetry.Redis.Password)
	c.Telemetry.Redis.DB = getIntEnv("ROVER_REDIS_DB", c.Telemetry.Redis.DB)
	c.Telemetry.WebSocket.Enabled = getBoolEnv("ROVER_WEBSOCKET_ENABLED", c.Telemetry.WebSocket.Enabled)

	c.Metrics.Addr = getEnv("ROVER_METRICS_ADDR", c.Metrics.Addr)
	c.Mission = getEnv("ROVER_MISSION", c.Mission)
	c.Tracing = c.Tracing.ApplyEnv()
	return c
}

// Validate checks every section and every catalog mission.
func (c Config) Validate() error {
	if c.VehicleID == "" {
		return fmt.Errorf("%w: vehicle_id is required", ErrInvalidConfig)
	}
	if c.Sim.Tick <= 0 {
		return fmt.Errorf("%w: sim.tick must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Sim.Mode) {
	case "", "realtime":
	case "accelerated":
		if c.Sim.Step <= 0 {
			return fmt.Errorf("%w: sim.step must be positive in accelerated mode", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown sim.mode %q", ErrInvalidConfig, c.Sim.Mode)
	}
	if c.Sim.ArrivalThresholdM <= 0 {
		return fmt.Errorf("%w: sim.arrival_threshold_m must be positive", ErrInvalidConfig)
	}
	if c.Sim.MaxAccelKmhPerSec < 0 || c.Sim.MaxDecelKmhPerSec < 0 || c.Sim.MaxTurnRateDegPerSec < 0 {
		return fmt.Errorf("%w: motion limits must not be negative", ErrInvalidConfig)
	}
	if c.Sim.Start != nil {
		if err := c.Sim.Start.Point().Validate(); err != nil {
			return fmt.Errorf("%w: sim.start: %v", ErrInvalidConfig, err)
		}
	}
	if c.Telemetry.Redis.Enabled && c.Telemetry.Redis.Addr == "" {
		return fmt.Errorf("%w: telemetry.redis.addr is required when redis is enabled", ErrInvalidConfig)
	}
	for _, name := range c.MissionNames() {
		if err := c.Missions[name].Mission().Validate(); err != nil {
			return fmt.Errorf("%w: mission %q: %v", ErrInvalidConfig, name, err)
		}
	}
	if c.Mission != "" {
		if _, ok := c.Missions[c.Mission]; !ok {
			return fmt.Errorf("%w: mission %q not in catalog", ErrInvalidConfig, c.Mission)
		}
	}
	return nil
}

// Accelerated reports whether the simulation runs faster than wall time.
func (c SimConfig) Accelerated() bool {
	return strings.EqualFold(c.Mode, "accelerated")
}

// MissionNames returns the catalog keys in sorted order.
func (c Config) MissionNames() []string {
	names := make([]string, 0, len(c.Missions))
	for name := range c.Missions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog converts every mission spec to its domain form.
func (c Config) Catalog() map[string]model.Mission {
	out := make(map[string]model.Mission, len(c.Missions))
	for name, spec := range c.Missions {
		out[name] = spec.Mission()
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
