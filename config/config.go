// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Sim       SimConfig       `yaml:"sim"`
	Track     TrackConfig     `yaml:"track"`
	Traffic   TrafficConfig   `yaml:"traffic"`
	Car       CarConfig       `yaml:"car"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	Network   NetworkConfig   `yaml:"network"`
	Evolve    EvolveConfig    `yaml:"evolve"`
	Fitness   FitnessConfig   `yaml:"fitness"`
	Planner   PlannerConfig   `yaml:"planner"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Storage   StorageConfig   `yaml:"storage"`
	Viewer    ViewerConfig    `yaml:"viewer"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimConfig holds run-level parameters.
type SimConfig struct {
	Seed        int64   `yaml:"seed"`
	DT          float64 `yaml:"dt"`          // seconds per tick
	MaxTicks    int     `yaml:"max_ticks"`   // episode tick cap
	Generations int     `yaml:"generations"` // evolution run length
}

// TrackConfig describes the driving course. The track runs along +Y from the
// spawn line to the goal line; X spans the road width.
type TrackConfig struct {
	Length          float64 `yaml:"length"`           // world units along the driving axis
	Width           float64 `yaml:"width"`            // world units across the road
	CellSize        float64 `yaml:"cell_size"`        // nav grid resolution
	WallThickness   float64 `yaml:"wall_thickness"`   // border wall band on each side
	WallRows        int     `yaml:"wall_rows"`        // interior wall rows between spawn and goal
	WallGap         float64 `yaml:"wall_gap"`         // opening width left in each wall row
	CheckpointEvery float64 `yaml:"checkpoint_every"` // spacing between checkpoint lines
	SpawnMargin     float64 `yaml:"spawn_margin"`     // spawn distance from the track start
	GoalMargin      float64 `yaml:"goal_margin"`      // goal line distance from the track end
}

// TrafficConfig holds the moving-obstacle parameters. Traffic drives toward
// the spawn line (-Y) and wraps back to the far end.
type TrafficConfig struct {
	Count     int     `yaml:"count"`
	SpeedMin  float64 `yaml:"speed_min"`
	SpeedMax  float64 `yaml:"speed_max"`
	CarLength float64 `yaml:"car_length"`
	CarWidth  float64 `yaml:"car_width"`
}

// CarConfig holds agent vehicle kinematics limits.
type CarConfig struct {
	MaxSpeed  float64 `yaml:"max_speed"`  // forward speed cap
	Accel     float64 `yaml:"accel"`      // throttle acceleration
	Brake     float64 `yaml:"brake"`      // brake deceleration
	SteerRate float64 `yaml:"steer_rate"` // heading change at full steer, rad/s
	Radius    float64 `yaml:"radius"`     // collision footprint radius
}

// SensorsConfig holds the ray fan parameters.
type SensorsConfig struct {
	Rays         int     `yaml:"rays"`
	Range        float64 `yaml:"range"`
	SpreadDeg    float64 `yaml:"spread_deg"`
	IncludeSpeed bool    `yaml:"include_speed"`
}

// NetworkConfig describes the driver network topology.
type NetworkConfig struct {
	Hidden     []int  `yaml:"hidden"`
	Activation string `yaml:"activation"` // tanh or sigmoid
}

// EvolveConfig holds the genetic algorithm parameters.
type EvolveConfig struct {
	Population    int     `yaml:"population"`
	Elitism       int     `yaml:"elitism"`
	TournamentK   int     `yaml:"tournament_k"`
	CrossoverRate float64 `yaml:"crossover_rate"`
	MutationRate  float64 `yaml:"mutation_rate"`
	MutationSigma float64 `yaml:"mutation_sigma"`
	Workers       int     `yaml:"workers"` // 0 = GOMAXPROCS
}

// FitnessConfig holds the episode scoring weights.
type FitnessConfig struct {
	DistanceWeight   float64 `yaml:"distance_weight"`
	CheckpointBonus  float64 `yaml:"checkpoint_bonus"`
	GoalBonus        float64 `yaml:"goal_bonus"`
	CollisionPenalty float64 `yaml:"collision_penalty"`
}

// PlannerConfig holds the A* and path-following parameters.
type PlannerConfig struct {
	Connectivity int     `yaml:"connectivity"` // 4 or 8
	Heuristic    string  `yaml:"heuristic"`    // euclidean or manhattan
	ArrivalDist  float64 `yaml:"arrival_dist"` // waypoint consumed within this distance
	DeviateDist  float64 `yaml:"deviate_dist"` // re-plan when further than this from the path
	MaxPathAge   int     `yaml:"max_path_age"` // re-validate a cached path after this many ticks
}

// TelemetryConfig holds output settings.
type TelemetryConfig struct {
	OutputDir  string `yaml:"output_dir"` // empty disables file output
	Plot       bool   `yaml:"plot"`       // write fitness curve PNG at run end
	StatsEvery int    `yaml:"stats_every"` // log generation stats every N generations
	HallSize   int    `yaml:"hall_size"`   // best-genome archive capacity
}

// StorageConfig selects the optional run store.
type StorageConfig struct {
	Kind  string `yaml:"kind"` // none, memory or sqlite
	Path  string `yaml:"path"`
	RunID string `yaml:"run_id"`
}

// ViewerConfig holds the read-only websocket snapshot feed settings.
type ViewerConfig struct {
	Addr       string `yaml:"addr"`        // empty disables the viewer
	TickStride int    `yaml:"tick_stride"` // broadcast every N ticks in drive mode
}

// DerivedConfig holds values computed from the loaded configuration.
type DerivedConfig struct {
	DT32       float32
	GridW      int
	GridH      int
	FeatureLen int // sensor rays plus the optional speed scalar
	SpreadRad  float32
	SpawnX     float32
	SpawnY     float32
	GoalX      float32
	GoalY      float32
	MaxSpeed32 float32
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Compute derived values
	cfg.Finalize()

	return cfg, nil
}

// Finalize recomputes the derived values. Load calls it; callers that
// mutate a loaded config afterwards must call it again themselves.
func (c *Config) Finalize() {
	c.Derived.DT32 = float32(c.Sim.DT)
	if c.Track.CellSize > 0 {
		c.Derived.GridW = int(math.Round(c.Track.Width / c.Track.CellSize))
		c.Derived.GridH = int(math.Round(c.Track.Length / c.Track.CellSize))
	}
	c.Derived.FeatureLen = c.Sensors.Rays
	if c.Sensors.IncludeSpeed {
		c.Derived.FeatureLen++
	}
	c.Derived.SpreadRad = float32(c.Sensors.SpreadDeg * math.Pi / 180)
	c.Derived.SpawnX = float32(c.Track.Width / 2)
	c.Derived.SpawnY = float32(c.Track.SpawnMargin)
	c.Derived.GoalX = float32(c.Track.Width / 2)
	c.Derived.GoalY = float32(c.Track.Length - c.Track.GoalMargin)
	c.Derived.MaxSpeed32 = float32(c.Car.MaxSpeed)
}

// Validate checks every configurable invariant and returns all violations
// joined into a single error. A non-nil result is fatal at startup.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Sim.DT <= 0 {
		bad("sim.dt must be > 0, got %v", c.Sim.DT)
	}
	if c.Sim.MaxTicks <= 0 {
		bad("sim.max_ticks must be > 0, got %d", c.Sim.MaxTicks)
	}
	if c.Sim.Generations <= 0 {
		bad("sim.generations must be > 0, got %d", c.Sim.Generations)
	}

	if c.Track.Length <= 0 {
		bad("track.length must be > 0, got %v", c.Track.Length)
	}
	if c.Track.Width <= 0 {
		bad("track.width must be > 0, got %v", c.Track.Width)
	}
	if c.Track.CellSize <= 0 {
		bad("track.cell_size must be > 0, got %v", c.Track.CellSize)
	} else {
		if c.Track.CellSize >= c.Track.Width {
			bad("track.cell_size %v must be smaller than track.width %v", c.Track.CellSize, c.Track.Width)
		}
		if c.Track.WallRows > 0 && c.Track.WallGap < 2*c.Track.CellSize {
			bad("track.wall_gap %v must span at least two cells (cell_size %v)", c.Track.WallGap, c.Track.CellSize)
		}
	}
	if c.Track.WallRows < 0 {
		bad("track.wall_rows must be >= 0, got %d", c.Track.WallRows)
	}
	if c.Track.CheckpointEvery <= 0 {
		bad("track.checkpoint_every must be > 0, got %v", c.Track.CheckpointEvery)
	}
	if c.Track.SpawnMargin < 0 || c.Track.GoalMargin < 0 {
		bad("track margins must be >= 0, got spawn %v goal %v", c.Track.SpawnMargin, c.Track.GoalMargin)
	} else if c.Track.SpawnMargin+c.Track.GoalMargin >= c.Track.Length {
		bad("track margins %v+%v leave no room on a track of length %v",
			c.Track.SpawnMargin, c.Track.GoalMargin, c.Track.Length)
	}

	if c.Traffic.Count < 0 {
		bad("traffic.count must be >= 0, got %d", c.Traffic.Count)
	}
	if c.Traffic.SpeedMin < 0 || c.Traffic.SpeedMax < c.Traffic.SpeedMin {
		bad("traffic speeds must satisfy 0 <= speed_min <= speed_max, got %v..%v",
			c.Traffic.SpeedMin, c.Traffic.SpeedMax)
	}
	if c.Traffic.Count > 0 && (c.Traffic.CarLength <= 0 || c.Traffic.CarWidth <= 0) {
		bad("traffic car dimensions must be > 0, got %vx%v", c.Traffic.CarWidth, c.Traffic.CarLength)
	}

	if c.Car.MaxSpeed <= 0 {
		bad("car.max_speed must be > 0, got %v", c.Car.MaxSpeed)
	}
	if c.Car.Accel <= 0 || c.Car.Brake <= 0 {
		bad("car.accel and car.brake must be > 0, got %v and %v", c.Car.Accel, c.Car.Brake)
	}
	if c.Car.SteerRate <= 0 {
		bad("car.steer_rate must be > 0, got %v", c.Car.SteerRate)
	}
	if c.Car.Radius < 0 {
		bad("car.radius must be >= 0, got %v", c.Car.Radius)
	}

	if c.Sensors.Rays < 1 {
		bad("sensors.rays must be >= 1, got %d", c.Sensors.Rays)
	}
	if c.Sensors.Range <= 0 {
		bad("sensors.range must be > 0, got %v", c.Sensors.Range)
	}
	if c.Sensors.SpreadDeg <= 0 || c.Sensors.SpreadDeg > 360 {
		bad("sensors.spread_deg must be in (0, 360], got %v", c.Sensors.SpreadDeg)
	}

	for i, h := range c.Network.Hidden {
		if h < 1 {
			bad("network.hidden[%d] must be >= 1, got %d", i, h)
		}
	}
	switch c.Network.Activation {
	case "tanh", "sigmoid":
	default:
		bad("network.activation must be tanh or sigmoid, got %q", c.Network.Activation)
	}

	ev := c.Evolve
	if ev.Population <= 0 {
		bad("evolve.population must be > 0, got %d", ev.Population)
	}
	if ev.Elitism < 1 {
		bad("evolve.elitism must be >= 1, got %d", ev.Elitism)
	} else if ev.Population > 0 && ev.Elitism > ev.Population {
		bad("evolve.elitism %d exceeds population %d", ev.Elitism, ev.Population)
	}
	if ev.TournamentK < 1 {
		bad("evolve.tournament_k must be >= 1, got %d", ev.TournamentK)
	} else if ev.Population > 0 && ev.TournamentK > ev.Population {
		bad("evolve.tournament_k %d exceeds population %d", ev.TournamentK, ev.Population)
	}
	if ev.CrossoverRate < 0 || ev.CrossoverRate > 1 {
		bad("evolve.crossover_rate must be in [0, 1], got %v", ev.CrossoverRate)
	}
	if ev.MutationRate < 0 || ev.MutationRate > 1 {
		bad("evolve.mutation_rate must be in [0, 1], got %v", ev.MutationRate)
	}
	if ev.MutationSigma < 0 {
		bad("evolve.mutation_sigma must be >= 0, got %v", ev.MutationSigma)
	}
	if ev.Workers < 0 {
		bad("evolve.workers must be >= 0, got %d", ev.Workers)
	}

	if c.Fitness.DistanceWeight < 0 || c.Fitness.CheckpointBonus < 0 ||
		c.Fitness.GoalBonus < 0 || c.Fitness.CollisionPenalty < 0 {
		bad("fitness weights must be >= 0")
	}

	switch c.Planner.Connectivity {
	case 4, 8:
	default:
		bad("planner.connectivity must be 4 or 8, got %d", c.Planner.Connectivity)
	}
	switch c.Planner.Heuristic {
	case "euclidean":
	case "manhattan":
		// Manhattan overestimates diagonal moves and would break optimality.
		if c.Planner.Connectivity == 8 {
			bad("planner.heuristic manhattan is inadmissible with connectivity 8")
		}
	default:
		bad("planner.heuristic must be euclidean or manhattan, got %q", c.Planner.Heuristic)
	}
	if c.Planner.ArrivalDist <= 0 {
		bad("planner.arrival_dist must be > 0, got %v", c.Planner.ArrivalDist)
	}
	if c.Planner.DeviateDist <= 0 {
		bad("planner.deviate_dist must be > 0, got %v", c.Planner.DeviateDist)
	}
	if c.Planner.MaxPathAge < 1 {
		bad("planner.max_path_age must be >= 1, got %d", c.Planner.MaxPathAge)
	}

	if c.Telemetry.StatsEvery < 1 {
		bad("telemetry.stats_every must be >= 1, got %d", c.Telemetry.StatsEvery)
	}
	if c.Telemetry.HallSize < 1 {
		bad("telemetry.hall_size must be >= 1, got %d", c.Telemetry.HallSize)
	}

	switch c.Storage.Kind {
	case "none", "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			bad("storage.path is required when storage.kind is sqlite")
		}
	default:
		bad("storage.kind must be none, memory or sqlite, got %q", c.Storage.Kind)
	}

	if c.Viewer.TickStride < 1 {
		bad("viewer.tick_stride must be >= 1, got %d", c.Viewer.TickStride)
	}

	return errors.Join(errs...)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
