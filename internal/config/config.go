package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"voxstream/internal/world"
)

//go:embed schema.json
var schemaText string

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	World    WorldConfig    `yaml:"world" toml:"world"`
	Streams  StreamsConfig  `yaml:"streams" toml:"streams"`
	Meshing  MeshingConfig  `yaml:"meshing" toml:"meshing"`
	Network  NetworkConfig  `yaml:"network" toml:"network"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Persist  PersistConfig  `yaml:"persist" toml:"persist"`
	Worldgen WorldgenConfig `yaml:"worldgen" toml:"worldgen"`
}

type WorldConfig struct {
	CellSize     int `yaml:"cell_size" toml:"cell_size"`
	DiscreteSize int `yaml:"discrete_size" toml:"discrete_size"` // in cells per axis; 0 until WORLD_META arrives
}

type StreamsConfig struct {
	Terrain StreamConfig `yaml:"terrain" toml:"terrain"`
	Fluid   StreamConfig `yaml:"fluid" toml:"fluid"`
	Block   StreamConfig `yaml:"block" toml:"block"`
}

// StreamConfig tunes one data kind. Distances are in cells.
type StreamConfig struct {
	CacheCapacity          int       `yaml:"cache_capacity" toml:"cache_capacity"`
	MaxConcurrentRequests  int       `yaml:"max_concurrent_requests" toml:"max_concurrent_requests"`
	FailedRequestThreshold int       `yaml:"failed_request_threshold" toml:"failed_request_threshold"`
	RadiusCells            float32   `yaml:"radius_cells" toml:"radius_cells"`
	UpdateCount            int       `yaml:"update_count" toml:"update_count"`
	TierThresholds         []float32 `yaml:"tier_thresholds" toml:"tier_thresholds"`
}

type MeshingConfig struct {
	Workers   int `yaml:"workers" toml:"workers"`
	QueueSize int `yaml:"queue_size" toml:"queue_size"`
}

type NetworkConfig struct {
	URL               string        `yaml:"url" toml:"url"`
	Listen            string        `yaml:"listen" toml:"listen"`
	ClientName        string        `yaml:"client_name" toml:"client_name"`
	SendQueue         int           `yaml:"send_queue" toml:"send_queue"`
	RequestsPerSecond float64       `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int           `yaml:"burst" toml:"burst"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" toml:"handshake_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" toml:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "console" or "json"
}

type PersistConfig struct {
	Path string `yaml:"path" toml:"path"` // empty disables world save
}

// WorldgenConfig drives the fixture server's generator.
type WorldgenConfig struct {
	Seed     int64 `yaml:"seed" toml:"seed"`
	SeaLevel int   `yaml:"sea_level" toml:"sea_level"`
	Flat     bool  `yaml:"flat" toml:"flat"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		World: WorldConfig{CellSize: world.DefaultCellSize, DiscreteSize: 256},
		Streams: StreamsConfig{
			Terrain: StreamConfig{
				CacheCapacity:          2740,
				MaxConcurrentRequests:  500,
				FailedRequestThreshold: 500,
				RadiusCells:            8,
				UpdateCount:            27,
				TierThresholds:         []float32{8, 16, 24, 64, 128},
			},
			Fluid: StreamConfig{
				CacheCapacity:          2740,
				MaxConcurrentRequests:  500,
				FailedRequestThreshold: 500,
				RadiusCells:            4,
				UpdateCount:            27,
				TierThresholds:         []float32{4},
			},
			Block: StreamConfig{
				CacheCapacity:          2740,
				MaxConcurrentRequests:  500,
				FailedRequestThreshold: 500,
				RadiusCells:            8,
				UpdateCount:            27,
				TierThresholds:         []float32{8, 16, 24, 64},
			},
		},
		Meshing: MeshingConfig{Workers: 4, QueueSize: 256},
		Network: NetworkConfig{
			URL:               "ws://127.0.0.1:8080/stream",
			Listen:            "127.0.0.1:8080",
			ClientName:        "voxclient",
			SendQueue:         1024,
			RequestsPerSecond: 2000,
			Burst:             128,
			HandshakeTimeout:  5 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      5 * time.Second,
		},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
		Worldgen: WorldgenConfig{Seed: 1337, SeaLevel: 40},
	}
}

// Load overlays the file at path on Default. The format follows the extension:
// .toml for TOML, anything else is read as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	isTOML := strings.EqualFold(filepath.Ext(path), ".toml")

	var doc any
	if isTOML {
		var m map[string]any
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		doc = m
	} else if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg := Default()
	if isTOML {
		_, err = toml.Decode(string(data), cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.Clamp()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

var schema = jsonschema.MustCompileString("config.schema.json", schemaText)

// validateDocument checks the raw decoded file against the embedded schema. The
// document goes through JSON first so numbers arrive as json.Number.
func validateDocument(doc any) error {
	if doc == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

const (
	minRadiusCells = 1
	maxRadiusCells = 64
	maxWorkers     = 64
)

// Clamp keeps radius and worker counts within usable limits.
func (c *Config) Clamp() {
	for _, s := range []*StreamConfig{&c.Streams.Terrain, &c.Streams.Fluid, &c.Streams.Block} {
		if s.RadiusCells < minRadiusCells {
			s.RadiusCells = minRadiusCells
		}
		if s.RadiusCells > maxRadiusCells {
			s.RadiusCells = maxRadiusCells
		}
	}
	if c.Meshing.Workers < 1 {
		c.Meshing.Workers = 1
	}
	if c.Meshing.Workers > maxWorkers {
		c.Meshing.Workers = maxWorkers
	}
}

// Validate checks rules the schema cannot express.
func (c *Config) Validate() error {
	if c.World.CellSize <= 0 {
		return fmt.Errorf("%w: world.cell_size must be positive", ErrInvalid)
	}
	if b := (world.Bounds{DiscreteSize: c.World.DiscreteSize}); !b.Fits() {
		return fmt.Errorf("%w: world.discrete_size %d exceeds the key range", ErrInvalid, c.World.DiscreteSize)
	}
	for name, s := range c.Streams.byName() {
		if s.CacheCapacity <= 0 {
			return fmt.Errorf("%w: streams.%s.cache_capacity must be positive", ErrInvalid, name)
		}
		if len(s.TierThresholds) > world.NumTiers {
			return fmt.Errorf("%w: streams.%s has %d tier thresholds, at most %d", ErrInvalid, name, len(s.TierThresholds), world.NumTiers)
		}
		for i := 1; i < len(s.TierThresholds); i++ {
			if s.TierThresholds[i] < s.TierThresholds[i-1] {
				return fmt.Errorf("%w: streams.%s.tier_thresholds must ascend", ErrInvalid, name)
			}
		}
	}
	if c.Meshing.QueueSize <= 0 {
		return fmt.Errorf("%w: meshing.queue_size must be positive", ErrInvalid)
	}
	return nil
}

func (s StreamsConfig) byName() map[string]StreamConfig {
	return map[string]StreamConfig{"terrain": s.Terrain, "fluid": s.Fluid, "block": s.Block}
}

// Stream returns the settings for kind.
func (s StreamsConfig) Stream(kind world.Kind) StreamConfig {
	switch kind {
	case world.KindFluid:
		return s.Fluid
	case world.KindBlock:
		return s.Block
	default:
		return s.Terrain
	}
}
