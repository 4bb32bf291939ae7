package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	p := writeFile(t, "client.yaml", `
streams:
  terrain:
    cache_capacity: 100
    radius_cells: 6
network:
  url: ws://example:9000/stream
  read_timeout: 30s
logging:
  level: debug
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Streams.Terrain.CacheCapacity != 100 || cfg.Streams.Terrain.RadiusCells != 6 {
		t.Fatalf("terrain: %+v", cfg.Streams.Terrain)
	}
	if got := len(cfg.Streams.Terrain.TierThresholds); got != 5 {
		t.Fatalf("thresholds kept from defaults: got %d, want 5", got)
	}
	if cfg.Network.ReadTimeout != 30*time.Second || cfg.Network.URL != "ws://example:9000/stream" {
		t.Fatalf("network: %+v", cfg.Network)
	}
	if cfg.Logging.Level != "debug" || cfg.Streams.Block.CacheCapacity != 2740 {
		t.Fatalf("overlay lost defaults: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeFile(t, "client.toml", `
[meshing]
workers = 2
queue_size = 32

[worldgen]
seed = 9
flat = true
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Meshing.Workers != 2 || cfg.Meshing.QueueSize != 32 || cfg.Worldgen.Seed != 9 || !cfg.Worldgen.Flat {
		t.Fatalf("got %+v %+v", cfg.Meshing, cfg.Worldgen)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name, file, body string
	}{
		{"unknown key", "a.yaml", "streams:\n  lava:\n    cache_capacity: 3\n"},
		{"zero capacity", "b.yaml", "streams:\n  fluid:\n    cache_capacity: 0\n"},
		{"bad level", "c.toml", "[logging]\nlevel = \"loud\"\n"},
		{"too many tiers", "d.yaml", "streams:\n  block:\n    tier_thresholds: [1, 2, 3, 4, 5, 6]\n"},
		{"descending tiers", "e.yaml", "streams:\n  block:\n    tier_thresholds: [8, 4]\n"},
		{"huge world", "f.yaml", "world:\n  discrete_size: 4000000\n"},
		{"bad url", "g.yaml", "network:\n  url: http://x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.body))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("got %v, want ErrInvalid", err)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	cfg := Default()
	cfg.Streams.Terrain.RadiusCells = 500
	cfg.Streams.Fluid.RadiusCells = 0
	cfg.Meshing.Workers = 0
	cfg.Clamp()
	if cfg.Streams.Terrain.RadiusCells != maxRadiusCells || cfg.Streams.Fluid.RadiusCells != minRadiusCells {
		t.Fatalf("radius: got %v/%v", cfg.Streams.Terrain.RadiusCells, cfg.Streams.Fluid.RadiusCells)
	}
	if cfg.Meshing.Workers != 1 {
		t.Fatalf("workers: got %d, want 1", cfg.Meshing.Workers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil || errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want a read error", err)
	}
}
