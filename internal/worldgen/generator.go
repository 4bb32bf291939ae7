// Package worldgen produces the fixture world served by voxserve: a noise
// heightmap with optional caves, sampled into terrain, fluid and block records
// at any resolution tier.
package worldgen

import "math"

// Field is a scalar world. Coordinates are in world units.
type Field interface {
	// Density is positive inside solid ground and clamped to [-1, 1].
	Density(x, y, z float64) float64
	// Height is the ground surface at (x, z).
	Height(x, z float64) float64
}

// Material ids shared by terrain voxel types and block types. Zero is air.
const (
	Air     = 0
	Bedrock = 1
	Stone   = 2
	Dirt    = 3
	Grass   = 4
	Sand    = 5
)

func clamp1(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// Heightmap is a fractal-noise surface with optional 3D noise caves.
type Heightmap struct {
	seed       int64
	scale      float64
	baseHeight float64
	amp        float64
	shape      octaves
	caves      bool
	caveScale  float64
	caveCutoff float64
}

// NewHeightmap returns the default surface for seed.
func NewHeightmap(seed int64, caves bool) *Heightmap {
	return &Heightmap{
		seed:       seed,
		scale:      1.0 / 64.0,
		baseHeight: 32,
		amp:        32,
		shape:      octaves{count: 4, persistence: 0.5, lacunarity: 2},
		caves:      caves,
		caveScale:  1.0 / 24.0,
		caveCutoff: 0.72,
	}
}

func (g *Heightmap) Height(x, z float64) float64 {
	n := g.shape.noise2D(x*g.scale, z*g.scale, g.seed)
	return math.Max(0, g.baseHeight+(n*2-1)*g.amp)
}

func (g *Heightmap) Density(x, y, z float64) float64 {
	d := clamp1(g.Height(x, z) - y)
	if g.caves && d >= 1 && y > 2 {
		n := g.shape.noise3D(x*g.caveScale, y*g.caveScale, z*g.caveScale, g.seed^0x5eed)
		if n > g.caveCutoff {
			return -1
		}
	}
	return d
}

// Flat is level ground at a fixed height.
type Flat struct {
	Level float64
}

func (f Flat) Height(x, z float64) float64 { return f.Level }

func (f Flat) Density(x, y, z float64) float64 { return clamp1(f.Level - y) }

// materialAt picks the ground material for a solid sample at depth below the surface.
func materialAt(y, surface, seaLevel float64) int {
	depth := surface - y
	switch {
	case y < 1:
		return Bedrock
	case depth > 4:
		return Stone
	case surface <= seaLevel+1:
		return Sand
	case depth > 1:
		return Dirt
	default:
		return Grass
	}
}
