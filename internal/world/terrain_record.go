package world

import (
	"fmt"
	"slices"
)

const (
	// TerrainSamples is the full-resolution sample count per axis: one per voxel plus the shared boundary.
	TerrainSamples = DefaultCellSize + 1

	// NotHomogeneous marks a record whose grids are populated.
	NotHomogeneous = -1
)

// TerrainDim returns the terrain sample count per axis at tier t.
func TerrainDim(t Tier) int {
	return DefaultCellSize>>t + 1
}

// TerrainChunk is the raw terrain payload of one cell: a voxel type grid and a
// parallel iso-surface weight grid. A homogeneous chunk stores only its type.
type TerrainChunk struct {
	tier        Tier
	homogeneous int32
	types       []int32
	weights     []float32
	modified    ModifiedSet
}

// NewHomogeneousTerrain returns a chunk whose whole volume is voxel type value.
// Voxel types are non-negative; a negative value panics.
func NewHomogeneousTerrain(t Tier, value int32) *TerrainChunk {
	if value < 0 {
		panic(fmt.Sprintf("world: homogeneous terrain type %d is negative", value))
	}
	return &TerrainChunk{tier: t, homogeneous: value}
}

// NewTerrain returns a chunk from full grids. Both slices must hold TerrainDim(t)^3 samples.
func NewTerrain(t Tier, types []int32, weights []float32) (*TerrainChunk, error) {
	n := cube(TerrainDim(t))
	if len(types) != n || len(weights) != n {
		return nil, fmt.Errorf("terrain %s grid: got %d types and %d weights, want %d", t, len(types), len(weights), n)
	}
	return &TerrainChunk{tier: t, homogeneous: NotHomogeneous, types: types, weights: weights}, nil
}

func (c *TerrainChunk) Tier() Tier { return c.tier }

// Dim returns the sample count per axis.
func (c *TerrainChunk) Dim() int { return TerrainDim(c.tier) }

// Homogeneous returns the uniform voxel type and true when the grids are elided.
func (c *TerrainChunk) Homogeneous() (int32, bool) {
	if c.homogeneous == NotHomogeneous {
		return 0, false
	}
	return c.homogeneous, true
}

// Types returns the type grid, or nil for a homogeneous chunk. Callers must not modify it.
func (c *TerrainChunk) Types() []int32 { return c.types }

// Weights returns the weight grid, or nil for a homogeneous chunk. Callers must not modify it.
func (c *TerrainChunk) Weights() []float32 { return c.weights }

// Type returns the voxel type at local sample (x, y, z).
func (c *TerrainChunk) Type(x, y, z int) int32 {
	if c.homogeneous != NotHomogeneous {
		return c.homogeneous
	}
	return c.types[GridIndex(c.Dim(), x, y, z)]
}

// Weight returns the iso-surface weight at local sample (x, y, z).
func (c *TerrainChunk) Weight(x, y, z int) float32 {
	if c.homogeneous != NotHomogeneous {
		return homogeneousWeight(c.homogeneous)
	}
	return c.weights[GridIndex(c.Dim(), x, y, z)]
}

// Solid reports whether the sample carries a positive weight.
func (c *TerrainChunk) Solid(x, y, z int) bool {
	return c.Weight(x, y, z) > 0
}

// SetVoxel writes one sample in place and marks it modified. Writing into a
// homogeneous chunk materializes its grids first.
func (c *TerrainChunk) SetVoxel(x, y, z int, weight float32, typ int32) error {
	dim := c.Dim()
	if !InGrid(dim, x, y, z) {
		return fmt.Errorf("terrain voxel (%d,%d,%d) outside %d^3 grid", x, y, z, dim)
	}
	if c.homogeneous != NotHomogeneous {
		c.expand()
	}
	i := GridIndex(dim, x, y, z)
	c.types[i] = typ
	c.weights[i] = weight
	c.modified.Mark(i)
	return nil
}

func (c *TerrainChunk) expand() {
	n := cube(c.Dim())
	c.types = make([]int32, n)
	c.weights = make([]float32, n)
	w := homogeneousWeight(c.homogeneous)
	for i := range n {
		c.types[i] = c.homogeneous
		c.weights[i] = w
	}
	c.homogeneous = NotHomogeneous
}

// Modified returns the sample indices edited since the last reset.
func (c *TerrainChunk) Modified() []int { return c.modified.Indices() }

func (c *TerrainChunk) ResetModified() { c.modified.Reset() }

func (c *TerrainChunk) Clone() *TerrainChunk {
	return &TerrainChunk{
		tier:        c.tier,
		homogeneous: c.homogeneous,
		types:       slices.Clone(c.types),
		weights:     slices.Clone(c.weights),
		modified:    c.modified.clone(),
	}
}

// Equal compares payloads; the modified set is ignored.
func (c *TerrainChunk) Equal(o *TerrainChunk) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.tier == o.tier && c.homogeneous == o.homogeneous &&
		slices.Equal(c.types, o.types) && slices.Equal(c.weights, o.weights)
}

// homogeneousWeight is the weight implied for every sample of a uniform chunk: air is empty.
func homogeneousWeight(typ int32) float32 {
	if typ == 0 {
		return -1
	}
	return 1
}

func cube(n int) int { return n * n * n }
