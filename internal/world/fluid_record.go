package world

import (
	"fmt"
	"slices"
)

// FluidEmpty is the weight of a sample with no fluid. Non-positive weights are normalized to it.
const FluidEmpty float32 = -1

// FluidDim returns the fluid sample count per axis at tier t: the voxels plus a one-sample
// border on each side.
func FluidDim(t Tier) int {
	return DefaultCellSize>>t + 2
}

// FluidChunk is the raw fluid payload of one cell: a weight grid, or a single
// uniform weight when homogeneous.
type FluidChunk struct {
	tier        Tier
	homogeneous bool
	value       float32
	weights     []float32
	modified    ModifiedSet
}

// NewHomogeneousFluid returns a chunk whose every sample has weight w.
func NewHomogeneousFluid(t Tier, w float32) *FluidChunk {
	return &FluidChunk{tier: t, homogeneous: true, value: normalizeFluid(w)}
}

// NewFluid returns a chunk from a full weight grid of FluidDim(t)^3 samples.
// Non-positive weights are stored as FluidEmpty.
func NewFluid(t Tier, weights []float32) (*FluidChunk, error) {
	n := cube(FluidDim(t))
	if len(weights) != n {
		return nil, fmt.Errorf("fluid %s grid: got %d weights, want %d", t, len(weights), n)
	}
	for i, w := range weights {
		weights[i] = normalizeFluid(w)
	}
	return &FluidChunk{tier: t, weights: weights}, nil
}

func (c *FluidChunk) Tier() Tier { return c.tier }

func (c *FluidChunk) Dim() int { return FluidDim(c.tier) }

// Homogeneous returns the uniform weight and true when the grid is elided.
func (c *FluidChunk) Homogeneous() (float32, bool) {
	return c.value, c.homogeneous
}

// Weights returns the weight grid, or nil for a homogeneous chunk.
func (c *FluidChunk) Weights() []float32 { return c.weights }

func (c *FluidChunk) Weight(x, y, z int) float32 {
	if c.homogeneous {
		return c.value
	}
	return c.weights[GridIndex(c.Dim(), x, y, z)]
}

func (c *FluidChunk) Solid(x, y, z int) bool {
	return c.Weight(x, y, z) > 0
}

// SetWeight writes one sample in place and marks it modified.
func (c *FluidChunk) SetWeight(x, y, z int, w float32) error {
	dim := c.Dim()
	if !InGrid(dim, x, y, z) {
		return fmt.Errorf("fluid sample (%d,%d,%d) outside %d^3 grid", x, y, z, dim)
	}
	if c.homogeneous {
		c.weights = make([]float32, cube(dim))
		for i := range c.weights {
			c.weights[i] = c.value
		}
		c.homogeneous = false
		c.value = 0
	}
	i := GridIndex(dim, x, y, z)
	c.weights[i] = normalizeFluid(w)
	c.modified.Mark(i)
	return nil
}

func (c *FluidChunk) Modified() []int { return c.modified.Indices() }

func (c *FluidChunk) ResetModified() { c.modified.Reset() }

func (c *FluidChunk) Clone() *FluidChunk {
	return &FluidChunk{
		tier:        c.tier,
		homogeneous: c.homogeneous,
		value:       c.value,
		weights:     slices.Clone(c.weights),
		modified:    c.modified.clone(),
	}
}

func (c *FluidChunk) Equal(o *FluidChunk) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.tier == o.tier && c.homogeneous == o.homogeneous && c.value == o.value &&
		slices.Equal(c.weights, o.weights)
}

func normalizeFluid(w float32) float32 {
	if w <= 0 {
		return FluidEmpty
	}
	return w
}
