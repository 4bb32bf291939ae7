package world

import (
	"fmt"
	"slices"
)

// BlockSamples is the full-resolution block grid edge. Blocks are a quarter voxel.
const BlockSamples = DefaultCellSize * 4

// BlockDim returns the block grid edge at tier t.
func BlockDim(t Tier) int {
	return BlockSamples >> t
}

// BlockChunk is the raw block payload of one cell: a type grid and a parallel
// metadata grid. Type 0 is empty.
type BlockChunk struct {
	tier        Tier
	homogeneous int32
	types       []uint16
	metadata    []uint16
	modified    ModifiedSet
}

// NewHomogeneousBlocks returns a chunk filled with one block type and zero metadata.
func NewHomogeneousBlocks(t Tier, typ uint16) *BlockChunk {
	return &BlockChunk{tier: t, homogeneous: int32(typ)}
}

// NewBlocks returns a chunk from full grids of BlockDim(t)^3 entries.
func NewBlocks(t Tier, types, metadata []uint16) (*BlockChunk, error) {
	n := cube(BlockDim(t))
	if len(types) != n || len(metadata) != n {
		return nil, fmt.Errorf("block %s grid: got %d types and %d metadata, want %d", t, len(types), len(metadata), n)
	}
	return &BlockChunk{tier: t, homogeneous: NotHomogeneous, types: types, metadata: metadata}, nil
}

func (c *BlockChunk) Tier() Tier { return c.tier }

func (c *BlockChunk) Dim() int { return BlockDim(c.tier) }

// Homogeneous returns the uniform block type and true when the grids are elided.
func (c *BlockChunk) Homogeneous() (uint16, bool) {
	if c.homogeneous == NotHomogeneous {
		return 0, false
	}
	return uint16(c.homogeneous), true
}

func (c *BlockChunk) Types() []uint16 { return c.types }

func (c *BlockChunk) Metadata() []uint16 { return c.metadata }

func (c *BlockChunk) Type(x, y, z int) uint16 {
	if c.homogeneous != NotHomogeneous {
		return uint16(c.homogeneous)
	}
	return c.types[GridIndex(c.Dim(), x, y, z)]
}

func (c *BlockChunk) Meta(x, y, z int) uint16 {
	if c.homogeneous != NotHomogeneous {
		return 0
	}
	return c.metadata[GridIndex(c.Dim(), x, y, z)]
}

func (c *BlockChunk) Solid(x, y, z int) bool {
	return c.Type(x, y, z) != 0
}

// SetBlock writes one block in place and marks it modified. Writing the uniform
// type into a homogeneous chunk leaves it homogeneous.
func (c *BlockChunk) SetBlock(x, y, z int, typ, meta uint16) error {
	dim := c.Dim()
	if !InGrid(dim, x, y, z) {
		return fmt.Errorf("block (%d,%d,%d) outside %d^3 grid", x, y, z, dim)
	}
	i := GridIndex(dim, x, y, z)
	if c.homogeneous != NotHomogeneous {
		if uint16(c.homogeneous) == typ && meta == 0 {
			c.modified.Mark(i)
			return nil
		}
		n := cube(dim)
		c.types = make([]uint16, n)
		c.metadata = make([]uint16, n)
		for j := range c.types {
			c.types[j] = uint16(c.homogeneous)
		}
		c.homogeneous = NotHomogeneous
	}
	c.types[i] = typ
	c.metadata[i] = meta
	c.modified.Mark(i)
	return nil
}

func (c *BlockChunk) Modified() []int { return c.modified.Indices() }

func (c *BlockChunk) ResetModified() { c.modified.Reset() }

func (c *BlockChunk) Clone() *BlockChunk {
	return &BlockChunk{
		tier:        c.tier,
		homogeneous: c.homogeneous,
		types:       slices.Clone(c.types),
		metadata:    slices.Clone(c.metadata),
		modified:    c.modified.clone(),
	}
}

func (c *BlockChunk) Equal(o *BlockChunk) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.tier == o.tier && c.homogeneous == o.homogeneous &&
		slices.Equal(c.types, o.types) && slices.Equal(c.metadata, o.metadata)
}
